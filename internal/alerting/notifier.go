package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

// Notification 封装告警上下文。
type Notification struct {
	TakenAt       time.Time
	User          string
	Risk          decimal.Decimal
	CoreTempRisk  decimal.Decimal
	HeatIndexRisk decimal.Decimal
	LogRegRisk    decimal.Decimal
	Threshold     decimal.Decimal
	HeartRate     decimal.Decimal
	SkinTemp      decimal.Decimal
	AmbientTemp   decimal.Decimal
	Channels      []string
	AdditionalMsg string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logging.Component(logger, "alert_telegram"),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("taken_at", note.TakenAt).
		Str("user", note.User).
		Str("risk", note.Risk.StringFixed(3)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Heat Stroke Risk Alert]\n")
	if note.User != "" {
		builder.WriteString(fmt.Sprintf("User: %s\n", note.User))
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.TakenAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Risk: %s (threshold %s)\n", note.Risk.StringFixed(3), note.Threshold.StringFixed(3)))
	builder.WriteString(fmt.Sprintf("Components: CT %s / HI %s / LR %s\n",
		note.CoreTempRisk.StringFixed(3), note.HeatIndexRisk.StringFixed(3), note.LogRegRisk.StringFixed(3)))
	builder.WriteString(fmt.Sprintf("Heart rate: %s b/min, skin %s C, ambient %s C\n",
		note.HeartRate.StringFixed(0), note.SkinTemp.StringFixed(1), note.AmbientTemp.StringFixed(1)))
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

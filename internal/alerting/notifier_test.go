package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNotification() Notification {
	return Notification{
		TakenAt:       time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
		User:          "Avery",
		Risk:          decimal.RequireFromString("0.912"),
		CoreTempRisk:  decimal.RequireFromString("0.8"),
		HeatIndexRisk: decimal.RequireFromString("0.95"),
		LogRegRisk:    decimal.RequireFromString("0.99"),
		Threshold:     decimal.RequireFromString("0.8"),
		HeartRate:     decimal.NewFromInt(172),
		SkinTemp:      decimal.RequireFromString("38.4"),
		AmbientTemp:   decimal.RequireFromString("41"),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Risk: 0.912 (threshold 0.800)") {
		t.Fatalf("text 缺少风险信息: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := renderMessage(sampleNotification())
	for _, want := range []string{
		"User: Avery",
		"Time: 2024-07-01T12:00:00Z UTC",
		"Components: CT 0.800 / HI 0.950 / LR 0.990",
		"Heart rate: 172 b/min, skin 38.4 C, ambient 41.0 C",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, msg)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

// MQTTOptions configure the wearable gateway subscription.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	Topic          string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	// Exclude lists channels another source owns.
	Exclude []Channel
}

// MQTTSource subscribes to a topic on which a wearable gateway publishes
// JSON readings, e.g. {"time": 1719835200.5, "HR": 92, "STemp": 35.1}.
// Keys are channel keys or attribute field names; "time" is optional unix
// seconds and defaults to the arrival time.
type MQTTSource struct {
	opts      MQTTOptions
	logger    zerolog.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
	now       func() time.Time

	client    mqtt.Client
	streams   *Streams
	connected atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
	dropped   atomic.Uint64
}

// NewMQTTSource constructs an MQTT-backed source.
func NewMQTTSource(opts MQTTOptions, logger zerolog.Logger) *MQTTSource {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &MQTTSource{
		opts:      opts,
		logger:    logging.Component(logger, "mqtt_source"),
		newClient: mqtt.NewClient,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Name implements Source.
func (m *MQTTSource) Name() string { return "mqtt" }

// Start connects to the broker and subscribes to the readings topic.
func (m *MQTTSource) Start(ctx context.Context, streams *Streams) error {
	if m.opts.Broker == "" || m.opts.Topic == "" {
		return errors.New("mqtt broker and topic are required")
	}
	m.streams = streams

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.opts.Broker)
	opts.SetClientID(m.opts.ClientID)
	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
	}
	if m.opts.Password != "" {
		opts.SetPassword(m.opts.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(m.opts.ConnectTimeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// clean sessions drop subscriptions, so renew them after a reconnect
		if !m.connected.Swap(true) {
			return
		}
		if err := m.subscribe(c); err != nil {
			m.logger.Error().Err(err).Msg("resubscribe after reconnect failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := m.newClient(opts)
	token := client.Connect()
	if !waitToken(ctx, token, m.opts.ConnectTimeout) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", m.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", m.opts.Broker, err)
	}
	m.connected.Store(true)

	if err := m.subscribe(client); err != nil {
		client.Disconnect(250)
		return err
	}
	m.client = client

	m.logger.Info().Str("broker", m.opts.Broker).Str("topic", m.opts.Topic).Msg("subscribed to wearable readings")
	return nil
}

// Stop unsubscribes and disconnects from the broker.
func (m *MQTTSource) Stop() {
	m.stopOnce.Do(func() {
		if m.client != nil {
			if token := m.client.Unsubscribe(m.opts.Topic); !token.WaitTimeout(time.Second) {
				m.logger.Warn().Msg("unsubscribe timed out")
			}
			m.client.Disconnect(250)
		}
		close(m.done)
	})
}

// Done implements Source.
func (m *MQTTSource) Done() <-chan struct{} { return m.done }

// Dropped reports how many messages were discarded as malformed.
func (m *MQTTSource) Dropped() uint64 { return m.dropped.Load() }

func (m *MQTTSource) subscribe(c mqtt.Client) error {
	token := c.Subscribe(m.opts.Topic, m.opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(m.opts.ConnectTimeout) {
		return fmt.Errorf("subscribe to topic %s: timed out", m.opts.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", m.opts.Topic, err)
	}
	return nil
}

func (m *MQTTSource) handleMessage(topic string, payload []byte) {
	reading, err := DecodeReading(payload, m.now())
	if err != nil {
		m.dropped.Add(1)
		m.logger.Warn().Err(err).Str("topic", topic).Msg("dropping malformed reading")
		return
	}
	if err := reading.Without(m.opts.Exclude).Apply(m.streams); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("reading partially rejected")
	}
}

// DecodeReading parses a JSON reading. Unknown keys are ignored.
func DecodeReading(payload []byte, received time.Time) (Reading, error) {
	var raw map[string]json.Number
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}

	reading := Reading{Time: received, Values: make(map[Channel]float64, len(raw))}
	for key, num := range raw {
		v, err := num.Float64()
		if err != nil {
			return Reading{}, fmt.Errorf("field %q: %w", key, err)
		}
		if strings.EqualFold(key, "time") {
			sec, frac := math.Modf(v)
			reading.Time = time.Unix(int64(sec), int64(frac*1e9))
			continue
		}
		ch, err := ParseChannel(key)
		if err != nil {
			continue
		}
		reading.Values[ch] = v
	}
	if len(reading.Values) == 0 {
		return Reading{}, errors.New("reading carries no known channels")
	}
	return reading, nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

var _ Source = (*MQTTSource)(nil)

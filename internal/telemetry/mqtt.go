package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

type MQTTOptions struct {
	BrokerURL string // tcp://host:1883, ssl://host:8883
	Topic     string // e.g. bloom/+/telemetry
	ClientID  string
	Username  string
	Password  string
	// ConnectWait bounds how long Start waits for the first connection.
	// The client keeps retrying in the background after that.
	ConnectWait time.Duration
}

const (
	defaultConnectWait = 5 * time.Second
	disconnectWait     = 2 * time.Second
)

// MQTTSubscriber stores readings that sensor boards publish to the broker.
type MQTTSubscriber struct {
	opts     MQTTOptions
	store    store.Store
	client   mqtt.Client
	msgCh    chan *store.TelemetryRecord
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *logger.Logger
}

func NewMQTTSubscriber(opts MQTTOptions, s store.Store, log *logger.Logger) *MQTTSubscriber {
	if opts.ConnectWait <= 0 {
		opts.ConnectWait = defaultConnectWait
	}
	return &MQTTSubscriber{
		opts:  opts,
		store: s,
		msgCh: make(chan *store.TelemetryRecord, 256),
		done:  make(chan struct{}),
		log:   log.WithComponent("mqtt").WithField("topic", opts.Topic),
	}
}

// Start connects and subscribes. An unreachable broker does not fail Start:
// after ConnectWait the client keeps retrying in the background and
// subscribes once connected.
func (m *MQTTSubscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.opts.BrokerURL).
		SetClientID(m.opts.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(m.opts.ConnectWait).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
		opts.SetPassword(m.opts.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.log.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		m.log.Info().Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(m.opts.Topic, 1, m.onMessage); token.Wait() && token.Error() != nil {
			m.log.Error().Err(token.Error()).Msg("Failed to subscribe to MQTT topic")
		}
	}

	m.client = mqtt.NewClient(opts)
	tk := m.client.Connect()
	select {
	case <-tk.Done():
		if err := tk.Error(); err != nil {
			return fmt.Errorf("mqtt connect failed: %w", err)
		}
	case <-time.After(m.opts.ConnectWait):
		m.log.Warn().Str("broker", m.opts.BrokerURL).Msg("MQTT broker not reachable yet, retrying in background")
	case <-ctx.Done():
		m.disconnect()
		return ctx.Err()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.writer(ctx)
	}()
	return nil
}

// Stop disconnects, stops the writer and waits for it. Readings that
// arrive afterwards are dropped. It is safe to call more than once.
func (m *MQTTSubscriber) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.disconnect()
	})
	m.wg.Wait()
}

// disconnect gives up after disconnectWait so a client stuck in a
// connect attempt cannot hold up shutdown.
func (m *MQTTSubscriber) disconnect() {
	if m.client == nil {
		return
	}
	finished := make(chan struct{})
	go func() {
		m.client.Disconnect(500)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(disconnectWait):
		m.log.Warn().Msg("MQTT disconnect timed out")
	}
}

func (m *MQTTSubscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	select {
	case <-m.done:
		return
	default:
	}

	rec, err := decodeReading(msg.Topic(), msg.Payload())
	if err != nil {
		m.log.Warn().Err(err).Str("msg_topic", msg.Topic()).Msg("Dropping unreadable reading")
		return
	}
	select {
	case m.msgCh <- rec:
	case <-m.done:
	default:
		m.log.Warn().Str("msg_topic", msg.Topic()).Msg("Reading queue full, dropping reading")
	}
}

// writer stores queued readings until ctx is done or Stop is called. On
// Stop it stores what is already queued first.
func (m *MQTTSubscriber) writer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			for {
				select {
				case rec := <-m.msgCh:
					m.write(ctx, rec)
				default:
					return
				}
			}
		case rec := <-m.msgCh:
			m.write(ctx, rec)
		}
	}
}

func (m *MQTTSubscriber) write(ctx context.Context, rec *store.TelemetryRecord) {
	if _, err := m.store.InsertTelemetry(ctx, rec); err != nil {
		m.log.Error().Err(err).Str("id", rec.ID).Msg("Failed to store reading")
	}
}

// decodeReading accepts a JSON object or a serial sensor line. The device id
// is taken from the second topic segment (bloom/<device>/telemetry).
func decodeReading(topic string, payload []byte) (*store.TelemetryRecord, error) {
	var fields map[string]interface{}
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("invalid JSON reading: %w", err)
		}
	} else {
		parsed, err := ParseSerialLine(trimmed)
		if err != nil {
			return nil, err
		}
		fields = parsed
	}

	if parts := strings.Split(topic, "/"); len(parts) >= 3 {
		if _, ok := fields["device_id"]; !ok {
			fields["device_id"] = parts[1]
		}
	}
	return RecordFromFields(uuid.NewString(), fields), nil
}

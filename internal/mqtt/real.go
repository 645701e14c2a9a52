package mqtt

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Config configures a RealPublisher.
type Config struct {
	Broker        string
	ClientID      string // empty: "paddle-keyer-" + random suffix
	ElementsTopic string
	SystemTopic   string
	BufferSize    int
}

// RealPublisher publishes to an actual MQTT broker. It never waits on the
// network from the caller's goroutine.
type RealPublisher struct {
	client paho.Client
	cfg    Config
	buf    *ringBuffer
	logger *log.Logger
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. The broker does not need to be reachable at startup.
func NewRealPublisher(cfg Config, logger *log.Logger) *RealPublisher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "paddle-keyer-" + uuid.NewString()[:8]
	}
	if cfg.ElementsTopic == "" {
		cfg.ElementsTopic = TopicElements
	}
	if cfg.SystemTopic == "" {
		cfg.SystemTopic = TopicSystem
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}

	p := &RealPublisher{
		cfg:    cfg,
		buf:    newRingBuffer(cfg.BufferSize, logger),
		logger: logger,
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(cfg.SystemTopic, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "err", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	logger.Info("mqtt connecting", "broker", cfg.Broker, "client_id", cfg.ClientID)
	return p
}

// onConnect replays system events buffered while offline.
func (p *RealPublisher) onConnect(c paho.Client) {
	msgs, dropped := p.buf.drain()
	p.logger.Info("mqtt connected", "broker", p.cfg.Broker, "replay", len(msgs), "dropped", dropped)
	for _, m := range msgs {
		p.await(c.Publish(m.topic, m.qos, m.retained, m.payload), "replay")
	}
}

// await logs the outcome of token without blocking the caller.
func (p *RealPublisher) await(token paho.Token, what string) {
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			p.logger.Warn("mqtt publish timeout", "kind", what)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "kind", what, "err", err)
		}
	}()
}

// IsConnected reports whether the client currently has a live connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// PublishElement sends an element event at QoS 0. While offline the event
// is dropped: replayed keying would be meaningless.
func (p *RealPublisher) PublishElement(event ElementEvent) error {
	if !p.client.IsConnectionOpen() {
		return nil
	}
	payload, err := FormatElementPayload(event)
	if err != nil {
		return fmt.Errorf("format element payload: %w", err)
	}
	p.await(p.client.Publish(p.cfg.ElementsTopic, 0, false, payload), "element")
	return nil
}

// PublishSystem sends a system event at QoS 1, or buffers it while offline.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: p.cfg.SystemTopic, payload: payload, qos: 1, retained: event.Retained}
	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		return nil
	}
	p.await(p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload), "system")
	return nil
}

// Close disconnects from the broker, allowing up to one second for
// in-flight messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// Package publish forwards fixes to an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
	"github.com/shaunagostinho/gnss-reader/internal/log"
)

// Config holds broker settings.
type Config struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" toml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic" toml:"topic" json:"topic"`
	ClientID string `yaml:"client_id" toml:"client_id" json:"clientId"` // generated when empty
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
	QoS      byte   `yaml:"qos" toml:"qos" json:"qos"`
	Retained bool   `yaml:"retained" toml:"retained" json:"retained"`
}

const (
	DefaultTopic   = "gnss/fix"
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectMs   = 250
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("publish: timed out")

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher is a gps.Sink that publishes each fix as JSON.
type Publisher struct {
	client   client
	topic    string
	qos      byte
	retained bool
}

// ClientID returns a broker client id unique to this process.
func ClientID() string {
	return "gnss-reader-" + uuid.NewString()[:8]
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = ClientID()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt connection lost", zap.String("component", "mqtt"), zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	log.Info("connected to mqtt broker",
		zap.String("component", "mqtt"),
		zap.String("broker", cfg.Broker),
		zap.String("client_id", cfg.ClientID))
	return newPublisher(c, cfg), nil
}

func newPublisher(c client, cfg Config) *Publisher {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: c, topic: topic, qos: cfg.QoS, retained: cfg.Retained}
}

func (p *Publisher) Name() string { return "mqtt" }

// Publish sends the fix and waits for the broker to acknowledge it.
func (p *Publisher) Publish(f gps.Fix) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal fix: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: %w", p.topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(disconnectMs)
	return nil
}

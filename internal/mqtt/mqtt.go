// Package mqtt publishes observation and moderation events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/floranet-go/internal/conf"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // topic prefix
	Retain            bool   // true to retain messages at the broker
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a Config from application settings.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.ClientID = s.Main.Name
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.Topic = s.MQTT.Topic
	cfg.Retain = s.MQTT.Retain
	return cfg
}

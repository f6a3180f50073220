package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics, log logger.Logger) Client {
	defaults := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	if log == nil {
		log = logger.Global().Module("mqtt")
	}
	return &client{config: cfg, metrics: m, log: log}
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
// Once connected, paho reconnects on its own after a connection loss.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return connectionError(fmt.Errorf("connection attempt too recent, last attempt was %v ago", since), c.config.Broker)
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		return errors.New(fmt.Errorf("invalid broker URL %q", c.config.Broker)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), c.config.Broker)
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return connectionError(fmt.Errorf("connection timeout"), c.config.Broker)
	}
	if err := token.Error(); err != nil {
		return connectionError(fmt.Errorf("connection error: %w", err), c.config.Broker)
	}
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return publishError(fmt.Errorf("not connected to MQTT broker"), topic)
	}

	c.log.Debug("publishing", logger.String("topic", topic), logger.Int("size", len(payload)))

	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		return publishError(fmt.Errorf("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return publishError(err, topic)
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.updateStatus(false)
	}
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.updateStatus(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.updateStatus(false)
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.log.Debug("reconnecting to MQTT broker", logger.String("broker", c.config.Broker))
}

func (c *client) updateStatus(connected bool) {
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(connected)
	}
}

// waitToken waits for token to complete, at most timeout or until ctx ends.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func connectionError(err error, broker string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("broker", broker).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}

package mqtt

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/observability/metrics"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func createTestClient(t *testing.T, broker string) (Client, *metrics.MQTTMetrics) {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "floranet-test"
	cfg.ReconnectCooldown = 0
	cfg.ConnectTimeout = 2 * time.Second
	return NewClient(cfg, m, quietLogger()), m
}

func TestConnectInvalidBrokerURL(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "not a url")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
	assert.False(t, c.IsConnected())
}

func TestConnectUnresolvableHost(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "tcp://broker.invalid:1883")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryMQTTConnection, errors.CategoryOf(err))
}

func TestConnectRefused(t *testing.T) {
	t.Parallel()
	// Port 1 on loopback refuses connections
	c, _ := createTestClient(t, "tcp://127.0.0.1:1")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryMQTTConnection, errors.CategoryOf(err))
	assert.False(t, c.IsConnected())
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1"
	cfg.ReconnectCooldown = time.Hour
	cfg.ConnectTimeout = time.Second
	c := NewClient(cfg, nil, quietLogger())

	_ = c.Connect(t.Context())
	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "tcp://127.0.0.1:1")

	err := c.Publish(context.Background(), "floranet/moderation", []byte("{}"))
	require.Error(t, err)
	assert.Equal(t, errors.CategoryMQTTPublish, errors.CategoryOf(err))
}

func TestDisconnectWithoutConnectIsSafe(t *testing.T) {
	t.Parallel()
	c, m := createTestClient(t, "tcp://127.0.0.1:1")
	c.Disconnect()
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.ConnectionStatus), 0)
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	s := &conf.Settings{}
	s.Main.Name = "floranet-node"
	s.MQTT.Broker = "tcp://mqtt.local:1883"
	s.MQTT.Topic = "plants"
	s.MQTT.Username = "u"
	s.MQTT.Password = "p"
	s.MQTT.Retain = true

	cfg := ConfigFromSettings(s)
	assert.Equal(t, "floranet-node", cfg.ClientID)
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.Broker)
	assert.Equal(t, "plants", cfg.Topic)
	assert.True(t, cfg.Retain)
	assert.Equal(t, DefaultConfig().PublishTimeout, cfg.PublishTimeout)
}

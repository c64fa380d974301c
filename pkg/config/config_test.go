package config

import (
	"bytes"
	"testing"
	"time"

	"goredisc/pkg/client"
	"goredisc/pkg/cluster"
	"goredisc/pkg/connection"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6379", c.Addr)
	assert.Equal(t, 5*time.Second, c.DialTimeout)
	assert.Equal(t, "exponential", c.ReconnectStrategy)
	assert.Equal(t, 50*time.Millisecond, c.ReconnectDelay)
	assert.Equal(t, 500*time.Millisecond, c.ReconnectMaxDelay)
	assert.Equal(t, client.DefaultIsolationPoolSize, c.IsolationPoolSize)
	assert.Equal(t, cluster.DefaultMaxCommandRedirections, c.Cluster.MaxRedirections)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.IsCluster())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GOREDISC_ADDR", "10.0.0.1:7000")
	t.Setenv("GOREDISC_AUTH_USER", "app")
	t.Setenv("GOREDISC_AUTH_PASSWORD", "secret")
	t.Setenv("GOREDISC_DB", "3")
	t.Setenv("GOREDISC_QUEUE_MAX_LENGTH", "1000")
	t.Setenv("GOREDISC_RECONNECT_STRATEGY", "fixed")
	t.Setenv("GOREDISC_RECONNECT_DELAY", "1s")
	t.Setenv("GOREDISC_RECONNECT_MAX_RETRIES", "5")
	t.Setenv("GOREDISC_CLUSTER_SEEDS", "10.0.0.1:7000,10.0.0.2:7000")
	t.Setenv("GOREDISC_CLUSTER_USE_REPLICAS", "true")
	t.Setenv("GOREDISC_CLUSTER_MAX_REDIRECTIONS", "4")
	t.Setenv("GOREDISC_LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7000", c.Addr)
	assert.Equal(t, "app", c.Username)
	assert.Equal(t, "secret", c.Password)
	assert.Equal(t, 3, c.Database)
	assert.Equal(t, 1000, c.QueueMaxLength)
	assert.Equal(t, "fixed", c.ReconnectStrategy)
	assert.Equal(t, time.Second, c.ReconnectDelay)
	assert.Equal(t, uint64(5), c.ReconnectMaxRetries)
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, c.Cluster.Seeds)
	assert.True(t, c.Cluster.UseReplicas)
	assert.Equal(t, 4, c.Cluster.MaxRedirections)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.IsCluster())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"address", "GOREDISC_ADDR", "localhost"},
		{"db", "GOREDISC_DB", "-1"},
		{"not a number", "GOREDISC_DB", "one"},
		{"strategy", "GOREDISC_RECONNECT_STRATEGY", "sometimes"},
		{"pool size", "GOREDISC_ISOLATION_POOL_SIZE", "0"},
		{"seed", "GOREDISC_CLUSTER_SEEDS", "10.0.0.1"},
		{"log level", "GOREDISC_LOG_LEVEL", "loud"},
		{"user without password", "GOREDISC_AUTH_USER", "app"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Apply(t *testing.T) {
	base := Config{
		ClientConfig: ClientConfig{Addr: "127.0.0.1:6379", Password: "env", IsolationPoolSize: 10},
		LogLevel:     "info",
	}
	got := base.Apply(Config{
		ClientConfig: ClientConfig{Addr: "127.0.0.1:7000", Database: 2},
		Cluster:      ClusterConfig{Seeds: []string{"127.0.0.1:7000"}},
	})

	assert.Equal(t, "127.0.0.1:7000", got.Addr)
	assert.Equal(t, "env", got.Password, "zero fields keep the base value")
	assert.Equal(t, 2, got.Database)
	assert.Equal(t, 10, got.IsolationPoolSize)
	assert.Equal(t, "info", got.LogLevel)
	assert.Equal(t, []string{"127.0.0.1:7000"}, got.Cluster.Seeds)
	assert.Equal(t, base, base.Apply(Config{}))
}

func TestConfig_Options(t *testing.T) {
	c := Config{
		ClientConfig: ClientConfig{
			Addr:              "127.0.0.1:6380",
			Password:          "pw",
			Database:          1,
			ReadOnly:          true,
			DialTimeout:       time.Second,
			ReconnectStrategy: "none",
			IsolationPoolSize: 4,
		},
		Cluster: ClusterConfig{Seeds: []string{"127.0.0.1:7000"}, UseReplicas: true, MaxRedirections: 2},
	}
	logger := logrus.New()

	o := c.ClientOptions(logger)
	assert.Equal(t, "127.0.0.1:6380", o.Socket.Addr)
	assert.Equal(t, time.Second, o.Socket.DialTimeout)
	assert.Equal(t, connection.ReconnectNone, o.Socket.Reconnect.Strategy)
	assert.Equal(t, "pw", o.Password)
	assert.Equal(t, 1, o.Database)
	assert.True(t, o.ReadOnly)
	assert.Equal(t, 4, o.IsolationPool.MaxTotal)
	_, err := client.New(o)
	assert.NoError(t, err)

	co := c.ClusterOptions(logger)
	assert.Equal(t, []string{"127.0.0.1:7000"}, co.Seeds)
	assert.True(t, co.UseReplicas)
	assert.Equal(t, 2, co.MaxCommandRedirections)
	assert.Empty(t, co.Node.Socket.Addr)
	assert.False(t, co.Node.ReadOnly, "replica mode is decided per node")
	assert.Equal(t, "pw", co.Node.Password)
	_, err = cluster.New(co)
	assert.NoError(t, err)
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	l, err := Config{LogLevel: "warn"}.Logger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = Config{LogLevel: "loud"}.Logger(&buf)
	assert.Error(t, err)
}

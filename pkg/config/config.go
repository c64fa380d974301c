// Package config loads client and cluster settings from the environment.
package config

import (
	"io"
	"net"
	"time"

	"goredisc/internal/common"
	"goredisc/pkg/client"
	"goredisc/pkg/cluster"
	"goredisc/pkg/connection"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Prefix of every environment variable, e.g. GOREDISC_ADDR.
const Prefix = "GOREDISC"

// ClientConfig holds the settings of one connection.
type ClientConfig struct {
	Addr           string `json:"addr" envconfig:"ADDR" default:"127.0.0.1:6379"`
	Username       string `json:"username,omitempty" envconfig:"AUTH_USER"`
	Password       string `json:"password,omitempty" envconfig:"AUTH_PASSWORD"`
	Database       int    `json:"db" envconfig:"DB"`
	ReadOnly       bool   `json:"readonly" envconfig:"READONLY"`
	QueueMaxLength int    `json:"queue_max_length" envconfig:"QUEUE_MAX_LENGTH"`

	DialTimeout         time.Duration `json:"dial_timeout" envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReconnectStrategy   string        `json:"reconnect_strategy" envconfig:"RECONNECT_STRATEGY" default:"exponential"`
	ReconnectDelay      time.Duration `json:"reconnect_delay" envconfig:"RECONNECT_DELAY" default:"50ms"`
	ReconnectMaxDelay   time.Duration `json:"reconnect_max_delay" envconfig:"RECONNECT_MAX_DELAY" default:"500ms"`
	ReconnectMaxRetries uint64        `json:"reconnect_max_retries" envconfig:"RECONNECT_MAX_RETRIES"`

	IsolationPoolSize int `json:"isolation_pool_size" envconfig:"ISOLATION_POOL_SIZE" default:"10"`
}

// ClusterConfig enables cluster mode when Seeds is not empty.
type ClusterConfig struct {
	Seeds           []string `json:"seeds,omitempty" envconfig:"SEEDS"`
	UseReplicas     bool     `json:"use_replicas" envconfig:"USE_REPLICAS"`
	MaxRedirections int      `json:"max_redirections" envconfig:"MAX_REDIRECTIONS" default:"16"`
}

type Config struct {
	ClientConfig
	Cluster  ClusterConfig `json:"cluster" envconfig:"CLUSTER"`
	LogLevel string        `json:"log_level" envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from GOREDISC_* variables and validates it.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "config: environment")
	}
	return c, c.Validate()
}

// Apply returns c with the non-zero fields of o overriding it.
func (c Config) Apply(o Config) Config {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Username != "" {
		c.Username = o.Username
	}
	if o.Password != "" {
		c.Password = o.Password
	}
	if o.Database != 0 {
		c.Database = o.Database
	}
	if o.ReadOnly {
		c.ReadOnly = true
	}
	if o.QueueMaxLength != 0 {
		c.QueueMaxLength = o.QueueMaxLength
	}
	if o.DialTimeout != 0 {
		c.DialTimeout = o.DialTimeout
	}
	if o.ReconnectStrategy != "" {
		c.ReconnectStrategy = o.ReconnectStrategy
	}
	if o.ReconnectDelay != 0 {
		c.ReconnectDelay = o.ReconnectDelay
	}
	if o.ReconnectMaxDelay != 0 {
		c.ReconnectMaxDelay = o.ReconnectMaxDelay
	}
	if o.ReconnectMaxRetries != 0 {
		c.ReconnectMaxRetries = o.ReconnectMaxRetries
	}
	if o.IsolationPoolSize != 0 {
		c.IsolationPoolSize = o.IsolationPoolSize
	}
	if len(o.Cluster.Seeds) > 0 {
		c.Cluster.Seeds = o.Cluster.Seeds
	}
	if o.Cluster.UseReplicas {
		c.Cluster.UseReplicas = true
	}
	if o.Cluster.MaxRedirections != 0 {
		c.Cluster.MaxRedirections = o.Cluster.MaxRedirections
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	return c
}

// IsCluster reports whether seeds were configured.
func (c Config) IsCluster() bool {
	return len(c.Cluster.Seeds) > 0
}

func (c ClientConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.Wrapf(err, "config: invalid address %q", c.Addr)
	}
	if c.Database < 0 {
		return errors.Errorf("config: invalid db %d", c.Database)
	}
	if c.QueueMaxLength < 0 {
		return errors.Errorf("config: invalid queue max length %d", c.QueueMaxLength)
	}
	if c.IsolationPoolSize <= 0 {
		return errors.Errorf("config: invalid isolation pool size %d", c.IsolationPoolSize)
	}
	switch connection.ReconnectStrategy(c.ReconnectStrategy) {
	case connection.ReconnectExponential, connection.ReconnectFixed, connection.ReconnectNone:
	default:
		return errors.Errorf("config: unknown reconnect strategy %q", c.ReconnectStrategy)
	}
	if c.Username != "" && c.Password == "" {
		return errors.New("config: auth user set without a password")
	}
	return nil
}

func (c ClusterConfig) Validate() error {
	for _, s := range c.Seeds {
		if _, _, err := net.SplitHostPort(s); err != nil {
			return errors.Wrapf(err, "config: invalid cluster seed %q", s)
		}
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.ClientConfig.Validate(); err != nil {
		return err
	}
	if err := c.Cluster.Validate(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config")
	}
	return nil
}

// Logger builds the text logger at the configured level.
func (c Config) Logger(out io.Writer) (*logrus.Logger, error) {
	return common.NewLogger(out, c.LogLevel)
}

// ClientOptions converts c for client.New.
func (c ClientConfig) ClientOptions(logger logrus.FieldLogger) client.Options {
	return client.Options{
		Socket: connection.Options{
			Addr:        c.Addr,
			DialTimeout: c.DialTimeout,
			Reconnect: connection.ReconnectOptions{
				Strategy:   connection.ReconnectStrategy(c.ReconnectStrategy),
				Delay:      c.ReconnectDelay,
				MaxDelay:   c.ReconnectMaxDelay,
				MaxRetries: c.ReconnectMaxRetries,
			},
			Logger: logger,
		},
		Username:       c.Username,
		Password:       c.Password,
		Database:       c.Database,
		ReadOnly:       c.ReadOnly,
		QueueMaxLength: c.QueueMaxLength,
		IsolationPool:  client.PoolOptions{MaxTotal: c.IsolationPoolSize},
		Logger:         logger,
	}
}

// ClusterOptions converts c for cluster.New. The client settings become
// the node template.
func (c Config) ClusterOptions(logger logrus.FieldLogger) cluster.Options {
	node := c.ClientOptions(logger)
	node.Socket.Addr = ""
	node.ReadOnly = false
	return cluster.Options{
		Seeds:                  c.Cluster.Seeds,
		Node:                   node,
		UseReplicas:            c.Cluster.UseReplicas,
		MaxCommandRedirections: c.Cluster.MaxRedirections,
		Logger:                 logger,
	}
}

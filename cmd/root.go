package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"goredisc/pkg/client"
	"goredisc/pkg/cluster"
	"goredisc/pkg/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "goredisc",
	Short: "A pipelined Redis client with cluster support",
	Long: `goredisc talks to a Redis server or cluster over a single pipelined
connection per node. Settings come from GOREDISC_* environment variables,
an optional config file and the flags below, later sources winning.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.goredisc.yaml)")
	flags.String("addr", "127.0.0.1:6379", "server address")
	flags.String("auth-user", "", "AUTH username")
	flags.String("auth-password", "", "AUTH password")
	flags.Int("db", 0, "database index")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringSlice("cluster-seeds", nil, "cluster seed nodes; enables cluster mode")
	flags.Bool("cluster-use-replicas", false, "send read-only commands to replicas")
	flags.Int("cluster-max-redirections", 0, "MOVED redirections followed per command")

	for _, name := range []string{
		"addr", "auth-user", "auth-password", "db", "log-level",
		"cluster-seeds", "cluster-use-replicas", "cluster-max-redirections",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetConfigName(".goredisc")
	viper.AddConfigPath("$HOME")
	viper.SetEnvPrefix(config.Prefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Printf("Unable to read config: %v\n", err)
		}
	}
}

// overrides collects the settings given by flag, config file or viper
// environment lookup.
func overrides(v *viper.Viper) config.Config {
	var o config.Config
	if v.IsSet("addr") {
		o.Addr = v.GetString("addr")
	}
	if v.IsSet("auth-user") {
		o.Username = v.GetString("auth-user")
	}
	if v.IsSet("auth-password") {
		o.Password = v.GetString("auth-password")
	}
	if v.IsSet("db") {
		o.Database = v.GetInt("db")
	}
	if v.IsSet("log-level") {
		o.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("cluster-seeds") {
		o.Cluster.Seeds = v.GetStringSlice("cluster-seeds")
	}
	if v.IsSet("cluster-use-replicas") {
		o.Cluster.UseReplicas = v.GetBool("cluster-use-replicas")
	}
	if v.IsSet("cluster-max-redirections") {
		o.Cluster.MaxRedirections = v.GetInt("cluster-max-redirections")
	}
	return o
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	env, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg := env.Apply(overrides(viper.GetViper()))
	if !viper.IsSet("log-level") {
		cfg.LogLevel = viper.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// target is what the subcommands need from a client or a cluster.
type target interface {
	Do(ctx context.Context, args ...string) (interface{}, error)
	Disconnect() error
}

func connect(ctx context.Context, cfg config.Config, logger *logrus.Logger) (target, error) {
	if cfg.IsCluster() {
		c, err := cluster.New(cfg.ClusterOptions(logger))
		if err != nil {
			return nil, err
		}
		if err := c.Connect(ctx); err != nil {
			_ = c.Disconnect()
			return nil, err
		}
		return c, nil
	}

	c, err := client.New(cfg.ClientOptions(logger))
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Disconnect()
		return nil, err
	}
	return c, nil
}

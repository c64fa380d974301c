package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"goredisc/pkg/client"
	"goredisc/pkg/pubsub"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var subPatterns bool

var subCmd = &cobra.Command{
	Use:   "sub channel [channel...]",
	Short: "Subscribe and print every message until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.IsCluster() {
			// messages are broadcast to every node, so any one will do
			cfg.Addr = cfg.Cluster.Seeds[0]
		}
		c, err := client.New(cfg.ClientOptions(logger))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		err = c.Connect(cctx)
		cancel()
		if err != nil {
			_ = c.Disconnect()
			return err
		}
		defer c.Disconnect()

		out := cmd.OutOrStdout()
		l := pubsub.NewListener(func(m pubsub.Message) {
			if m.Pattern != "" {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Pattern, m.Channel, m.Payload)
				return
			}
			fmt.Fprintf(out, "%s: %s\n", m.Channel, m.Payload)
		})

		subscribe := c.Subscribe
		if subPatterns {
			subscribe = c.PSubscribe
		}
		if err := subscribe(ctx, args, l); err != nil {
			return errors.Wrap(err, "subscribe")
		}
		logger.WithField("names", args).Info("subscribed")

		<-ctx.Done()
		return nil
	},
}

func init() {
	subCmd.Flags().BoolVarP(&subPatterns, "pattern", "p", false, "treat arguments as glob patterns")
	subCmd.Flags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "give up connecting after this long")
	rootCmd.AddCommand(subCmd)
}

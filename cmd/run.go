package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"goredisc/internal/common"
	"goredisc/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	listenAddr  string
	runPassword string
	dbNum       int
	ownAllSlots bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the in-process development server",
	Long: `run starts the small RESP server the test suites use. With --cluster it
answers CLUSTER SLOTS claiming every slot, so cluster mode can be tried
against a single process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := common.NewLogger(os.Stderr, viper.GetString("log-level"))
		if err != nil {
			return err
		}
		srv, err := server.Start(server.Config{
			Addr:     listenAddr,
			Password: runPassword,
			DBNum:    dbNum,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer srv.Close()

		if ownAllSlots {
			srv.SetSlots([]server.SlotRange{{Start: 0, End: 16383, Master: srv.Addr()}})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "goredisc server listening on %s\n", srv.Addr())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:6379", "server listen address")
	runCmd.Flags().StringVar(&runPassword, "requirepass", "", "require AUTH with this password")
	runCmd.Flags().IntVar(&dbNum, "db-num", 16, "number of databases")
	runCmd.Flags().BoolVar(&ownAllSlots, "cluster", false, "advertise every hash slot on this node")

	rootCmd.AddCommand(runCmd)
}

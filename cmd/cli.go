package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"goredisc/pkg/protocol"

	"github.com/spf13/cobra"
)

var connectTimeout time.Duration

var cliCmd = &cobra.Command{
	Use:   "cli [command args...]",
	Short: "Send one command, or start an interactive prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		t, err := connect(cctx, cfg, logger)
		cancel()
		if err != nil {
			return err
		}
		defer t.Disconnect()

		if len(args) > 0 {
			reply, err := t.Do(ctx, args...)
			printReply(cmd.OutOrStdout(), reply, err)
			return nil
		}
		return repl(ctx, t, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	cliCmd.Flags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "give up connecting after this long")
	rootCmd.AddCommand(cliCmd)
}

// repl runs one command per input line until EOF, "quit" or "exit".
func repl(ctx context.Context, t target, in io.Reader, out io.Writer) error {
	stdin := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "> ")
		line, err := stdin.ReadString('\n')
		if err == io.EOF && line == "" {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			fmt.Fprintln(out, "bye")
			return nil
		}

		args := splitArgs(line)
		if len(args) == 0 {
			continue
		}
		reply, rerr := t.Do(ctx, args...)
		printReply(out, reply, rerr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == io.EOF {
			return nil
		}
	}
}

// splitArgs splits on whitespace; double quotes group words and support
// the \" and \\ escapes.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t'):
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}

func printReply(out io.Writer, reply interface{}, err error) {
	if err != nil {
		fmt.Fprintln(out, protocol.Format(err))
		return
	}
	fmt.Fprintln(out, protocol.Format(reply))
}

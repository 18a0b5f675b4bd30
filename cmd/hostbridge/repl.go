package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/glimte/hostbridge"
	"github.com/glimte/hostbridge/messaging"
	"github.com/spf13/cobra"
)

type replAction int

const (
	replSend replAction = iota
	replOn
	replOff
	replStats
	replQuit
)

type replCommand struct {
	action  replAction
	arg     string
	payload json.RawMessage
}

// parseReplLine understands "kind [json]", ":on topic", ":off id", ":stats" and ":quit"
func parseReplLine(line string) (replCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return replCommand{}, errors.New("empty line")
	}

	head, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch head {
	case ":quit", ":exit":
		return replCommand{action: replQuit}, nil
	case ":stats":
		return replCommand{action: replStats}, nil
	case ":on", ":off":
		if rest == "" {
			return replCommand{}, fmt.Errorf("%s needs an argument", head)
		}
		if head == ":on" {
			return replCommand{action: replOn, arg: rest}, nil
		}
		return replCommand{action: replOff, arg: rest}, nil
	}

	if strings.HasPrefix(head, ":") {
		return replCommand{}, fmt.Errorf("unknown command %s", head)
	}

	cmd := replCommand{action: replSend, arg: head}
	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return replCommand{}, fmt.Errorf("payload is not valid JSON: %s", rest)
		}
		cmd.payload = json.RawMessage(rest)
	}
	return cmd, nil
}

func newReplCmd(flags *globalFlags) *cobra.Command {
	var hostCmd string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Send requests and watch events interactively",
		Long: `Each line is "kind [json payload]". Commands:
  :on <topic>   print events on topic
  :off <id>     stop a subscription
  :stats        show bridge counters
  :quit         leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			proc, err := startHostProcess(ctx, hostCmd, logger)
			if err != nil {
				return err
			}
			defer proc.stop()

			client, err := hostbridge.NewClientWithOptions(proc.host,
				hostbridge.WithLogger(logger),
				hostbridge.WithConfig(cfg),
			)
			if err != nil {
				return err
			}
			defer client.Close()
			proc.host.Start(ctx)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "host> ",
				HistoryFile:     filepath.Join(os.TempDir(), ".hostbridge_history"),
				HistoryLimit:    100,
				InterruptPrompt: "^C",
				EOFPrompt:       ":quit",
			})
			if err != nil {
				return fmt.Errorf("failed to initialise readline: %w", err)
			}
			defer rl.Close()

			return runRepl(ctx, rl, rl.Stdout(), client)
		},
	}

	cmd.Flags().StringVar(&hostCmd, "host-cmd", "", "Host command to spawn, speaking JSON lines on stdio")
	_ = cmd.MarkFlagRequired("host-cmd")

	return cmd
}

type lineReader interface {
	Readline() (string, error)
}

func runRepl(ctx context.Context, in lineReader, out io.Writer, client *hostbridge.Client) error {
	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := parseReplLine(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		switch cmd.action {
		case replQuit:
			return nil
		case replStats:
			stats := client.Bridge().Stats()
			fmt.Fprintf(out, "pending=%d topics=%d malformed=%d late=%d\n",
				stats.Pending, stats.Topics, stats.Malformed, stats.LateReplies)
		case replOn:
			topic := cmd.arg
			id, err := client.On(topic, func(payload json.RawMessage) {
				fmt.Fprintf(out, "event %s: %s\n", topic, payload)
			})
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "subscribed %s\n", id)
		case replOff:
			if client.Off(messaging.SubscriptionID(cmd.arg)) {
				fmt.Fprintln(out, "unsubscribed")
			} else {
				fmt.Fprintln(out, "no such subscription")
			}
		case replSend:
			var payload interface{}
			if cmd.payload != nil {
				payload = cmd.payload
			}
			reply, err := client.Send(ctx, cmd.arg, payload)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%s\n", reply)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glimte/hostbridge"
	"github.com/glimte/hostbridge/bridge"
	"github.com/spf13/cobra"
)

func newSendCmd(flags *globalFlags) *cobra.Command {
	var (
		hostCmd string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <kind> [payload]",
		Short: "Send one request to a host process and print the reply",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(flags)
			if err != nil {
				return err
			}

			var payload interface{}
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("payload is not valid JSON: %s", args[1])
				}
				payload = json.RawMessage(args[1])
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

			var opts []bridge.SendOption
			if timeout > 0 {
				opts = append(opts, bridge.WithTimeout(timeout))
			}

			reply, err := client.Send(ctx, args[0], payload, opts...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			return nil
		},
	}

	cmd.Flags().StringVar(&hostCmd, "host-cmd", "", "Host command to spawn, speaking JSON lines on stdio")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Request timeout (default from HOSTBRIDGE_DEFAULT_TIMEOUT)")
	_ = cmd.MarkFlagRequired("host-cmd")

	return cmd
}

func newListenCmd(flags *globalFlags) *cobra.Command {
	var hostCmd string

	cmd := &cobra.Command{
		Use:   "listen <topic>...",
		Short: "Print host push events until interrupted or the host exits",
		Args:  cobra.MinimumNArgs(1),
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

			out := cmd.OutOrStdout()
			for _, topic := range args {
				topic := topic
				if _, err := client.On(topic, func(payload json.RawMessage) {
					fmt.Fprintf(out, "%s\t%s\n", topic, payload)
				}); err != nil {
					return err
				}
			}
			proc.host.Start(ctx)

			select {
			case <-ctx.Done():
			case <-proc.host.Done():
				if err := proc.host.Err(); err != nil {
					return fmt.Errorf("host stream ended: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hostCmd, "host-cmd", "", "Host command to spawn, speaking JSON lines on stdio")
	_ = cmd.MarkFlagRequired("host-cmd")

	return cmd
}

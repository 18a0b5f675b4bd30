package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/glimte/hostbridge"
	"github.com/glimte/hostbridge/bridge"
	"github.com/glimte/hostbridge/contracts"
	"github.com/glimte/hostbridge/hosttest"
	"github.com/spf13/cobra"
)

type movie struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type movieList struct {
	Movies []movie `json:"movies"`
}

type navigateRequest struct {
	Route string `json:"route"`
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the movies, navigate and movieSelected flows against an in-process host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(flags)
			if err != nil {
				return err
			}

			host := demoHost()
			client, err := hostbridge.NewClientWithOptions(host,
				hostbridge.WithLogger(logger),
				hostbridge.WithConfig(cfg),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			return runDemo(cmd.Context(), cmd.OutOrStdout(), client, host)
		},
	}
}

// demoHost answers like the native shell the bridge was built for
func demoHost() *hosttest.Host {
	host := hosttest.New(hosttest.WithReplyDelay(5 * time.Millisecond))

	host.Handle("movies", func(req contracts.Envelope) (interface{}, error) {
		return movieList{Movies: []movie{
			{ID: "1", Title: "Heat"},
			{ID: "2", Title: "Ronin"},
		}}, nil
	})

	host.HandleAfter("navigate", 100*time.Millisecond, func(req contracts.Envelope) (interface{}, error) {
		nav, err := contracts.DecodePayload[navigateRequest](req.Payload)
		if err != nil || !strings.HasPrefix(nav.Route, "/") {
			return nil, errors.New("Invalid route format")
		}
		return map[string]bool{"success": true}, nil
	})

	return host
}

func runDemo(ctx context.Context, out io.Writer, client *hostbridge.Client, host *hosttest.Host) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b := client.Bridge()

	movies, err := bridge.Call[movieList](ctx, b, "movies", nil)
	if err != nil {
		return fmt.Errorf("movies: %w", err)
	}
	fmt.Fprintf(out, "movies: %d titles\n", len(movies.Movies))

	_, err = b.Send(ctx, "navigate", navigateRequest{Route: "/movie/1"}, bridge.WithTimeout(50*time.Millisecond))
	fmt.Fprintf(out, "navigate with 50ms timeout: %v\n", err)

	_, err = b.Send(ctx, "navigate", navigateRequest{Route: "movie"}, bridge.WithTimeout(time.Second))
	fmt.Fprintf(out, "navigate with bad route: %v\n", err)

	selected := make(chan json.RawMessage, 1)
	id, err := client.On("movieSelected", func(payload json.RawMessage) {
		selected <- payload
	})
	if err != nil {
		return err
	}
	if err := host.Push("movieSelected", movies.Movies[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "movieSelected: %s\n", <-selected)
	client.Off(id)

	// let the timed out navigate reply arrive and get dropped
	host.Drain()

	summary, err := json.MarshalIndent(client.Metrics(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "late replies dropped: %d\n", b.Stats().LateReplies)
	fmt.Fprintf(out, "health: %s\n", client.Health(ctx).Status)
	fmt.Fprintf(out, "metrics:\n%s\n", summary)
	return nil
}

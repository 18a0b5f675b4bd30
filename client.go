// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/glimte/hostbridge/bridge"
	"github.com/glimte/hostbridge/config"
	"github.com/glimte/hostbridge/health"
	"github.com/glimte/hostbridge/interceptors"
	"github.com/glimte/hostbridge/messaging"
	"github.com/glimte/hostbridge/monitor"
	"github.com/glimte/hostbridge/transport"
)

// Client provides the main entry point for hostbridge
type Client struct {
	adapter *transport.Adapter
	bridge  *bridge.Bridge
	metrics *monitor.SimpleMetricsCollector
	health  *health.Registry
	logger  *slog.Logger
}

// NewClient creates a client over host with default settings
func NewClient(host transport.Host) (*Client, error) {
	return NewClientWithOptions(host, WithDefaultLogger())
}

// NewClientFromEnv creates a client configured from HOSTBRIDGE_* variables,
// logging to logOutput
func NewClientFromEnv(host transport.Host, logOutput io.Writer) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(logOutput)
	if err != nil {
		return nil, err
	}
	return NewClientWithOptions(host, WithLogger(logger), WithConfig(cfg))
}

// NewClientWithOptions creates a client over host with options
func NewClientWithOptions(host transport.Host, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	metrics := monitor.NewSimpleMetricsCollector()

	adapterOpts := []transport.AdapterOption{transport.WithLogger(cfg.logger)}
	bridgeOpts := []bridge.Option{
		bridge.WithLogger(cfg.logger),
		bridge.WithMetrics(metrics),
	}
	if cfg.settings != nil {
		adapterOpts = cfg.settings.AdapterOptions(cfg.logger)
		bridgeOpts = cfg.settings.BridgeOptions(cfg.logger, metrics)
	}
	adapterOpts = append(adapterOpts, cfg.adapterOpts...)
	bridgeOpts = append(bridgeOpts, bridge.WithEventMiddleware(interceptors.Logging(cfg.logger)))
	bridgeOpts = append(bridgeOpts, cfg.bridgeOpts...)

	adapter := transport.NewAdapter(host, adapterOpts...)
	b, err := bridge.New(adapter, bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}

	registry := health.NewRegistry()
	registry.Register(health.NewBridgeChecker("bridge", b))
	registry.SetMetadata("bridge_id", b.ID())

	return &Client{
		adapter: adapter,
		bridge:  b,
		metrics: metrics,
		health:  registry,
		logger:  cfg.logger,
	}, nil
}

// Bridge returns the request/response and event bridge
func (c *Client) Bridge() *bridge.Bridge {
	return c.bridge
}

// Adapter returns the transport adapter
func (c *Client) Adapter() *transport.Adapter {
	return c.adapter
}

// Metrics returns a snapshot of the collected bridge metrics
func (c *Client) Metrics() monitor.MetricsSummary {
	return c.metrics.GetMetricsSummary()
}

// HealthRegistry returns the registry so callers can add their own checks
func (c *Client) HealthRegistry() *health.Registry {
	return c.health
}

// Health runs all registered health checks
func (c *Client) Health(ctx context.Context) health.OverallHealth {
	return c.health.Check(ctx)
}

// Send is a convenience method for Bridge().Send
func (c *Client) Send(ctx context.Context, kind string, payload interface{}, opts ...bridge.SendOption) (json.RawMessage, error) {
	return c.bridge.Send(ctx, kind, payload, opts...)
}

// On is a convenience method for Bridge().On
func (c *Client) On(topic string, fn func(payload json.RawMessage)) (messaging.SubscriptionID, error) {
	return c.bridge.On(topic, fn)
}

// Off is a convenience method for Bridge().Off
func (c *Client) Off(id messaging.SubscriptionID) bool {
	return c.bridge.Off(id)
}

// Close closes the bridge, failing anything still pending
func (c *Client) Close() error {
	c.bridge.Close("client closed")
	return nil
}

// clientConfig holds client configuration
type clientConfig struct {
	logger      *slog.Logger
	settings    *config.Config
	adapterOpts []transport.AdapterOption
	bridgeOpts  []bridge.Option
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDefaultLogger uses the default logger
func WithDefaultLogger() ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = slog.Default()
	}
}

// WithConfig applies loaded settings to the adapter and bridge
func WithConfig(settings config.Config) ClientOption {
	return func(cfg *clientConfig) {
		cfg.settings = &settings
	}
}

// WithAdapterOptions passes extra options to the transport adapter
func WithAdapterOptions(opts ...transport.AdapterOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.adapterOpts = append(cfg.adapterOpts, opts...)
	}
}

// WithBridgeOptions passes extra options to the bridge
func WithBridgeOptions(opts ...bridge.Option) ClientOption {
	return func(cfg *clientConfig) {
		cfg.bridgeOpts = append(cfg.bridgeOpts, opts...)
	}
}

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBridge struct {
	available bool
	closed    bool
	pending   int
	limit     int
}

func (f fakeBridge) HostAvailable() bool { return f.available }
func (f fakeBridge) Closed() bool        { return f.closed }
func (f fakeBridge) PendingCount() int   { return f.pending }
func (f fakeBridge) MaxPending() int     { return f.limit }

func TestBridgeChecker(t *testing.T) {
	tests := []struct {
		name    string
		bridge  fakeBridge
		want    Status
		message string
	}{
		{"healthy with host", fakeBridge{available: true, pending: 1, limit: 10}, StatusHealthy, "Bridge is healthy"},
		{"unlimited pending stays healthy", fakeBridge{available: true, pending: 1000}, StatusHealthy, "Bridge is healthy"},
		{"closed bridge", fakeBridge{available: true, closed: true}, StatusUnhealthy, "Bridge is closed"},
		{"host missing", fakeBridge{}, StatusUnhealthy, "Host is unavailable"},
		{"near pending limit", fakeBridge{available: true, pending: 8, limit: 10}, StatusDegraded, "8 of 10 pending slots in use"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewBridgeChecker("", tt.bridge)

			result := checker.Check(context.Background())

			assert.Equal(t, "bridge", result.Name)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, tt.bridge.pending, result.Details["pending"])
		})
	}
}

func TestMemoryChecker(t *testing.T) {
	t.Run("reports details", func(t *testing.T) {
		result := NewMemoryChecker(500, 1000).Check(context.Background())

		assert.Equal(t, "memory", result.Name)
		assert.Contains(t, result.Details, "memory_used_mb")
		assert.Contains(t, result.Details, "gc_runs")
		assert.Greater(t, result.Details["goroutines"].(int), 0)
	})

	t.Run("zero thresholds report unhealthy", func(t *testing.T) {
		result := NewMemoryChecker(0, 0).Check(context.Background())

		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "Too many goroutines")
	})
}

func TestComponentChecker(t *testing.T) {
	checker := NewComponentChecker("store", func(ctx context.Context) (Status, string, map[string]interface{}, error) {
		return StatusDegraded, "slow", map[string]interface{}{"latency_ms": 120}, errors.New("timeout")
	})

	result := checker.Check(context.Background())

	assert.Equal(t, "store", checker.Name())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "slow", result.Message)
	assert.Equal(t, "timeout", result.Error)
	assert.Equal(t, 120, result.Details["latency_ms"])
}

func TestRegistry(t *testing.T) {
	fixed := func(name string, status Status) Checker {
		return NewComponentChecker(name, func(ctx context.Context) (Status, string, map[string]interface{}, error) {
			return status, "", nil, nil
		})
	}

	t.Run("empty registry is healthy", func(t *testing.T) {
		health := NewRegistry().Check(context.Background())

		assert.Equal(t, StatusHealthy, health.Status)
		assert.Empty(t, health.Checks)
	})

	t.Run("overall status is the worst check", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(fixed("a", StatusHealthy))
		registry.Register(fixed("b", StatusDegraded))
		registry.SetMetadata("instance", "abc")

		health := registry.Check(context.Background())
		assert.Equal(t, StatusDegraded, health.Status)
		assert.Len(t, health.Checks, 2)
		assert.Equal(t, "abc", health.Metadata["instance"])

		registry.Register(fixed("c", StatusUnhealthy))
		assert.Equal(t, StatusUnhealthy, registry.Check(context.Background()).Status)

		registry.Unregister("c")
		assert.Equal(t, StatusDegraded, registry.Check(context.Background()).Status)
	})

	t.Run("slow checks time out as unhealthy", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewComponentChecker("slow", func(ctx context.Context) (Status, string, map[string]interface{}, error) {
			time.Sleep(200 * time.Millisecond)
			return StatusHealthy, "", nil, nil
		}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		health := registry.Check(ctx)

		assert.Equal(t, StatusUnhealthy, health.Status)
		require.Contains(t, health.Checks, "slow")
		assert.Equal(t, "Check timed out", health.Checks["slow"].Message)
	})
}

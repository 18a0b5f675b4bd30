package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// BridgeState is the view of a bridge the BridgeChecker needs
type BridgeState interface {
	HostAvailable() bool
	Closed() bool
	PendingCount() int
	MaxPending() int
}

// BridgeChecker checks that a bridge can reach its host and is not saturated
type BridgeChecker struct {
	name   string
	bridge BridgeState

	// degradedRatio of MaxPending in flight reports degraded
	degradedRatio float64
}

// NewBridgeChecker creates a bridge health checker
func NewBridgeChecker(name string, bridge BridgeState) *BridgeChecker {
	if name == "" {
		name = "bridge"
	}
	return &BridgeChecker{
		name:          name,
		bridge:        bridge,
		degradedRatio: 0.8,
	}
}

func (c *BridgeChecker) Name() string {
	return c.name
}

func (c *BridgeChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	pending := c.bridge.PendingCount()
	limit := c.bridge.MaxPending()
	available := c.bridge.HostAvailable()
	result.Details["pending"] = pending
	result.Details["max_pending"] = limit
	result.Details["host_available"] = available

	switch {
	case c.bridge.Closed():
		result.Status = StatusUnhealthy
		result.Message = "Bridge is closed"
	case !available:
		result.Status = StatusUnhealthy
		result.Message = "Host is unavailable"
	case limit > 0 && float64(pending) >= float64(limit)*c.degradedRatio:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d of %d pending slots in use", pending, limit)
	default:
		result.Status = StatusHealthy
		result.Message = "Bridge is healthy"
	}

	result.Duration = time.Since(start)
	return result
}

// MemoryChecker checks goroutine growth, which in a bridge process usually
// means handlers or waiters are piling up
type MemoryChecker struct {
	warnGoroutines     int
	criticalGoroutines int
}

// NewMemoryChecker creates a new memory checker
func NewMemoryChecker(warnGoroutines, criticalGoroutines int) *MemoryChecker {
	return &MemoryChecker{
		warnGoroutines:     warnGoroutines,
		criticalGoroutines: criticalGoroutines,
	}
}

func (c *MemoryChecker) Name() string {
	return "memory"
}

func (c *MemoryChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines := runtime.NumGoroutine()
	result.Details["memory_used_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC
	result.Details["goroutines"] = goroutines

	switch {
	case goroutines > c.criticalGoroutines:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warnGoroutines:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Memory usage is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, map[string]interface{}, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, map[string]interface{}, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	status, message, details, err := c.checker(ctx)

	result.Status = status
	result.Message = message
	if details != nil {
		result.Details = details
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)

	return result
}

package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// OverallHealth represents the combined result of all checks
type OverallHealth struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Registry manages health checks
type Registry struct {
	checkers map[string]Checker
	metadata map[string]interface{}
	mu       sync.RWMutex
}

// NewRegistry creates a new health check registry
func NewRegistry() *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		metadata: make(map[string]interface{}),
	}
}

// Register adds a health checker, replacing any with the same name
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// Unregister removes a health checker
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// SetMetadata sets metadata reported with every check
func (r *Registry) SetMetadata(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = value
}

// Check runs all registered checks concurrently. The overall status is the
// worst individual status; checks still running when ctx ends count as unhealthy.
func (r *Registry) Check(ctx context.Context) OverallHealth {
	start := time.Now()

	r.mu.RLock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	metadata := make(map[string]interface{}, len(r.metadata))
	for k, v := range r.metadata {
		metadata[k] = v
	}
	r.mu.RUnlock()

	type namedResult struct {
		name   string
		result CheckResult
	}

	results := make(chan namedResult, len(checkers))
	for name, checker := range checkers {
		go func(name string, checker Checker) {
			results <- namedResult{name: name, result: checker.Check(ctx)}
		}(name, checker)
	}

	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy

collectLoop:
	for i := 0; i < len(checkers); i++ {
		select {
		case res := <-results:
			checks[res.name] = res.result
			overall = worse(overall, res.result.Status)
		case <-ctx.Done():
			for name := range checkers {
				if _, exists := checks[name]; !exists {
					checks[name] = CheckResult{
						Name:      name,
						Status:    StatusUnhealthy,
						Message:   "Check timed out",
						Duration:  time.Since(start),
						Timestamp: time.Now(),
						Error:     ctx.Err().Error(),
					}
				}
			}
			overall = StatusUnhealthy
			break collectLoop
		}
	}

	return OverallHealth{
		Status:    overall,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusHealthy:
			return 0
		case StatusDegraded:
			return 1
		default:
			return 2
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

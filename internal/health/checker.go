// Package health provides a registry of named liveness/readiness
// checks for a running node, with cached results so a busy node
// doesn't redo expensive checks on every probe.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amqnet/amq/internal/logger"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Check is a single health check function.
type Check func(ctx context.Context) error

// Checker manages multiple named health checks.
type Checker struct {
	checks   map[string]Check
	timeout  time.Duration
	mu       sync.RWMutex
	logger   logger.Logger
	cacheTTL time.Duration
	cache    map[string]*cachedResult
}

type cachedResult struct {
	result    *CheckResult
	expiresAt time.Time
}

// NewChecker creates a new health checker. A zero timeout defaults to
// 5 seconds per check.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Checker{
		checks:   make(map[string]Check),
		timeout:  timeout,
		logger:   logger.GetDefaultLogger(),
		cacheTTL: 5 * time.Second,
		cache:    make(map[string]*cachedResult),
	}
}

// SetLogger overrides the checker's logger.
func (h *Checker) SetLogger(l logger.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = l
}

// RegisterCheck registers a named health check.
func (h *Checker) RegisterCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks[name] = check
	h.logger.Debug("health check registered", logger.String("name", name))
}

// Check runs a single named health check, using a cached result if
// one is still fresh.
func (h *Checker) Check(ctx context.Context, name string) (*CheckResult, error) {
	h.mu.RLock()
	check, exists := h.checks[name]
	h.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("health: unknown check %q", name)
	}

	if cached := h.getCachedResult(name); cached != nil {
		return cached, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)
	duration := time.Since(start)

	result := &CheckResult{
		Name:      name,
		Timestamp: time.Now(),
		Duration:  duration,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		h.logger.Warn("health check failed", logger.String("name", name), logger.Error(err))
	} else {
		result.Status = StatusHealthy
	}

	h.cacheResult(name, result)
	return result, nil
}

// CheckAll runs every registered check concurrently and returns all results.
func (h *Checker) CheckAll(ctx context.Context) map[string]*CheckResult {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()

	results := make(map[string]*CheckResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := h.Check(ctx, name)
			if err != nil {
				result = &CheckResult{Name: name, Status: StatusUnhealthy, Message: err.Error(), Timestamp: time.Now()}
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}

	wg.Wait()
	return results
}

// OverallStatus folds every check's result into a single status: any
// unhealthy check makes the node unhealthy.
func (h *Checker) OverallStatus(ctx context.Context) Status {
	results := h.CheckAll(ctx)
	if len(results) == 0 {
		return StatusHealthy
	}

	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (h *Checker) getCachedResult(name string) *CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cached, exists := h.cache[name]
	if !exists || time.Now().After(cached.expiresAt) {
		return nil
	}
	return cached.result
}

func (h *Checker) cacheResult(name string, result *CheckResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[name] = &cachedResult{result: result, expiresAt: time.Now().Add(h.cacheTTL)}
}

// Package health tracks whether the storage backends leadhooksd depends on
// are reachable and serves the result as a readiness probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config holds readiness check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Pinger is a dependency that can be probed, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, up bool)

// Checker periodically pings registered dependencies. A dependency is down
// once it has failed FailThreshold consecutive probes.
type Checker struct {
	deps       map[string]Pinger
	failCounts map[string]int
	lastErr    map[string]string
	mu         sync.RWMutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 15 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		deps:       make(map[string]Pinger),
		failCounts: make(map[string]int),
		lastErr:    make(map[string]string),
		cfg:        cfg,
		logger:     logger,
	}
}

// Add registers a dependency under name.
func (h *Checker) Add(name string, p Pinger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = p
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until done is closed.
func (h *Checker) Start(done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(context.Background())
		case <-done:
			return
		}
	}
}

// CheckAll probes every dependency concurrently and updates their state.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.RLock()
	deps := make(map[string]Pinger, len(h.deps))
	for name, p := range h.deps {
		deps[name] = p
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for name, p := range deps {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := p.Ping(pctx)
			cancel()

			if h.onMetrics != nil {
				h.onMetrics(name, err == nil)
			}

			h.mu.Lock()
			prevCount := h.failCounts[name]
			if err == nil {
				h.failCounts[name] = 0
				delete(h.lastErr, name)
			} else {
				h.failCounts[name]++
				h.lastErr[name] = err.Error()
			}
			count := h.failCounts[name]
			h.mu.Unlock()

			switch {
			case err == nil && prevCount >= h.cfg.FailThreshold:
				h.logger.Info("health: dependency recovered", zap.String("name", name))
			case err != nil && count == h.cfg.FailThreshold:
				h.logger.Warn("health: dependency down",
					zap.String("name", name),
					zap.Int("fail_count", count),
					zap.Error(err),
				)
			}
		}(name, p)
	}
	wg.Wait()
}

// Ready reports whether every dependency is below the failure threshold.
func (h *Checker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for name := range h.deps {
		if h.failCounts[name] >= h.cfg.FailThreshold {
			return false
		}
	}
	return true
}

// Status returns "up" or "down: <last error>" per dependency.
func (h *Checker) Status() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	for _, name := range names {
		if h.failCounts[name] >= h.cfg.FailThreshold {
			out[name] = "down: " + h.lastErr[name]
		} else {
			out[name] = "up"
		}
	}
	return out
}

// Handler serves 200 when ready and 503 otherwise.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ready", http.StatusOK
		if !h.Ready() {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": h.Status()})
	}
}

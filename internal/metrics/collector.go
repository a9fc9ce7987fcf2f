package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

// SystemMetrics holds a current memory usage snapshot. The pipeline is
// disk/CPU-bound inside DuckDB-free Go code already instrumented by
// progress.Reporter; the one system signal worth polling independently is
// available memory, since groupstore's scheduler depends on it to size and
// shrink G.
type SystemMetrics struct {
	MemoryUsedGB  float64
	MemoryTotalGB float64
	MemoryPercent float64
	Timestamp     time.Time
}

// Collector periodically samples and logs memory usage.
type Collector struct {
	interval    time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	return &Collector{interval: interval, logger: logger}
}

// Start begins periodic metrics collection. Returns when context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the last collected metrics.
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	metrics := &SystemMetrics{Timestamp: time.Now()}

	vmem, err := mem.VirtualMemory()
	if err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		metrics.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	c.logger.Info("system metrics",
		zap.Float64("mem_pct", metrics.MemoryPercent),
		zap.String("mem_used", formatGB(metrics.MemoryUsedGB)),
		zap.String("mem_total", formatGB(metrics.MemoryTotalGB)),
	)
}

func formatGB(gb float64) string {
	return fmt.Sprintf("%.1f GB", gb)
}

package analytics

import (
	"sync"
	"time"

	"github.com/thinkxlife/brain/internal/models"
)

// Snapshot is a consistent read of the aggregator counters. Success and
// error rates are tracked independently and need not sum to one.
type Snapshot struct {
	TotalRequests     int64                        `json:"total_requests"`
	SuccessRate       float64                      `json:"success_rate"`
	ErrorRate         float64                      `json:"error_rate"`
	AvgResponseTime   float64                      `json:"average_response_time"`
	ApplicationCounts map[models.Application]int64 `json:"application_usage"`
	ProviderCounts    map[string]int64             `json:"provider_usage"`
	Uptime            float64                      `json:"uptime"`
}

// Aggregator keeps online running statistics over request outcomes. The
// incremental-mean update is not commutative under interleaving, so one
// mutex serializes every write together with the totalRequests denominator.
type Aggregator struct {
	mu                sync.Mutex
	startTime         time.Time
	totalRequests     int64
	successRate       float64
	errorRate         float64
	avgResponseTime   float64
	applicationCounts map[models.Application]int64
	providerCounts    map[string]int64

	now func() time.Time
}

// NewAggregator creates an aggregator anchored at the current time.
func NewAggregator() *Aggregator {
	return &Aggregator{
		startTime:         time.Now(),
		applicationCounts: make(map[models.Application]int64),
		providerCounts:    make(map[string]int64),
		now:               time.Now,
	}
}

// Record folds one request outcome into the running statistics.
func (a *Aggregator) Record(application models.Application, providerName string, success bool, latency time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRequests++
	n := float64(a.totalRequests)

	a.applicationCounts[application]++
	if providerName != "" {
		a.providerCounts[providerName]++
	}

	a.avgResponseTime += (latency.Seconds() - a.avgResponseTime) / n

	successX, errorX := 0.0, 1.0
	if success {
		successX, errorX = 1.0, 0.0
	}
	a.successRate += (successX - a.successRate) / n
	a.errorRate += (errorX - a.errorRate) / n
}

// Snapshot returns a consistent copy of all counters plus uptime in seconds.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	apps := make(map[models.Application]int64, len(a.applicationCounts))
	for k, v := range a.applicationCounts {
		apps[k] = v
	}
	providers := make(map[string]int64, len(a.providerCounts))
	for k, v := range a.providerCounts {
		providers[k] = v
	}

	return Snapshot{
		TotalRequests:     a.totalRequests,
		SuccessRate:       a.successRate,
		ErrorRate:         a.errorRate,
		AvgResponseTime:   a.avgResponseTime,
		ApplicationCounts: apps,
		ProviderCounts:    providers,
		Uptime:            a.now().Sub(a.startTime).Seconds(),
	}
}

package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// CheckFunc probes the backend once. Typically remote.Client.Health.
type CheckFunc func(ctx context.Context) error

// Config contains prober tuning.
type Config struct {
	// Interval is the time between probes
	Interval time.Duration

	// Timeout is the maximum time to wait for a probe to complete
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures before the
	// agent is considered offline
	FailureThreshold int

	// SuccessThreshold is the number of consecutive successes before the
	// agent flips back online
	SuccessThreshold int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}
}

// Status is a snapshot of the prober's state.
type Status struct {
	Online               bool
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastError            string
}

// Prober tracks backend reachability and publishes transitions on the
// broker. Reconnecting is what wakes the outbox for an immediate drain.
type Prober struct {
	check  CheckFunc
	broker *events.Broker
	cfg    Config
	stopCh chan struct{}

	mu     sync.RWMutex
	status Status
}

// NewProber creates a prober. The agent starts out assumed online until a
// probe proves otherwise.
func NewProber(check CheckFunc, broker *events.Broker, cfg Config) *Prober {
	metrics.BackendOnline.Set(1)
	return &Prober{
		check:  check,
		broker: broker,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		status: Status{Online: true},
	}
}

// Start begins the probe loop
func (p *Prober) Start() {
	go p.run()
}

// Stop stops the probe loop
func (p *Prober) Stop() {
	close(p.stopCh)
}

// Online reports whether the backend is currently considered reachable.
func (p *Prober) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.Online
}

// Status returns a snapshot of the prober's state.
func (p *Prober) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Prober) run() {
	// Probe immediately on start.
	p.probe()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe()
		case <-p.stopCh:
			return
		}
	}
}

// probe runs one check and applies the threshold logic.
func (p *Prober) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	err := p.check(ctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.LastCheck = time.Now()
	if err != nil {
		p.status.ConsecutiveFailures++
		p.status.ConsecutiveSuccesses = 0
		p.status.LastError = err.Error()

		if p.status.Online && p.status.ConsecutiveFailures >= p.cfg.FailureThreshold {
			p.status.Online = false
			metrics.BackendOnline.Set(0)
			logger := log.WithComponent("connectivity")
			logger.Warn().Err(err).Msg("backend unreachable, going offline")
			p.broker.Emit(types.EventNetworkOffline, "backend unreachable", nil)
		}
		return
	}

	p.status.ConsecutiveSuccesses++
	p.status.ConsecutiveFailures = 0
	p.status.LastError = ""

	if !p.status.Online && p.status.ConsecutiveSuccesses >= p.cfg.SuccessThreshold {
		p.status.Online = true
		metrics.BackendOnline.Set(1)
		logger := log.WithComponent("connectivity")
		logger.Info().Msg("backend reachable again")
		p.broker.Emit(types.EventNetworkOnline, "backend reachable", nil)
	}
}

// Package health processes framework battery updates through the monitor
// chain and answers storage queries.
package health

import (
	"context"
	"sync"

	"codeberg.org/mutker/healthd/internal/hal"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/storage"
)

// Restorer reconstructs a persisted counter at startup.
type Restorer interface {
	Name() string
	Restore() error
}

// Aggregator runs one tick at a time. Queries do not wait for ticks.
type Aggregator struct {
	chain   *monitor.Chain
	storage *storage.Querier
	logger  logger.Logger

	tickMu  sync.Mutex
	lastMu  sync.RWMutex
	last    hal.HealthInfo
	hasLast bool
}

// New restores every counter before returning, so no tick can run before
// the counters are reconstructed. Restore failures are logged.
func New(chain *monitor.Chain, querier *storage.Querier, counters []Restorer, log logger.Logger) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	a := &Aggregator{
		chain:   chain,
		storage: querier,
		logger:  log.With("health"),
	}

	for _, c := range counters {
		if err := c.Restore(); err != nil {
			a.logger.Warn().Code(err).Err(err).Str("counter", c.Name()).Msg("Counter restore incomplete")
			continue
		}
		a.logger.Debug().Str("counter", c.Name()).Msg("Counter restored")
	}

	return a
}

// OnTick processes one battery update and returns the possibly modified
// properties.
func (a *Aggregator) OnTick(ctx context.Context, in hal.HealthInfo) hal.HealthInfo {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()

	snapshot := ToSnapshot(in)
	report := a.chain.Apply(ctx, &snapshot)
	out := FromSnapshot(snapshot)

	if !report.OK() {
		a.logger.Debug().Int("faults", len(report.Faults)).Msg("Tick completed with handler faults")
	}
	a.logger.Debug().
		Int32("level", out.BatteryLevel).
		Int32("status", int32(out.BatteryStatus)).
		Dur("duration", report.Duration).
		Msg("Tick processed")

	a.lastMu.Lock()
	a.last = out
	a.hasLast = true
	a.lastMu.Unlock()

	return out
}

// Last returns the most recently processed properties.
func (a *Aggregator) Last() (hal.HealthInfo, bool) {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()

	return a.last, a.hasLast
}

// QueryStorageInfo reports NOT_SUPPORTED when no storage device is
// configured.
func (a *Aggregator) QueryStorageInfo() (hal.Result, []storage.Info) {
	if a.storage == nil || a.storage.Devices() == 0 {
		return hal.ResultNotSupported, []storage.Info{}
	}

	return hal.ResultSuccess, a.storage.StorageInfo()
}

// QueryDiskStats reports NOT_SUPPORTED when no storage device is
// configured.
func (a *Aggregator) QueryDiskStats() (hal.Result, []storage.DiskStats) {
	if a.storage == nil || a.storage.Devices() == 0 {
		return hal.ResultNotSupported, []storage.DiskStats{}
	}

	return hal.ResultSuccess, a.storage.DiskStats()
}

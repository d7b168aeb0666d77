package battery

import (
	"context"
	"time"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
)

// syncTrigger runs a counter backup and remembers failures so the next
// tick retries even if its trigger condition does not fire again.
type syncTrigger struct {
	unit    Syncer
	pending bool
	logger  logger.Logger
}

func (t *syncTrigger) sync() error {
	if t.unit == nil {
		return nil
	}

	wrote, err := t.unit.Sync()
	if err == nil {
		t.pending = false
		if wrote {
			t.logger.Debug().Str("counter", t.unit.Name()).Msg("Counter backed up")
		}
		return nil
	}

	switch errors.CodeOf(err) {
	case errors.ErrCounterRegression:
		// history has been pushed back into the live counter
		t.pending = false
		return nil
	case errors.ErrInvalidCounter, errors.ErrSourceUnavailable, errors.ErrSourceParse:
		t.pending = false
		t.logger.Warn().Code(err).Err(err).Str("counter", t.unit.Name()).Msg("Live counter unusable, backup skipped")
		return nil
	case errors.ErrPersistenceUnavailable:
		t.pending = true
		return nil
	default:
		t.pending = true
		return err
	}
}

// CycleCountBackup backs up the cycle-count bins whenever the battery
// level changes.
type CycleCountBackup struct {
	syncTrigger
	lastLevel int
}

func NewCycleCountBackup(unit Syncer, log logger.Logger) *CycleCountBackup {
	return &CycleCountBackup{
		syncTrigger: syncTrigger{unit: unit, logger: log.With("cycle_count_backup")},
		lastLevel:   -1,
	}
}

func (*CycleCountBackup) Name() string { return "cycle_count_backup" }

func (b *CycleCountBackup) Apply(_ context.Context, s *monitor.Snapshot) error {
	if s.Level == b.lastLevel && !b.pending {
		return nil
	}
	b.lastLevel = s.Level

	return b.sync()
}

// CapacityBackup backs up the learned capacity on its own cadence.
type CapacityBackup struct {
	syncTrigger
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

func NewCapacityBackup(unit Syncer, interval time.Duration, now func() time.Time, log logger.Logger) *CapacityBackup {
	return &CapacityBackup{
		syncTrigger: syncTrigger{unit: unit, logger: log.With("capacity_backup")},
		interval:    interval,
		now:         now,
	}
}

func (*CapacityBackup) Name() string { return "capacity_backup" }

func (b *CapacityBackup) Apply(_ context.Context, _ *monitor.Snapshot) error {
	now := b.now()
	if !b.last.IsZero() && now.Sub(b.last) < b.interval && !b.pending {
		return nil
	}
	b.last = now

	return b.sync()
}

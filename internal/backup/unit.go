// Package backup protects monotonic battery counters against resets of
// their live location by mirroring them into a persistent store.
package backup

import (
	"sync"

	"codeberg.org/mutker/healthd/internal/counterstore"
	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
)

// Config describes one protected counter.
type Config struct {
	// Name is the store key.
	Name string
	// Bins is the number of bins every valid value has.
	Bins int
	// Validate rejects untrustworthy values; nil accepts any value of the
	// right length.
	Validate Validator
}

// Stats exposes the unit's bookkeeping.
type Stats struct {
	Restored bool
	Writes   int
	BackedUp Value
	LastGood Value
}

// Unit owns the restore-on-start and backup-on-update protocol for one
// counter. It is the only writer of its store key.
type Unit struct {
	cfg     Config
	primary Primary
	store   counterstore.Store
	logger  logger.Logger

	mu       sync.Mutex
	restored bool
	backedUp Value
	lastGood Value
	writes   int
}

func NewUnit(cfg Config, primary Primary, store counterstore.Store, log logger.Logger) (*Unit, error) {
	errFactory := errors.New()

	if cfg.Name == "" || cfg.Bins <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "counter name and bins are required")
	}
	if primary == nil || store == nil {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "counter primary and store are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Unit{
		cfg:     cfg,
		primary: primary,
		store:   store,
		logger:  log.With("backup." + cfg.Name),
	}, nil
}

// Name returns the counter's store key.
func (u *Unit) Name() string {
	return u.cfg.Name
}

func (u *Unit) validate(v Value) error {
	if len(v) != u.cfg.Bins {
		return errors.New().WithData(errors.ErrInvalidCounter, struct {
			Want int
			Got  int
		}{u.cfg.Bins, len(v)})
	}
	if u.cfg.Validate != nil {
		return u.cfg.Validate(v)
	}

	return nil
}

func (u *Unit) loadBackup() (Value, error) {
	data, ok, err := u.store.Load(u.cfg.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New().WithData(errors.ErrPersistenceUnavailable, "no backup stored")
	}

	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := u.validate(v); err != nil {
		return nil, err
	}

	return v, nil
}

// Restore reconstructs the live counter from the backup when the live
// value is missing or invalid. When both are valid, bins where the backup
// is higher are written back so a partial reset does not lose history.
// Only the first call does any work; later calls return
// ErrAlreadyRestored. An unavailable primary or backup is logged, not
// returned. Any other returned error reports a failed write-back.
func (u *Unit) Restore() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.restored {
		return errors.New().New(errors.ErrAlreadyRestored)
	}
	u.restored = true

	primary, perr := u.primary.Read()
	if perr == nil {
		perr = u.validate(primary)
	}
	backup, berr := u.loadBackup()

	switch {
	case perr == nil && berr == nil:
		u.backedUp = backup
		merged := primary.Max(backup)
		u.lastGood = merged
		if merged.Equal(primary) {
			u.logger.Debug().Str("value", primary.String()).Msg("Live counter is current")
			return nil
		}
		u.logger.Info().
			Str("live", primary.String()).
			Str("backup", backup.String()).
			Msg("Restoring regressed bins from backup")
		return u.writePrimary(merged)

	case perr == nil:
		u.lastGood = primary
		u.logger.Warn().Code(berr).Err(berr).Str("value", primary.String()).Msg("No usable backup, keeping live counter")
		return nil

	case berr == nil:
		u.backedUp = backup
		u.lastGood = backup
		u.logger.Info().
			Err(perr).
			Str("backup", backup.String()).
			Msg("Live counter invalid, restoring from backup")
		return u.writePrimary(backup)

	default:
		u.logger.Warn().
			AnErr("live_error", perr).
			AnErr("backup_error", berr).
			Msg("Neither live counter nor backup available")
		return nil
	}
}

func (u *Unit) writePrimary(v Value) error {
	if err := u.primary.Write(v); err != nil {
		u.logger.Error().Code(err).Err(err).Str("value", v.String()).Msg("Failed to write live counter")
		return err
	}

	return nil
}

// Backup persists current if it differs from the last backed-up value.
// Repeating an unchanged value performs no I/O. A value lower than the
// known history in any bin is not persisted: the live counter is re-read,
// and if it confirms the regression the known history is pushed back into
// it and ErrCounterRegression is returned. The returned bool reports
// whether the store was written.
func (u *Unit) Backup(current Value) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.backup(current)
}

// Sync reads the live counter and backs it up.
func (u *Unit) Sync() (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	current, err := u.primary.Read()
	if err != nil {
		u.logger.Warn().Code(err).Err(err).Msg("Cannot read live counter")
		return false, err
	}

	return u.backup(current)
}

func (u *Unit) backup(current Value) (bool, error) {
	errFactory := errors.New()

	if !u.restored {
		return false, errFactory.WithData(errors.ErrInitFailed, "backup before restore")
	}
	if err := u.validate(current); err != nil {
		u.logger.Debug().Err(err).Str("value", current.String()).Msg("Skipping invalid counter")
		return false, err
	}
	if u.backedUp != nil && current.Equal(u.backedUp) {
		return false, nil
	}

	reference := u.backedUp
	if reference == nil {
		reference = u.lastGood
	}

	if reference != nil && current.RegressesFrom(reference) {
		live, err := u.primary.Read()
		if err == nil && u.validate(live) == nil && !live.RegressesFrom(reference) {
			// the caller's value was stale; the live counter still holds history
			current = live
			if u.backedUp != nil && current.Equal(u.backedUp) {
				return false, nil
			}
		} else {
			return u.recoverRegression(current, reference)
		}
	}

	return u.persist(current)
}

func (u *Unit) recoverRegression(current, reference Value) (bool, error) {
	merged := current.Max(reference)

	u.logger.Warn().
		Str("value", current.String()).
		Str("history", reference.String()).
		Msg("Counter regressed, restoring history to live counter")

	regression := errors.New().WithData(errors.ErrCounterRegression, current.String())
	if err := u.writePrimary(merged); err != nil {
		return false, errors.New().Wrap(errors.ErrCounterRegression, err)
	}
	u.lastGood = merged

	if u.backedUp != nil && merged.Equal(u.backedUp) {
		return false, regression
	}

	wrote, err := u.persist(merged)
	if err != nil {
		return wrote, err
	}

	return wrote, regression
}

func (u *Unit) persist(v Value) (bool, error) {
	if err := u.store.Store(u.cfg.Name, v.Encode()); err != nil {
		u.logger.Warn().Code(err).Err(err).Str("value", v.String()).Msg("Backup skipped, store unavailable")
		return false, err
	}

	u.backedUp = v.Clone()
	u.lastGood = v.Clone()
	u.writes++
	u.logger.Debug().Str("value", v.String()).Msg("Counter backed up")

	return true, nil
}

// Stats returns a copy of the unit's bookkeeping.
func (u *Unit) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()

	return Stats{
		Restored: u.restored,
		Writes:   u.writes,
		BackedUp: u.backedUp.Clone(),
		LastGood: u.lastGood.Clone(),
	}
}

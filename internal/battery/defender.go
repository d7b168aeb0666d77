package battery

import (
	"context"
	"time"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

type DefenderConfig struct {
	Enabled      bool
	TriggerLevel int
	ResumeLevel  int
	TriggerAfter time.Duration
}

// Defender stops charging when the device has sat on a charger at a high
// level for too long, and resumes once the level drops to the resume
// level or the charger is removed.
type Defender struct {
	reader *sysfs.Reader
	path   string
	cfg    DefenderConfig
	now    func() time.Time
	logger logger.Logger

	since  time.Time
	active bool
}

func NewDefender(reader *sysfs.Reader, chargeDisablePath string, cfg DefenderConfig, now func() time.Time, log logger.Logger) *Defender {
	return &Defender{
		reader: reader,
		path:   chargeDisablePath,
		cfg:    cfg,
		now:    now,
		logger: log.With("defender"),
	}
}

func (*Defender) Name() string { return "defender" }

// Active reports whether charging is currently disabled.
func (d *Defender) Active() bool { return d.active }

func (d *Defender) Apply(_ context.Context, s *monitor.Snapshot) error {
	if !d.cfg.Enabled {
		return nil
	}
	now := d.now()

	if !s.ChargerOnline() {
		d.since = time.Time{}
		if d.active {
			return d.release("charger removed")
		}
		return nil
	}

	if d.active {
		if s.Level <= d.cfg.ResumeLevel {
			d.since = time.Time{}
			return d.release("resume level reached")
		}
		d.override(s)
		return nil
	}

	if s.Level < d.cfg.TriggerLevel {
		d.since = time.Time{}
		return nil
	}
	if d.since.IsZero() {
		d.since = now
	}
	if now.Sub(d.since) < d.cfg.TriggerAfter {
		return nil
	}

	if err := d.reader.Write(d.path, "1"); err != nil {
		return err
	}
	d.active = true
	d.override(s)
	d.logger.Info().
		Int("level", s.Level).
		Dur("on_charger", now.Sub(d.since)).
		Msg("Charging disabled")

	return nil
}

func (*Defender) override(s *monitor.Snapshot) {
	s.Status = monitor.StatusNotCharging
	s.Health = monitor.HealthOverheat
}

func (d *Defender) release(reason string) error {
	if err := d.reader.Write(d.path, "0"); err != nil {
		return err
	}
	d.active = false
	d.logger.Info().Str("reason", reason).Msg("Charging re-enabled")

	return nil
}

package battery

import (
	"context"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
)

// RechargeControl keeps reporting a full battery while the charger stays
// connected after charging completed, until the level drops below the
// recharge threshold. This hides the small top-up cycles from the user.
type RechargeControl struct {
	threshold int
	latched   bool
	logger    logger.Logger
}

func NewRechargeControl(threshold int, log logger.Logger) *RechargeControl {
	return &RechargeControl{threshold: threshold, logger: log.With("recharge")}
}

func (*RechargeControl) Name() string { return "recharge" }

func (r *RechargeControl) Apply(_ context.Context, s *monitor.Snapshot) error {
	if !s.ChargerOnline() {
		r.latched = false
		return nil
	}

	if s.Status == monitor.StatusFull && !r.latched {
		r.latched = true
		r.logger.Debug().Int("level", s.Level).Msg("Charge complete, holding full")
	}
	if !r.latched {
		return nil
	}

	if s.Level < r.threshold {
		r.latched = false
		r.logger.Debug().Int("level", s.Level).Int("threshold", r.threshold).Msg("Recharging")
		return nil
	}

	s.Status = monitor.StatusFull
	s.Level = 100

	return nil
}

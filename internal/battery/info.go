package battery

import (
	"context"

	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

// InfoUpdate fills the capacity and cycle fields from the fuel gauge.
// Missing attributes read as 0.
type InfoUpdate struct {
	reader *sysfs.Reader
	paths  Paths
}

func NewInfoUpdate(reader *sysfs.Reader, paths Paths) *InfoUpdate {
	return &InfoUpdate{reader: reader, paths: paths}
}

func (*InfoUpdate) Name() string { return "info_update" }

func (u *InfoUpdate) Apply(_ context.Context, s *monitor.Snapshot) error {
	s.FullChargeMicroampHours = u.reader.IntOr(u.paths.LearnedCapacity, 0)
	s.FullChargeDesignMicroampHours = u.reader.IntOr(u.paths.ChargeFullDesign, 0)
	s.ChargeCounterMicroampHours = u.reader.IntOr(u.paths.ChargeCounter, 0)
	s.CycleCount = int(u.reader.IntOr(u.paths.CycleCount, 0))

	return nil
}

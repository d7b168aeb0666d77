package battery

import (
	"context"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

const (
	thermalEnabled  = "enabled"
	thermalDisabled = "disabled"
)

// ThermalControl switches the SoC thermal zone off while a charger is
// connected and back on when it is removed.
type ThermalControl struct {
	reader *sysfs.Reader
	path   string
	mode   string
	logger logger.Logger
}

func NewThermalControl(reader *sysfs.Reader, path string, log logger.Logger) *ThermalControl {
	return &ThermalControl{reader: reader, path: path, logger: log.With("thermal")}
}

func (*ThermalControl) Name() string { return "thermal" }

func (t *ThermalControl) Apply(_ context.Context, s *monitor.Snapshot) error {
	if t.path == "" {
		return nil
	}

	want := thermalEnabled
	if s.ChargerOnline() {
		want = thermalDisabled
	}
	if want == t.mode {
		return nil
	}

	if err := t.reader.Write(t.path, want); err != nil {
		return err
	}
	t.mode = want
	t.logger.Info().Str("mode", want).Msg("Thermal zone mode changed")

	return nil
}

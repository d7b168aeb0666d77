package battery

import (
	"context"

	"codeberg.org/mutker/healthd/internal/monitor"
)

// HealthBounds are the limits used to derive health when the fuel gauge
// does not report it.
type HealthBounds struct {
	HotDeciC              int
	ColdDeciC             int
	OverVoltageMicrovolts int64
}

func DefaultHealthBounds() HealthBounds {
	return HealthBounds{
		HotDeciC:              600,
		ColdDeciC:             0,
		OverVoltageMicrovolts: 4_500_000,
	}
}

// DeviceHealth fills in an unknown health from temperature and voltage.
type DeviceHealth struct {
	bounds HealthBounds
}

func NewDeviceHealth(bounds HealthBounds) *DeviceHealth {
	return &DeviceHealth{bounds: bounds}
}

func (*DeviceHealth) Name() string { return "device_health" }

func (h *DeviceHealth) Apply(_ context.Context, s *monitor.Snapshot) error {
	if s.Health != monitor.HealthUnknown || !s.Present {
		return nil
	}

	switch {
	case s.TemperatureDeciC >= h.bounds.HotDeciC:
		s.Health = monitor.HealthOverheat
	case s.TemperatureDeciC <= h.bounds.ColdDeciC:
		s.Health = monitor.HealthCold
	case h.bounds.OverVoltageMicrovolts > 0 && s.VoltageMicrovolts > h.bounds.OverVoltageMicrovolts:
		s.Health = monitor.HealthOverVoltage
	default:
		s.Health = monitor.HealthGood
	}

	return nil
}

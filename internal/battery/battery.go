// Package battery implements the monitor chain handlers for the battery
// power supply.
package battery

import (
	"time"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/metrics"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

// Paths are the sysfs attributes read or written by the handlers.
type Paths struct {
	Resistance       string
	OCV              string
	VoltageAvg       string
	LearnedCapacity  string
	ChargeFullDesign string
	ChargeCounter    string
	CycleCount       string
	ThermalZoneMode  string
	ChargeDisable    string
}

// Syncer backs up a counter from its live location.
type Syncer interface {
	Name() string
	Sync() (bool, error)
}

// Deps is everything needed to build the handler chain.
type Deps struct {
	Reader    *sysfs.Reader
	Paths     Paths
	Collector metrics.Collector

	CycleCounts Syncer
	Capacity    Syncer

	RechargeThreshold int
	Bounds            HealthBounds
	Defender          DefenderConfig
	MetricsInterval   time.Duration
	CapacityInterval  time.Duration

	Now    func() time.Time
	Logger logger.Logger
}

// Handlers returns the battery handlers in their fixed execution order.
// The defender runs last so it can override charging decisions made by
// the handlers before it.
func Handlers(d Deps) []monitor.Handler {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Collector == nil {
		d.Collector, _ = metrics.NewService(metrics.Config{}, d.Logger)
	}

	return []monitor.Handler{
		NewRechargeControl(d.RechargeThreshold, d.Logger),
		NewDeviceHealth(d.Bounds),
		NewThermalControl(d.Reader, d.Paths.ThermalZoneMode, d.Logger),
		NewInfoUpdate(d.Reader, d.Paths),
		NewMetricsLogger(d.Reader, d.Paths, d.Collector, d.MetricsInterval, d.Now, d.Logger),
		NewShutdownMetrics(d.Reader, d.Paths.VoltageAvg, d.Collector, d.Now, d.Logger),
		NewCycleCountBackup(d.CycleCounts, d.Logger),
		NewCapacityBackup(d.Capacity, d.CapacityInterval, d.Now, d.Logger),
		NewDefender(d.Reader, d.Paths.ChargeDisable, d.Defender, d.Now, d.Logger),
	}
}

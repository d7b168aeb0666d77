package battery

import (
	"context"
	"time"

	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/metrics"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

// MetricsLogger samples the battery resistance and open-circuit voltage on
// every tick and emits their range once per interval.
type MetricsLogger struct {
	reader    *sysfs.Reader
	paths     Paths
	collector metrics.Collector
	interval  time.Duration
	now       func() time.Time
	logger    logger.Logger

	windowStart time.Time
	resistance  metrics.Range
	ocv         metrics.Range
}

func NewMetricsLogger(
	reader *sysfs.Reader,
	paths Paths,
	collector metrics.Collector,
	interval time.Duration,
	now func() time.Time,
	log logger.Logger,
) *MetricsLogger {
	return &MetricsLogger{
		reader:    reader,
		paths:     paths,
		collector: collector,
		interval:  interval,
		now:       now,
		logger:    log.With("metrics_logger"),
	}
}

func (*MetricsLogger) Name() string { return "metrics_logger" }

func (m *MetricsLogger) Apply(ctx context.Context, s *monitor.Snapshot) error {
	now := m.now()
	if m.windowStart.IsZero() {
		m.windowStart = now
	}

	if v, err := m.reader.ReadInt(m.paths.Resistance); err == nil {
		m.resistance = m.resistance.Observe(v)
	} else {
		m.logger.Debug().Err(err).Msg("Resistance unavailable")
	}
	if v, err := m.reader.ReadInt(m.paths.OCV); err == nil {
		m.ocv = m.ocv.Observe(v)
	} else {
		m.logger.Debug().Err(err).Msg("OCV unavailable")
	}

	if now.Sub(m.windowStart) < m.interval {
		return nil
	}

	sample := &metrics.BatterySample{
		Timestamp:   now,
		Level:       s.Level,
		Temperature: s.TemperatureDeciC,
		CycleCount:  s.CycleCount,
		Resistance:  m.resistance,
		OCV:         m.ocv,
	}
	m.windowStart = now
	m.resistance = metrics.Range{}
	m.ocv = metrics.Range{}

	if err := m.collector.RecordSample(ctx, sample); err != nil {
		m.logger.Warn().Code(err).Err(err).Msg("Battery sample dropped")
	}

	return nil
}

// ShutdownMetrics records the average voltage once per boot when the
// battery is empty and discharging, just before the system powers off.
type ShutdownMetrics struct {
	reader    *sysfs.Reader
	path      string
	collector metrics.Collector
	now       func() time.Time
	logger    logger.Logger
	recorded  bool
}

func NewShutdownMetrics(
	reader *sysfs.Reader,
	voltageAvgPath string,
	collector metrics.Collector,
	now func() time.Time,
	log logger.Logger,
) *ShutdownMetrics {
	return &ShutdownMetrics{
		reader:    reader,
		path:      voltageAvgPath,
		collector: collector,
		now:       now,
		logger:    log.With("shutdown_metrics"),
	}
}

func (*ShutdownMetrics) Name() string { return "shutdown_metrics" }

func (m *ShutdownMetrics) Apply(ctx context.Context, s *monitor.Snapshot) error {
	if m.recorded || s.Level != 0 || s.Status != monitor.StatusDischarging {
		return nil
	}

	event := &metrics.ShutdownEvent{
		Timestamp:  m.now(),
		VoltageAvg: m.reader.IntOr(m.path, 0),
		Level:      s.Level,
	}
	if err := m.collector.RecordShutdown(ctx, event); err != nil {
		m.logger.Warn().Code(err).Err(err).Msg("Shutdown voltage not recorded")
		return nil
	}
	m.recorded = true

	return nil
}

package battery_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/healthd/internal/battery"
	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/metrics"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPaths = battery.Paths{
	Resistance:       "bms/resistance",
	OCV:              "bms/voltage_ocv",
	VoltageAvg:       "battery/voltage_avg",
	LearnedCapacity:  "bms/charge_full",
	ChargeFullDesign: "bms/charge_full_design",
	ChargeCounter:    "bms/charge_counter",
	CycleCount:       "bms/cycle_count",
	ThermalZoneMode:  "thermal/mode",
	ChargeDisable:    "battery/charge_disable",
}

func newTestReader(t *testing.T) (*sysfs.Reader, string) {
	t.Helper()

	root := t.TempDir()
	return sysfs.New(root, logger.Nop()), root
}

func writeTestFile(t *testing.T, root, path, contents string) {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

func readTestFile(t *testing.T, root, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, path))
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type fakeCollector struct {
	samples   []metrics.BatterySample
	shutdowns []metrics.ShutdownEvent
}

func (c *fakeCollector) RecordSample(_ context.Context, s *metrics.BatterySample) error {
	c.samples = append(c.samples, *s)
	return nil
}

func (c *fakeCollector) RecordShutdown(_ context.Context, e *metrics.ShutdownEvent) error {
	c.shutdowns = append(c.shutdowns, *e)
	return nil
}

func (*fakeCollector) Close() error { return nil }

type fakeSyncer struct {
	calls int
	err   error
}

func (*fakeSyncer) Name() string { return "fake" }

func (s *fakeSyncer) Sync() (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return true, nil
}

func TestHandlers_Order(t *testing.T) {
	reader, _ := newTestReader(t)
	handlers := battery.Handlers(battery.Deps{Reader: reader, Paths: testPaths})

	chain := monitor.NewChain(logger.Nop(), handlers...)
	assert.Equal(t, []string{
		"recharge",
		"device_health",
		"thermal",
		"info_update",
		"metrics_logger",
		"shutdown_metrics",
		"cycle_count_backup",
		"capacity_backup",
		"defender",
	}, chain.Names())
}

func TestRechargeControl_Hysteresis(t *testing.T) {
	r := battery.NewRechargeControl(97, logger.Nop())
	ctx := context.Background()

	s := monitor.Snapshot{ChargerACOnline: true, Status: monitor.StatusFull, Level: 100}
	require.NoError(t, r.Apply(ctx, &s))

	s = monitor.Snapshot{ChargerACOnline: true, Status: monitor.StatusCharging, Level: 98}
	require.NoError(t, r.Apply(ctx, &s))
	assert.Equal(t, monitor.StatusFull, s.Status)
	assert.Equal(t, 100, s.Level)

	s = monitor.Snapshot{ChargerACOnline: true, Status: monitor.StatusCharging, Level: 96}
	require.NoError(t, r.Apply(ctx, &s))
	assert.Equal(t, monitor.StatusCharging, s.Status)
	assert.Equal(t, 96, s.Level)

	s = monitor.Snapshot{ChargerACOnline: true, Status: monitor.StatusCharging, Level: 98}
	require.NoError(t, r.Apply(ctx, &s))
	assert.Equal(t, 98, s.Level, "released until the next full charge")
}

func TestDeviceHealth(t *testing.T) {
	h := battery.NewDeviceHealth(battery.DefaultHealthBounds())
	ctx := context.Background()

	tests := []struct {
		name string
		in   monitor.Snapshot
		want monitor.Health
	}{
		{"good", monitor.Snapshot{Present: true, TemperatureDeciC: 250, VoltageMicrovolts: 3_900_000}, monitor.HealthGood},
		{"hot", monitor.Snapshot{Present: true, TemperatureDeciC: 650}, monitor.HealthOverheat},
		{"cold", monitor.Snapshot{Present: true, TemperatureDeciC: -50}, monitor.HealthCold},
		{"over voltage", monitor.Snapshot{Present: true, TemperatureDeciC: 250, VoltageMicrovolts: 4_700_000}, monitor.HealthOverVoltage},
		{"reported health kept", monitor.Snapshot{Present: true, Health: monitor.HealthDead, TemperatureDeciC: 250}, monitor.HealthDead},
		{"absent battery", monitor.Snapshot{TemperatureDeciC: 250}, monitor.HealthUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.in
			require.NoError(t, h.Apply(ctx, &s))
			assert.Equal(t, tt.want, s.Health)
		})
	}
}

func TestThermalControl_WritesOnChange(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.ThermalZoneMode, "enabled")
	th := battery.NewThermalControl(reader, testPaths.ThermalZoneMode, logger.Nop())
	ctx := context.Background()

	s := monitor.Snapshot{ChargerUSBOnline: true}
	require.NoError(t, th.Apply(ctx, &s))
	assert.Equal(t, "disabled", readTestFile(t, root, testPaths.ThermalZoneMode))

	// an external change is not fought while the charger state is unchanged
	writeTestFile(t, root, testPaths.ThermalZoneMode, "enabled")
	require.NoError(t, th.Apply(ctx, &s))
	assert.Equal(t, "enabled", readTestFile(t, root, testPaths.ThermalZoneMode))

	s.ChargerUSBOnline = false
	writeTestFile(t, root, testPaths.ThermalZoneMode, "disabled")
	require.NoError(t, th.Apply(ctx, &s))
	assert.Equal(t, "enabled", readTestFile(t, root, testPaths.ThermalZoneMode))
}

func TestThermalControl_WriteFailure(t *testing.T) {
	reader, _ := newTestReader(t)
	th := battery.NewThermalControl(reader, "missing/dir/mode", logger.Nop())

	err := th.Apply(context.Background(), &monitor.Snapshot{ChargerACOnline: true})
	assert.True(t, errors.HasCode(err, errors.ErrSourceWrite))
}

func TestInfoUpdate_DefaultsToZero(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.LearnedCapacity, "4500000\n")
	writeTestFile(t, root, testPaths.CycleCount, "137\n")

	s := monitor.Snapshot{FullChargeDesignMicroampHours: 99}
	require.NoError(t, battery.NewInfoUpdate(reader, testPaths).Apply(context.Background(), &s))

	assert.Equal(t, int64(4500000), s.FullChargeMicroampHours)
	assert.Equal(t, 137, s.CycleCount)
	assert.Zero(t, s.FullChargeDesignMicroampHours)
	assert.Zero(t, s.ChargeCounterMicroampHours)
}

func TestMetricsLogger_EmitsPerWindow(t *testing.T) {
	reader, root := newTestReader(t)
	c := newClock()
	collector := &fakeCollector{}
	m := battery.NewMetricsLogger(reader, testPaths, collector, time.Hour, c.now, logger.Nop())
	ctx := context.Background()

	for _, r := range []string{"120000", "90000", "150000"} {
		writeTestFile(t, root, testPaths.Resistance, r)
		writeTestFile(t, root, testPaths.OCV, "3900000")
		require.NoError(t, m.Apply(ctx, &monitor.Snapshot{Level: 50}))
		c.advance(20 * time.Minute)
	}
	assert.Empty(t, collector.samples)

	writeTestFile(t, root, testPaths.Resistance, "100000")
	require.NoError(t, m.Apply(ctx, &monitor.Snapshot{Level: 49, CycleCount: 12}))

	require.Len(t, collector.samples, 1)
	sample := collector.samples[0]
	assert.Equal(t, 49, sample.Level)
	assert.Equal(t, 12, sample.CycleCount)
	assert.Equal(t, metrics.Range{Min: 90000, Max: 150000, Samples: 4}, sample.Resistance)
	assert.Equal(t, int64(3900000), sample.OCV.Max)
}

func TestShutdownMetrics_OncePerBoot(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.VoltageAvg, "3350000")
	collector := &fakeCollector{}
	m := battery.NewShutdownMetrics(reader, testPaths.VoltageAvg, collector, newClock().now, logger.Nop())
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, &monitor.Snapshot{Level: 1, Status: monitor.StatusDischarging}))
	assert.Empty(t, collector.shutdowns)

	empty := monitor.Snapshot{Level: 0, Status: monitor.StatusDischarging}
	require.NoError(t, m.Apply(ctx, &empty))
	require.NoError(t, m.Apply(ctx, &empty))

	require.Len(t, collector.shutdowns, 1)
	assert.Equal(t, int64(3350000), collector.shutdowns[0].VoltageAvg)
}

func TestCycleCountBackup_OnLevelChange(t *testing.T) {
	unit := &fakeSyncer{}
	b := battery.NewCycleCountBackup(unit, logger.Nop())
	ctx := context.Background()

	for _, level := range []int{50, 50, 49, 49, 48} {
		require.NoError(t, b.Apply(ctx, &monitor.Snapshot{Level: level}))
	}
	assert.Equal(t, 3, unit.calls)
}

func TestCycleCountBackup_RetriesAfterStoreFailure(t *testing.T) {
	unit := &fakeSyncer{err: errors.New().New(errors.ErrPersistenceUnavailable)}
	b := battery.NewCycleCountBackup(unit, logger.Nop())
	ctx := context.Background()

	require.NoError(t, b.Apply(ctx, &monitor.Snapshot{Level: 50}))
	unit.err = nil
	require.NoError(t, b.Apply(ctx, &monitor.Snapshot{Level: 50}))
	require.NoError(t, b.Apply(ctx, &monitor.Snapshot{Level: 50}))

	assert.Equal(t, 2, unit.calls)
}

func TestCycleCountBackup_RegressionIsNotAFault(t *testing.T) {
	unit := &fakeSyncer{err: errors.New().New(errors.ErrCounterRegression)}
	b := battery.NewCycleCountBackup(unit, logger.Nop())

	assert.NoError(t, b.Apply(context.Background(), &monitor.Snapshot{Level: 50}))
}

func TestCapacityBackup_Cadence(t *testing.T) {
	unit := &fakeSyncer{}
	c := newClock()
	b := battery.NewCapacityBackup(unit, time.Hour, c.now, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, b.Apply(ctx, &monitor.Snapshot{}))
		c.advance(30 * time.Minute)
	}
	// t=0, 60m, 120m, 180m
	assert.Equal(t, 4, unit.calls)
}

func TestDefender_TriggerAndRelease(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.ChargeDisable, "0")
	c := newClock()
	d := battery.NewDefender(reader, testPaths.ChargeDisable, battery.DefenderConfig{
		Enabled:      true,
		TriggerLevel: 100,
		ResumeLevel:  80,
		TriggerAfter: 24 * time.Hour,
	}, c.now, logger.Nop())
	ctx := context.Background()

	full := func() monitor.Snapshot {
		return monitor.Snapshot{ChargerACOnline: true, Level: 100, Status: monitor.StatusFull, Health: monitor.HealthGood}
	}

	s := full()
	require.NoError(t, d.Apply(ctx, &s))
	assert.False(t, d.Active())

	c.advance(25 * time.Hour)
	s = full()
	require.NoError(t, d.Apply(ctx, &s))
	assert.True(t, d.Active())
	assert.Equal(t, monitor.StatusNotCharging, s.Status)
	assert.Equal(t, monitor.HealthOverheat, s.Health)
	assert.Equal(t, "1", readTestFile(t, root, testPaths.ChargeDisable))

	s = monitor.Snapshot{ChargerACOnline: true, Level: 90, Status: monitor.StatusDischarging}
	require.NoError(t, d.Apply(ctx, &s))
	assert.Equal(t, monitor.StatusNotCharging, s.Status)

	s = monitor.Snapshot{ChargerACOnline: true, Level: 80, Status: monitor.StatusDischarging}
	require.NoError(t, d.Apply(ctx, &s))
	assert.False(t, d.Active())
	assert.Equal(t, monitor.StatusDischarging, s.Status)
	assert.Equal(t, "0", readTestFile(t, root, testPaths.ChargeDisable))
}

func TestDefender_ChargerRemovedResetsTimer(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.ChargeDisable, "0")
	c := newClock()
	d := battery.NewDefender(reader, testPaths.ChargeDisable, battery.DefenderConfig{
		Enabled:      true,
		TriggerLevel: 100,
		ResumeLevel:  80,
		TriggerAfter: time.Hour,
	}, c.now, logger.Nop())
	ctx := context.Background()

	require.NoError(t, d.Apply(ctx, &monitor.Snapshot{ChargerACOnline: true, Level: 100}))
	c.advance(50 * time.Minute)
	require.NoError(t, d.Apply(ctx, &monitor.Snapshot{Level: 100}))
	require.NoError(t, d.Apply(ctx, &monitor.Snapshot{ChargerACOnline: true, Level: 100}))
	c.advance(50 * time.Minute)
	require.NoError(t, d.Apply(ctx, &monitor.Snapshot{ChargerACOnline: true, Level: 100}))

	assert.False(t, d.Active())
}

func TestDefender_RunsLastAndOverridesRecharge(t *testing.T) {
	reader, root := newTestReader(t)
	writeTestFile(t, root, testPaths.ChargeDisable, "0")
	writeTestFile(t, root, testPaths.ThermalZoneMode, "enabled")
	c := newClock()

	handlers := battery.Handlers(battery.Deps{
		Reader:            reader,
		Paths:             testPaths,
		Collector:         &fakeCollector{},
		CycleCounts:       &fakeSyncer{},
		Capacity:          &fakeSyncer{},
		RechargeThreshold: 97,
		Bounds:            battery.DefaultHealthBounds(),
		Defender:          battery.DefenderConfig{Enabled: true, TriggerLevel: 100, ResumeLevel: 80},
		MetricsInterval:   time.Hour,
		CapacityInterval:  time.Hour,
		Now:               c.now,
	})
	chain := monitor.NewChain(logger.Nop(), handlers...)

	s := monitor.Snapshot{ChargerACOnline: true, Present: true, Level: 100, Status: monitor.StatusFull, TemperatureDeciC: 250}
	report := chain.Apply(context.Background(), &s)

	assert.True(t, report.OK())
	assert.Equal(t, monitor.StatusNotCharging, s.Status)
	assert.Equal(t, monitor.HealthOverheat, s.Health)
}

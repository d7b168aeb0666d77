package health_test

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/healthd/internal/backup"
	"codeberg.org/mutker/healthd/internal/battery"
	"codeberg.org/mutker/healthd/internal/counterstore"
	"codeberg.org/mutker/healthd/internal/hal"
	"codeberg.org/mutker/healthd/internal/health"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/storage"
	"codeberg.org/mutker/healthd/internal/sysfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRestorer struct {
	name  string
	calls *[]string
	err   error
}

func (r fakeRestorer) Name() string { return r.name }

func (r fakeRestorer) Restore() error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

func writeTestFile(t *testing.T, root, path, contents string) {
	t.Helper()

	full := filepath.Join(root, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0o644))
}

func TestNew_RestoresBeforeFirstTick(t *testing.T) {
	var calls []string
	chain := monitor.NewChain(logger.Nop(), monitor.Named("probe", func(context.Context, *monitor.Snapshot) error {
		calls = append(calls, "tick")
		return nil
	}))

	a := health.New(chain, nil, []health.Restorer{
		fakeRestorer{name: "cycle_counts", calls: &calls},
		fakeRestorer{name: "capacity", calls: &calls, err: stderrors.New("persist partition missing")},
	}, logger.Nop())
	a.OnTick(context.Background(), hal.HealthInfo{})

	assert.Equal(t, []string{"cycle_counts", "capacity", "tick"}, calls)
}

func TestOnTick_ConvertsUnits(t *testing.T) {
	var seen monitor.Snapshot
	chain := monitor.NewChain(logger.Nop(), monitor.Named("probe", func(_ context.Context, s *monitor.Snapshot) error {
		seen = *s
		s.Level = 100
		return nil
	}))
	a := health.New(chain, nil, nil, logger.Nop())

	in := hal.HealthInfo{
		ChargerUSBOnline:   true,
		BatteryStatus:      hal.BatteryStatusCharging,
		BatteryHealth:      hal.BatteryHealthGood,
		BatteryPresent:     true,
		BatteryLevel:       99,
		BatteryVoltage:     4350,
		BatteryTemperature: 281,
		BatteryTechnology:  "Li-ion",
	}
	out := a.OnTick(context.Background(), in)

	assert.Equal(t, int64(4_350_000), seen.VoltageMicrovolts)
	assert.Equal(t, monitor.StatusCharging, seen.Status)
	assert.Equal(t, monitor.HealthGood, seen.Health)

	want := in
	want.BatteryLevel = 100
	assert.Equal(t, want, out)

	last, ok := a.Last()
	assert.True(t, ok)
	assert.Equal(t, out, last)
}

func TestOnTick_FaultDoesNotAbort(t *testing.T) {
	chain := monitor.NewChain(logger.Nop(),
		monitor.Named("broken", func(_ context.Context, s *monitor.Snapshot) error {
			s.Level = 0
			return stderrors.New("sensor glitch")
		}),
		monitor.Named("defender", func(_ context.Context, s *monitor.Snapshot) error {
			s.Status = monitor.StatusNotCharging
			return nil
		}),
	)
	a := health.New(chain, nil, nil, logger.Nop())

	out := a.OnTick(context.Background(), hal.HealthInfo{BatteryLevel: 70, BatteryStatus: hal.BatteryStatusCharging})

	assert.Equal(t, int32(70), out.BatteryLevel)
	assert.Equal(t, hal.BatteryStatusNotCharging, out.BatteryStatus)
}

func TestOnTick_Serialized(t *testing.T) {
	var inFlight, peak int32
	chain := monitor.NewChain(logger.Nop(), monitor.Named("slow", func(context.Context, *monitor.Snapshot) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}))
	a := health.New(chain, nil, nil, logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.OnTick(context.Background(), hal.HealthInfo{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestQueries_NotSupportedWithoutDevices(t *testing.T) {
	root := t.TempDir()
	q := storage.NewQuerier(sysfs.New(root, logger.Nop()), nil, logger.Nop())
	a := health.New(monitor.NewChain(logger.Nop()), q, nil, logger.Nop())

	result, infos := a.QueryStorageInfo()
	assert.Equal(t, hal.ResultNotSupported, result)
	assert.Empty(t, infos)

	result, stats := a.QueryDiskStats()
	assert.Equal(t, hal.ResultNotSupported, result)
	assert.Empty(t, stats)
}

func TestQueries_SuccessWithMissingFiles(t *testing.T) {
	root := t.TempDir()
	dev := storage.Device{
		Name:      "MMC0",
		Internal:  true,
		Boot:      true,
		EOL:       "health/eol",
		LifetimeA: "health/lifetimeA",
		LifetimeB: "health/lifetimeB",
		Version:   "mmcblk0/device/fwrev",
		Stat:      "mmcblk0/stat",
	}
	writeTestFile(t, root, dev.LifetimeA, "0x01")
	writeTestFile(t, root, dev.LifetimeB, "0x01")
	writeTestFile(t, root, dev.Version, "0x0700000000000000")

	q := storage.NewQuerier(sysfs.New(root, logger.Nop()), []storage.Device{dev}, logger.Nop())
	a := health.New(monitor.NewChain(logger.Nop()), q, nil, logger.Nop())

	result, infos := a.QueryStorageInfo()
	assert.Equal(t, hal.ResultSuccess, result)
	require.Len(t, infos, 1)
	assert.Zero(t, infos[0].EOL)
	assert.Equal(t, "mmc0 700000000000000", infos[0].Version)

	result, stats := a.QueryDiskStats()
	assert.Equal(t, hal.ResultSuccess, result)
	require.Len(t, stats, 1)
	assert.Zero(t, stats[0].Reads)
}

// A freshly reset fuel gauge is restored from the backup at startup and
// subsequent ticks keep the backup current without redundant writes.
func TestAggregator_CycleCountLifecycle(t *testing.T) {
	root := t.TempDir()
	const bins = "bms/cycle_count"
	writeTestFile(t, root, bins, "0")
	writeTestFile(t, root, "thermal/mode", "enabled")

	reader := sysfs.New(root, logger.Nop())
	store := counterstore.NewMemoryStore()
	require.NoError(t, store.Store("cycle_count", []byte("137")))
	baseline := store.Writes()

	unit, err := backup.NewUnit(backup.Config{
		Name:     "cycle_count",
		Bins:     1,
		Validate: backup.NonNegative,
	}, backup.NewSysfsPrimary(reader, bins), store, logger.Nop())
	require.NoError(t, err)

	chain := monitor.NewChain(logger.Nop(), battery.Handlers(battery.Deps{
		Reader:      reader,
		Paths:       battery.Paths{CycleCount: bins, ThermalZoneMode: "thermal/mode"},
		CycleCounts: unit,
		Bounds:      battery.DefaultHealthBounds(),
	})...)
	a := health.New(chain, nil, []health.Restorer{unit}, logger.Nop())

	data, err := os.ReadFile(filepath.Join(root, bins))
	require.NoError(t, err)
	assert.Equal(t, "137", string(data))

	out := a.OnTick(context.Background(), hal.HealthInfo{BatteryLevel: 50})
	assert.Equal(t, int32(137), out.BatteryCycleCount)
	assert.Equal(t, baseline, store.Writes(), "restored value is already backed up")

	writeTestFile(t, root, bins, "140")
	a.OnTick(context.Background(), hal.HealthInfo{BatteryLevel: 49})
	assert.Equal(t, baseline+1, store.Writes())

	a.OnTick(context.Background(), hal.HealthInfo{BatteryLevel: 48})
	assert.Equal(t, baseline+1, store.Writes())

	v, ok, err := store.Load("cycle_count")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "140", string(v))
}

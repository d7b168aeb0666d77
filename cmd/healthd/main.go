package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/healthd/internal/backup"
	"codeberg.org/mutker/healthd/internal/battery"
	"codeberg.org/mutker/healthd/internal/collector"
	"codeberg.org/mutker/healthd/internal/config"
	"codeberg.org/mutker/healthd/internal/counterstore"
	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/health"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/metrics"
	"codeberg.org/mutker/healthd/internal/monitor"
	"codeberg.org/mutker/healthd/internal/pid"
	"codeberg.org/mutker/healthd/internal/service"
	"codeberg.org/mutker/healthd/internal/storage"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

const (
	cycleCountKey = "cycle_counts_bins"
	capacityKey   = "learned_capacity"

	handlerDeadline = 2 * time.Second
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	guard := pid.New(cfg.PIDFile)
	if err := guard.Acquire(); err != nil {
		logger.Fatal().Code(err).Err(err).Str("pid_file", guard.Path()).Msg("failed to acquire PID file")
	}
	defer func() {
		if err := guard.Release(); err != nil {
			logger.Error().Code(err).Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Code(err).Err(err).Msg("healthd stopped with error")
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context) error {
	log := logger.Default()
	reader := sysfs.New(cfg.SysfsRoot, log)

	store, err := openStore(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Code(err).Err(err).Msg("failed to close counter store")
		}
	}()

	collectorSvc, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.Metrics.DBPath,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
		Enabled:      cfg.Metrics.Enabled,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := collectorSvc.Close(); err != nil {
			logger.Error().Code(err).Err(err).Msg("failed to close metrics")
		}
	}()

	cycleCounts, err := backup.NewUnit(backup.Config{
		Name:     cycleCountKey,
		Bins:     cfg.Backup.Bins,
		Validate: backup.NonNegative,
	}, backup.NewSysfsPrimary(reader, cfg.Battery.CycleCountBins), store, log)
	if err != nil {
		return err
	}
	capacity, err := backup.NewUnit(backup.Config{
		Name:     capacityKey,
		Bins:     1,
		Validate: backup.InRange(cfg.Backup.CapacityMin, cfg.Backup.CapacityMax),
	}, backup.NewSysfsPrimary(reader, cfg.Battery.LearnedCapacity), store, log)
	if err != nil {
		return err
	}

	handlers := battery.Handlers(battery.Deps{
		Reader: reader,
		Paths: battery.Paths{
			Resistance:       cfg.Battery.Resistance,
			OCV:              cfg.Battery.OCV,
			VoltageAvg:       cfg.Battery.VoltageAvg,
			LearnedCapacity:  cfg.Battery.LearnedCapacity,
			ChargeFullDesign: cfg.Battery.ChargeFullDesign,
			ChargeCounter:    cfg.Battery.ChargeCounter,
			CycleCount:       cfg.Battery.CycleCount,
			ThermalZoneMode:  cfg.Battery.ThermalZoneMode,
			ChargeDisable:    cfg.Battery.ChargeDisable,
		},
		Collector:         collectorSvc,
		CycleCounts:       cycleCounts,
		Capacity:          capacity,
		RechargeThreshold: cfg.Recharge.SOCThreshold,
		Bounds:            battery.DefaultHealthBounds(),
		Defender: battery.DefenderConfig{
			Enabled:      cfg.Defender.Enabled,
			TriggerLevel: cfg.Defender.TriggerLevel,
			ResumeLevel:  cfg.Defender.ResumeLevel,
			TriggerAfter: time.Duration(cfg.Defender.TriggerAfter) * time.Second,
		},
		MetricsInterval:  time.Duration(cfg.Metrics.LogInterval) * time.Second,
		CapacityInterval: time.Duration(cfg.Backup.CapacityInterval) * time.Second,
		Logger:           log,
	})
	chain := monitor.NewChain(log, handlers...).WithDeadline(handlerDeadline)
	logger.Debug().Strs("handlers", chain.Names()).Msg("Monitor chain configured")

	aggregator := health.New(chain, storage.NewQuerier(reader, storageDevices(), log), []health.Restorer{cycleCounts, capacity}, log)

	svc := service.New(aggregator, log)
	if cfg.DBus.Enabled {
		conn, err := svc.Export(cfg.DBus.Bus)
		if err != nil {
			return err
		}
		defer conn.Close()
	}

	sampler := collector.New(reader, cfg.Battery.PowerSupplyDir, cfg.Battery.BatteryName, log)

	return loop(ctx, sampler, aggregator, svc)
}

func loop(ctx context.Context, sampler *collector.Sampler, aggregator *health.Aggregator, svc *service.Service) error {
	interval := time.Duration(cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func() {
		info, err := sampler.Sample()
		if err != nil {
			logger.Warn().Code(err).Err(err).Msg("Battery unavailable, skipping tick")
			return
		}
		out := aggregator.OnTick(ctx, info)
		svc.Notify(out)

		logger.Info().
			Int32("level", out.BatteryLevel).
			Int32("status", int32(out.BatteryStatus)).
			Int32("health", int32(out.BatteryHealth)).
			Int32("temperature", out.BatteryTemperature).
			Int32("cycle_count", out.BatteryCycleCount).
			Msg("")
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}

func openStore(log logger.Logger) (counterstore.Store, error) {
	var (
		store counterstore.Store
		err   error
	)

	switch cfg.Backup.Store {
	case config.StoreSQLite:
		store, err = counterstore.NewSQLiteStore(cfg.Backup.Path)
	case config.StoreFile:
		store, err = counterstore.NewFileStore(cfg.Backup.Path)
	default:
		return nil, errors.New().WithData(errors.ErrInvalidConfig, cfg.Backup.Store)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Backup.Async {
		return counterstore.NewAsyncStore(store, time.Duration(cfg.Backup.FlushInterval)*time.Second, log), nil
	}

	return store, nil
}

func storageDevices() []storage.Device {
	devices := make([]storage.Device, 0, len(cfg.Storage.Devices))
	for _, d := range cfg.Storage.Devices {
		devices = append(devices, storage.Device{
			Name:      d.Name,
			Internal:  d.Internal,
			Boot:      d.Boot,
			EOL:       d.EOL,
			LifetimeA: d.LifetimeA,
			LifetimeB: d.LifetimeB,
			Version:   d.Version,
			Stat:      d.Stat,
		})
	}

	return devices
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

package health

import (
	"codeberg.org/mutker/healthd/internal/hal"
	"codeberg.org/mutker/healthd/internal/monitor"
)

var statusToSnapshot = map[hal.BatteryStatus]monitor.Status{
	hal.BatteryStatusCharging:    monitor.StatusCharging,
	hal.BatteryStatusDischarging: monitor.StatusDischarging,
	hal.BatteryStatusNotCharging: monitor.StatusNotCharging,
	hal.BatteryStatusFull:        monitor.StatusFull,
}

var healthToSnapshot = map[hal.BatteryHealth]monitor.Health{
	hal.BatteryHealthGood:                monitor.HealthGood,
	hal.BatteryHealthOverheat:            monitor.HealthOverheat,
	hal.BatteryHealthDead:                monitor.HealthDead,
	hal.BatteryHealthOverVoltage:         monitor.HealthOverVoltage,
	hal.BatteryHealthUnspecifiedFailure:  monitor.HealthUnspecifiedFailure,
	hal.BatteryHealthCold:                monitor.HealthCold,
	hal.BatteryHealthWatchdogTimerExpire: monitor.HealthWatchdogTimerExpire,
	hal.BatteryHealthSafetyTimerExpire:   monitor.HealthSafetyTimerExpire,
	hal.BatteryHealthOverCurrent:         monitor.HealthOverCurrent,
}

// ToSnapshot converts framework properties into a monitor snapshot.
// Unknown enum values map to Unknown.
func ToSnapshot(in hal.HealthInfo) monitor.Snapshot {
	return monitor.Snapshot{
		ChargerACOnline:       in.ChargerACOnline,
		ChargerUSBOnline:      in.ChargerUSBOnline,
		ChargerWirelessOnline: in.ChargerWirelessOnline,

		MaxChargingCurrentMicroamps:  int64(in.MaxChargingCurrent),
		MaxChargingVoltageMicrovolts: int64(in.MaxChargingVoltage),

		Status:     statusToSnapshot[in.BatteryStatus],
		Health:     healthToSnapshot[in.BatteryHealth],
		Present:    in.BatteryPresent,
		Technology: in.BatteryTechnology,

		Level:                   int(in.BatteryLevel),
		VoltageMicrovolts:       int64(in.BatteryVoltage) * 1000,
		CurrentMicroamps:        int64(in.BatteryCurrent),
		CurrentAverageMicroamps: int64(in.BatteryCurrentAverage),
		TemperatureDeciC:        int(in.BatteryTemperature),

		FullChargeMicroampHours:       int64(in.BatteryFullCharge),
		FullChargeDesignMicroampHours: int64(in.BatteryFullChargeDesign),
		ChargeCounterMicroampHours:    int64(in.BatteryChargeCounter),
		CycleCount:                    int(in.BatteryCycleCount),
	}
}

// FromSnapshot converts a processed snapshot back to framework properties.
func FromSnapshot(s monitor.Snapshot) hal.HealthInfo {
	return hal.HealthInfo{
		ChargerACOnline:         s.ChargerACOnline,
		ChargerUSBOnline:        s.ChargerUSBOnline,
		ChargerWirelessOnline:   s.ChargerWirelessOnline,
		MaxChargingCurrent:      int32(s.MaxChargingCurrentMicroamps),
		MaxChargingVoltage:      int32(s.MaxChargingVoltageMicrovolts),
		BatteryStatus:           fromStatus(s.Status),
		BatteryHealth:           fromHealth(s.Health),
		BatteryPresent:          s.Present,
		BatteryLevel:            int32(s.Level),
		BatteryVoltage:          int32(s.VoltageMicrovolts / 1000),
		BatteryTemperature:      int32(s.TemperatureDeciC),
		BatteryCurrent:          int32(s.CurrentMicroamps),
		BatteryCurrentAverage:   int32(s.CurrentAverageMicroamps),
		BatteryCycleCount:       int32(s.CycleCount),
		BatteryFullCharge:       int32(s.FullChargeMicroampHours),
		BatteryFullChargeDesign: int32(s.FullChargeDesignMicroampHours),
		BatteryChargeCounter:    int32(s.ChargeCounterMicroampHours),
		BatteryTechnology:       s.Technology,
	}
}

func fromStatus(s monitor.Status) hal.BatteryStatus {
	for k, v := range statusToSnapshot {
		if v == s {
			return k
		}
	}

	return hal.BatteryStatusUnknown
}

func fromHealth(h monitor.Health) hal.BatteryHealth {
	for k, v := range healthToSnapshot {
		if v == h {
			return k
		}
	}

	return hal.BatteryHealthUnknown
}

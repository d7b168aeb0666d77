// Package collector samples the kernel power_supply class into a
// framework health record. It drives ticks when no framework does.
package collector

import (
	"path"
	"strconv"
	"strings"

	"codeberg.org/mutker/healthd/internal/hal"
	"codeberg.org/mutker/healthd/internal/logger"
	"codeberg.org/mutker/healthd/internal/sysfs"
)

var statusValues = map[string]hal.BatteryStatus{
	"Charging":     hal.BatteryStatusCharging,
	"Discharging":  hal.BatteryStatusDischarging,
	"Not charging": hal.BatteryStatusNotCharging,
	"Full":         hal.BatteryStatusFull,
}

var healthValues = map[string]hal.BatteryHealth{
	"Good":                  hal.BatteryHealthGood,
	"Overheat":              hal.BatteryHealthOverheat,
	"Dead":                  hal.BatteryHealthDead,
	"Over voltage":          hal.BatteryHealthOverVoltage,
	"Unspecified failure":   hal.BatteryHealthUnspecifiedFailure,
	"Cold":                  hal.BatteryHealthCold,
	"Watchdog timer expire": hal.BatteryHealthWatchdogTimerExpire,
	"Safety timer expire":   hal.BatteryHealthSafetyTimerExpire,
	"Over current":          hal.BatteryHealthOverCurrent,
}

// Sampler reads the battery and charger supplies under one power_supply
// directory.
type Sampler struct {
	reader  *sysfs.Reader
	dir     string
	battery string
	logger  logger.Logger
}

func New(reader *sysfs.Reader, powerSupplyDir, battery string, log logger.Logger) *Sampler {
	if log == nil {
		log = logger.Nop()
	}

	return &Sampler{
		reader:  reader,
		dir:     powerSupplyDir,
		battery: battery,
		logger:  log.With("collector"),
	}
}

// Sample returns the current battery properties. It fails only when the
// battery uevent cannot be read; individual missing properties are zero.
func (s *Sampler) Sample() (hal.HealthInfo, error) {
	data, err := s.reader.ReadString(path.Join(s.dir, s.battery, "uevent"))
	if err != nil {
		return hal.HealthInfo{}, err
	}
	props := parseUevent(data)

	info := hal.HealthInfo{
		BatteryStatus:           hal.BatteryStatusUnknown,
		BatteryHealth:           hal.BatteryHealthUnknown,
		BatteryPresent:          props["POWER_SUPPLY_PRESENT"] == "1",
		BatteryTechnology:       props["POWER_SUPPLY_TECHNOLOGY"],
		BatteryLevel:            propInt(props, "POWER_SUPPLY_CAPACITY"),
		BatteryVoltage:          propInt(props, "POWER_SUPPLY_VOLTAGE_NOW") / 1000,
		BatteryCurrent:          propInt(props, "POWER_SUPPLY_CURRENT_NOW"),
		BatteryCurrentAverage:   propInt(props, "POWER_SUPPLY_CURRENT_AVG"),
		BatteryTemperature:      propInt(props, "POWER_SUPPLY_TEMP"),
		BatteryFullCharge:       propInt(props, "POWER_SUPPLY_CHARGE_FULL"),
		BatteryFullChargeDesign: propInt(props, "POWER_SUPPLY_CHARGE_FULL_DESIGN"),
		BatteryChargeCounter:    propInt(props, "POWER_SUPPLY_CHARGE_COUNTER"),
		BatteryCycleCount:       propInt(props, "POWER_SUPPLY_CYCLE_COUNT"),
	}
	if v, ok := statusValues[props["POWER_SUPPLY_STATUS"]]; ok {
		info.BatteryStatus = v
	}
	if v, ok := healthValues[props["POWER_SUPPLY_HEALTH"]]; ok {
		info.BatteryHealth = v
	}

	s.sampleChargers(&info)

	return info, nil
}

// sampleChargers marks online chargers by supply type and records the
// highest advertised charging limits among them.
func (s *Sampler) sampleChargers(info *hal.HealthInfo) {
	supplies, err := s.reader.List(s.dir)
	if err != nil {
		s.logger.Warn().Code(err).Err(err).Msg("Cannot list power supplies")
		return
	}

	for _, name := range supplies {
		if name == s.battery {
			continue
		}
		base := path.Join(s.dir, name)
		if online, err := s.reader.ReadInt(path.Join(base, "online")); err != nil || online != 1 {
			continue
		}

		kind, _ := s.reader.ReadString(path.Join(base, "type"))
		switch {
		case kind == "Mains":
			info.ChargerACOnline = true
		case strings.HasPrefix(kind, "USB"):
			info.ChargerUSBOnline = true
		case kind == "Wireless":
			info.ChargerWirelessOnline = true
		default:
			continue
		}

		if v, err := s.reader.ReadInt(path.Join(base, "current_max")); err == nil {
			info.MaxChargingCurrent = max(info.MaxChargingCurrent, int32(v))
		}
		if v, err := s.reader.ReadInt(path.Join(base, "voltage_max")); err == nil {
			info.MaxChargingVoltage = max(info.MaxChargingVoltage, int32(v))
		}
	}
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}

	return props
}

func propInt(props map[string]string, key string) int32 {
	v, err := strconv.ParseInt(props[key], 10, 32)
	if err != nil {
		return 0
	}

	return int32(v)
}

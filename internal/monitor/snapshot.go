package monitor

// Status is the battery charging status.
type Status int

const (
	StatusUnknown Status = iota
	StatusCharging
	StatusDischarging
	StatusNotCharging
	StatusFull
)

func (s Status) String() string {
	switch s {
	case StatusCharging:
		return "charging"
	case StatusDischarging:
		return "discharging"
	case StatusNotCharging:
		return "not_charging"
	case StatusFull:
		return "full"
	default:
		return "unknown"
	}
}

// Health is the battery health condition.
type Health int

const (
	HealthUnknown Health = iota
	HealthGood
	HealthOverheat
	HealthDead
	HealthOverVoltage
	HealthUnspecifiedFailure
	HealthCold
	HealthWatchdogTimerExpire
	HealthSafetyTimerExpire
	HealthOverCurrent
)

var healthNames = map[Health]string{
	HealthGood:                "good",
	HealthOverheat:            "overheat",
	HealthDead:                "dead",
	HealthOverVoltage:         "over_voltage",
	HealthUnspecifiedFailure:  "unspecified_failure",
	HealthCold:                "cold",
	HealthWatchdogTimerExpire: "watchdog_timer_expire",
	HealthSafetyTimerExpire:   "safety_timer_expire",
	HealthOverCurrent:         "over_current",
}

func (h Health) String() string {
	if name, ok := healthNames[h]; ok {
		return name
	}

	return "unknown"
}

// Snapshot is the battery state passed through the monitor chain on one
// tick. It holds only value fields, so assigning a Snapshot copies it.
type Snapshot struct {
	ChargerACOnline       bool
	ChargerUSBOnline      bool
	ChargerWirelessOnline bool

	MaxChargingCurrentMicroamps  int64
	MaxChargingVoltageMicrovolts int64

	Status     Status
	Health     Health
	Present    bool
	Technology string

	Level                   int
	VoltageMicrovolts       int64
	CurrentMicroamps        int64
	CurrentAverageMicroamps int64
	TemperatureDeciC        int

	FullChargeMicroampHours       int64
	FullChargeDesignMicroampHours int64
	ChargeCounterMicroampHours    int64
	CycleCount                    int
}

// ChargerOnline reports whether any charger is connected.
func (s *Snapshot) ChargerOnline() bool {
	return s.ChargerACOnline || s.ChargerUSBOnline || s.ChargerWirelessOnline
}

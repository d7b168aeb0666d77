// Package hal defines the framework-native health records exchanged at the
// service boundary. Units and enum values follow the Android health HAL.
package hal

type BatteryStatus int32

const (
	BatteryStatusUnknown     BatteryStatus = 1
	BatteryStatusCharging    BatteryStatus = 2
	BatteryStatusDischarging BatteryStatus = 3
	BatteryStatusNotCharging BatteryStatus = 4
	BatteryStatusFull        BatteryStatus = 5
)

type BatteryHealth int32

const (
	BatteryHealthUnknown             BatteryHealth = 1
	BatteryHealthGood                BatteryHealth = 2
	BatteryHealthOverheat            BatteryHealth = 3
	BatteryHealthDead                BatteryHealth = 4
	BatteryHealthOverVoltage         BatteryHealth = 5
	BatteryHealthUnspecifiedFailure  BatteryHealth = 6
	BatteryHealthCold                BatteryHealth = 7
	BatteryHealthWatchdogTimerExpire BatteryHealth = 8
	BatteryHealthSafetyTimerExpire   BatteryHealth = 9
	BatteryHealthOverCurrent         BatteryHealth = 10
)

// Result is the status returned with query results.
type Result int32

const (
	ResultSuccess      Result = 0
	ResultNotSupported Result = 1
	ResultUnknown      Result = 2
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultNotSupported:
		return "NOT_SUPPORTED"
	default:
		return "UNKNOWN"
	}
}

// HealthInfo carries the legacy battery properties.
//
// Units: voltage mV, max charging voltage µV, currents µA, temperature
// tenths of a degree Celsius, charges µAh.
type HealthInfo struct {
	ChargerACOnline         bool          `json:"chargerAcOnline"`
	ChargerUSBOnline        bool          `json:"chargerUsbOnline"`
	ChargerWirelessOnline   bool          `json:"chargerWirelessOnline"`
	MaxChargingCurrent      int32         `json:"maxChargingCurrent"`
	MaxChargingVoltage      int32         `json:"maxChargingVoltage"`
	BatteryStatus           BatteryStatus `json:"batteryStatus"`
	BatteryHealth           BatteryHealth `json:"batteryHealth"`
	BatteryPresent          bool          `json:"batteryPresent"`
	BatteryLevel            int32         `json:"batteryLevel"`
	BatteryVoltage          int32         `json:"batteryVoltage"`
	BatteryTemperature      int32         `json:"batteryTemperature"`
	BatteryCurrent          int32         `json:"batteryCurrent"`
	BatteryCurrentAverage   int32         `json:"batteryCurrentAverage"`
	BatteryCycleCount       int32         `json:"batteryCycleCount"`
	BatteryFullCharge       int32         `json:"batteryFullCharge"`
	BatteryFullChargeDesign int32         `json:"batteryFullChargeDesignCapacityUah"`
	BatteryChargeCounter    int32         `json:"batteryChargeCounter"`
	BatteryTechnology       string        `json:"batteryTechnology"`
}

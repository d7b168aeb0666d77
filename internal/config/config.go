package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/healthd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile = "/etc/healthd.toml"
	DefaultEnvPrefix  = "HEALTHD"
	DefaultLogLevel   = LogLevelWarning
	DefaultInterval   = 60
	DefaultBins       = 8
)

type Config struct {
	Interval  int      `mapstructure:"interval"`
	LogLevel  string   `mapstructure:"log_level"`
	SysfsRoot string   `mapstructure:"sysfs_root"`
	PIDFile   string   `mapstructure:"pid_file"`
	Battery   Battery  `mapstructure:"battery"`
	Backup    Backup   `mapstructure:"backup"`
	Recharge  Recharge `mapstructure:"recharge"`
	Defender  Defender `mapstructure:"defender"`
	Metrics   Metrics  `mapstructure:"metrics"`
	Storage   Storage  `mapstructure:"storage"`
	DBus      DBus     `mapstructure:"dbus"`
}

// Battery holds the sysfs attributes read and written by the monitor chain.
type Battery struct {
	PowerSupplyDir   string `mapstructure:"power_supply_dir"`
	BatteryName      string `mapstructure:"battery_name"`
	Resistance       string `mapstructure:"resistance"`
	OCV              string `mapstructure:"ocv"`
	VoltageAvg       string `mapstructure:"voltage_avg"`
	CycleCountBins   string `mapstructure:"cycle_count_bins"`
	LearnedCapacity  string `mapstructure:"learned_capacity"`
	ChargeFullDesign string `mapstructure:"charge_full_design"`
	ChargeCounter    string `mapstructure:"charge_counter"`
	CycleCount       string `mapstructure:"cycle_count"`
	ThermalZoneMode  string `mapstructure:"thermal_zone_mode"`
	ChargeDisable    string `mapstructure:"charge_disable"`
}

type Backup struct {
	Store            StoreKind `mapstructure:"store"`
	Path             string    `mapstructure:"path"`
	Bins             int       `mapstructure:"bins"`
	CapacityInterval int       `mapstructure:"capacity_interval"`
	CapacityMin      int64     `mapstructure:"capacity_min"`
	CapacityMax      int64     `mapstructure:"capacity_max"`
	Async            bool      `mapstructure:"async"`
	FlushInterval    int       `mapstructure:"flush_interval"`
}

type Recharge struct {
	SOCThreshold int `mapstructure:"soc_threshold"`
}

type Defender struct {
	Enabled      bool `mapstructure:"enabled"`
	TriggerLevel int  `mapstructure:"trigger_level"`
	ResumeLevel  int  `mapstructure:"resume_level"`
	TriggerAfter int  `mapstructure:"trigger_after"`
}

type Metrics struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
	LogInterval  int    `mapstructure:"log_interval"`
}

type Storage struct {
	Devices []StorageDevice `mapstructure:"devices"`
}

// StorageDevice names the sysfs files describing one storage device.
type StorageDevice struct {
	Name      string `mapstructure:"name"`
	Internal  bool   `mapstructure:"internal"`
	Boot      bool   `mapstructure:"boot"`
	EOL       string `mapstructure:"eol"`
	LifetimeA string `mapstructure:"lifetime_a"`
	LifetimeB string `mapstructure:"lifetime_b"`
	Version   string `mapstructure:"version"`
	Stat      string `mapstructure:"stat"`
}

type DBus struct {
	Enabled bool   `mapstructure:"enabled"`
	Bus     string `mapstructure:"bus"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("sysfs_root", "/")
	v.SetDefault("pid_file", "/run/healthd.pid")

	v.SetDefault("battery.power_supply_dir", "/sys/class/power_supply")
	v.SetDefault("battery.battery_name", "battery")
	v.SetDefault("battery.resistance", "/sys/class/power_supply/bms/resistance")
	v.SetDefault("battery.ocv", "/sys/class/power_supply/bms/voltage_ocv")
	v.SetDefault("battery.voltage_avg", "/sys/class/power_supply/battery/voltage_now")
	v.SetDefault("battery.cycle_count_bins", "/sys/class/power_supply/bms/device/cycle_counts_bins")
	v.SetDefault("battery.learned_capacity", "/sys/class/power_supply/bms/charge_full")
	v.SetDefault("battery.charge_full_design", "/sys/class/power_supply/bms/charge_full_design")
	v.SetDefault("battery.charge_counter", "/sys/class/power_supply/bms/charge_counter")
	v.SetDefault("battery.cycle_count", "/sys/class/power_supply/bms/cycle_count")
	v.SetDefault("battery.thermal_zone_mode", "/sys/devices/virtual/thermal/tz-by-name/soc/mode")
	v.SetDefault("battery.charge_disable", "/sys/class/power_supply/battery/charge_disable")

	v.SetDefault("backup.store", string(StoreFile))
	v.SetDefault("backup.path", "/mnt/vendor/persist/battery")
	v.SetDefault("backup.bins", DefaultBins)
	v.SetDefault("backup.capacity_interval", 3600)
	v.SetDefault("backup.capacity_min", 1000000)
	v.SetDefault("backup.capacity_max", 6000000)
	v.SetDefault("backup.async", false)
	v.SetDefault("backup.flush_interval", 5)

	v.SetDefault("recharge.soc_threshold", 97)

	v.SetDefault("defender.enabled", true)
	v.SetDefault("defender.trigger_level", 100)
	v.SetDefault("defender.resume_level", 80)
	v.SetDefault("defender.trigger_after", 14*24*3600)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", "/var/lib/healthd/metrics.db")
	v.SetDefault("metrics.batch_size", 10)
	v.SetDefault("metrics.batch_timeout", 60)
	v.SetDefault("metrics.log_interval", 3600)

	v.SetDefault("storage.devices", []map[string]any{{
		"name":       "MMC0",
		"internal":   true,
		"boot":       true,
		"eol":        "/sys/devices/platform/soc/7c4000.sdhci/health/eol",
		"lifetime_a": "/sys/devices/platform/soc/7c4000.sdhci/health/lifetimeA",
		"lifetime_b": "/sys/devices/platform/soc/7c4000.sdhci/health/lifetimeB",
		"version":    "/sys/block/mmcblk0/device/fwrev",
		"stat":       "/sys/block/mmcblk0/stat",
	}})

	v.SetDefault("dbus.enabled", true)
	v.SetDefault("dbus.bus", "system")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("healthd", pflag.ContinueOnError)
	fs.String("config", "", "Path to configuration file")
	fs.Int("interval", DefaultInterval, "Seconds between battery updates")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("sysfs-root", "/", "Prefix prepended to every sysfs path")
	fs.Bool("metrics", false, "Enable battery metrics collection")
	fs.Bool("no-dbus", false, "Do not export the D-Bus service")

	return fs
}

// Load reads configuration from defaults, the config file, environment and flags,
// in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix, args: os.Args[1:]}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for flagName, key := range map[string]string{
		"interval":   "interval",
		"log-level":  "log_level",
		"sysfs-root": "sysfs_root",
		"metrics":    "metrics.enabled",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if f := fs.Lookup("config"); f != nil && f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read config file")
		}
	} else {
		v.SetConfigFile(DefaultConfigFile)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err).WithMessage("Failed to read config file")
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if noDBus, _ := fs.GetBool("no-dbus"); noDBus {
		cfg.DBus.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Backup.Store != StoreFile && c.Backup.Store != StoreSQLite {
		return errFactory.WithData(errors.ErrInvalidConfig, "backup.store must be file or sqlite")
	}
	if c.Backup.Path == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "backup.path must not be empty")
	}
	if c.Backup.Bins <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "backup.bins must be > 0")
	}
	if c.Backup.CapacityMin < 0 || c.Backup.CapacityMax < c.Backup.CapacityMin {
		return errFactory.WithData(errors.ErrInvalidConfig, "backup.capacity_min/max out of order")
	}
	if c.Recharge.SOCThreshold < 0 || c.Recharge.SOCThreshold > 100 {
		return errFactory.WithData(errors.ErrInvalidConfig, "recharge.soc_threshold must be 0-100")
	}
	if c.Defender.ResumeLevel >= c.Defender.TriggerLevel {
		return errFactory.WithData(errors.ErrInvalidConfig, "defender.resume_level must be below trigger_level")
	}
	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "metrics.db_path must not be empty")
	}
	for i, d := range c.Storage.Devices {
		if d.Name == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Field string
				Index int
			}{"storage.devices.name", i})
		}
	}
	if c.DBus.Bus != "system" && c.DBus.Bus != "session" {
		return errFactory.WithData(errors.ErrInvalidConfig, "dbus.bus must be system or session")
	}

	return nil
}

// Package daemonconfig loads the daemon's own configuration (listen
// address, ring buffer sizing, archive path, retry tuning) — as distinct
// from the per-device protocol configuration in internal/protocol, which
// describes wire formats rather than process settings. Grounded on
// data_source.go's viper.UnmarshalKey usage in the retrieval pack
// (multiverse-hardware-labs/dastard): a bound *viper.Viper read once at
// startup into a plain struct, rather than scattered global lookups.
package daemonconfig

import (
	"time"

	"github.com/spf13/viper"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// Config is the daemon's top-level process configuration.
type Config struct {
	ListenAddr    string        `mapstructure:"listen_addr"`
	RingPath      string        `mapstructure:"ring_path"`
	RingCapacity  uint64        `mapstructure:"ring_capacity"`
	ArchivePath   string        `mapstructure:"archive_path"`
	ArchiveTick   time.Duration `mapstructure:"archive_tick"`
	HealthSweep   string        `mapstructure:"health_sweep_cron"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	DeviceConfDir string        `mapstructure:"device_config_dir"`
}

func defaults() Config {
	return Config{
		ListenAddr:    ":8090",
		RingPath:      "daqd.ring",
		RingCapacity:  64 << 20,
		ArchivePath:   "daqd.bolt",
		ArchiveTick:   time.Second,
		HealthSweep:   "@every 10s",
		RetryAttempts: 3,
		RetryBackoff:  100 * time.Millisecond,
		DeviceConfDir: "devices.d",
	}
}

// Load reads configuration from path (if non-empty) plus the DAQD_-prefixed
// environment, falling back to Config defaults for anything unset.
func Load(path string) (Config, error) {
	v := viper.New()
	cfg := defaults()

	v.SetConfigType("toml")
	v.SetEnvPrefix("daqd")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("ring_path", cfg.RingPath)
	v.SetDefault("ring_capacity", cfg.RingCapacity)
	v.SetDefault("archive_path", cfg.ArchivePath)
	v.SetDefault("archive_tick", cfg.ArchiveTick)
	v.SetDefault("health_sweep_cron", cfg.HealthSweep)
	v.SetDefault("retry_attempts", cfg.RetryAttempts)
	v.SetDefault("retry_backoff", cfg.RetryBackoff)
	v.SetDefault("device_config_dir", cfg.DeviceConfDir)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, daqerr.Wrap(daqerr.ValidationFailed, "daemonconfig.Load", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, daqerr.Wrap(daqerr.ValidationFailed, "daemonconfig.Load", err)
	}
	return cfg, nil
}

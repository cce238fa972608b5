package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from path on fs. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults.
func Load(fs afero.Fs, path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("queue.max_text_len", cfg.Queue.MaxTextLen)
	v.SetDefault("queue.general_size", cfg.Queue.GeneralSize)
	v.SetDefault("queue.chained_slots", cfg.Queue.ChainedSlots)
	v.SetDefault("queue.chained_text_len", cfg.Queue.ChainedTextLen)
	v.SetDefault("machine.default_velocity", cfg.Machine.DefaultVelocity)
	v.SetDefault("machine.homing_velocity", cfg.Machine.HomingVelocity)
	v.SetDefault("machine.move_buffer_size", cfg.Machine.MoveBufferSize)
	v.SetDefault("serial.port", cfg.Serial.Port)
	v.SetDefault("serial.baud", cfg.Serial.Baud)
	v.SetDefault("serial.read_timeout_ms", cfg.Serial.ReadTimeoutMS)
	v.SetDefault("serial.chunk_queue", cfg.Serial.ChunkQueue)
	v.SetDefault("serial.fifo_size", cfg.Serial.FifoSize)
	v.SetDefault("playback.root", cfg.Playback.Root)
	v.SetDefault("loop.tick_us", cfg.Loop.TickMicros)
	v.SetDefault("loop.move_ticks", cfg.Loop.MoveTicks)
	v.SetDefault("loop.sample_ticks", cfg.Loop.SampleTicks)
	v.SetDefault("loop.steps_per_iteration", cfg.Loop.StepsPerIteration)
	v.SetDefault("loop.status_interval_ms", cfg.Loop.StatusIntervalMillis)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.dump_queue", cfg.Logging.DumpQueue)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(fs, path, err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// isNotFound reports whether ReadInConfig failed because the file does not
// exist. With an explicit config file viper returns the filesystem error
// rather than ConfigFileNotFoundError.
func isNotFound(fs afero.Fs, path string, err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	exists, statErr := afero.Exists(fs, path)
	return statErr == nil && !exists
}

// WriteDefault writes the default configuration to path on fs and returns
// the path written.
func WriteDefault(fs afero.Fs, path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if exists, _ := afero.Exists(fs, path); exists {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(fs, path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

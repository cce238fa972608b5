// Package config loads the cmdq configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cmdq/core"
	"cmdq/standalone/gcode"
)

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Config is the top-level configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	Queue         QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Machine       MachineConfig  `mapstructure:"machine" yaml:"machine"`
	Serial        SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Playback      PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Loop          LoopConfig     `mapstructure:"loop" yaml:"loop"`
	Logging       LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// QueueConfig sizes the command queue.
type QueueConfig struct {
	MaxTextLen     int `mapstructure:"max_text_len" yaml:"max_text_len"`
	GeneralSize    int `mapstructure:"general_size" yaml:"general_size"`
	ChainedSlots   int `mapstructure:"chained_slots" yaml:"chained_slots"`
	ChainedTextLen int `mapstructure:"chained_text_len" yaml:"chained_text_len"`
}

// MachineConfig holds the motion defaults.
type MachineConfig struct {
	DefaultVelocity float64 `mapstructure:"default_velocity" yaml:"default_velocity"`
	HomingVelocity  float64 `mapstructure:"homing_velocity" yaml:"homing_velocity"`
	MoveBufferSize  int     `mapstructure:"move_buffer_size" yaml:"move_buffer_size"`
}

// SerialConfig configures the host link port.
type SerialConfig struct {
	Port          string `mapstructure:"port" yaml:"port"`
	Baud          int    `mapstructure:"baud" yaml:"baud"`
	ReadTimeoutMS int    `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms"`
	ChunkQueue    int    `mapstructure:"chunk_queue" yaml:"chunk_queue"`
	FifoSize      int    `mapstructure:"fifo_size" yaml:"fifo_size"`
}

// PlaybackConfig configures storage playback.
type PlaybackConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// LoopConfig sets the main loop and motion tick timing.
type LoopConfig struct {
	TickMicros           int `mapstructure:"tick_us" yaml:"tick_us"`
	MoveTicks            int `mapstructure:"move_ticks" yaml:"move_ticks"`
	SampleTicks          int `mapstructure:"sample_ticks" yaml:"sample_ticks"`
	StepsPerIteration    int `mapstructure:"steps_per_iteration" yaml:"steps_per_iteration"`
	StatusIntervalMillis int `mapstructure:"status_interval_ms" yaml:"status_interval_ms"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	DumpQueue bool   `mapstructure:"dump_queue" yaml:"dump_queue"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	q := core.DefaultConfig()
	m := gcode.DefaultMachineConfig()
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Queue: QueueConfig{
			MaxTextLen:     q.MaxTextLen,
			ChainedSlots:   q.ChainedSlots,
			ChainedTextLen: q.ChainedTextLen,
		},
		Machine: MachineConfig{
			DefaultVelocity: m.DefaultVelocity,
			HomingVelocity:  m.HomingVelocity,
			MoveBufferSize:  m.MoveBufferSize,
		},
		Serial: SerialConfig{
			Port:          "/dev/ttyACM0",
			Baud:          115200,
			ReadTimeoutMS: 50,
			ChunkQueue:    64,
			FifoSize:      1024,
		},
		Playback: PlaybackConfig{
			Root: ".",
		},
		Loop: LoopConfig{
			TickMicros:           1000,
			MoveTicks:            20,
			SampleTicks:          100,
			StepsPerIteration:    8,
			StatusIntervalMillis: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cmdq", "config.yaml"), nil
}

// CoreConfig returns the queue configuration with the defaults filled in.
func (c Config) CoreConfig() core.Config {
	return core.Config{
		MaxTextLen:     c.Queue.MaxTextLen,
		GeneralSize:    c.Queue.GeneralSize,
		ChainedSlots:   c.Queue.ChainedSlots,
		ChainedTextLen: c.Queue.ChainedTextLen,
	}.WithDefaults()
}

// MachineConfig returns the interpreter configuration.
func (c Config) MachineConfig() gcode.MachineConfig {
	return gcode.MachineConfig{
		DefaultVelocity: c.Machine.DefaultVelocity,
		HomingVelocity:  c.Machine.HomingVelocity,
		MoveBufferSize:  c.Machine.MoveBufferSize,
	}
}

// Tick returns the main loop tick period.
func (c Config) Tick() time.Duration {
	return time.Duration(c.Loop.TickMicros) * time.Microsecond
}

// ReadTimeout returns the serial read timeout.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeoutMS) * time.Millisecond
}

// StatusInterval returns the period of status log lines, 0 disables them.
func (c Config) StatusInterval() time.Duration {
	return time.Duration(c.Loop.StatusIntervalMillis) * time.Millisecond
}

// Validate checks values the loaders cannot default.
func (c Config) Validate() error {
	if err := c.CoreConfig().Validate(); err != nil {
		return err
	}
	switch {
	case c.Machine.MoveBufferSize < 2:
		return fmt.Errorf("machine.move_buffer_size must be at least 2")
	case c.Machine.HomingVelocity <= 0:
		return fmt.Errorf("machine.homing_velocity must be positive")
	case c.Loop.TickMicros <= 0:
		return fmt.Errorf("loop.tick_us must be positive")
	case c.Loop.MoveTicks <= 0:
		return fmt.Errorf("loop.move_ticks must be positive")
	case c.Loop.SampleTicks < 0:
		return fmt.Errorf("loop.sample_ticks must not be negative")
	case c.Loop.StepsPerIteration <= 0:
		return fmt.Errorf("loop.steps_per_iteration must be positive")
	case c.Serial.ChunkQueue < 2:
		return fmt.Errorf("serial.chunk_queue must be at least 2")
	case c.Serial.FifoSize < c.Queue.MaxTextLen:
		return fmt.Errorf("serial.fifo_size must hold at least one line")
	}
	return nil
}

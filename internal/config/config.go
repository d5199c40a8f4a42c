// ABOUTME: Player configuration from defaults, an optional YAML file and flags
// ABOUTME: Later layers override earlier ones; flags always win
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by -backend
const (
	BackendMalgo     = "malgo"
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
	BackendHeadless  = "headless"
)

// DefaultDevice selects the system default output
const DefaultDevice = "Default"

// Config holds player configuration
type Config struct {
	Backend       string        `yaml:"backend"`
	Device        string        `yaml:"device"`
	LatencyMs     int           `yaml:"latency_ms"`
	Volume        int           `yaml:"volume"`
	PeriodMs      int           `yaml:"period_ms"`      // device period hint for malgo and oto
	Speed         uint32        `yaml:"speed"`          // 1, 2 or 4
	Source        string        `yaml:"source"`         // audio file, empty for the tone core
	Loop          bool          `yaml:"loop"`           // restart the source at EOF
	ToneHz        int           `yaml:"tone_hz"`        // tone core pitch
	WatchInterval time.Duration `yaml:"watch_interval"` // device poll period, 0 disables
	LogFile       string        `yaml:"log_file"`
	NoTUI         bool          `yaml:"no_tui"`

	// Flag-only settings
	ConfigFile  string `yaml:"-"`
	ListDevices bool   `yaml:"-"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Backend:       BackendMalgo,
		Device:        DefaultDevice,
		LatencyMs:     64,
		Volume:        100,
		PeriodMs:      10,
		Speed:         1,
		Loop:          true,
		ToneHz:        440,
		WatchInterval: 2 * time.Second,
		LogFile:       "emusync.log",
	}
}

// Load reads a YAML file over base. Keys missing from the file keep the
// values from base.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Parse builds the configuration from the command line. A -config file is
// applied over the defaults and any flag given explicitly is applied last.
func Parse(name string, args []string, stderr io.Writer) (Config, error) {
	var flags Config
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	def := Defaults()
	var speed uint
	fs.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&flags.Backend, "backend", def.Backend, "Audio backend: malgo, oto, portaudio or headless")
	fs.StringVar(&flags.Device, "device", def.Device, "Output device name")
	fs.IntVar(&flags.LatencyMs, "latency-ms", def.LatencyMs, "Target audio latency in milliseconds")
	fs.IntVar(&flags.Volume, "volume", def.Volume, "Volume 0-100")
	fs.IntVar(&flags.PeriodMs, "period-ms", def.PeriodMs, "Device period in milliseconds")
	fs.UintVar(&speed, "speed", uint(def.Speed), "Emulation speed multiplier: 1, 2 or 4")
	fs.StringVar(&flags.Source, "source", def.Source, "Audio file to play (mp3, wav, flac, opus, raw); empty plays a tone")
	fs.BoolVar(&flags.Loop, "loop", def.Loop, "Loop the source file")
	fs.IntVar(&flags.ToneHz, "tone-hz", def.ToneHz, "Tone core frequency in Hz")
	fs.DurationVar(&flags.WatchInterval, "watch-interval", def.WatchInterval, "Device poll interval (0 disables)")
	fs.StringVar(&flags.LogFile, "log-file", def.LogFile, "Log file path")
	fs.BoolVar(&flags.NoTUI, "no-tui", def.NoTUI, "Disable TUI, use streaming logs instead")
	fs.BoolVar(&flags.ListDevices, "list-devices", false, "List output devices and exit")

	if err := fs.Parse(args); err != nil {
		return def, err
	}
	flags.Speed = uint32(speed)

	cfg := def
	if flags.ConfigFile != "" {
		loaded, err := Load(flags.ConfigFile, def)
		if err != nil {
			return def, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			cfg.ConfigFile = flags.ConfigFile
		case "backend":
			cfg.Backend = flags.Backend
		case "device":
			cfg.Device = flags.Device
		case "latency-ms":
			cfg.LatencyMs = flags.LatencyMs
		case "volume":
			cfg.Volume = flags.Volume
		case "period-ms":
			cfg.PeriodMs = flags.PeriodMs
		case "speed":
			cfg.Speed = flags.Speed
		case "source":
			cfg.Source = flags.Source
		case "loop":
			cfg.Loop = flags.Loop
		case "tone-hz":
			cfg.ToneHz = flags.ToneHz
		case "watch-interval":
			cfg.WatchInterval = flags.WatchInterval
		case "log-file":
			cfg.LogFile = flags.LogFile
		case "no-tui":
			cfg.NoTUI = flags.NoTUI
		case "list-devices":
			cfg.ListDevices = flags.ListDevices
		}
	})

	if err := Validate(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and fills empty values
func Validate(cfg *Config) error {
	switch cfg.Backend {
	case BackendMalgo, BackendOto, BackendPortAudio, BackendHeadless:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.LatencyMs < 1 || cfg.LatencyMs > 2000 {
		return fmt.Errorf("latency %dms out of range 1-2000", cfg.LatencyMs)
	}
	if cfg.Volume < 0 || cfg.Volume > 100 {
		return fmt.Errorf("volume %d out of range 0-100", cfg.Volume)
	}
	if cfg.PeriodMs < 0 {
		return errors.New("period must not be negative")
	}
	switch cfg.Speed {
	case 1, 2, 4:
	default:
		return fmt.Errorf("speed %d must be 1, 2 or 4", cfg.Speed)
	}
	if cfg.ToneHz <= 0 {
		return fmt.Errorf("tone frequency %d must be positive", cfg.ToneHz)
	}
	if cfg.WatchInterval < 0 {
		return errors.New("watch interval must not be negative")
	}
	return nil
}

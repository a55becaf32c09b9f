// Package config holds the runtime configuration: compiled-in defaults, overridden by a TOML
// file, overridden by command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that reads and writes as a Go duration string ("1s", "250ms").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type ServerConfig struct {
	// Address is the host:port the GraphQL server listens on.
	Address string `toml:"address"`
	// ShutdownGrace bounds graceful shutdown after cancellation.
	ShutdownGrace Duration `toml:"shutdown_grace"`
}

type RenderConfig struct {
	Width           uint32 `toml:"width"`
	Height          uint32 `toml:"height"`
	SamplesPerPixel uint32 `toml:"samples_per_pixel"`
	MaxBounces      uint32 `toml:"max_bounces"`
	// Backend is "software" or "wgpu".
	Backend string `toml:"backend"`
	// Workers sizes the software device's tile pool.
	Workers int `toml:"workers"`
}

type ProjectConfig struct {
	// Root is the directory projects are created in. A leading ~ is expanded.
	Root string `toml:"root"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

type WatchConfig struct {
	// Enabled reloads the loaded scene file when it changes on disk.
	Enabled  bool     `toml:"enabled"`
	Debounce Duration `toml:"debounce"`
}

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Render  RenderConfig  `toml:"render"`
	Project ProjectConfig `toml:"project"`
	Log     LogConfig     `toml:"log"`
	Watch   WatchConfig   `toml:"watch"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:       "localhost:8000",
			ShutdownGrace: Duration(time.Second),
		},
		Render: RenderConfig{
			Width:           1280,
			Height:          720,
			SamplesPerPixel: 1,
			MaxBounces:      4,
			Backend:         "software",
			Workers:         runtime.GOMAXPROCS(0),
		},
		Project: ProjectConfig{
			Root: "~/Documents/Tracey Projects",
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Debounce: Duration(200 * time.Millisecond),
		},
	}
}

// Load reads the TOML file at path over the defaults. Keys the file leaves out keep their
// default; unknown keys are rejected. An empty path returns the defaults.
//
// Parameters:
//   - path: the TOML file, or ""
//
// Returns:
//   - Config: the merged and validated configuration
//   - error: error if the file cannot be read, decoded or validated
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode strictly decodes TOML data into cfg, leaving absent keys untouched.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return err
	}
	return nil
}

// Encode renders cfg as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is empty"))
	}
	if c.Server.ShutdownGrace < 0 {
		errs = append(errs, errors.New("server.shutdown_grace is negative"))
	}
	if c.Render.Width == 0 || c.Render.Height == 0 {
		errs = append(errs, fmt.Errorf("render size %dx%d has a zero side", c.Render.Width, c.Render.Height))
	}
	if c.Render.SamplesPerPixel == 0 {
		errs = append(errs, errors.New("render.samples_per_pixel is zero"))
	}
	switch c.Render.Backend {
	case "software", "wgpu":
	default:
		errs = append(errs, fmt.Errorf("unknown render.backend %q", c.Render.Backend))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return l, nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/intellitrack/internal/core/observability/log"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrInvalid           = errors.New("invalid config")
)

type Config struct {
	Logging     log.Config        `yaml:"logging" toml:"logging"`
	Space       SpaceConfig       `yaml:"space" toml:"space"`
	Persistence PersistenceConfig `yaml:"persistence" toml:"persistence"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	World       WorldConfig       `yaml:"world" toml:"world"`
}

type SpaceConfig struct {
	Strategy string `yaml:"strategy" toml:"strategy"` // "dense" or "complete"
	Metrics  bool   `yaml:"metrics" toml:"metrics"`
}

type PersistenceConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "memory", "sqlite" or "" to disable
	Path   string `yaml:"path" toml:"path"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Address         string        `yaml:"address" toml:"address"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Buffer          int           `yaml:"buffer" toml:"buffer"` // per-client event buffer
}

type WorldConfig struct {
	Name        string           `yaml:"name" toml:"name"`
	Scenes      []SceneConfig    `yaml:"scenes" toml:"scenes"`
	Detectors   []DetectorConfig `yaml:"detectors" toml:"detectors"`
	Assignments []Assignment     `yaml:"assignments" toml:"assignments"`
}

type SceneConfig struct {
	Name      string       `yaml:"name" toml:"name"`
	Cameras   []string     `yaml:"cameras" toml:"cameras"`
	Width     int          `yaml:"width" toml:"width"`
	Height    int          `yaml:"height" toml:"height"`
	Framerate int          `yaml:"framerate" toml:"framerate"`
	Areas     []AreaConfig `yaml:"areas" toml:"areas"`
	Lines     []LineConfig `yaml:"lines" toml:"lines"`
}

type AreaConfig struct {
	Name    string       `yaml:"name" toml:"name"`
	Polygon [][2]float64 `yaml:"polygon" toml:"polygon"`
}

type LineConfig struct {
	Name string     `yaml:"name" toml:"name"`
	From [2]float64 `yaml:"from" toml:"from"`
	To   [2]float64 `yaml:"to" toml:"to"`
}

type DetectorConfig struct {
	Name string `yaml:"name" toml:"name"`
	Kind string `yaml:"kind" toml:"kind"`
	// frame association; zero values keep the tracker defaults
	MaxMisses int     `yaml:"max_misses" toml:"max_misses"`
	MinIoU    float64 `yaml:"min_iou" toml:"min_iou"`
}

// Assignment attaches a detector to a scene by name.
type Assignment struct {
	Detector string `yaml:"detector" toml:"detector"`
	Scene    string `yaml:"scene" toml:"scene"`
}

// Defaults is the configuration used for every key a file leaves out.
func Defaults() *Config {
	return &Config{
		Logging: log.Config{
			Level:  "info",
			Format: "console",
		},
		Space: SpaceConfig{
			Strategy: "dense",
		},
		Persistence: PersistenceConfig{
			Driver: "memory",
		},
		Server: ServerConfig{
			Address:         "127.0.0.1:8080",
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Buffer:          64,
		},
		World: WorldConfig{
			Name: "world",
		},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over Defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config %s: unknown key %s: %w", path, undecoded[0], ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("config %s (%q): %w", path, ext, ErrUnsupportedFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values and cross references. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("logging.format %q: want json or console", c.Logging.Format)
	}
	switch c.Space.Strategy {
	case "dense", "complete":
	default:
		add("space.strategy %q: want dense or complete", c.Space.Strategy)
	}
	switch c.Persistence.Driver {
	case "", "memory":
	case "sqlite":
		if c.Persistence.Path == "" {
			add("persistence.path is required for sqlite")
		}
	default:
		add("persistence.driver %q: want memory or sqlite", c.Persistence.Driver)
	}
	if c.Server.Enabled && c.Server.Address == "" {
		add("server.address is required when the server is enabled")
	}
	if c.Server.Buffer < 0 {
		add("server.buffer must not be negative")
	}

	checkName := func(what, name string) {
		if name == "" || strings.Contains(name, ".") {
			add("%s name %q must be non-empty and must not contain '.'", what, name)
		}
	}
	checkName("world", c.World.Name)

	scenes := make(map[string]bool, len(c.World.Scenes))
	for _, sc := range c.World.Scenes {
		checkName("scene", sc.Name)
		if scenes[sc.Name] {
			add("duplicate scene %q", sc.Name)
		}
		scenes[sc.Name] = true
		if sc.Framerate < 0 {
			add("scene %q: framerate must not be negative", sc.Name)
		}
		areas := make(map[string]bool, len(sc.Areas))
		for _, a := range sc.Areas {
			checkName("area", a.Name)
			if areas[a.Name] {
				add("scene %q: duplicate area %q", sc.Name, a.Name)
			}
			areas[a.Name] = true
			if len(a.Polygon) < 3 {
				add("scene %q: area %q needs at least 3 points", sc.Name, a.Name)
			}
		}
		lines := make(map[string]bool, len(sc.Lines))
		for _, l := range sc.Lines {
			checkName("line", l.Name)
			if lines[l.Name] {
				add("scene %q: duplicate line %q", sc.Name, l.Name)
			}
			lines[l.Name] = true
			if l.From == l.To {
				add("scene %q: line %q has zero length", sc.Name, l.Name)
			}
		}
	}

	detectors := make(map[string]bool, len(c.World.Detectors))
	for _, d := range c.World.Detectors {
		checkName("detector", d.Name)
		if detectors[d.Name] {
			add("duplicate detector %q", d.Name)
		}
		detectors[d.Name] = true
		if d.MaxMisses < 0 {
			add("detector %q: max_misses must not be negative", d.Name)
		}
		if d.MinIoU < 0 || d.MinIoU > 1 {
			add("detector %q: min_iou must be within [0, 1]", d.Name)
		}
	}
	for _, a := range c.World.Assignments {
		if !detectors[a.Detector] {
			add("assignment: unknown detector %q", a.Detector)
		}
		if !scenes[a.Scene] {
			add("assignment: unknown scene %q", a.Scene)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Package config loads cbintool settings from defaults, an optional YAML
// file, CBIN_* environment variables and command-line overrides, in that
// order of increasing priority.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twinfer/cbin-plugin/pkg/cbin"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "CBIN_"

// Config is the resolved tool configuration.
type Config struct {
	// Key is the XOR key as hex.
	Key           string `koanf:"key"`
	OpaqueField   int64  `koanf:"opaque_field"`
	OpaqueTrailer string `koanf:"opaque_trailer"`
	LogLevel      string `koanf:"log_level"`
}

// Defaults returns the built-in configuration as a koanf map.
func Defaults() map[string]any {
	return map[string]any{
		"key":            cbin.DefaultKeyHex,
		"opaque_field":   int64(cbin.DefaultOpaqueField),
		"opaque_trailer": strings.ToUpper(hex.EncodeToString(cbin.DefaultOpaqueTrailer[:])),
		"log_level":      "info",
	}
}

// CodecOptions converts the configuration into codec options.
func (c Config) CodecOptions() ([]cbin.Option, error) {
	key, err := cbin.ParseKey(c.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if c.OpaqueField < math.MinInt32 || c.OpaqueField > math.MaxInt32 {
		return nil, fmt.Errorf("opaque_field: %d does not fit in 32 bits", c.OpaqueField)
	}
	trailer, err := parseTrailer(c.OpaqueTrailer)
	if err != nil {
		return nil, fmt.Errorf("opaque_trailer: %w", err)
	}

	return []cbin.Option{
		cbin.WithKey(key),
		cbin.WithOpaqueField(int32(c.OpaqueField)),
		cbin.WithOpaqueTrailer(trailer),
	}, nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func parseTrailer(s string) ([4]byte, error) {
	var trailer [4]byte
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return trailer, err
	}
	if len(b) != len(trailer) {
		return trailer, fmt.Errorf("expected %d bytes, got %d", len(trailer), len(b))
	}
	copy(trailer[:], b)
	return trailer, nil
}

// Loader layers configuration sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file to read. An empty path is skipped.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values that win over every other source, typically
// taken from command-line flags.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every source and returns the merged configuration.
func (l *Loader) Load() (Config, error) {
	var cfg Config
	if err := l.k.Load(mapProvider(Defaults()), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	// CBIN_OPAQUE_FIELD -> opaque_field. Keys are flat, so underscores stay.
	transform := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return cfg, fmt.Errorf("load overrides: %w", err)
		}
	}

	if err := l.k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

var errReadBytesNotSupported = errors.New("config: map provider only supports Read")

// mapProvider feeds a plain map into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/CaliLuke/go-activerecord/record"
	"github.com/CaliLuke/go-activerecord/sqlgen"
)

// DefaultConfigFile is read from the working directory when --config is
// not given.
const DefaultConfigFile = "arsql.yaml"

// EnvPrefix prefixes environment overrides: ARSQL_DATABASE, ARSQL_GEN_PACKAGE.
const EnvPrefix = "ARSQL_"

// Config holds all CLI configuration.
type Config struct {
	Database  string        `koanf:"database"`
	LogLevel  string        `koanf:"log_level"`
	SlowQuery time.Duration `koanf:"slow_query"`
	Gen       GenConfig     `koanf:"gen"`
}

// GenConfig configures code generation.
type GenConfig struct {
	Package          string   `koanf:"package"`
	Module           string   `koanf:"module"`
	Output           string   `koanf:"output"`
	Acronyms         bool     `koanf:"acronyms"`
	NullablePointers bool     `koanf:"nullable_pointers"`
	DeferBlobs       bool     `koanf:"defer_blobs"`
	Register         bool     `koanf:"register"`
	Exclude          []string `koanf:"exclude"`
}

// RenderConfig converts the generation settings for sqlgen.Render.
func (g GenConfig) RenderConfig() sqlgen.RenderConfig {
	return sqlgen.RenderConfig{
		PackageName:      g.Package,
		ModulePath:       g.Module,
		UseAcronyms:      g.Acronyms,
		NullablePointers: g.NullablePointers,
		DeferBlobs:       g.DeferBlobs,
		Register:         g.Register,
		Exclude:          g.Exclude,
	}
}

// Level parses LogLevel, defaulting to warn.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// flagKeys maps flag names onto config keys. Flags not listed are not
// configuration.
var flagKeys = map[string]string{
	"database":    "database",
	"log-level":   "log_level",
	"slow-query":  "slow_query",
	"package":     "gen.package",
	"module":      "gen.module",
	"out":         "gen.output",
	"acronyms":    "gen.acronyms",
	"pointers":    "gen.nullable_pointers",
	"defer-blobs": "gen.defer_blobs",
	"register":    "gen.register",
	"exclude":     "gen.exclude",
}

func defaults() map[string]any {
	gen := sqlgen.DefaultConfig()
	return map[string]any{
		"database":              "arsql.db",
		"log_level":             "warn",
		"slow_query":            "100ms",
		"gen.package":           gen.PackageName,
		"gen.module":            gen.ModulePath,
		"gen.output":            "",
		"gen.acronyms":          gen.UseAcronyms,
		"gen.nullable_pointers": gen.NullablePointers,
		"gen.defer_blobs":       gen.DeferBlobs,
		"gen.register":          gen.Register,
		"gen.exclude":           []string{record.MigrationTable},
	}
}

// envKey turns ARSQL_GEN_DEFER_BLOBS into gen.defer_blobs.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if rest, ok := strings.CutPrefix(key, "gen_"); ok {
		return "gen." + rest
	}
	return key
}

// LoadConfig loads configuration from defaults, the config file,
// environment variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("read config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, "", fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	return &cfg, used, nil
}

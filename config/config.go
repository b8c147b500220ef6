// Package config loads the esmodule command configuration from defaults, an
// optional YAML file, ESMODULE_ environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.miragespace.co/esmodule"
	"go.miragespace.co/esmodule/rewrite"
	"go.miragespace.co/esmodule/sources"
	_ "go.miragespace.co/esmodule/sources/file"
	_ "go.miragespace.co/esmodule/sources/memory"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const EnvPrefix = "ESMODULE_"

type Config struct {
	// Source is the URI of the module store, memory:// or file://<dir>.
	Source             string        `koanf:"source"`
	Entry              string        `koanf:"entry"`
	Shards             int           `koanf:"shards"`
	LoaderSymbol       string        `koanf:"loader_symbol"`
	ExportsSymbol      string        `koanf:"exports_symbol"`
	ModulePrefix       string        `koanf:"module_prefix"`
	PostSymbolKeywords []string      `koanf:"post_symbol_keywords"`
	NewLines           bool          `koanf:"new_lines"`
	MatchTimeout       time.Duration `koanf:"match_timeout"`
	LoadTimeout        time.Duration `koanf:"load_timeout"`
	Listen             string        `koanf:"listen"`
	Debug              bool          `koanf:"debug"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"source":         "file://.",
		"shards":         1,
		"loader_symbol":  esmodule.DefaultLoaderSymbol,
		"exports_symbol": esmodule.DefaultExportsSymbol,
		"module_prefix":  rewrite.DefaultModulePrefix,
		"new_lines":      false,
		"match_timeout":  "1s",
		"load_timeout":   "5s",
		"listen":         ":8081",
		"debug":          false,
	}
}

// Load reads the configuration. cfgFile and flags are optional; only flags
// explicitly set on the command line override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// ESMODULE_LOAD_TIMEOUT -> load_timeout
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

// Rewriter returns a rewriter configured from c.
func (c *Config) Rewriter(logger *zap.Logger) (*rewrite.Rewriter, error) {
	return rewrite.New(
		rewrite.WithLogger(logger),
		rewrite.WithModulePrefix(c.ModulePrefix),
		rewrite.WithPostSymbolKeywords(c.PostSymbolKeywords...),
		rewrite.WithNewLines(c.NewLines),
		rewrite.WithMatchTimeout(c.MatchTimeout),
	)
}

// RuntimeConfig opens the module source and returns the matching runtime
// configuration.
func (c *Config) RuntimeConfig(logger *zap.Logger) (esmodule.RuntimeConfig, error) {
	src, err := sources.Open(c.Source)
	if err != nil {
		return esmodule.RuntimeConfig{}, fmt.Errorf("opening source %q: %w", c.Source, err)
	}

	r, err := c.Rewriter(logger)
	if err != nil {
		return esmodule.RuntimeConfig{}, err
	}

	return esmodule.RuntimeConfig{
		Shards:        c.Shards,
		Source:        src,
		Rewriter:      r,
		LoaderSymbol:  c.LoaderSymbol,
		ExportsSymbol: c.ExportsSymbol,
		LoadTimeout:   c.LoadTimeout,
	}, nil
}

// Logger returns a development logger when Debug is set, a production one
// otherwise.
func (c *Config) Logger() (*zap.Logger, error) {
	if c.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

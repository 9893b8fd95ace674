// Package config loads and validates the gateway configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"

	"toolgate/internal/domain"
)

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type IndexConfig struct {
	K1 float64 `mapstructure:"k1"`
	B  float64 `mapstructure:"b"`
}

type LoaderConfig struct {
	EssentialCap      int  `mapstructure:"essentialCap"`
	RelevantCap       int  `mapstructure:"relevantCap"`
	FallbackThreshold int  `mapstructure:"fallbackThreshold"`
	SearchEnabled     bool `mapstructure:"searchEnabled"`
}

type RouterConfig struct {
	InvokeTimeoutSeconds int `mapstructure:"invokeTimeoutSeconds"`
}

type ObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

type GatewayConfig struct {
	ToolRefreshSeconds int `mapstructure:"toolRefreshSeconds"`
}

type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Index         IndexConfig         `mapstructure:"index"`
	Loader        LoaderConfig        `mapstructure:"loader"`
	Router        RouterConfig        `mapstructure:"router"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", domain.DefaultStorePath)
	v.SetDefault("index.k1", domain.DefaultBM25K1)
	v.SetDefault("index.b", domain.DefaultBM25B)
	v.SetDefault("loader.essentialCap", domain.DefaultEssentialCap)
	v.SetDefault("loader.relevantCap", domain.DefaultRelevantCap)
	v.SetDefault("loader.fallbackThreshold", domain.DefaultFallbackThreshold)
	v.SetDefault("loader.searchEnabled", domain.DefaultSearchEnabled)
	v.SetDefault("router.invokeTimeoutSeconds", domain.DefaultInvokeTimeoutSeconds)
	v.SetDefault("gateway.toolRefreshSeconds", domain.DefaultToolRefreshSeconds)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListen)
}

// Load reads the YAML config at path. A missing file yields defaults.
func Load(path string) (Config, error) {
	v := newConfigViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Loader.EssentialCap <= 0 {
		return fmt.Errorf("loader.essentialCap must be > 0")
	}
	if c.Loader.RelevantCap <= 0 {
		return fmt.Errorf("loader.relevantCap must be > 0")
	}
	if c.Loader.FallbackThreshold < 0 {
		return fmt.Errorf("loader.fallbackThreshold must be >= 0")
	}
	if c.Index.K1 <= 0 {
		return fmt.Errorf("index.k1 must be > 0")
	}
	if c.Index.B < 0 || c.Index.B > 1 {
		return fmt.Errorf("index.b must be within [0, 1]")
	}
	if c.Router.InvokeTimeoutSeconds <= 0 {
		return fmt.Errorf("router.invokeTimeoutSeconds must be > 0")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

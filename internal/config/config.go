package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ORACLE_BRIDGE_WASM_DEBUG.
const EnvPrefix = "ORACLE_BRIDGE"

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Module   string       `mapstructure:"module"`
	Wasm     WasmConfig   `mapstructure:"wasm"`
	Render   RenderConfig `mapstructure:"render"`
	Watch    WatchConfig  `mapstructure:"watch"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug info in compiled modules.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty disables the on-disk cache.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Check every allocate/release pair against a ledger.
	TrackAllocations bool `mapstructure:"track_allocations"`
	// Upper bound of the result terminator scan. Zero scans to the end of memory.
	MaxResultBytes uint32 `mapstructure:"max_result_bytes"`
}

type RenderConfig struct {
	// Output encoding: html or text.
	Format string `mapstructure:"format"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("module", "./boseiju.wasm")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 4)
	v.SetDefault("wasm.track_allocations", false)
	v.SetDefault("wasm.max_result_bytes", 0)

	v.SetDefault("render.format", "html")
	v.SetDefault("watch.debounce", 150*time.Millisecond)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Render.Format) {
	case "html", "text":
	default:
		return fmt.Errorf("render.format must be html or text, got %q", c.Render.Format)
	}

	if c.Wasm.MemoryPages == 0 || c.Wasm.MemoryPages > 65536 {
		return fmt.Errorf("wasm.memory_pages must be in 1..65536, got %d", c.Wasm.MemoryPages)
	}

	if c.Wasm.MaxInstances < 0 {
		return fmt.Errorf("wasm.max_instances must not be negative, got %d", c.Wasm.MaxInstances)
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}

	return nil
}

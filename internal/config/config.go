package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "swap"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("market.base_price", 150.0)
	v.SetDefault("market.native_token", "SOL")
	v.SetDefault("market.default_slippage", 0.005)

	v.SetDefault("venues", []map[string]interface{}{
		{
			"name":         "jupiter",
			"fee_rate":     0.003,
			"variance_min": -0.02,
			"variance_max": 0.02,
			"gas_min":      4000,
			"gas_max":      6000,
			"latency_min":  "150ms",
			"latency_max":  "250ms",
		},
		{
			"name":         "raydium",
			"fee_rate":     0.0025,
			"variance_min": -0.03,
			"variance_max": 0.02,
			"gas_min":      3500,
			"gas_max":      5500,
			"latency_min":  "150ms",
			"latency_max":  "250ms",
		},
	})

	v.SetDefault("execution.confirm_delay", "2s")
	v.SetDefault("execution.wrap_delay", "500ms")
	v.SetDefault("execution.price_movement", 0.01)

	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_base", "1s")
	v.SetDefault("pipeline.concurrency", 10)
	v.SetDefault("pipeline.rate_per_minute", 100)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.confirmation_wait", "1s")

	v.SetDefault("distributor.grace_period", "2s")
	v.SetDefault("distributor.buffer", 16)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("database.path", "data/swap_router.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// venueDefaults 用于在配置缺省时补齐场所的延迟区间。
func venueDefaults(v VenueConfig) VenueConfig {
	if v.LatencyMin <= 0 {
		v.LatencyMin = 150 * time.Millisecond
	}
	if v.LatencyMax <= 0 {
		v.LatencyMax = 250 * time.Millisecond
	}
	return v
}

// NormalizedVenues 返回补齐默认值后的场所配置。
func (c *Config) NormalizedVenues() []VenueConfig {
	out := make([]VenueConfig, len(c.Venues))
	for i, v := range c.Venues {
		out[i] = venueDefaults(v)
	}
	return out
}

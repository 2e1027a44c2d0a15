package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Market      MarketConfig      `mapstructure:"market"`
	Venues      []VenueConfig     `mapstructure:"venues"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Distributor DistributorConfig `mapstructure:"distributor"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// MarketConfig 描述模拟市场参数。
type MarketConfig struct {
	BasePrice       float64 `mapstructure:"base_price"`
	NativeToken     string  `mapstructure:"native_token"`
	DefaultSlippage float64 `mapstructure:"default_slippage"`
}

// VenueConfig 描述单个模拟流动性场所。
type VenueConfig struct {
	Name        string        `mapstructure:"name"`
	FeeRate     float64       `mapstructure:"fee_rate"`
	VarianceMin float64       `mapstructure:"variance_min"`
	VarianceMax float64       `mapstructure:"variance_max"`
	GasMin      int           `mapstructure:"gas_min"`
	GasMax      int           `mapstructure:"gas_max"`
	LatencyMin  time.Duration `mapstructure:"latency_min"`
	LatencyMax  time.Duration `mapstructure:"latency_max"`
}

// ExecutionConfig 控制模拟执行行为。
type ExecutionConfig struct {
	ConfirmDelay  time.Duration `mapstructure:"confirm_delay"`
	WrapDelay     time.Duration `mapstructure:"wrap_delay"`
	PriceMovement float64       `mapstructure:"price_movement"`
}

// PipelineConfig 控制订单管线的调度与重试。
type PipelineConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BackoffBase      time.Duration `mapstructure:"backoff_base"`
	Concurrency      int           `mapstructure:"concurrency"`
	RatePerMinute    int           `mapstructure:"rate_per_minute"`
	QueueSize        int           `mapstructure:"queue_size"`
	ConfirmationWait time.Duration `mapstructure:"confirmation_wait"`
}

// DistributorConfig 控制状态分发器。
type DistributorConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Buffer      int           `mapstructure:"buffer"`
}

// ServerConfig 控制对外 HTTP 服务。
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Market.BasePrice <= 0 {
		err = multierr.Append(err, errors.New("market.base_price 必须大于0"))
	}
	if c.Market.DefaultSlippage < 0 || c.Market.DefaultSlippage > 1 {
		err = multierr.Append(err, errors.New("market.default_slippage 必须位于[0,1]"))
	}
	if len(c.Venues) == 0 {
		err = multierr.Append(err, errors.New("venues 至少需要配置一个场所"))
	}
	for i, v := range c.Venues {
		if v.Name == "" {
			err = multierr.Append(err, fmt.Errorf("venues[%d].name 不能为空", i))
		}
		if v.FeeRate < 0 || v.FeeRate > 0.1 {
			err = multierr.Append(err, fmt.Errorf("venues[%d].fee_rate 应位于[0,0.1]", i))
		}
		if v.VarianceMin > v.VarianceMax {
			err = multierr.Append(err, fmt.Errorf("venues[%d].variance_min 不能大于 variance_max", i))
		}
		if v.GasMin <= 0 || v.GasMax < v.GasMin {
			err = multierr.Append(err, fmt.Errorf("venues[%d] gas 区间无效", i))
		}
		if v.LatencyMin < 0 || v.LatencyMax < v.LatencyMin {
			err = multierr.Append(err, fmt.Errorf("venues[%d] latency 区间无效", i))
		}
	}
	if c.Execution.ConfirmDelay < 0 {
		err = multierr.Append(err, errors.New("execution.confirm_delay 不能为负"))
	}
	if c.Execution.WrapDelay < 0 {
		err = multierr.Append(err, errors.New("execution.wrap_delay 不能为负"))
	}
	if c.Execution.PriceMovement < 0 || c.Execution.PriceMovement > 0.05 {
		err = multierr.Append(err, errors.New("execution.price_movement 应位于[0,0.05]"))
	}
	if c.Pipeline.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("pipeline.max_attempts 必须大于0"))
	}
	if c.Pipeline.BackoffBase <= 0 {
		err = multierr.Append(err, errors.New("pipeline.backoff_base 必须大于0"))
	}
	if c.Pipeline.Concurrency <= 0 {
		err = multierr.Append(err, errors.New("pipeline.concurrency 必须大于0"))
	}
	if c.Pipeline.RatePerMinute <= 0 {
		err = multierr.Append(err, errors.New("pipeline.rate_per_minute 必须大于0"))
	}
	if c.Pipeline.QueueSize <= 0 {
		err = multierr.Append(err, errors.New("pipeline.queue_size 必须大于0"))
	}
	if c.Pipeline.ConfirmationWait < 0 {
		err = multierr.Append(err, errors.New("pipeline.confirmation_wait 不能为负"))
	}
	if c.Distributor.GracePeriod < 0 {
		err = multierr.Append(err, errors.New("distributor.grace_period 不能为负"))
	}
	if c.Distributor.Buffer <= 0 {
		err = multierr.Append(err, errors.New("distributor.buffer 必须大于0"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

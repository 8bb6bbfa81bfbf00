// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 信号源（Polymarket）配置
	Signal SignalConfig `mapstructure:"signal"`
	// 执行端券商配置
	Broker BrokerConfig `mapstructure:"broker"`
	// 策略配置
	Strategy StrategyConfig `mapstructure:"strategy"`
	// 监控市场列表
	Watchlist []WatchlistEntry `mapstructure:"watchlist"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"8080"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：sqlite, mysql
	Driver string `mapstructure:"driver" default:"sqlite"`
	// 数据源名称，sqlite 下为账本文件路径
	DSN string `mapstructure:"dsn" default:"data/trades.db"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"5"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"2"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// KafkaConfig Kafka 配置，brokers 为空时事件发布降级为空实现
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 意向事件主题
	IntentTopic string `mapstructure:"intent_topic" default:"polyarb.intent.events"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level" default:"info"`
	// 输出格式
	Format string `mapstructure:"format" default:"json"`
	// 输出目标
	Output string `mapstructure:"output" default:"stdout"`
	// 文件路径
	FilePath string `mapstructure:"file_path" default:"logs/bot.log"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size" default:"100"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups" default:"10"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age" default:"30"`
	// 是否压缩
	Compress bool `mapstructure:"compress" default:"true"`
	// 是否输出调用者信息
	WithCaller bool `mapstructure:"with_caller" default:"false"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Prometheus 监听端口
	Port int `mapstructure:"port" default:"9090"`
	// 指标路径
	Path string `mapstructure:"path" default:"/metrics"`
}

// SignalConfig 信号源配置
type SignalConfig struct {
	// CLOB API 基础地址
	BaseURL string `mapstructure:"base_url" default:"https://clob.polymarket.com"`
	// 请求超时（秒）
	RequestTimeout int `mapstructure:"request_timeout" default:"10"`
	// 轮询间隔（秒）
	PollInterval int `mapstructure:"poll_interval" default:"60"`
	// 计算加权概率时使用的盘口档位数
	BookDepthLevels int `mapstructure:"book_depth_levels" default:"3"`
}

// BrokerConfig 执行端券商配置
type BrokerConfig struct {
	// 网关主机
	Host string `mapstructure:"host" default:"127.0.0.1"`
	// 网关端口
	Port int `mapstructure:"port" default:"4002"`
	// 客户端 ID
	ClientID int `mapstructure:"client_id" default:"1"`
	// 行情超时（秒）
	QuoteTimeout int `mapstructure:"quote_timeout" default:"5"`
}

// StrategyConfig 策略配置
type StrategyConfig struct {
	// 运行模式：analysis-only, paper, live
	Mode string `mapstructure:"mode" default:"analysis-only"`
	// 套利阈值（价差超过该值才触发交易）
	ArbThreshold float64 `mapstructure:"arb_threshold" default:"0.02"`
	// 年化无风险利率
	RiskFreeRate float64 `mapstructure:"risk_free_rate" default:"0.045"`
	// 默认下单数量（合约张数）
	DefaultQuantity int64 `mapstructure:"default_quantity" default:"10"`
	// 是否允许实盘执行
	AllowLiveExecution bool `mapstructure:"allow_live_execution" default:"false"`
}

// WatchlistEntry 监控市场条目
type WatchlistEntry struct {
	// 市场描述（用于合约映射，如 "US CPI YoY"）
	Description string `mapstructure:"description"`
	// 信号源市场 ID
	SignalMarketID string `mapstructure:"signal_market_id"`
	// 执行价
	Strike float64 `mapstructure:"strike"`
	// 到期日（YYYY-MM-DD）
	ExpiryDate string `mapstructure:"expiry_date"`
	// true 表示 Yes 合约，false 表示 No 合约
	IsYes bool `mapstructure:"is_yes"`
	// 下单数量，为 0 时使用策略默认数量
	Quantity int64 `mapstructure:"quantity"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("APP")
	// 自动绑定环境变量（使用 _ 替代 .）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	switch c.Strategy.Mode {
	case "analysis-only", "paper", "live":
	default:
		return fmt.Errorf("invalid strategy mode: %s", c.Strategy.Mode)
	}
	if c.Strategy.Mode == "live" && !c.Strategy.AllowLiveExecution {
		return fmt.Errorf("live mode requires strategy.allow_live_execution = true")
	}
	if c.Strategy.ArbThreshold < 0 {
		return fmt.Errorf("arb_threshold must be non-negative")
	}
	if c.Strategy.DefaultQuantity <= 0 {
		return fmt.Errorf("default_quantity must be positive")
	}
	for i, w := range c.Watchlist {
		if w.Description == "" {
			return fmt.Errorf("watchlist[%d]: description is required", i)
		}
		if w.SignalMarketID == "" {
			return fmt.Errorf("watchlist[%d]: signal_market_id is required", i)
		}
		if w.ExpiryDate == "" {
			return fmt.Errorf("watchlist[%d]: expiry_date is required", i)
		}
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/trades.db")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("kafka.intent_topic", "polyarb.intent.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/bot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("signal.base_url", "https://clob.polymarket.com")
	v.SetDefault("signal.request_timeout", 10)
	v.SetDefault("signal.poll_interval", 60)
	v.SetDefault("signal.book_depth_levels", 3)

	v.SetDefault("broker.host", "127.0.0.1")
	v.SetDefault("broker.port", 4002)
	v.SetDefault("broker.client_id", 1)
	v.SetDefault("broker.quote_timeout", 5)

	v.SetDefault("strategy.mode", "analysis-only")
	v.SetDefault("strategy.arb_threshold", 0.02)
	v.SetDefault("strategy.risk_free_rate", 0.045)
	v.SetDefault("strategy.default_quantity", 10)
	v.SetDefault("strategy.allow_live_execution", false)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

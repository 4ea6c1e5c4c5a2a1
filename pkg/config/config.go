// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pulsewire/notifyhub/pkg/backoff"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// 停机后等待在途消息处理完成的宽限期（秒）
	ShutdownGrace int `mapstructure:"shutdown_grace" default:"30"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 聚合窗口配置
	Window WindowConfig `mapstructure:"window"`
	// 各优先级入口的消费拓扑
	Tiers TiersConfig `mapstructure:"tiers"`
	// 投递端消费配置
	Delivery DeliveryConfig `mapstructure:"delivery"`
	// 投递重试策略
	Retry RetryConfig `mapstructure:"retry"`
	// broker 不可用时的兜底存储配置
	Fallback FallbackConfig `mapstructure:"fallback"`
	// 各渠道发送网关配置
	Senders SendersConfig `mapstructure:"senders"`
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
	// 驱动：目前仅支持 mysql
	Driver string `mapstructure:"driver" default:"mysql"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host" default:"localhost"`
	// 端口
	Port int `mapstructure:"port" default:"6379"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db" default:"0"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size" default:"10"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout" default:"5"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"3"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"3"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 副本数
	Replication int `mapstructure:"replication" default:"1"`
	// 消费者会话超时（毫秒）
	SessionTimeout int `mapstructure:"session_timeout" default:"10000"`
	// 生产者内部重试次数
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// 生产者重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
	// 就绪主题分区数
	ReadyPartitions int `mapstructure:"ready_partitions" default:"6"`
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
	FilePath string `mapstructure:"file_path" default:"logs/app.log"`
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
	// 指标路径
	Path string `mapstructure:"path" default:"/metrics"`
}

// WindowConfig 聚合窗口配置。
// 扫描只回看上一代窗口，扫描间隔必须小于窗口时长，否则整代窗口可能被跳过；
// 窗口关闭后最坏在约一个窗口时长内被冲刷。
type WindowConfig struct {
	// 窗口时长（毫秒）
	DurationMS int `mapstructure:"duration_ms" default:"120000"`
	// 扫描间隔（毫秒）
	SweepIntervalMS int `mapstructure:"sweep_interval_ms" default:"30000"`
	// 单窗口最大聚合条数，达到后立即冲刷
	MaxBatchSize int `mapstructure:"max_batch_size" default:"50"`
}

// Duration 返回窗口时长
func (c WindowConfig) Duration() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

// SweepInterval 返回扫描间隔
func (c WindowConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// TiersConfig 各优先级入口的消费拓扑
type TiersConfig struct {
	Critical TierConfig `mapstructure:"critical"`
	High     TierConfig `mapstructure:"high"`
	Low      TierConfig `mapstructure:"low"`
}

// TierConfig 单个优先级的消费配置，各优先级默认值不同
type TierConfig struct {
	// 消费组 ID
	GroupID string `mapstructure:"group_id"`
	// 入口主题分区数
	Partitions int `mapstructure:"partitions"`
	// 并行消费者数量
	Concurrency int `mapstructure:"concurrency"`
}

// DeliveryConfig 投递端消费配置
type DeliveryConfig struct {
	Email ChannelConsumerConfig `mapstructure:"email"`
	SMS   ChannelConsumerConfig `mapstructure:"sms"`
	Push  ChannelConsumerConfig `mapstructure:"push"`
	// 死信主题分区数
	DLQPartitions int `mapstructure:"dlq_partitions" default:"3"`
}

// ChannelConsumerConfig 单渠道投递消费配置
type ChannelConsumerConfig struct {
	// 消费组 ID
	GroupID string `mapstructure:"group_id"`
	// 并行消费者数量
	Concurrency int `mapstructure:"concurrency" default:"1"`
}

// RetryConfig 投递重试策略，channels 中的渠道覆盖默认值
type RetryConfig struct {
	// 默认策略
	Default RetryPolicyConfig `mapstructure:"default"`
	// 渠道级覆盖，key 为渠道名小写（email, sms, push）
	Channels map[string]RetryPolicyConfig `mapstructure:"channels"`
}

// RetryPolicyConfig 单渠道重试参数
type RetryPolicyConfig struct {
	// 最大重试次数（不含首次尝试）
	MaxRetries int `mapstructure:"max_retries"`
	// 首次重试延迟（毫秒）
	InitialDelayMS int `mapstructure:"initial_delay_ms"`
	// 延迟上限（毫秒）
	MaxDelayMS int `mapstructure:"max_delay_ms"`
	// 退避倍率
	Multiplier float64 `mapstructure:"multiplier"`
}

// RetryFor 返回渠道的重试策略，渠道未覆盖的字段回落到默认值
func (c RetryConfig) RetryFor(channel string) backoff.Config {
	out := backoff.Config{
		MaxRetries:   c.Default.MaxRetries,
		InitialDelay: time.Duration(c.Default.InitialDelayMS) * time.Millisecond,
		MaxDelay:     time.Duration(c.Default.MaxDelayMS) * time.Millisecond,
		Multiplier:   c.Default.Multiplier,
	}

	override, ok := c.Channels[strings.ToLower(channel)]
	if !ok {
		return out
	}
	if override.MaxRetries > 0 {
		out.MaxRetries = override.MaxRetries
	}
	if override.InitialDelayMS > 0 {
		out.InitialDelay = time.Duration(override.InitialDelayMS) * time.Millisecond
	}
	if override.MaxDelayMS > 0 {
		out.MaxDelay = time.Duration(override.MaxDelayMS) * time.Millisecond
	}
	if override.Multiplier > 0 {
		out.Multiplier = override.Multiplier
	}
	return out
}

// FallbackConfig broker 兜底与恢复配置
type FallbackConfig struct {
	// 单条记录最大补发次数，达到后进入失败桶不再补发
	MaxRetries int `mapstructure:"max_retries" default:"5"`
	// 补发轮询间隔（毫秒）
	PollIntervalMS int `mapstructure:"poll_interval_ms" default:"10000"`
	// 每轮补发的最大条数
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// 发布失败后重新探测 broker 的间隔（毫秒）
	RetryAfterMS int `mapstructure:"retry_after_ms" default:"30000"`
}

// PollInterval 返回补发轮询间隔
func (c FallbackConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RetryAfter 返回 broker 探测间隔
func (c FallbackConfig) RetryAfter() time.Duration {
	return time.Duration(c.RetryAfterMS) * time.Millisecond
}

// SendersConfig 各渠道发送网关配置
type SendersConfig struct {
	Email EmailSenderConfig `mapstructure:"email"`
	SMS   SMSSenderConfig   `mapstructure:"sms"`
}

// EmailSenderConfig SMTP 网关配置
type EmailSenderConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" default:"587"`
	From string `mapstructure:"from"`
}

// SMSSenderConfig 短信网关配置
type SMSSenderConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	From     string `mapstructure:"from"`
}

// Load 从 TOML 文件加载配置，支持 NOTIFY_ 前缀的环境变量覆盖
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
	v.SetEnvPrefix("NOTIFY")
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
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Window.DurationMS <= 0 {
		return fmt.Errorf("invalid window duration: %d", c.Window.DurationMS)
	}
	if c.Window.SweepIntervalMS <= 0 || c.Window.SweepIntervalMS >= c.Window.DurationMS {
		return fmt.Errorf("sweep interval must be positive and shorter than window duration")
	}
	if c.Window.MaxBatchSize <= 0 {
		return fmt.Errorf("invalid window max batch size: %d", c.Window.MaxBatchSize)
	}
	if c.Fallback.MaxRetries <= 0 {
		return fmt.Errorf("invalid fallback max retries: %d", c.Fallback.MaxRetries)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("shutdown_grace", 30)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.session_timeout", 10000)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.ready_partitions", 6)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("window.duration_ms", 120000)
	v.SetDefault("window.sweep_interval_ms", 30000)
	v.SetDefault("window.max_batch_size", 50)

	v.SetDefault("tiers.critical.group_id", "notify-dispatch-critical")
	v.SetDefault("tiers.critical.partitions", 3)
	v.SetDefault("tiers.critical.concurrency", 3)
	v.SetDefault("tiers.high.group_id", "notify-dispatch-high")
	v.SetDefault("tiers.high.partitions", 5)
	v.SetDefault("tiers.high.concurrency", 2)
	v.SetDefault("tiers.low.group_id", "notify-dispatch-low")
	v.SetDefault("tiers.low.partitions", 2)
	v.SetDefault("tiers.low.concurrency", 1)

	v.SetDefault("delivery.email.group_id", "notify-deliver-email")
	v.SetDefault("delivery.email.concurrency", 2)
	v.SetDefault("delivery.sms.group_id", "notify-deliver-sms")
	v.SetDefault("delivery.sms.concurrency", 2)
	v.SetDefault("delivery.push.group_id", "notify-deliver-push")
	v.SetDefault("delivery.push.concurrency", 4)
	v.SetDefault("delivery.dlq_partitions", 3)

	v.SetDefault("retry.default.max_retries", 3)
	v.SetDefault("retry.default.initial_delay_ms", 1000)
	v.SetDefault("retry.default.max_delay_ms", 60000)
	v.SetDefault("retry.default.multiplier", 2.0)
	// 短信网关限流更敏感，退避更激进
	v.SetDefault("retry.channels.sms.initial_delay_ms", 2000)
	v.SetDefault("retry.channels.sms.multiplier", 3.0)

	v.SetDefault("fallback.max_retries", 5)
	v.SetDefault("fallback.poll_interval_ms", 10000)
	v.SetDefault("fallback.batch_size", 100)
	v.SetDefault("fallback.retry_after_ms", 30000)

	v.SetDefault("senders.email.port", 587)
}

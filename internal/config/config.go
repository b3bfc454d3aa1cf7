package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pixvend/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Log            LogConfig            `mapstructure:"log"`
	Database       DatabaseConfig       `mapstructure:"database"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	CORS           CORSConfig           `mapstructure:"cors"`
	Email          EmailConfig          `mapstructure:"email"`
	Order          OrderConfig          `mapstructure:"order"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 运维端令牌配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// EmailConfig 邮件服务配置
type EmailConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	From           string   `mapstructure:"from"`
	FromName       string   `mapstructure:"from_name"`
	UseTLS         bool     `mapstructure:"use_tls"`
	UseSSL         bool     `mapstructure:"use_ssl"`
	OperatorEmails []string `mapstructure:"operator_emails"` // 运维告警收件人
}

// OrderConfig 订单配置
type OrderConfig struct {
	PaymentExpireMinutes int `mapstructure:"payment_expire_minutes"`
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	AmountTolerancePercent  float64         `mapstructure:"amount_tolerance_percent"`   // 回调金额容差（百分比）
	AmountToleranceMinCents int64           `mapstructure:"amount_tolerance_min_cents"` // 回调金额容差下限（分）
	WebhookRateLimit        RateLimitConfig `mapstructure:"webhook_rate_limit"`
	Gateways                []GatewayConfig `mapstructure:"gateways"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// GatewayConfig 单个支付网关配置
type GatewayConfig struct {
	Name     string                 `mapstructure:"name"`     // 网关名称（mercadopago/asaas/efipay/openpix）
	Enabled  bool                   `mapstructure:"enabled"`  // 是否启用
	Primary  bool                   `mapstructure:"primary"`  // 是否首选网关
	Priority int                    `mapstructure:"priority"` // 故障转移顺序（小值优先）
	Config   map[string]interface{} `mapstructure:"config"`   // 网关私有配置
}

// ReconciliationConfig 对账配置
type ReconciliationConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	IntervalMinutes        int  `mapstructure:"interval_minutes"`          // 定时执行间隔
	PendingOrderTTLMinutes int  `mapstructure:"pending_order_ttl_minutes"` // 待支付订单视为过期的时长
	BatchLimit             int  `mapstructure:"batch_limit"`               // 每类别单次处理上限
}

// OrderedGateways 返回按故障转移顺序排列的启用网关：首选网关在前，其余按 priority 升序。
func (c PaymentConfig) OrderedGateways() []GatewayConfig {
	var enabled []GatewayConfig
	for _, gw := range c.Gateways {
		if gw.Enabled && strings.TrimSpace(gw.Name) != "" {
			enabled = append(enabled, gw)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Primary != enabled[j].Primary {
			return enabled[i].Primary
		}
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// GatewayByName 按名称查找网关配置（不区分大小写），未配置时返回 nil。
func (c PaymentConfig) GatewayByName(name string) *GatewayConfig {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range c.Gateways {
		if strings.ToLower(strings.TrimSpace(c.Gateways[i].Name)) == name {
			return &c.Gateways[i]
		}
	}
	return nil
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "pixvend.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/pixvend.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 720)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "pv")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.host", "")
	viper.SetDefault("email.port", 587)
	viper.SetDefault("email.username", "")
	viper.SetDefault("email.password", "")
	viper.SetDefault("email.from", "")
	viper.SetDefault("email.from_name", "")
	viper.SetDefault("email.use_tls", true)
	viper.SetDefault("email.use_ssl", false)
	viper.SetDefault("email.operator_emails", []string{})
	viper.SetDefault("order.payment_expire_minutes", 15)
	viper.SetDefault("payment.amount_tolerance_percent", 1.0)
	viper.SetDefault("payment.amount_tolerance_min_cents", 1)
	viper.SetDefault("payment.webhook_rate_limit.window_seconds", 60)
	viper.SetDefault("payment.webhook_rate_limit.max_requests", 60)
	viper.SetDefault("payment.gateways", []map[string]interface{}{})
	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.interval_minutes", 30)
	viper.SetDefault("reconciliation.pending_order_ttl_minutes", 60)
	viper.SetDefault("reconciliation.batch_limit", 500)

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof HTTP pprof 配置
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baudRate"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	FlushOnOpen bool          `mapstructure:"flushOnOpen"`
}

// RadioConfig 射频参数：启动时下发的参数集与固件协议版本
type RadioConfig struct {
	Revision        string `mapstructure:"revision"` // legacy | current
	ApplyOnStart    bool   `mapstructure:"applyOnStart"`
	Profile         string `mapstructure:"profile"` // 非空时使用 profilesPath 中的命名参数集
	ProfilesPath    string `mapstructure:"profilesPath"`
	Mode            string `mapstructure:"mode"`
	Frequency       uint32 `mapstructure:"frequency"`
	SpreadingFactor uint8  `mapstructure:"spreadingFactor"`
	Bandwidth       string `mapstructure:"bandwidth"`
	CodeRate        string `mapstructure:"codeRate"`
	PreambleLength  uint16 `mapstructure:"preambleLength"`
	TxPower         uint8  `mapstructure:"txPower"`
	Encryption      bool   `mapstructure:"encryption"`
	EncryptionKey   string `mapstructure:"encryptionKey"`
}

// SessionConfig AT 会话参数
type SessionConfig struct {
	CommandTimeout    time.Duration `mapstructure:"commandTimeout"`
	Retries           int           `mapstructure:"retries"`
	RetryBackoff      time.Duration `mapstructure:"retryBackoff"`
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	ResponseQueue     int           `mapstructure:"responseQueue"`
	NotificationQueue int           `mapstructure:"notificationQueue"`
	BreakerThreshold  int           `mapstructure:"breakerThreshold"`
	BreakerCooldown   time.Duration `mapstructure:"breakerCooldown"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig PostgreSQL 连接配置；DSN 为空时不落库
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
	RetentionDays   int           `mapstructure:"retentionDays"` // 接收记录保留天数，0 不清理
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// GatewayConfig 发送队列与占空比限制
type GatewayConfig struct {
	ThrottleMs      int           `mapstructure:"throttleMs"`
	RetryMax        int           `mapstructure:"retryMax"`
	DutyCyclePerSec float64       `mapstructure:"dutyCyclePerSec"` // 每秒允许的发送包数
	DutyCycleBurst  int           `mapstructure:"dutyCycleBurst"`
	DedupeTTL       time.Duration `mapstructure:"dedupeTTL"`
}

// APIAuthConfig API 认证
type APIAuthConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	APIKeys      []string `mapstructure:"apiKeys"`
	ReadOnlyKeys []string `mapstructure:"readOnlyKeys"` // 仅允许 GET
}

// APIRateLimitConfig API 全局限流
type APIRateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requestsPerMin"`
	Burst          int  `mapstructure:"burst"`
}

// APIConfig REST API 配置
type APIConfig struct {
	Auth      APIAuthConfig      `mapstructure:"auth"`
	RateLimit APIRateLimitConfig `mapstructure:"rateLimit"`
}

// PushConfig 第三方 Webhook 推送
type PushConfig struct {
	WebhookURL string        `mapstructure:"webhookUrl"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ThirdpartyConfig 第三方集成
type ThirdpartyConfig struct {
	Push PushConfig `mapstructure:"push"`
}

// Config 顶层配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Serial     SerialConfig     `mapstructure:"serial"`
	Radio      RadioConfig      `mapstructure:"radio"`
	Session    SessionConfig    `mapstructure:"session"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	API        APIConfig        `mapstructure:"api"`
	Thirdparty ThirdpartyConfig `mapstructure:"thirdparty"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 RUI3_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 RUI3_，并将点号替换为下划线
	v.SetEnvPrefix("RUI3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rui3-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "70s") // 阻塞接收接口最长 65s
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baudRate", 115200)
	v.SetDefault("serial.readTimeout", "100ms")
	v.SetDefault("serial.flushOnOpen", true)

	v.SetDefault("radio.revision", "current")
	v.SetDefault("radio.applyOnStart", true)
	v.SetDefault("radio.profile", "")
	v.SetDefault("radio.profilesPath", "")
	v.SetDefault("radio.mode", "p2p")
	v.SetDefault("radio.frequency", 868000000)
	v.SetDefault("radio.spreadingFactor", 7)
	v.SetDefault("radio.bandwidth", "125kHz")
	v.SetDefault("radio.codeRate", "4/5")
	v.SetDefault("radio.preambleLength", 8)
	v.SetDefault("radio.txPower", 14)
	v.SetDefault("radio.encryption", false)
	v.SetDefault("radio.encryptionKey", "")

	v.SetDefault("session.commandTimeout", "1s")
	v.SetDefault("session.retries", 3)
	v.SetDefault("session.retryBackoff", "200ms")
	v.SetDefault("session.pollInterval", "20ms")
	v.SetDefault("session.responseQueue", 4)
	v.SetDefault("session.notificationQueue", 256)
	v.SetDefault("session.breakerThreshold", 5)
	v.SetDefault("session.breakerCooldown", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/rui3-gateway.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "1h")
	v.SetDefault("database.autoMigrate", true)
	v.SetDefault("database.retentionDays", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("gateway.throttleMs", 100)
	v.SetDefault("gateway.retryMax", 3)
	v.SetDefault("gateway.dutyCyclePerSec", 1.0)
	v.SetDefault("gateway.dutyCycleBurst", 3)
	v.SetDefault("gateway.dedupeTTL", "30s")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.requestsPerMin", 600)
	v.SetDefault("api.rateLimit.burst", 20)

	v.SetDefault("thirdparty.push.timeout", "5s")
}

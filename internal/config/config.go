package config

import (
	"os"
	"strconv"
)

// Config 监测引擎配置
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
		MaxConns int
		MaxIdle  int
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 监测引擎特定配置
	Monitor struct {
		// 巡检配置
		SweepInterval int // 后台巡检间隔（秒），默认 300（5分钟）
		SubjectTimeout int // 单个被监护人评估超时（秒），默认 10

		// 摘要规则配置
		SummaryTime   string // 每日摘要时间点，"HH:MM"，为空则关闭摘要规则
		SummaryWindow int    // 摘要规则的读数窗口大小，默认 7

		// Redis 缓存配置
		Cache struct {
			FindingsKeyPrefix string // 最新结果缓存键前缀，如 "carelink:subject:"
			FindingsSuffix    string // 最新结果缓存键后缀，如 ":findings"
			FindingsTTL       int    // 最新结果缓存 TTL（秒），默认 600
		}
	}

	// 邮件网关配置（Dispatcher）
	Mail struct {
		BaseURL    string // 网关地址，为空则不外发
		APIKey     string
		Sender     string
		Timeout    int // 请求超时（秒），默认 10
		RetryCount int // 重试次数，默认 2
	}

	HTTP struct {
		Addr string // 运维接口监听地址，默认 ":8086"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 数据库
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "carelink")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// 监测引擎
	cfg.Monitor.SweepInterval = getEnvInt("MONITOR_SWEEP_INTERVAL", 300)
	cfg.Monitor.SubjectTimeout = getEnvInt("MONITOR_SUBJECT_TIMEOUT", 10)
	cfg.Monitor.SummaryTime = getEnv("MONITOR_SUMMARY_TIME", "")
	cfg.Monitor.SummaryWindow = getEnvInt("MONITOR_SUMMARY_WINDOW", 7)
	cfg.Monitor.Cache.FindingsKeyPrefix = getEnv("CACHE_FINDINGS_PREFIX", "carelink:subject:")
	cfg.Monitor.Cache.FindingsSuffix = ":findings"
	cfg.Monitor.Cache.FindingsTTL = getEnvInt("CACHE_FINDINGS_TTL", 600)

	// 邮件网关
	cfg.Mail.BaseURL = getEnv("MAIL_GATEWAY_URL", "")
	cfg.Mail.APIKey = getEnv("MAIL_GATEWAY_KEY", "")
	cfg.Mail.Sender = getEnv("MAIL_SENDER", "alerts@carelink.local")
	cfg.Mail.Timeout = getEnvInt("MAIL_TIMEOUT", 10)
	cfg.Mail.RetryCount = getEnvInt("MAIL_RETRY_COUNT", 2)

	// HTTP
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8086")

	// 日志
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

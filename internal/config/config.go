package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	// 摄像头状态主题，如 "cameras/+/status"
	StatusTopic string
}

// Config 视频威胁流水线服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string // 监听地址，如 ":8080"
	}

	// 分类器服务（YOLO HTTP 网关）
	Detector struct {
		BaseURL   string
		Timeout   time.Duration // 请求超时（实时路径，须短）
		TargetFPS int           // 每摄像头准入帧率上限
	}

	// 上下文推理服务（LLM）
	Reasoning struct {
		BaseURL string
		Model   string
		Timeout time.Duration
	}

	// 升级协调配置
	Escalation struct {
		Threshold string        // 升级阈值（威胁级别），默认 medium
		Cooldown  time.Duration // 同摄像头两次升级的最小间隔
	}

	// 报警分发配置
	Alert struct {
		Threshold string // 报警阈值（威胁级别），默认 high

		Email struct {
			Enabled  bool
			SMTPHost string
			SMTPPort int
			Username string
			Password string
			From     string
			To       string
		}

		SMS struct {
			Enabled    bool
			AccountSID string
			AuthToken  string
			From       string
			To         string
		}
	}

	// 流水线配置
	Pipeline struct {
		NotableFloor string // 持久化下限（威胁级别），默认 low
	}

	// Redis 缓存配置
	Cache struct {
		RealtimeKeyPrefix string // 实时快照键前缀，如 "vision:camera:"
		RealtimeSuffix    string // 实时快照键后缀，如 ":realtime"
		RealtimeTTL       int    // 实时快照 TTL（秒）
	}

	// 保留策略配置
	Retention struct {
		Days          int           // 检测帧保留天数
		SweepInterval time.Duration // 清理周期
	}

	// 威胁级别映射（label → level），可由 YAML 文件覆盖
	Threat struct {
		Classes        map[string]string
		CrowdThreshold int // 人数达到该值视为聚集
	}

	Log struct {
		Level  string
		Format string
	}
}

// threatMappingFile 威胁映射 YAML 文件结构
type threatMappingFile struct {
	ThreatClasses  map[string]string `yaml:"threat_classes"`
	CrowdThreshold int               `yaml:"crowd_threshold"`
}

// defaultThreatClasses 默认 label → level 映射
func defaultThreatClasses() map[string]string {
	return map[string]string{
		"knife":    "critical",
		"scissors": "critical",
		"gun":      "critical",
		"weapon":   "critical",
		"backpack": "medium",
		"handbag":  "medium",
		"suitcase": "medium",
		"person":   "low",
		"car":      "low",
		"truck":    "low",
		"vehicle":  "low",
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
	cfg.Database.Database = getEnv("DB_NAME", "vision")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	// Redis
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	// MQTT
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-vision")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.StatusTopic = getEnv("MQTT_STATUS_TOPIC", "cameras/+/status")

	// HTTP
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	// 分类器服务
	cfg.Detector.BaseURL = getEnv("DETECTOR_URL", "http://localhost:5002")
	cfg.Detector.Timeout = time.Duration(getEnvInt("DETECTOR_TIMEOUT_MS", 2000)) * time.Millisecond
	cfg.Detector.TargetFPS = getEnvInt("DETECTOR_TARGET_FPS", 10)

	// 推理服务
	cfg.Reasoning.BaseURL = getEnv("REASONING_URL", "http://localhost:11434")
	cfg.Reasoning.Model = getEnv("REASONING_MODEL", "llama3.2")
	cfg.Reasoning.Timeout = time.Duration(getEnvInt("REASONING_TIMEOUT_MS", 20000)) * time.Millisecond

	// 升级协调
	cfg.Escalation.Threshold = getEnv("ESCALATION_THRESHOLD", "medium")
	cfg.Escalation.Cooldown = time.Duration(getEnvInt("ESCALATION_COOLDOWN_SEC", 30)) * time.Second

	// 报警分发
	cfg.Alert.Threshold = getEnv("ALERT_THRESHOLD", "high")
	cfg.Alert.Email.Enabled = getEnvBool("ALERT_EMAIL_ENABLED", true)
	cfg.Alert.Email.SMTPHost = getEnv("SMTP_HOST", "smtp.gmail.com")
	cfg.Alert.Email.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.Alert.Email.Username = getEnv("SMTP_USERNAME", "")
	cfg.Alert.Email.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Alert.Email.From = getEnv("ALERT_EMAIL_FROM", "")
	cfg.Alert.Email.To = getEnv("ALERT_EMAIL_TO", "")
	cfg.Alert.SMS.Enabled = getEnvBool("ALERT_SMS_ENABLED", false)
	cfg.Alert.SMS.AccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.Alert.SMS.AuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.Alert.SMS.From = getEnv("TWILIO_PHONE_NUMBER", "")
	cfg.Alert.SMS.To = getEnv("ADMIN_PHONE", "")

	// 流水线
	cfg.Pipeline.NotableFloor = getEnv("NOTABLE_FLOOR", "low")

	// 缓存
	cfg.Cache.RealtimeKeyPrefix = getEnv("CACHE_REALTIME_PREFIX", "vision:camera:")
	cfg.Cache.RealtimeSuffix = ":realtime"
	cfg.Cache.RealtimeTTL = getEnvInt("CACHE_REALTIME_TTL", 30)

	// 保留策略
	cfg.Retention.Days = getEnvInt("FRAME_RETENTION_DAYS", 30)
	cfg.Retention.SweepInterval = time.Duration(getEnvInt("RETENTION_SWEEP_SEC", 3600)) * time.Second

	// 威胁映射（默认表，可被 YAML 覆盖）
	cfg.Threat.Classes = defaultThreatClasses()
	cfg.Threat.CrowdThreshold = getEnvInt("CROWD_THRESHOLD", 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 可选 YAML 威胁映射文件
	if path := os.Getenv("THREAT_MAPPING_FILE"); path != "" {
		if err := cfg.loadThreatMapping(path); err != nil {
			return nil, fmt.Errorf("failed to load threat mapping file: %w", err)
		}
	}

	return cfg, nil
}

// loadThreatMapping 从 YAML 文件加载威胁映射表
func (c *Config) loadThreatMapping(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file threatMappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}

	if len(file.ThreatClasses) > 0 {
		c.Threat.Classes = file.ThreatClasses
	}
	if file.CrowdThreshold > 0 {
		c.Threat.CrowdThreshold = file.CrowdThreshold
	}

	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

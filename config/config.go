package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Minutes  MinutesConfig  `yaml:"minutes"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"` // debug, release
	AllowOrigins   []string `yaml:"allow_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // 0 表示不限流
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // none, sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	APIURL            string        `yaml:"api_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxRetries        int           `yaml:"max_retries"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	Timeout           time.Duration `yaml:"timeout"`
	WriterTemperature float32       `yaml:"writer_temperature"`
	CriticTemperature float32       `yaml:"critic_temperature"`
}

type MinutesConfig struct {
	Language     string `yaml:"language"`
	DefaultWords int    `yaml:"default_words"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig 返回进程级配置，只在第一次调用时加载
func GetConfig() *Config {
	once.Do(func() {
		// .env 不存在时忽略
		_ = godotenv.Load()

		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config.yaml"
		}
		cfg = Load(configPath)
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8000",
			Mode:           "debug",
			AllowOrigins:   []string{"http://localhost:3000"},
			MaxUploadMB:    20,
			RateLimitBurst: 5,
		},
		Database: DatabaseConfig{
			Type: "none",
			DSN:  "./data/runs.db",
		},
		LLM: LLMConfig{
			APIURL:            "https://api.cohere.ai/compatibility/v1",
			Model:             "command-r-plus",
			MaxTokens:         4096,
			MaxRetries:        1,
			MaxConcurrency:    4,
			Timeout:           5 * time.Minute,
			WriterTemperature: 0.5,
			CriticTemperature: 1.0,
		},
		Minutes: MinutesConfig{
			Language:     "Spanish",
			DefaultWords: 500,
		},
	}
}

// Load 按 默认值 -> 配置文件 -> 环境变量 的顺序构建配置
func Load(path string) *Config {
	config := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Warningf("[Config] 解析配置文件失败 path=%s: %v", path, err)
		}
	}

	// 环境变量优先级高于配置文件
	if apiKey := os.Getenv("COHERE_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if n, ok := envInt("LLM_MAX_RETRIES"); ok {
		config.LLM.MaxRetries = n
	}
	if n, ok := envInt("LLM_MAX_CONCURRENCY"); ok {
		config.LLM.MaxConcurrency = n
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		config.Server.Mode = mode
	}
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		config.Server.AllowOrigins = splitList(origins)
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if lang := os.Getenv("MINUTES_LANGUAGE"); lang != "" {
		config.Minutes.Language = lang
	}
	if n, ok := envInt("MINUTES_DEFAULT_WORDS"); ok {
		config.Minutes.DefaultWords = n
	}

	if config.Minutes.DefaultWords <= 0 {
		config.Minutes.DefaultWords = 500
	}
	if config.LLM.MaxRetries < 0 {
		config.LLM.MaxRetries = 0
	}
	if config.LLM.MaxConcurrency <= 0 {
		config.LLM.MaxConcurrency = 1
	}

	return config
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		klog.Warningf("[Config] 环境变量 %s 不是整数: %q", key, v)
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

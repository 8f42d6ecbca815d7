package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/usersearch/go-services/pkg/logger"
)

// Search backends selectable with SEARCH_BACKEND.
const (
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
	BackendMongo         = "mongo"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Search    SearchConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SearchConfig addresses the search engine. Username/Password are passed
// through to the engine as basic-auth credentials.
type SearchConfig struct {
	Backend   string
	Addresses []string
	Username  string
	Password  string
	Index     string
	Refresh   string
	Timeout   time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SEARCH_BACKEND", BackendElasticsearch)
	v.SetDefault("ES_ADDRESSES", "http://localhost:9200")
	v.SetDefault("ES_INDEX", "users")
	v.SetDefault("ES_REFRESH", "wait_for")
	v.SetDefault("ES_TIMEOUT", 10)
	v.SetDefault("MONGODB_DATABASE", "usersearch")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CACHE_TTL", 0)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("MINIO_BUCKET", "usersearch-exports")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
		},
		Search: SearchConfig{
			Backend:   strings.ToLower(strings.TrimSpace(v.GetString("SEARCH_BACKEND"))),
			Addresses: splitList(v.GetString("ES_ADDRESSES")),
			Username:  v.GetString("ES_USERNAME"),
			Password:  os.Getenv("ES_PASSWORD"),
			Index:     v.GetString("ES_INDEX"),
			Refresh:   v.GetString("ES_REFRESH"),
			Timeout:   time.Duration(v.GetInt("ES_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CacheTTL: time.Duration(v.GetInt("REDIS_CACHE_TTL")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
	}

	switch cfg.Search.Backend {
	case BackendElasticsearch:
		if len(cfg.Search.Addresses) == 0 {
			return nil, fmt.Errorf("ES_ADDRESSES is required for the %s backend", BackendElasticsearch)
		}
	case BackendMongo:
		if cfg.MongoDB.URI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required for the %s backend", BackendMongo)
		}
	case BackendMemory:
		logger.Warnf("SEARCH_BACKEND=memory: users are kept in process memory only")
	default:
		return nil, fmt.Errorf("unknown SEARCH_BACKEND %q", cfg.Search.Backend)
	}
	if cfg.Search.Index == "" {
		return nil, fmt.Errorf("ES_INDEX must not be empty")
	}
	if cfg.Search.Username != "" && cfg.Search.Password == "" {
		logger.Warnf("ES_USERNAME is set without ES_PASSWORD")
	}

	return cfg, nil
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return c.Redis.Host + ":" + c.Redis.Port
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

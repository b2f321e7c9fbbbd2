package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite3://chatbot_memory.db"`

	LangflowBaseURL string        `env:"LANGFLOW_BASE_URL" envDefault:"http://localhost:7860"`
	LangflowFlowID  string        `env:"LANGFLOW_FLOW_ID" envDefault:"7da02070-24ec-4cc2-bb99-e089ce0cc283"`
	LangflowAPIKey  string        `env:"LANGFLOW_API_KEY"`
	LangflowTimeout time.Duration `env:"LANGFLOW_TIMEOUT" envDefault:"20m"`

	HistoryFetchLimit int `env:"HISTORY_FETCH_LIMIT" envDefault:"12"`
	ContextWindow     int `env:"CONTEXT_WINDOW" envDefault:"6"`

	ResponseCacheSize int           `env:"RESPONSE_CACHE_SIZE" envDefault:"256"`
	ResponseCacheTTL  time.Duration `env:"RESPONSE_CACHE_TTL" envDefault:"24h"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	ChatRateLimit  int           `env:"CHAT_RATE_LIMIT" envDefault:"30"`
	ChatRateWindow time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"1m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsesPostgres indica si DATABASE_URL apunta a Postgres en lugar de SQLite.
func (c *Config) UsesPostgres() bool {
	url := strings.ToLower(c.DatabaseURL)
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	ServerHost string

	DBDriver   string // "postgres" or "sqlite"
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// AI collaborator
	AIProvider           string // "openai", "gemini" or "none"
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string
	AITimeout            time.Duration

	// Chat routing
	AssistantName     string
	AssistantMention  string
	AssistantTriggers []string

	// Worker pools
	AIWorkers           int
	AIQueueSize         int
	ProcessingWorkers   int
	ProcessingQueueSize int

	StatusPollInterval  time.Duration
	IdleTimeout         time.Duration
	ChatHistoryLimit    int
	ContextSegmentLimit int

	// Observability
	JaegerEndpoint string
	LogLevel       string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "watchparty"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "watchparty.db"),

		AIProvider:           strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		AITimeout:            time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,

		AssistantName:     getEnv("ASSISTANT_NAME", "AI Assistant"),
		AssistantMention:  strings.ToLower(getEnv("ASSISTANT_MENTION", "@assistant")),
		AssistantTriggers: getEnvList("ASSISTANT_TRIGGERS", []string{"hey assistant", "assistant"}),

		AIWorkers:           getEnvInt("AI_WORKERS", 4),
		AIQueueSize:         getEnvInt("AI_QUEUE_SIZE", 64),
		ProcessingWorkers:   getEnvInt("PROCESSING_WORKERS", 2),
		ProcessingQueueSize: getEnvInt("PROCESSING_QUEUE_SIZE", 32),

		StatusPollInterval:  time.Duration(getEnvInt("STATUS_POLL_SECONDS", 3)) * time.Second,
		IdleTimeout:         time.Duration(getEnvInt("IDLE_TIMEOUT_SECONDS", 300)) * time.Second,
		ChatHistoryLimit:    getEnvInt("CHAT_HISTORY_LIMIT", 50),
		ContextSegmentLimit: getEnvInt("CONTEXT_SEGMENT_LIMIT", 200),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.AIProvider)
	}

	if c.AssistantMention == "" && len(c.AssistantTriggers) == 0 {
		return fmt.Errorf("ASSISTANT_MENTION or ASSISTANT_TRIGGERS must be set")
	}

	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
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

// getEnvList splits a comma-separated variable, lower-casing and trimming each entry.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

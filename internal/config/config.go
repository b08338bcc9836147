// Package config loads server settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	DBPath      string
	StaticDir   string
	CORSOrigins []string

	JWTSecret string
	JWTTTL    time.Duration

	RedisAddr    string
	RedisChannel string
	EventBuffer  int

	OpenAIKey    string
	ImageAPIURL  string
	ImageSize    string
	ImageTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment. All problems are
// collected and reported together.
func Load() (*Config, error) {
	var problems []string

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "./anythink.db"),
		StaticDir:    getEnv("STATIC_DIR", ""),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:    getRequiredEnv("JWT_SECRET", &problems),
		JWTTTL:       getEnvDuration("JWT_TTL", 72*time.Hour, &problems),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "anythink:events"),
		EventBuffer:  getEnvInt("EVENT_BUFFER", 64, &problems),
		OpenAIKey:    getEnv("OPENAI_API_KEY", ""),
		ImageAPIURL:  getEnv("IMAGE_API_URL", "https://api.openai.com/v1/images/generations"),
		ImageSize:    getEnv("IMAGE_SIZE", "256x256"),
		ImageTimeout: getEnvDuration("IMAGE_TIMEOUT", 10*time.Second, &problems),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}

	if cfg.EventBuffer < 1 {
		problems = append(problems, fmt.Sprintf("EVENT_BUFFER must be positive, got %d", cfg.EventBuffer))
	}
	if cfg.JWTTTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	if cfg.ImageTimeout <= 0 {
		problems = append(problems, "IMAGE_TIMEOUT must be positive")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("configuration errors:\n- %s", strings.Join(problems, "\n- "))
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getRequiredEnv(key string, problems *[]string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*problems = append(*problems, fmt.Sprintf("missing required environment variable: %s", key))
		return ""
	}
	return value
}

func getEnvInt(key string, defaultVal int, problems *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("invalid value for %s: expected integer, got %q", key, raw))
		return defaultVal
	}
	return v
}

func getEnvDuration(key string, defaultVal time.Duration, problems *[]string) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("invalid value for %s: expected duration, got %q", key, raw))
		return defaultVal
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds everything the server reads from its environment.
type Config struct {
	Port            string
	DatabaseURL     string
	SessionLifetime time.Duration
	LogLevel        string
	LogPath         string
	SeedDemo        bool

	ExpertWorkflowEnabled      bool
	ExpertPostsRequireApproval bool
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	lifetime, err := envDuration("SESSION_LIFETIME", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:            getEnv("FORUM_PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		SessionLifetime: lifetime,
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPath:         getEnv("LOG_PATH", ""),
		SeedDemo:        envBool("FORUM_SEED_DEMO", false),

		ExpertWorkflowEnabled:      envBool("EXPERT_WORKFLOW_ENABLED", true),
		ExpertPostsRequireApproval: envBool("EXPERT_POSTS_REQUIRE_APPROVAL", false),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.SessionLifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	return nil
}

func (c Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	GeminiModel  string

	DatabaseDriver   string
	DatabaseURL      string
	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string

	HTTPPort        string
	LogLevel        string
	JWTSecret       string
	TokenExpiration time.Duration
	AllowedOrigins  []string

	UploadDir      string
	MaxUploadMB    int64
	LLMTimeout     time.Duration
	DBTimeout      time.Duration
	SessionIdleTTL time.Duration
}

// secretsFile mirrors the layout of secrets.toml.
type secretsFile struct {
	Database struct {
		Driver   string `toml:"driver"`
		DSN      string `toml:"dsn"`
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		User     string `toml:"user"`
		Password string `toml:"password"`
		Name     string `toml:"name"`
	} `toml:"database"`
	Google struct {
		APIKey string `toml:"api_key"`
	} `toml:"google"`
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg
}

// Load builds a Config from the optional secrets file and the process environment.
// Environment variables win over the secrets file.
func Load() (Config, error) {
	var secrets secretsFile
	secretsPath := getEnv("SECRETS_FILE", "secrets.toml")
	if _, err := toml.DecodeFile(secretsPath, &secrets); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read secrets file %s: %w", secretsPath, err)
	}

	cfg := Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", secrets.Google.APIKey),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		DatabaseDriver:   getEnv("DATABASE_DRIVER", orDefault(secrets.Database.Driver, "sqlite3")),
		DatabaseURL:      getEnv("DATABASE_URL", secrets.Database.DSN),
		DatabaseHost:     getEnv("DB_HOST", orDefault(secrets.Database.Host, "localhost")),
		DatabasePort:     getEnvAsInt("DB_PORT", secrets.Database.Port),
		DatabaseUser:     getEnv("DB_USER", secrets.Database.User),
		DatabasePassword: getEnv("DB_PASSWORD", secrets.Database.Password),
		DatabaseName:     getEnv("DB_NAME", secrets.Database.Name),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenExpiration: time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 12)) * time.Hour,
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadMB:    int64(getEnvAsInt("MAX_UPLOAD_MB", 32)),
		LLMTimeout:     time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		DBTimeout:      time.Duration(getEnvAsInt("DB_TIMEOUT_SECONDS", 5)) * time.Second,
		SessionIdleTTL: time.Duration(getEnvAsInt("SESSION_IDLE_MINUTES", 60)) * time.Minute,
	}

	if cfg.DatabaseURL == "" {
		dsn, err := cfg.buildDSN()
		if err != nil {
			return Config{}, err
		}
		cfg.DatabaseURL = dsn
	}
	return cfg, nil
}

// ValidateServer checks the secrets the HTTP server needs. Offline commands such
// as user provisioning only need the database settings.
func (c Config) ValidateServer() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	return nil
}

func (c Config) buildDSN() (string, error) {
	switch c.DatabaseDriver {
	case "sqlite3":
		return "bids_assistant.db", nil
	case "mysql":
		port := c.DatabasePort
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, port, c.DatabaseName), nil
	case "postgres":
		port := c.DatabasePort
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.DatabaseUser, c.DatabasePassword),
			Host:   net.JoinHostPort(c.DatabaseHost, strconv.Itoa(port)),
			Path:   "/" + c.DatabaseName,
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

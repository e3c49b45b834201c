package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
	StoreMongo     = "mongo"

	PredictionStructured = "structured"
	PredictionText       = "text"
)

type Config struct {
	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	LLMTimeout        time.Duration
	PredictionFormat  string
	RequireTimeframes bool
	ReplyMaxSentences int

	// Storage
	StoreBackend       string
	DatabaseURL        string
	FirestoreProjectID string
	MongoURI           string
	MongoDatabase      string

	// Live updates. Empty RedisAddr keeps fan-out in process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google sign-in
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge time.Duration
	CookieSecure  bool

	HTTPPort           string
	LogLevel           slog.Level
	RateLimitPerMinute int
	// DisplayLocation formats message times on the page.
	DisplayLocation *time.Location
}

// Load reads configuration from the environment. A .env file and an optional
// YAML file named by CONFIG_FILE are consulted first; real environment
// variables always win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}

	l := &loader{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		l.file = values
	}

	cfg := &Config{
		GeminiAPIKey:       l.str("GEMINI_API_KEY", ""),
		GeminiModel:        l.str("GEMINI_MODEL", "gemini-2.5-flash"),
		PredictionFormat:   strings.ToLower(l.str("PREDICTION_FORMAT", PredictionStructured)),
		RequireTimeframes:  l.boolean("PREDICTION_REQUIRE_TIMEFRAMES", true),
		ReplyMaxSentences:  l.integer("REPLY_MAX_SENTENCES", 3),
		StoreBackend:       strings.ToLower(l.str("STORE_BACKEND", StoreSQLite)),
		DatabaseURL:        l.str("DATABASE_URL", "astrologer.db"),
		FirestoreProjectID: l.str("FIRESTORE_PROJECT_ID", ""),
		MongoURI:           l.str("MONGO_URI", ""),
		MongoDatabase:      l.str("MONGO_DATABASE", "astrologer"),
		RedisAddr:          l.str("REDIS_ADDR", ""),
		RedisPassword:      l.str("REDIS_PASSWORD", ""),
		RedisDB:            l.integer("REDIS_DB", 0),
		GoogleClientID:     l.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: l.str("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  l.str("GOOGLE_REDIRECT_URL", ""),
		SessionSecret:      l.str("SESSION_SECRET", ""),
		SessionMaxAge:      l.duration("SESSION_MAX_AGE", 24*time.Hour),
		HTTPPort:           l.str("HTTP_PORT", "8080"),
		RateLimitPerMinute: l.integer("RATE_LIMIT_PER_MINUTE", 20),
		LLMTimeout:         l.duration("LLM_TIMEOUT", 60*time.Second),
	}
	cfg.CookieSecure = l.boolean("COOKIE_SECURE", strings.HasPrefix(cfg.GoogleRedirectURL, "https://"))

	var missing []string
	for key, val := range map[string]string{
		"GEMINI_API_KEY":       cfg.GeminiAPIKey,
		"SESSION_SECRET":       cfg.SessionSecret,
		"GOOGLE_CLIENT_ID":     cfg.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": cfg.GoogleClientSecret,
		"GOOGLE_REDIRECT_URL":  cfg.GoogleRedirectURL,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	switch cfg.StoreBackend {
	case StoreSQLite:
	case StoreFirestore:
		if cfg.FirestoreProjectID == "" {
			missing = append(missing, "FIRESTORE_PROJECT_ID")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.PredictionFormat != PredictionStructured && cfg.PredictionFormat != PredictionText {
		return nil, fmt.Errorf("invalid PREDICTION_FORMAT %q", cfg.PredictionFormat)
	}
	if cfg.ReplyMaxSentences < 1 {
		return nil, fmt.Errorf("REPLY_MAX_SENTENCES must be positive, got %d", cfg.ReplyMaxSentences)
	}

	level, err := parseLogLevel(l.str("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	loc, err := time.LoadLocation(l.str("DISPLAY_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}
	cfg.DisplayLocation = loc

	return cfg, nil
}

type loader struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return values, nil
}

func (l *loader) str(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	if value, ok := l.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) integer(key string, defaultValue int) int {
	if value, err := strconv.Atoi(l.str(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func (l *loader) boolean(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(l.str(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(l.str(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mpaterson/bulwark/internal/models"
)

type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Auth       AuthConfig
	Protection ProtectionConfig
	Audit      AuditConfig
	Email      EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	// Transport-level request cap per IP, in front of the engine's own
	// sliding-window limiter.
	AuthRequestsPerMinute int
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
	Pepper      string
	// Timing equalizer applied to refusal paths.
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

type ProtectionConfig struct {
	// ActiveSet is the enabled subset of defense mechanisms.
	ActiveSet models.ProtectionSet

	MaxFailedAttempts int
	LockoutDuration   time.Duration

	ChallengeThreshold  int
	ChallengeCodeLength int
	ChallengeTTL        time.Duration

	SecondFactorMode string // "static" or "totp"
	TOTPIssuer       string

	RateLimitMaxPerWindow int
	RateLimitWindow       time.Duration

	CleanupInterval time.Duration
}

type AuditConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Retention  time.Duration
}

type EmailConfig struct {
	LockoutAlertsEnabled bool
	AWSRegion            string
	FromAddress          string
	AlertAddress         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	activeSet, err := models.NewProtectionSet(strings.Split(getEnv("PROTECTION_MODES", "none"), ","))
	if err != nil {
		return nil, err
	}

	secondFactorMode := getEnv("SECOND_FACTOR_MODE", "static")
	if secondFactorMode != "static" && secondFactorMode != "totp" {
		return nil, fmt.Errorf("SECOND_FACTOR_MODE must be \"static\" or \"totp\", got %q", secondFactorMode)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bulwark"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:                  getEnv("PORT", "8080"),
			Env:                   env,
			LogLevel:              getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:        parseAllowedOrigins(env),
			ReadTimeout:           getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:          getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:           getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AuthRequestsPerMinute: getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 60),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			TokenExpiry:         getEnvAsDuration("TOKEN_EXPIRY", 24*time.Hour),
			Pepper:              getEnv("PEPPER", "default-pepper"),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 0),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 0),
		},
		Protection: ProtectionConfig{
			ActiveSet:             activeSet,
			MaxFailedAttempts:     getEnvAsInt("MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:       getEnvAsDuration("LOCKOUT_DURATION", 3*time.Minute),
			ChallengeThreshold:    getEnvAsInt("CHALLENGE_THRESHOLD", 3),
			ChallengeCodeLength:   getEnvAsInt("CHALLENGE_CODE_LENGTH", 5),
			ChallengeTTL:          getEnvAsDuration("CHALLENGE_TTL", 5*time.Minute),
			SecondFactorMode:      secondFactorMode,
			TOTPIssuer:            getEnv("TOTP_ISSUER", "bulwark"),
			RateLimitMaxPerWindow: getEnvAsInt("RATE_LIMIT_MAX_PER_WINDOW", 10),
			RateLimitWindow:       getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Audit: AuditConfig{
			FilePath:   getEnv("ATTEMPT_LOG_FILE", "attempts.log"),
			MaxSizeMB:  getEnvAsInt("ATTEMPT_LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("ATTEMPT_LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("ATTEMPT_LOG_MAX_AGE_DAYS", 30),
			Retention:  getEnvAsDuration("ATTEMPT_RETENTION", 30*24*time.Hour),
		},
		Email: EmailConfig{
			LockoutAlertsEnabled: getEnvAsBool("LOCKOUT_ALERTS_ENABLED", false),
			AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
			FromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
			AlertAddress:         getEnv("SECURITY_ALERT_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Email.LockoutAlertsEnabled && (cfg.Email.FromAddress == "" || cfg.Email.AlertAddress == "") {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS and SECURITY_ALERT_ADDRESS are required when lockout alerts are enabled")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}

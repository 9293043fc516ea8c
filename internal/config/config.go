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
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	TwoFactor TwoFactorConfig
	Email     EmailConfig
	Risk      RiskConfig
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

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret              string
	AccessTokenExpiry      time.Duration
	RefreshTokenExpiry     time.Duration
	RememberMeExpiry       time.Duration
	TOTPEncryptionKey      string // 32 bytes for AES-256-GCM
	TimingDelayBaseMs      int
	TimingDelayRandomMs    int
	CleanupInterval        time.Duration
	LoginAttemptRetention  time.Duration
}

type RateLimitConfig struct {
	Window       time.Duration
	MaxAttempts  int
	Lockout      time.Duration
	FailOpen     bool
	ResendWindow time.Duration
}

type TwoFactorConfig struct {
	CodeLength  int
	CodeExpiry  time.Duration
	MaxAttempts int
	Issuer      string // TOTP provisioning issuer name
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

type RiskConfig struct {
	BlockedIPs []string // IPs scored as known-bad by the risk engine
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "lumenclass"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:             jwtSecret,
			AccessTokenExpiry:     getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:    getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			RememberMeExpiry:      getEnvAsDuration("REMEMBER_ME_EXPIRY", 30*24*time.Hour),
			TOTPEncryptionKey:     getEnv("TOTP_ENCRYPTION_KEY", ""),
			TimingDelayBaseMs:     getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:   getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			CleanupInterval:       getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			LoginAttemptRetention: getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 90*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Window:       getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxAttempts:  getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Lockout:      getEnvAsDuration("RATE_LIMIT_LOCKOUT", 15*time.Minute),
			FailOpen:     getEnvAsBool("RATE_LIMIT_FAIL_OPEN", true),
			ResendWindow: getEnvAsDuration("TWO_FACTOR_RESEND_WINDOW", 30*time.Second),
		},
		TwoFactor: TwoFactorConfig{
			CodeLength:  getEnvAsInt("TWO_FACTOR_CODE_LENGTH", 6),
			CodeExpiry:  getEnvAsDuration("TWO_FACTOR_CODE_EXPIRY", 10*time.Minute),
			MaxAttempts: getEnvAsInt("TWO_FACTOR_MAX_ATTEMPTS", 5),
			Issuer:      getEnv("TOTP_ISSUER", "Lumenclass"),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "security@lumenclass.io"),
		},
		Risk: RiskConfig{
			BlockedIPs: parseList(getEnv("RISK_BLOCKED_IPS", "")),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if len(cfg.Auth.TOTPEncryptionKey) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be exactly 32 bytes (got %d)", len(cfg.Auth.TOTPEncryptionKey))
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
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

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseList(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}

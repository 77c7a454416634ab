package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-in-production"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Storage   StorageConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
	ClientURL      string // base URL of the frontend, used in emailed links
	TrustProxy     bool   // honour X-Forwarded-For; only behind a proxy that sets it
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret            string
	AccessTTLMinutes  int
	RefreshTTLDays    int
	ResetTTLMinutes   int
	LogoutRevokeHours int
}

type AuthConfig struct {
	BcryptCost        int
	InviteTTLMinutes  int
	InvitePurgeCron   string
	CookieSecure      bool
	RefreshCookieName string
}

// StorageConfig holds S3-compatible object storage settings for uploaded logos.
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	PublicURL    string
	UsePathStyle bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLMinutes) * time.Minute
}

func (j *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLDays) * 24 * time.Hour
}

func (j *JWTConfig) ResetTTL() time.Duration {
	return time.Duration(j.ResetTTLMinutes) * time.Minute
}

func (j *JWTConfig) LogoutRevokeTTL() time.Duration {
	return time.Duration(j.LogoutRevokeHours) * time.Hour
}

func (a *AuthConfig) InviteTTL() time.Duration {
	return time.Duration(a.InviteTTLMinutes) * time.Minute
}

func (s *StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

func (s *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// Validate rejects settings that are only acceptable on a developer machine.
func (c *Config) Validate() error {
	if !c.Server.IsDevelopment() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be set outside development")
	}
	if c.Auth.BcryptCost < 10 {
		return fmt.Errorf("BCRYPT_COST must be at least 10, got %d", c.Auth.BcryptCost)
	}
	if c.JWT.AccessTTLMinutes <= 0 || c.JWT.RefreshTTLDays <= 0 || c.JWT.ResetTTLMinutes <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.InviteTTLMinutes <= 0 {
		return errors.New("INVITE_TTL_MINUTES must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("SERVER_TRUST_PROXY", false)
	v.SetDefault("APP_CLIENT_URL", "http://localhost:3000")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "nexura")
	v.SetDefault("DATABASE_PASSWORD", "nexura_secret")
	v.SetDefault("DATABASE_NAME", "nexura")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ACCESS_TTL_MINUTES", 60)
	v.SetDefault("JWT_REFRESH_TTL_DAYS", 30)
	v.SetDefault("JWT_RESET_TTL_MINUTES", 10)
	v.SetDefault("LOGOUT_REVOKE_TTL_HOURS", 168)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("INVITE_TTL_MINUTES", 5)
	v.SetDefault("INVITE_PURGE_CRON", "*/10 * * * *")
	v.SetDefault("REFRESH_COOKIE_NAME", "refreshToken")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_PATH_STYLE", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "Nexura <no-reply@nexura.xyz>")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	env := v.GetString("SERVER_ENV")
	v.SetDefault("COOKIE_SECURE", env != "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            env,
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
			ClientURL:      strings.TrimRight(v.GetString("APP_CLIENT_URL"), "/"),
			TrustProxy:     v.GetBool("SERVER_TRUST_PROXY"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:            v.GetString("JWT_SECRET"),
			AccessTTLMinutes:  v.GetInt("JWT_ACCESS_TTL_MINUTES"),
			RefreshTTLDays:    v.GetInt("JWT_REFRESH_TTL_DAYS"),
			ResetTTLMinutes:   v.GetInt("JWT_RESET_TTL_MINUTES"),
			LogoutRevokeHours: v.GetInt("LOGOUT_REVOKE_TTL_HOURS"),
		},
		Auth: AuthConfig{
			BcryptCost:        v.GetInt("BCRYPT_COST"),
			InviteTTLMinutes:  v.GetInt("INVITE_TTL_MINUTES"),
			InvitePurgeCron:   v.GetString("INVITE_PURGE_CRON"),
			CookieSecure:      v.GetBool("COOKIE_SECURE"),
			RefreshCookieName: v.GetString("REFRESH_COOKIE_NAME"),
		},
		Storage: StorageConfig{
			Bucket:       v.GetString("S3_BUCKET"),
			Region:       v.GetString("S3_REGION"),
			Endpoint:     v.GetString("S3_ENDPOINT"),
			AccessKey:    v.GetString("S3_ACCESS_KEY"),
			SecretKey:    v.GetString("S3_SECRET_KEY"),
			PublicURL:    strings.TrimRight(v.GetString("S3_PUBLIC_URL"), "/"),
			UsePathStyle: v.GetBool("S3_USE_PATH_STYLE"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
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

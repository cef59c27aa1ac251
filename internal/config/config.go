package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	InternalToken          string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	DocumentGraceWindow    time.Duration
	DocumentMaxSizeMB      int
	UnbindCooldown         time.Duration
	RejectionThreshold     int
	EventChannelBase       string
	StatusCacheTTL         time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SUPERVISION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Supervision API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "supervision/letters")
	v.SetDefault("document.grace_days", 21)
	v.SetDefault("document.max_size_mb", 10)
	v.SetDefault("unbind.cooldown_days", 30)
	v.SetDefault("unbind.rejection_threshold", 3)
	v.SetDefault("events.channel", "supervision")
	v.SetDefault("status.cache_ttl", "2m")

	cacheTTLString := v.GetString("status.cache_ttl")
	if cacheTTLString == "" {
		cacheTTLString = "2m"
	}

	cacheTTL, err := time.ParseDuration(cacheTTLString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid status cache ttl: %w", err)
	}

	// Institution rules allow 14-30 days for the supervision letter;
	// values configured outside that range are clamped.
	graceDays := v.GetInt("document.grace_days")
	if graceDays < 14 {
		graceDays = 14
	}
	if graceDays > 30 {
		graceDays = 30
	}

	cooldownDays := v.GetInt("unbind.cooldown_days")
	if cooldownDays <= 0 {
		cooldownDays = 30
	}

	threshold := v.GetInt("unbind.rejection_threshold")
	if threshold <= 0 {
		threshold = 3
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		InternalToken:          v.GetString("internal.token"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		DocumentGraceWindow:    time.Duration(graceDays) * 24 * time.Hour,
		DocumentMaxSizeMB:      v.GetInt("document.max_size_mb"),
		UnbindCooldown:         time.Duration(cooldownDays) * 24 * time.Hour,
		RejectionThreshold:     threshold,
		EventChannelBase:       v.GetString("events.channel"),
		StatusCacheTTL:         cacheTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DocumentMaxSizeMB <= 0 {
		cfg.DocumentMaxSizeMB = 10
	}

	return cfg, nil
}

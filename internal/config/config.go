package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`

	// Local media storage. Attached files are written under MediaRoot and the
	// database keeps the path relative to it.
	MediaRoot string `mapstructure:"MEDIA_ROOT"`

	// Object storage (S3-compatible, e.g. DigitalOcean Spaces).
	UploadEnabled     bool   `mapstructure:"UPLOAD_ENABLED"`
	SpacesEndpoint    string `mapstructure:"SPACES_ENDPOINT"`
	SpacesRegion      string `mapstructure:"SPACES_REGION"`
	SpacesBucket      string `mapstructure:"SPACES_BUCKET"`
	SpacesAccessKey   string `mapstructure:"SPACES_ACCESS_KEY"`
	SpacesSecretKey   string `mapstructure:"SPACES_SECRET_KEY"`
	SpacesLocation    string `mapstructure:"SPACES_LOCATION"`
	UploadWorkers     int    `mapstructure:"UPLOAD_WORKERS"`
	UploadQueueSize   int    `mapstructure:"UPLOAD_QUEUE_SIZE"`
	UploadTimeoutSecs int    `mapstructure:"UPLOAD_TIMEOUT_SECS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MEDIA_ROOT", "./media")
	v.SetDefault("SPACES_LOCATION", "media")
	v.SetDefault("SPACES_REGION", "nyc3")
	v.SetDefault("UPLOAD_WORKERS", 4)
	v.SetDefault("UPLOAD_QUEUE_SIZE", 256)
	v.SetDefault("UPLOAD_TIMEOUT_SECS", 60)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
		"JWT_SECRET", "MEDIA_ROOT", "UPLOAD_ENABLED",
		"SPACES_ENDPOINT", "SPACES_REGION", "SPACES_BUCKET",
		"SPACES_ACCESS_KEY", "SPACES_SECRET_KEY", "SPACES_LOCATION",
		"UPLOAD_WORKERS", "UPLOAD_QUEUE_SIZE", "UPLOAD_TIMEOUT_SECS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active - all requests get admin access.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real token verification source must be configured, and enabling the
// upload pipeline requires complete object-storage settings.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf("one of JWT_SECRET, AUTH_JWKS_URL or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}

	// An issuer alone gives no key to verify tokens with. Staging may still
	// run that way against a gateway; production may not.
	if c.IsProduction() && c.JWTSecret == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("JWT_SECRET or AUTH_JWKS_URL must be set when ENV=production")
	}

	if c.UploadEnabled {
		if c.SpacesBucket == "" {
			return fmt.Errorf("SPACES_BUCKET is required when UPLOAD_ENABLED is true")
		}
		if c.SpacesEndpoint == "" {
			return fmt.Errorf("SPACES_ENDPOINT is required when UPLOAD_ENABLED is true")
		}
		if c.SpacesAccessKey == "" || c.SpacesSecretKey == "" {
			return fmt.Errorf("SPACES_ACCESS_KEY and SPACES_SECRET_KEY are required when UPLOAD_ENABLED is true")
		}
	}

	if c.UploadWorkers <= 0 {
		return fmt.Errorf("UPLOAD_WORKERS must be positive, got %d", c.UploadWorkers)
	}
	if c.UploadQueueSize <= 0 {
		return fmt.Errorf("UPLOAD_QUEUE_SIZE must be positive, got %d", c.UploadQueueSize)
	}

	return nil
}

package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
	Storage      StorageConfig
	RabbitMQ     RabbitMQConfig
	Order        OrderConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// StorageConfig selects the S3 bucket product images are written to. With no
// bucket, images can be listed but not uploaded or deleted.
type StorageConfig struct {
	Bucket          string `usage:"S3 bucket for product images"`
	Region          string `default:"us-east-1" usage:"S3 region"`
	Endpoint        string `usage:"Custom S3 endpoint, e.g. MinIO"`
	AccessKeyID     string `usage:"Static S3 access key; default credential chain when empty"`
	SecretAccessKey string `usage:"Static S3 secret key"`
	PublicBaseURL   string `usage:"Base URL image links are built from (CDN)"`
	UsePathStyle    bool   `default:"false" usage:"Address objects as endpoint/bucket/key"`
	MaxUploadSize   int    `default:"5242880" usage:"Largest accepted image in bytes"`
}

// RabbitMQConfig controls order event publishing. Events are dropped when
// URL is empty.
type RabbitMQConfig struct {
	URL      string `usage:"AMQP connection URL"`
	Exchange string `default:"storefront.orders" usage:"Topic exchange order events are published to"`
	PoolSize int    `default:"4" usage:"Number of pooled AMQP channels"`
}

// OrderConfig controls order numbering and status transitions.
type OrderConfig struct {
	NumberPrefix string `default:"ORD" usage:"Prefix of generated order numbers"`
	Transitions  string `default:"unrestricted" usage:"Status transition policy: unrestricted or forward_only"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := order.PolicyByName(c.Order.Transitions); err != nil {
		return errors.Wrap(err, "order transitions")
	}
	if c.Storage.MaxUploadSize < 0 {
		return errors.New("storage max upload size must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

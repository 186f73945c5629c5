package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the API server configuration, loadable from environment
// variables (NURSERY_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (NURSERY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `env:"JWT_SECRET" usage:"HS256 secret bearer tokens are signed with" flag:"jwt-secret"`
	Razorpay    RazorpayConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RazorpayConfig holds payment provider credentials.
type RazorpayConfig struct {
	KeyID     string        `usage:"Provider key id shown to the checkout widget" flag:"razorpay-key-id"`
	KeySecret string        `usage:"Provider key secret" flag:"razorpay-key-secret"`
	BaseURL   string        `default:"https://api.razorpay.com/v1" usage:"Provider API base URL" flag:"razorpay-base-url"`
	Currency  string        `default:"INR" usage:"Currency orders are charged in"`
	Timeout   time.Duration `default:"10s" usage:"Provider request timeout"`
}

// KafkaConfig selects where order events go. Without brokers events are
// dropped.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"nursery.orders" usage:"Order events topic"`
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

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "NURSERY",
		Files:     []string{"config.yaml", "/etc/nursery/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set NURSERY_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("jwt secret is required: set NURSERY_JWT_SECRET")
	case c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "":
		return errors.New("razorpay credentials are required")
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables hosting
// platforms set to the NURSERY_ configuration.
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

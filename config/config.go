package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port        string
	AppURL      string
	FrontendURL string
	CORSOrigins []string

	StoreDriver       string
	MongoURI          string
	DBName            string
	MongoTransactions bool
	StoreTimeout      time.Duration

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration
	PaymentProvider       string
	UPIID                 string
	UPIName               string

	AdminUsername string
	AdminPassword string
	JWTSecret     string
	JWTTTL        time.Duration

	SessionRateLimit int
	PaymentRateLimit int
	RateLimitWindow  time.Duration

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	ZeptoAPIURL string
	ZeptoAPIKey string
	EmailFrom   string

	LogLevel  string
	LogFormat string
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("app_url", "http://localhost:8080")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("store_driver", DriverMongo)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("db_name", "giftpots")
	v.SetDefault("mongo_transactions", true)
	v.SetDefault("store_timeout", "5s")
	v.SetDefault("razorpay_base_url", "https://api.razorpay.com")
	v.SetDefault("gateway_timeout", "15s")
	v.SetDefault("payment_provider", "razorpay")
	v.SetDefault("admin_username", "admin")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("session_rate_limit", 20)
	v.SetDefault("payment_rate_limit", 10)
	v.SetDefault("rate_limit_window", "1m")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads .env, then an optional config.yaml, then the environment.
// Environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config.yaml")
		}
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("port"),
		AppURL:      strings.TrimRight(v.GetString("app_url"), "/"),
		FrontendURL: strings.TrimRight(v.GetString("frontend_url"), "/"),
		CORSOrigins: splitList(v.GetString("cors_origins")),

		StoreDriver:       strings.ToLower(v.GetString("store_driver")),
		MongoURI:          v.GetString("mongo_uri"),
		DBName:            v.GetString("db_name"),
		MongoTransactions: v.GetBool("mongo_transactions"),
		StoreTimeout:      v.GetDuration("store_timeout"),

		RazorpayKeyID:         v.GetString("razorpay_key_id"),
		RazorpayKeySecret:     v.GetString("razorpay_key_secret"),
		RazorpayWebhookSecret: v.GetString("razorpay_webhook_secret"),
		RazorpayBaseURL:       v.GetString("razorpay_base_url"),
		GatewayTimeout:        v.GetDuration("gateway_timeout"),
		PaymentProvider:       v.GetString("payment_provider"),
		UPIID:                 v.GetString("upi_id"),
		UPIName:               v.GetString("upi_name"),

		AdminUsername: v.GetString("admin_username"),
		AdminPassword: v.GetString("admin_password"),
		JWTSecret:     v.GetString("jwt_secret"),
		JWTTTL:        v.GetDuration("jwt_ttl"),

		SessionRateLimit: v.GetInt("session_rate_limit"),
		PaymentRateLimit: v.GetInt("payment_rate_limit"),
		RateLimitWindow:  v.GetDuration("rate_limit_window"),

		CloudinaryCloudName: v.GetString("cloudinary_cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary_api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary_api_secret"),

		ZeptoAPIURL: v.GetString("zepto_api_url"),
		ZeptoAPIKey: v.GetString("zepto_api_key"),
		EmailFrom:   v.GetString("email_from"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with. Missing payment
// secrets are not fatal: the affected endpoints reject every request.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" || c.DBName == "" {
			return errors.New("MONGO_URI and DB_NAME are required for the mongo store")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SessionRateLimit < 0 || c.PaymentRateLimit < 0 {
		return errors.New("rate limits cannot be negative")
	}
	if c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive")
	}
	if c.AdminPassword != "" && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when ADMIN_PASSWORD is set")
	}
	return nil
}

// Warnings lists optional integrations that are switched off.
func (c *Config) Warnings() []string {
	var out []string
	if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
		out = append(out, "RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET not set, gateway calls will fail")
	}
	if c.RazorpayWebhookSecret == "" {
		out = append(out, "RAZORPAY_WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	if c.AdminPassword == "" {
		out = append(out, "ADMIN_PASSWORD not set, admin login is disabled")
	}
	if !c.CloudinaryEnabled() {
		out = append(out, "Cloudinary not configured, image uploads are disabled")
	}
	if !c.MailEnabled() {
		out = append(out, "ZeptoMail not configured, receipts will not be emailed")
	}
	return out
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func (c *Config) MailEnabled() bool {
	return c.ZeptoAPIURL != "" && c.ZeptoAPIKey != "" && c.EmailFrom != ""
}

// SetupLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func (c *Config) SetupLogging() {
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", c.LogLevel).Warn("unknown log level, using info")
		log.SetLevel(log.InfoLevel)
	}
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

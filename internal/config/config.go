package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds the credential for the key-issuing endpoints.
type AdminConfig struct {
	MasterKey string `yaml:"master_key"`
}

// RegistrationConfig bounds self-service sign ups per source address.
type RegistrationConfig struct {
	MaxPerWindow int    `yaml:"max_per_window"`
	Window       string `yaml:"window"`
	RedisAddr    string `yaml:"redis_addr"`
}

// WindowDuration parses Window, falling back to one hour.
func (r RegistrationConfig) WindowDuration() time.Duration {
	d, err := time.ParseDuration(r.Window)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// TierConfig is the request quota attached to a tier.
type TierConfig struct {
	DailyLimit   int `yaml:"daily_limit"`
	MonthlyLimit int `yaml:"monthly_limit"`
}

// StripeConfig holds payment provider credentials and the price table.
type StripeConfig struct {
	SecretKey      string `yaml:"secret_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	DashboardPrice string `yaml:"dashboard_price"`
	// Prices maps a provider price id to a tier name.
	Prices      map[string]string `yaml:"prices"`
	DefaultTier string            `yaml:"default_tier"`
	Currency    string            `yaml:"currency"`
}

// VectorConfig points at the vector store HTTP API.
type VectorConfig struct {
	URL         string   `yaml:"url"`
	Timeout     string   `yaml:"timeout"`
	Collections []string `yaml:"collections"`
}

// TimeoutDuration parses Timeout, falling back to ten seconds.
func (v VectorConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(v.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

type PDFConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	MaxPages int   `yaml:"max_pages"`
	MaxChars int   `yaml:"max_chars"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config holds the configuration for the API server.
type Config struct {
	Database        DatabaseConfig        `yaml:"database"`
	AggregateDBPath string                `yaml:"aggregate_db_path"`
	Admin           AdminConfig           `yaml:"admin"`
	Registration    RegistrationConfig    `yaml:"registration"`
	Tiers           map[string]TierConfig `yaml:"tiers"`
	Stripe          StripeConfig          `yaml:"stripe"`
	Vector          VectorConfig          `yaml:"vector"`
	PDF             PDFConfig             `yaml:"pdf"`
	CORS            CORSConfig            `yaml:"cors"`
	// TrustedProxies lists the proxies whose forwarding headers are believed.
	// Empty means the socket peer is the client address.
	TrustedProxies  []string              `yaml:"trusted_proxies"`
	Port            int                   `yaml:"port"`
	Debug           bool                  `yaml:"debug"`
}

// Default price ids of the hosted checkout products.
const (
	DefaultBasicPrice     = "price_1SzPt7LnWY7IoSqm5YXJEHwy"
	DefaultProPrice       = "price_1SzPtMLnWY7IoSqm83uF3GM0"
	DefaultRevenuePrice   = "price_1T0LN1LnWY7IoSqmOIELPsqF"
	DefaultDashboardPrice = "price_1T1MFxLnWY7IoSqmd8R3pGJV"
)

// DefaultTiers is the quota table used when the config file has none.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"free":        {DailyLimit: 100, MonthlyLimit: 3000},
		"basic":       {DailyLimit: 1000, MonthlyLimit: 30000},
		"pro":         {DailyLimit: 10000, MonthlyLimit: 300000},
		"revenue_api": {DailyLimit: 5000, MonthlyLimit: 150000},
	}
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// A missing file leaves everything to defaults and environment variables.

	if len(config.Stripe.Prices) == 0 {
		config.Stripe.Prices = map[string]string{
			DefaultBasicPrice:   "basic",
			DefaultProPrice:     "pro",
			DefaultRevenuePrice: "revenue_api",
		}
	}
	applyEnv(&config)

	if config.Database.Type == "" && config.Database.DSN == "" {
		config.Database = DatabaseConfig{Type: "sqlite", DSN: "brain.db"}
		warnings = append(warnings, "database not configured, using sqlite file brain.db")
	}
	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured together")
	}

	warnings = append(warnings, applyDefaults(&config)...)

	if err := validate(&config); err != nil {
		return nil, "", err
	}

	return &config, strings.Join(warnings, "; "), nil
}

func applyEnv(config *Config) {
	if dsn := os.Getenv("BRAINAPI_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("BRAINAPI_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("BRAINAPI_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("BRAINAPI_DEBUG"); debug != "" {
		config.Debug = debug == "true"
	}
	if addr := os.Getenv("BRAINAPI_REDIS_ADDR"); addr != "" {
		config.Registration.RedisAddr = addr
	}
	if key := firstEnv("BRAINAPI_ADMIN_MASTER_KEY", "ADMIN_MASTER_KEY"); key != "" {
		config.Admin.MasterKey = key
	}
	if path := firstEnv("BRAINAPI_AGGREGATE_DB_PATH", "AGGREGATED_DB_PATH"); path != "" {
		config.AggregateDBPath = path
	}
	if url := firstEnv("BRAINAPI_VECTOR_URL", "CHROMA_URL"); url != "" {
		config.Vector.URL = url
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = splitList(origins)
	}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		config.TrustedProxies = splitList(proxies)
	}
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		config.Stripe.SecretKey = key
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		config.Stripe.WebhookSecret = secret
	}
	if price := os.Getenv("STRIPE_DASHBOARD_PRICE"); price != "" {
		config.Stripe.DashboardPrice = price
	}
	// An env price replaces the built-in price id of its tier.
	for env, p := range map[string]struct{ tier, builtin string }{
		"STRIPE_BASIC_PRICE":   {"basic", DefaultBasicPrice},
		"STRIPE_PRO_PRICE":     {"pro", DefaultProPrice},
		"STRIPE_REVENUE_PRICE": {"revenue_api", DefaultRevenuePrice},
	} {
		if price := os.Getenv(env); price != "" {
			delete(config.Stripe.Prices, p.builtin)
			config.Stripe.Prices[price] = p.tier
		}
	}
}

func applyDefaults(config *Config) []string {
	var warnings []string
	if config.Port == 0 {
		config.Port = 8100
	}
	if len(config.Tiers) == 0 {
		config.Tiers = DefaultTiers()
	}
	for name, tier := range config.Tiers {
		if tier.MonthlyLimit == 0 {
			tier.MonthlyLimit = tier.DailyLimit * 30
			config.Tiers[name] = tier
		}
	}
	if config.Registration.MaxPerWindow == 0 {
		config.Registration.MaxPerWindow = 3
	}
	if config.Stripe.DashboardPrice == "" {
		config.Stripe.DashboardPrice = DefaultDashboardPrice
	}
	if config.Stripe.DefaultTier == "" {
		config.Stripe.DefaultTier = "basic"
	}
	if config.Stripe.Currency == "" {
		config.Stripe.Currency = "gbp"
	}
	if len(config.Vector.Collections) == 0 {
		config.Vector.Collections = []string{"aidan_memory", "aidan_procedures", "aidan_reflections"}
	}
	if config.PDF.MaxBytes == 0 {
		config.PDF.MaxBytes = 10 << 20
	}
	if config.PDF.MaxPages == 0 {
		config.PDF.MaxPages = 100
	}
	if config.PDF.MaxChars == 0 {
		config.PDF.MaxChars = 50000
	}
	if len(config.CORS.AllowedOrigins) == 0 {
		config.CORS.AllowedOrigins = []string{"https://aidan-revenue-api.fly.dev"}
	}
	if config.Admin.MasterKey == "" {
		warnings = append(warnings, "admin.master_key not set, admin endpoints are disabled")
	}
	if config.Stripe.WebhookSecret == "" {
		warnings = append(warnings, "stripe.webhook_secret not set, webhook endpoint is disabled")
	}
	return warnings
}

func validate(config *Config) error {
	if _, ok := config.Tiers["free"]; !ok {
		return fmt.Errorf("tiers must define a free tier")
	}
	for name, tier := range config.Tiers {
		if tier.DailyLimit <= 0 {
			return fmt.Errorf("tier %q: daily_limit must be positive", name)
		}
	}
	if _, ok := config.Tiers[config.Stripe.DefaultTier]; !ok {
		return fmt.Errorf("stripe.default_tier %q is not a configured tier", config.Stripe.DefaultTier)
	}
	for price, tier := range config.Stripe.Prices {
		if _, ok := config.Tiers[tier]; !ok {
			return fmt.Errorf("price %s maps to unknown tier %q", price, tier)
		}
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
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

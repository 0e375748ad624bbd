package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider identifiers recognized across the service. Every quote client and
// translation table is keyed by one of these.
const (
	ProviderMoonPay   = "moonpay"
	ProviderOnramper  = "onramper"
	ProviderTransak   = "transak"
	ProviderRamp      = "ramp"
	ProviderLiFi      = "lifi"
	ProviderJupiter   = "jupiter"
	ProviderChangeNOW = "changenow"
)

// QuoteProvider holds the configuration for a single quote provider.
type QuoteProvider struct {
	Name       string
	BaseURL    string
	APIKey     string
	Secret     string // server-only; used for widget URL signing, never sent to clients
	Enabled    bool
	Sandbox    bool
	Priority   int // Lower number = higher priority
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
}

// UTXOChain holds the configuration for one Bitcoin-family chain backend.
type UTXOChain struct {
	Chain   string
	BaseURL string
	Enabled bool
	Timeout time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string

	// Quote providers (dynamic list, priority-sorted)
	QuoteProviders        []QuoteProvider
	MaxConcurrentRequests int

	// UTXO chain backends
	UTXOChains   []UTXOChain
	UTXOCacheTTL time.Duration
	LogoCacheTTL time.Duration
	CacheSize    int

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Auth / cron
	JWTSecret        string
	CronSecret       string
	CronHeaderName   string
	CSRFSecureCookie bool

	// Persistence and reconciliation
	DatabaseURL          string
	ReconcileMaxRows     int
	ReconcileInterval    time.Duration
	NotifyWebhookURL     string
	NotifyWebhookTimeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	providers := loadQuoteProviders()
	chains := loadUTXOChains()

	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		QuoteProviders:        providers,
		MaxConcurrentRequests: mustAtoi(getEnv("MAX_CONCURRENT_REQUESTS", "4")),

		UTXOChains:   chains,
		UTXOCacheTTL: time.Duration(mustAtoi(getEnv("UTXO_CACHE_TTL_SECONDS", "15"))) * time.Second,
		LogoCacheTTL: time.Duration(mustAtoi(getEnv("LOGO_CACHE_TTL_HOURS", "168"))) * time.Hour,
		CacheSize:    mustAtoi(getEnv("CACHE_SIZE", "4096")),

		RateLimitEnabled:  getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitRequests: mustAtoi(getEnv("RATE_LIMIT_REQUESTS", "60")),
		RateLimitWindow:   time.Duration(mustAtoi(getEnv("RATE_LIMIT_WINDOW_SECONDS", "60"))) * time.Second,

		JWTSecret:        getEnv("JWT_SECRET", ""),
		CronSecret:       getEnv("CRON_SECRET", ""),
		CronHeaderName:   getEnv("CRON_HEADER_NAME", "x-vercel-cron"),
		CSRFSecureCookie: getEnv("CSRF_SECURE_COOKIE", "true") == "true",

		DatabaseURL:          getEnv("DATABASE_URL", ""),
		ReconcileMaxRows:     mustAtoi(getEnv("RECONCILE_MAX_ROWS", "400")),
		ReconcileInterval:    time.Duration(mustAtoi(getEnv("RECONCILE_INTERVAL_SECONDS", "0"))) * time.Second,
		NotifyWebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookTimeout: time.Duration(mustAtoi(getEnv("NOTIFY_WEBHOOK_TIMEOUT_SECONDS", "5"))) * time.Second,
	}, nil
}

// loadQuoteProviders loads quote provider configurations from environment variables
func loadQuoteProviders() []QuoteProvider {
	defaults := []struct {
		name    string
		baseURL string
	}{
		{ProviderMoonPay, "https://api.moonpay.com"},
		{ProviderOnramper, "https://api.onramper.com"},
		{ProviderTransak, "https://api.transak.com"},
		{ProviderRamp, "https://api.ramp.network"},
		{ProviderLiFi, "https://li.quest/v1"},
		{ProviderJupiter, "https://quote-api.jup.ag/v6"},
		{ProviderChangeNOW, "https://api.changenow.io/v2"},
	}

	providers := make([]QuoteProvider, 0, len(defaults))
	for i, d := range defaults {
		prefix := strings.ToUpper(d.name)
		provider := QuoteProvider{
			Name:       d.name,
			BaseURL:    getEnv(prefix+"_BASE_URL", d.baseURL),
			APIKey:     getEnv(prefix+"_API_KEY", ""),
			Secret:     getEnv(prefix+"_SECRET", ""),
			Enabled:    getEnv(prefix+"_ENABLED", "true") == "true",
			Sandbox:    getEnv(prefix+"_SANDBOX", "false") == "true",
			Priority:   mustAtoi(getEnv(prefix+"_PRIORITY", strconv.Itoa(i+1))),
			Timeout:    time.Duration(mustAtoi(getEnv(prefix+"_TIMEOUT", "10"))) * time.Second,
			RetryCount: mustAtoi(getEnv(prefix+"_RETRY_COUNT", "2")),
			RetryDelay: time.Duration(mustAtoi(getEnv(prefix+"_RETRY_DELAY", "1"))) * time.Second,
		}
		if provider.Enabled {
			providers = append(providers, provider)
		}
	}

	// Sort by priority (lower number = higher priority)
	for i := 0; i < len(providers); i++ {
		for j := i + 1; j < len(providers); j++ {
			if providers[i].Priority > providers[j].Priority {
				providers[i], providers[j] = providers[j], providers[i]
			}
		}
	}

	return providers
}

// loadUTXOChains loads UTXO chain backend configurations from environment variables
func loadUTXOChains() []UTXOChain {
	defaults := []struct {
		chain   string
		baseURL string
	}{
		{"bitcoin", "https://blockstream.info/api"},
		{"litecoin", "https://litecoinspace.org/api"},
		{"dogecoin", "https://dogechain.info/api"},
	}

	chains := make([]UTXOChain, 0, len(defaults))
	for _, d := range defaults {
		prefix := "UTXO_" + strings.ToUpper(d.chain)
		chain := UTXOChain{
			Chain:   d.chain,
			BaseURL: getEnv(prefix+"_BASE_URL", d.baseURL),
			Enabled: getEnv(prefix+"_ENABLED", "true") == "true",
			Timeout: time.Duration(mustAtoi(getEnv(prefix+"_TIMEOUT", "10"))) * time.Second,
		}
		if chain.Enabled {
			chains = append(chains, chain)
		}
	}

	return chains
}

// Provider returns the configuration for a provider by name.
func (c *Config) Provider(name string) (QuoteProvider, error) {
	for _, p := range c.QuoteProviders {
		if p.Name == name {
			return p, nil
		}
	}
	return QuoteProvider{}, fmt.Errorf("provider %q not configured", name)
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 60
	}
	return i
}

package testutils

import (
	"context"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MockLogger creates a mock logger for testing
func MockLogger() *logger.Logger {
	return logger.New("debug")
}

// MockConfig creates a mock configuration for testing
func MockConfig() *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "debug",

		QuoteProviders: []config.QuoteProvider{
			{
				Name:       "test-provider",
				BaseURL:    "https://api.test.com",
				APIKey:     "test-api-key",
				Secret:     "test-secret",
				Enabled:    true,
				Priority:   1,
				Timeout:    5 * time.Second,
				RetryCount: 0,
				RetryDelay: time.Millisecond,
			},
		},
		MaxConcurrentRequests: 4,

		UTXOCacheTTL: 15 * time.Second,
		LogoCacheTTL: 7 * 24 * time.Hour,
		CacheSize:    64,

		RateLimitEnabled:  true,
		RateLimitRequests: 10,
		RateLimitWindow:   time.Second,

		JWTSecret:        "test-jwt-secret",
		CronSecret:       "test-cron-secret",
		CronHeaderName:   "x-vercel-cron",
		CSRFSecureCookie: true,

		ReconcileMaxRows: 400,
	}
}

// MockQuote creates a selectable quote for testing
func MockQuote(provider string) models.Quote {
	return models.Quote{
		ProviderID:     provider,
		FromCurrency:   "USD",
		ToCurrency:     "BTC",
		FromAmount:     decimal.NewFromInt(100),
		ToAmount:       decimal.RequireFromString("0.0015"),
		FeeAmount:      decimal.RequireFromString("2.50"),
		ExchangeRate:   decimal.RequireFromString("0.000015"),
		PaymentMethods: []string{"credit_debit_card"},
	}
}

// MockOrder creates a pending order record for testing
func MockOrder(provider, userID string) models.Order {
	now := time.Now()
	return models.Order{
		RecordID:      uuid.New(),
		OrderID:       "order-" + uuid.NewString()[:8],
		ProviderID:    provider,
		UserID:        userID,
		Status:        models.StatusPending,
		FromAsset:     "USD",
		ToAsset:       "BTC",
		PayoutAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		ExternalRef:   "ref-" + uuid.NewString()[:8],
		ScheduledFor:  now.Add(-time.Minute),
		ExpiresAt:     now.Add(time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MockContext creates a mock context for testing
func MockContext() context.Context {
	return context.Background()
}

// MockContextWithTimeout creates a mock context with timeout for testing
func MockContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

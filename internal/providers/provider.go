package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/cenkalti/backoff/v5"
)

// Chain identifiers used internally. Each provider translates these into its
// own vocabulary through an exhaustive table; an unmapped chain fails fast
// before any upstream call is made.
const (
	ChainBitcoin  = "bitcoin"
	ChainEthereum = "ethereum"
	ChainSolana   = "solana"
	ChainPolygon  = "polygon"
	ChainArbitrum = "arbitrum"
	ChainOptimism = "optimism"
	ChainBase     = "base"
	ChainLitecoin = "litecoin"
	ChainDogecoin = "dogecoin"
)

var (
	ErrUnsupportedChain    = errors.New("unsupported chain")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrNotConfigured       = errors.New("provider not configured")
)

// Ranking variants passed through to providers that rank their own routes.
const (
	RankRecommended = "RECOMMENDED"
	RankCheapest    = "CHEAPEST"
	RankFastest     = "FASTEST"
)

// QuoteRequest is the normalized input every provider client accepts.
type QuoteRequest struct {
	FromCurrency  string
	ToCurrency    string
	FromChain     string
	ToChain       string
	Amount        string // decimal string, validated at the boundary
	PaymentMethod string
	Ranking       string // RECOMMENDED | CHEAPEST | FASTEST, empty = provider default
}

// QuoteProvider is the uniform contract every provider client exposes.
type QuoteProvider interface {
	Name() string
	Priority() int
	Supports(req QuoteRequest) bool
	GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error)
}

// StatusChecker is implemented by providers whose orders the reconciliation
// job can re-query.
type StatusChecker interface {
	Name() string
	GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error)
}

// ProviderError wraps an upstream API failure. It never crosses the
// aggregation boundary as a panic; the aggregator folds it into the quote's
// error list so partial results survive.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// httpClient is the shared request plumbing for provider clients: bounded
// timeout, retry with exponential backoff on transient failures, permanent
// stop on 4xx.
type httpClient struct {
	cfg    config.QuoteProvider
	logger *logger.Logger
	client *http.Client
}

func newHTTPClient(cfg config.QuoteProvider, log *logger.Logger) httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{
		cfg:    cfg,
		logger: log,
		client: &http.Client{Timeout: timeout},
	}
}

// doJSON performs an HTTP request and decodes the JSON response into out.
// Non-2xx responses carry the (truncated) body in the returned ProviderError.
func (h *httpClient) doJSON(ctx context.Context, method, url string, headers map[string]string, reqBody, out interface{}) error {
	operation := func() ([]byte, error) {
		var bodyReader io.Reader
		if reqBody != nil {
			encoded, err := json.Marshal(reqBody)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to encode request body: %w", err))
			}
			bodyReader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			perr := &ProviderError{
				Provider:   h.cfg.Name,
				StatusCode: resp.StatusCode,
				Message:    truncate(string(body), 256),
			}
			// Server-side failures are worth retrying, client errors are not.
			if resp.StatusCode >= 500 {
				return nil, perr
			}
			return nil, backoff.Permanent(perr)
		}

		return body, nil
	}

	policy := backoff.NewExponentialBackOff()
	if h.cfg.RetryDelay > 0 {
		policy.InitialInterval = h.cfg.RetryDelay
	}
	maxTries := uint(h.cfg.RetryCount + 1)
	if maxTries < 1 {
		maxTries = 1
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			return perr
		}
		return &ProviderError{Provider: h.cfg.Name, Message: "request failed", Cause: err}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: h.cfg.Name, Message: "malformed response body", Cause: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Directory holds all constructed provider clients, priority-ordered.
type Directory struct {
	Quoters  []QuoteProvider
	Checkers map[string]StatusChecker
}

// NewDirectory builds every enabled provider client from configuration.
func NewDirectory(cfg *config.Config, log *logger.Logger) *Directory {
	dir := &Directory{Checkers: make(map[string]StatusChecker)}

	for _, pc := range cfg.QuoteProviders {
		switch pc.Name {
		case config.ProviderMoonPay:
			c := NewMoonPayClient(pc, log)
			dir.Quoters = append(dir.Quoters, c)
			dir.Checkers[pc.Name] = c
		case config.ProviderOnramper:
			dir.Quoters = append(dir.Quoters, NewOnramperClient(pc, log))
		case config.ProviderTransak:
			c := NewTransakClient(pc, log)
			dir.Quoters = append(dir.Quoters, c)
			dir.Checkers[pc.Name] = c
		case config.ProviderRamp:
			dir.Quoters = append(dir.Quoters, NewRampClient(pc, log))
		case config.ProviderLiFi:
			dir.Quoters = append(dir.Quoters, NewLiFiClient(pc, log))
		case config.ProviderJupiter:
			dir.Quoters = append(dir.Quoters, NewJupiterClient(pc, log))
		case config.ProviderChangeNOW:
			c := NewChangeNOWClient(pc, log)
			dir.Quoters = append(dir.Quoters, c)
			dir.Checkers[pc.Name] = c
		default:
			log.Warnf("Unknown provider in configuration: %s", pc.Name)
		}
	}

	return dir
}

// Quoter returns the client for a provider name, if configured.
func (d *Directory) Quoter(name string) (QuoteProvider, bool) {
	for _, q := range d.Quoters {
		if q.Name() == name {
			return q, true
		}
	}
	return nil, false
}

package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// changeNOWNetworks translates internal chain identifiers into ChangeNOW
// network codes.
var changeNOWNetworks = map[string]string{
	ChainBitcoin:  "btc",
	ChainEthereum: "eth",
	ChainSolana:   "sol",
	ChainPolygon:  "matic",
	ChainArbitrum: "arbitrum",
	ChainOptimism: "op",
	ChainBase:     "base",
	ChainLitecoin: "ltc",
	ChainDogecoin: "doge",
}

// changeNOWStatuses maps ChangeNOW exchange states onto the internal enum.
var changeNOWStatuses = map[string]models.OrderStatus{
	"new":        models.StatusPending,
	"waiting":    models.StatusPending,
	"confirming": models.StatusProcessing,
	"exchanging": models.StatusProcessing,
	"sending":    models.StatusProcessing,
	"finished":   models.StatusCompleted,
	"failed":     models.StatusFailed,
	"refunded":   models.StatusRefunded,
	"expired":    models.StatusCancelled,
}

// ChangeNOWClient wraps the ChangeNOW cross-chain exchange API.
type ChangeNOWClient struct {
	httpClient
}

func NewChangeNOWClient(cfg config.QuoteProvider, log *logger.Logger) *ChangeNOWClient {
	return &ChangeNOWClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *ChangeNOWClient) Name() string  { return config.ProviderChangeNOW }
func (c *ChangeNOWClient) Priority() int { return c.cfg.Priority }

func (c *ChangeNOWClient) Supports(req QuoteRequest) bool {
	if IsFiat(req.FromCurrency) {
		return false
	}
	_, fromOK := changeNOWNetworks[req.FromChain]
	_, toOK := changeNOWNetworks[req.ToChain]
	return fromOK && toOK
}

func (c *ChangeNOWClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if c.cfg.APIKey == "" {
		return models.Quote{}, ErrNotConfigured
	}
	fromNetwork, ok := changeNOWNetworks[req.FromChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.FromChain)
	}
	toNetwork, ok := changeNOWNetworks[req.ToChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ToChain)
	}

	query := url.Values{}
	query.Set("fromCurrency", strings.ToLower(req.FromCurrency))
	query.Set("toCurrency", strings.ToLower(req.ToCurrency))
	query.Set("fromNetwork", fromNetwork)
	query.Set("toNetwork", toNetwork)
	query.Set("fromAmount", req.Amount)
	query.Set("flow", "standard")
	endpoint := fmt.Sprintf("%s/exchange/estimated-amount?%s", c.cfg.BaseURL, query.Encode())

	headers := map[string]string{"x-changenow-api-key": c.cfg.APIKey}

	var resp struct {
		FromAmount    decimal.Decimal `json:"fromAmount"`
		ToAmount      decimal.Decimal `json:"toAmount"`
		DepositFee    decimal.Decimal `json:"depositFee"`
		WithdrawalFee decimal.Decimal `json:"withdrawalFee"`
		ValidUntil    string          `json:"validUntil"`
		Message       string          `json:"message"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, headers, nil, &resp); err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       resp.FromAmount,
		ToAmount:         resp.ToAmount,
		FeeAmount:        resp.DepositFee,
		NetworkFeeAmount: resp.WithdrawalFee,
	}
	if !resp.ToAmount.IsZero() && !resp.FromAmount.IsZero() {
		quote.ExchangeRate = resp.ToAmount.Div(resp.FromAmount)
	}
	if resp.Message != "" {
		quote.Errors = append(quote.Errors, resp.Message)
	}
	if resp.ValidUntil != "" {
		if t, err := time.Parse(time.RFC3339, resp.ValidUntil); err == nil {
			quote.ExpiresAt = &t
		}
	}
	return quote, nil
}

// GetOrderStatus re-queries a ChangeNOW exchange for reconciliation.
func (c *ChangeNOWClient) GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/exchange/by-id?id=%s", c.cfg.BaseURL, url.QueryEscape(externalRef))
	headers := map[string]string{"x-changenow-api-key": c.cfg.APIKey}

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, headers, nil, &resp); err != nil {
		return "", err
	}
	status, ok := changeNOWStatuses[resp.Status]
	if !ok {
		return "", &ProviderError{Provider: c.Name(), Message: fmt.Sprintf("unknown exchange status %q", resp.Status)}
	}
	return status, nil
}

package providers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// moonPayCurrencyCodes translates internal chain identifiers into MoonPay's
// currency-code suffix scheme (native coin codes, chain-suffixed tokens).
var moonPayCurrencyCodes = map[string]map[string]string{
	ChainBitcoin:  {"BTC": "btc"},
	ChainEthereum: {"ETH": "eth", "USDC": "usdc", "USDT": "usdt"},
	ChainSolana:   {"SOL": "sol", "USDC": "usdc_sol"},
	ChainPolygon:  {"POL": "pol", "USDC": "usdc_polygon"},
	ChainArbitrum: {"ETH": "eth_arbitrum", "USDC": "usdc_arbitrum"},
	ChainBase:     {"ETH": "eth_base", "USDC": "usdc_base"},
	ChainLitecoin: {"LTC": "ltc"},
	ChainDogecoin: {"DOGE": "doge"},
}

// moonPayStatuses maps MoonPay transaction statuses onto the internal enum.
var moonPayStatuses = map[string]models.OrderStatus{
	"waitingPayment":       models.StatusPending,
	"waitingAuthorization": models.StatusPending,
	"pending":              models.StatusProcessing,
	"completed":            models.StatusCompleted,
	"failed":               models.StatusFailed,
}

// MoonPayClient wraps the MoonPay buy-quote and transaction APIs.
type MoonPayClient struct {
	httpClient
}

func NewMoonPayClient(cfg config.QuoteProvider, log *logger.Logger) *MoonPayClient {
	return &MoonPayClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *MoonPayClient) Name() string  { return config.ProviderMoonPay }
func (c *MoonPayClient) Priority() int { return c.cfg.Priority }

// Supports reports fiat-to-crypto pairs MoonPay can price.
func (c *MoonPayClient) Supports(req QuoteRequest) bool {
	if !IsFiat(req.FromCurrency) {
		return false
	}
	codes, ok := moonPayCurrencyCodes[req.ToChain]
	if !ok {
		return false
	}
	_, ok = codes[req.ToCurrency]
	return ok
}

func (c *MoonPayClient) currencyCode(chain, currency string) (string, error) {
	codes, ok := moonPayCurrencyCodes[chain]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	code, ok := codes[currency]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedCurrency, currency, chain)
	}
	return code, nil
}

func (c *MoonPayClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if c.cfg.APIKey == "" {
		return models.Quote{}, ErrNotConfigured
	}
	code, err := c.currencyCode(req.ToChain, req.ToCurrency)
	if err != nil {
		return models.Quote{}, err
	}

	query := url.Values{}
	query.Set("apiKey", c.cfg.APIKey)
	query.Set("baseCurrencyCode", strings.ToLower(req.FromCurrency))
	query.Set("baseCurrencyAmount", req.Amount)
	if req.PaymentMethod != "" {
		query.Set("paymentMethod", req.PaymentMethod)
	}
	endpoint := fmt.Sprintf("%s/v3/currencies/%s/buy_quote?%s", c.cfg.BaseURL, code, query.Encode())

	var resp struct {
		BaseCurrencyAmount  decimal.Decimal `json:"baseCurrencyAmount"`
		QuoteCurrencyAmount decimal.Decimal `json:"quoteCurrencyAmount"`
		QuoteCurrencyPrice  decimal.Decimal `json:"quoteCurrencyPrice"`
		FeeAmount           decimal.Decimal `json:"feeAmount"`
		NetworkFeeAmount    decimal.Decimal `json:"networkFeeAmount"`
		Message             string          `json:"message"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       resp.BaseCurrencyAmount,
		ToAmount:         resp.QuoteCurrencyAmount,
		FeeAmount:        resp.FeeAmount,
		NetworkFeeAmount: resp.NetworkFeeAmount,
		ExchangeRate:     resp.QuoteCurrencyPrice,
		PaymentMethod:    req.PaymentMethod,
		PaymentMethods:   []string{"credit_debit_card", "sepa_bank_transfer", "gbp_bank_transfer", "apple_pay"},
	}
	if resp.Message != "" {
		quote.Errors = append(quote.Errors, resp.Message)
	}
	if resp.QuoteCurrencyAmount.IsZero() && resp.Message == "" {
		quote.Errors = append(quote.Errors, "moonpay returned an empty quote")
	}
	return quote, nil
}

// GetOrderStatus re-queries a MoonPay transaction for reconciliation.
func (c *MoonPayClient) GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/v1/transactions/%s?apiKey=%s", c.cfg.BaseURL, url.PathEscape(externalRef), url.QueryEscape(c.cfg.APIKey))

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return "", err
	}
	status, ok := moonPayStatuses[resp.Status]
	if !ok {
		return "", &ProviderError{Provider: c.Name(), Message: fmt.Sprintf("unknown transaction status %q", resp.Status)}
	}
	return status, nil
}

// SignWidgetURL produces a signed MoonPay widget URL. The signature covers
// the canonicalized query and requires the server-only secret.
func (c *MoonPayClient) SignWidgetURL(params map[string]string) (string, error) {
	if c.cfg.Secret == "" || c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	widgetBase := "https://buy.moonpay.com"
	if c.cfg.Sandbox {
		widgetBase = "https://buy-sandbox.moonpay.com"
	}
	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed["apiKey"] = c.cfg.APIKey
	return SignedWidgetURL(widgetBase, signed, c.cfg.Secret), nil
}

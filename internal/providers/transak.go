package providers

import (
	"context"
	"fmt"
	"net/url"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// transakNetworks translates internal chain identifiers into Transak network
// codes.
var transakNetworks = map[string]string{
	ChainBitcoin:  "mainnet",
	ChainEthereum: "ethereum",
	ChainSolana:   "solana",
	ChainPolygon:  "polygon",
	ChainArbitrum: "arbitrum",
	ChainOptimism: "optimism",
	ChainBase:     "base",
	ChainLitecoin: "mainnet",
	ChainDogecoin: "mainnet",
}

// transakStatuses maps Transak order states onto the internal enum.
var transakStatuses = map[string]models.OrderStatus{
	"AWAITING_PAYMENT_FROM_USER":    models.StatusPending,
	"PAYMENT_DONE_MARKED_BY_USER":   models.StatusPending,
	"PROCESSING":                    models.StatusProcessing,
	"PENDING_DELIVERY_FROM_TRANSAK": models.StatusProcessing,
	"COMPLETED":                     models.StatusCompleted,
	"FAILED":                        models.StatusFailed,
	"CANCELLED":                     models.StatusCancelled,
	"REFUNDED":                      models.StatusRefunded,
	"EXPIRED":                       models.StatusCancelled,
}

// TransakClient wraps the Transak pricing and partner order APIs.
type TransakClient struct {
	httpClient
}

func NewTransakClient(cfg config.QuoteProvider, log *logger.Logger) *TransakClient {
	return &TransakClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *TransakClient) Name() string  { return config.ProviderTransak }
func (c *TransakClient) Priority() int { return c.cfg.Priority }

func (c *TransakClient) Supports(req QuoteRequest) bool {
	if !IsFiat(req.FromCurrency) {
		return false
	}
	_, ok := transakNetworks[req.ToChain]
	return ok
}

func (c *TransakClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if c.cfg.APIKey == "" {
		return models.Quote{}, ErrNotConfigured
	}
	network, ok := transakNetworks[req.ToChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ToChain)
	}

	query := url.Values{}
	query.Set("partnerApiKey", c.cfg.APIKey)
	query.Set("fiatCurrency", req.FromCurrency)
	query.Set("cryptoCurrency", req.ToCurrency)
	query.Set("network", network)
	query.Set("isBuyOrSell", "BUY")
	query.Set("fiatAmount", req.Amount)
	if req.PaymentMethod != "" {
		query.Set("paymentMethod", req.PaymentMethod)
	}
	endpoint := fmt.Sprintf("%s/api/v2/currencies/price?%s", c.cfg.BaseURL, query.Encode())

	var resp struct {
		Response struct {
			FiatAmount      decimal.Decimal `json:"fiatAmount"`
			CryptoAmount    decimal.Decimal `json:"cryptoAmount"`
			ConversionPrice decimal.Decimal `json:"conversionPrice"`
			TotalFee        decimal.Decimal `json:"totalFee"`
			NetworkFee      decimal.Decimal `json:"networkFee"`
		} `json:"response"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       resp.Response.FiatAmount,
		ToAmount:         resp.Response.CryptoAmount,
		FeeAmount:        resp.Response.TotalFee,
		NetworkFeeAmount: resp.Response.NetworkFee,
		ExchangeRate:     resp.Response.ConversionPrice,
		PaymentMethod:    req.PaymentMethod,
		PaymentMethods:   []string{"credit_debit_card", "sepa_bank_transfer", "google_pay", "apple_pay"},
	}
	if resp.Error.Message != "" {
		quote.Errors = append(quote.Errors, resp.Error.Message)
	}
	return quote, nil
}

// GetOrderStatus re-queries a Transak partner order for reconciliation.
func (c *TransakClient) GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error) {
	if c.cfg.Secret == "" {
		return "", ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/partners/api/v2/order/%s?partnerAPISecret=%s",
		c.cfg.BaseURL, url.PathEscape(externalRef), url.QueryEscape(c.cfg.Secret))

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return "", err
	}
	status, ok := transakStatuses[resp.Data.Status]
	if !ok {
		return "", &ProviderError{Provider: c.Name(), Message: fmt.Sprintf("unknown order status %q", resp.Data.Status)}
	}
	return status, nil
}

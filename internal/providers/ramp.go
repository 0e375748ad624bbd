package providers

import (
	"context"
	"fmt"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// rampAssetPrefixes translates internal chain identifiers into Ramp's
// CHAIN_SYMBOL asset naming.
var rampAssetPrefixes = map[string]string{
	ChainBitcoin:  "BTC",
	ChainEthereum: "ETH",
	ChainSolana:   "SOLANA",
	ChainPolygon:  "MATIC",
	ChainArbitrum: "ARBITRUM",
	ChainOptimism: "OPTIMISM",
	ChainBase:     "BASE",
	ChainLitecoin: "LTC",
	ChainDogecoin: "DOGE",
}

// RampClient wraps the Ramp Network host-api quote endpoint.
type RampClient struct {
	httpClient
}

func NewRampClient(cfg config.QuoteProvider, log *logger.Logger) *RampClient {
	return &RampClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *RampClient) Name() string  { return config.ProviderRamp }
func (c *RampClient) Priority() int { return c.cfg.Priority }

func (c *RampClient) Supports(req QuoteRequest) bool {
	if !IsFiat(req.FromCurrency) {
		return false
	}
	_, ok := rampAssetPrefixes[req.ToChain]
	return ok
}

// rampAsset renders the Ramp asset symbol, e.g. ETH_USDC or BTC_BTC.
func rampAsset(chain, currency string) (string, error) {
	prefix, ok := rampAssetPrefixes[chain]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	return prefix + "_" + currency, nil
}

type rampMethodQuote struct {
	CryptoAmount decimal.Decimal `json:"cryptoAmount"`
	FiatValue    decimal.Decimal `json:"fiatValue"`
	AppliedFee   decimal.Decimal `json:"appliedFee"`
	BaseRampFee  decimal.Decimal `json:"baseRampFee"`
	NetworkFee   decimal.Decimal `json:"networkFee"`
}

func (c *RampClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if c.cfg.APIKey == "" {
		return models.Quote{}, ErrNotConfigured
	}
	asset, err := rampAsset(req.ToChain, req.ToCurrency)
	if err != nil {
		return models.Quote{}, err
	}

	endpoint := fmt.Sprintf("%s/api/host-api/v3/onramp/quote/all?hostApiKey=%s", c.cfg.BaseURL, c.cfg.APIKey)
	body := map[string]string{
		"cryptoAssetSymbol": asset,
		"fiatCurrency":      req.FromCurrency,
		"fiatValue":         req.Amount,
	}

	var resp map[string]rampMethodQuote
	if err := c.doJSON(ctx, "POST", endpoint, nil, body, &resp); err != nil {
		return models.Quote{}, err
	}

	methods := make([]string, 0, len(resp))
	var chosen rampMethodQuote
	var chosenMethod string
	for method, q := range resp {
		if method == "asset" {
			continue
		}
		methods = append(methods, method)
		if req.PaymentMethod != "" && method == req.PaymentMethod {
			chosen, chosenMethod = q, method
		}
		// Without a requested method, take the cheapest fee.
		if req.PaymentMethod == "" && (chosenMethod == "" || q.AppliedFee.LessThan(chosen.AppliedFee)) {
			chosen, chosenMethod = q, method
		}
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       mustDecimal(req.Amount),
		ToAmount:         chosen.CryptoAmount,
		FeeAmount:        chosen.AppliedFee,
		NetworkFeeAmount: chosen.NetworkFee,
		PaymentMethod:    chosenMethod,
		PaymentMethods:   methods,
	}
	if !chosen.CryptoAmount.IsZero() && !chosen.FiatValue.IsZero() {
		quote.ExchangeRate = chosen.CryptoAmount.Div(chosen.FiatValue)
	}
	if chosenMethod == "" {
		quote.Errors = append(quote.Errors, fmt.Sprintf("payment method %q not offered by ramp", req.PaymentMethod))
	}
	return quote, nil
}

// SignWidgetURL produces a signed Ramp widget URL over the canonical query.
func (c *RampClient) SignWidgetURL(params map[string]string) (string, error) {
	if c.cfg.Secret == "" || c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	widgetBase := "https://app.ramp.network"
	if c.cfg.Sandbox {
		widgetBase = "https://app.demo.ramp.network"
	}
	signed := make(map[string]string, len(params)+1)
	for k, v := range params {
		signed[k] = v
	}
	signed["hostApiKey"] = c.cfg.APIKey
	return SignedWidgetURL(widgetBase, signed, c.cfg.Secret), nil
}

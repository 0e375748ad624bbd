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

// onramperNetworks translates internal chain identifiers into Onramper
// network codes.
var onramperNetworks = map[string]string{
	ChainBitcoin:  "bitcoin",
	ChainEthereum: "ethereum",
	ChainSolana:   "solana",
	ChainPolygon:  "polygon",
	ChainArbitrum: "arbitrum",
	ChainOptimism: "optimism",
	ChainBase:     "base",
	ChainLitecoin: "litecoin",
	ChainDogecoin: "dogecoin",
}

// OnramperClient wraps the Onramper quotes API. Onramper is itself an
// aggregator; this client surfaces its best ramp as one quote and keeps the
// per-ramp failure reasons.
type OnramperClient struct {
	httpClient
}

func NewOnramperClient(cfg config.QuoteProvider, log *logger.Logger) *OnramperClient {
	return &OnramperClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *OnramperClient) Name() string  { return config.ProviderOnramper }
func (c *OnramperClient) Priority() int { return c.cfg.Priority }

func (c *OnramperClient) Supports(req QuoteRequest) bool {
	if !IsFiat(req.FromCurrency) {
		return false
	}
	_, ok := onramperNetworks[req.ToChain]
	return ok
}

type onramperRampQuote struct {
	Ramp             string          `json:"ramp"`
	Rate             decimal.Decimal `json:"rate"`
	Payout           decimal.Decimal `json:"payout"`
	TransactionFee   decimal.Decimal `json:"transactionFee"`
	NetworkFee       decimal.Decimal `json:"networkFee"`
	PaymentMethod    string          `json:"paymentMethod"`
	AvailableMethods []string        `json:"availablePaymentMethods"`
	Errors           []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *OnramperClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if c.cfg.APIKey == "" {
		return models.Quote{}, ErrNotConfigured
	}
	network, ok := onramperNetworks[req.ToChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ToChain)
	}

	query := url.Values{}
	query.Set("amount", req.Amount)
	query.Set("network", network)
	if req.PaymentMethod != "" {
		query.Set("paymentMethod", req.PaymentMethod)
	}
	endpoint := fmt.Sprintf("%s/quotes/%s/%s?%s",
		c.cfg.BaseURL,
		strings.ToLower(req.FromCurrency),
		strings.ToLower(req.ToCurrency),
		query.Encode())

	var ramps []onramperRampQuote
	headers := map[string]string{"Authorization": c.cfg.APIKey}
	if err := c.doJSON(ctx, "GET", endpoint, headers, nil, &ramps); err != nil {
		return models.Quote{}, err
	}
	if len(ramps) == 0 {
		return models.Quote{}, &ProviderError{Provider: c.Name(), Message: "no ramps returned for pair"}
	}

	// Pick the clean ramp paying out the most; fall back to the first entry
	// so its failure reasons surface in the quote.
	best := ramps[0]
	for _, r := range ramps[1:] {
		if len(r.Errors) == 0 && (len(best.Errors) > 0 || r.Payout.GreaterThan(best.Payout)) {
			best = r
		}
	}

	methods := best.AvailableMethods
	for _, r := range ramps {
		for _, m := range r.AvailableMethods {
			if !containsString(methods, m) {
				methods = append(methods, m)
			}
		}
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       mustDecimal(req.Amount),
		ToAmount:         best.Payout,
		FeeAmount:        best.TransactionFee,
		NetworkFeeAmount: best.NetworkFee,
		ExchangeRate:     best.Rate,
		PaymentMethod:    best.PaymentMethod,
		PaymentMethods:   methods,
	}
	for _, e := range best.Errors {
		quote.Errors = append(quote.Errors, fmt.Sprintf("%s (%s via %s)", e.Message, e.Type, best.Ramp))
	}
	return quote, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// mustDecimal parses a decimal string that already passed validation.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

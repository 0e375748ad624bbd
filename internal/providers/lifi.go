package providers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// liFiChainIDs translates internal chain identifiers into Li.Fi numeric
// chain ids, including Li.Fi's synthetic ids for non-EVM chains.
var liFiChainIDs = map[string]string{
	ChainEthereum: "1",
	ChainOptimism: "10",
	ChainPolygon:  "137",
	ChainArbitrum: "42161",
	ChainBase:     "8453",
	ChainSolana:   "1151111081099710",
	ChainBitcoin:  "20000000000001",
}

// liFiRankings maps the internal ranking variants onto Li.Fi's order
// parameter. Ranking is passed through; results are never re-ranked locally.
var liFiRankings = map[string]string{
	RankRecommended: "RECOMMENDED",
	RankCheapest:    "CHEAPEST",
	RankFastest:     "FASTEST",
}

// LiFiClient wraps the Li.Fi cross-chain routing quote API.
type LiFiClient struct {
	httpClient
}

func NewLiFiClient(cfg config.QuoteProvider, log *logger.Logger) *LiFiClient {
	return &LiFiClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *LiFiClient) Name() string  { return config.ProviderLiFi }
func (c *LiFiClient) Priority() int { return c.cfg.Priority }

// Supports reports crypto-to-crypto pairs across chains Li.Fi routes.
func (c *LiFiClient) Supports(req QuoteRequest) bool {
	if IsFiat(req.FromCurrency) {
		return false
	}
	_, fromOK := liFiChainIDs[req.FromChain]
	_, toOK := liFiChainIDs[req.ToChain]
	return fromOK && toOK
}

func (c *LiFiClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	fromChain, ok := liFiChainIDs[req.FromChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.FromChain)
	}
	toChain, ok := liFiChainIDs[req.ToChain]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, req.ToChain)
	}

	query := url.Values{}
	query.Set("fromChain", fromChain)
	query.Set("toChain", toChain)
	query.Set("fromToken", req.FromCurrency)
	query.Set("toToken", req.ToCurrency)
	query.Set("fromAmount", req.Amount)
	if order, ok := liFiRankings[req.Ranking]; ok {
		query.Set("order", order)
	}
	endpoint := fmt.Sprintf("%s/quote?%s", c.cfg.BaseURL, query.Encode())

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["x-lifi-api-key"] = c.cfg.APIKey
	}

	var resp struct {
		Estimate struct {
			FromAmount decimal.Decimal `json:"fromAmount"`
			ToAmount   decimal.Decimal `json:"toAmount"`
			FeeCosts   []struct {
				Amount decimal.Decimal `json:"amount"`
			} `json:"feeCosts"`
			GasCosts []struct {
				Amount decimal.Decimal `json:"amount"`
			} `json:"gasCosts"`
			ExecutionDuration float64 `json:"executionDuration"`
		} `json:"estimate"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, headers, nil, &resp); err != nil {
		return models.Quote{}, err
	}

	feeTotal := decimal.Zero
	for _, f := range resp.Estimate.FeeCosts {
		feeTotal = feeTotal.Add(f.Amount)
	}
	gasTotal := decimal.Zero
	for _, g := range resp.Estimate.GasCosts {
		gasTotal = gasTotal.Add(g.Amount)
	}

	quote := models.Quote{
		ProviderID:       c.Name(),
		FromCurrency:     req.FromCurrency,
		ToCurrency:       req.ToCurrency,
		FromAmount:       resp.Estimate.FromAmount,
		ToAmount:         resp.Estimate.ToAmount,
		FeeAmount:        feeTotal,
		NetworkFeeAmount: gasTotal,
	}
	if !resp.Estimate.ToAmount.IsZero() && !resp.Estimate.FromAmount.IsZero() {
		quote.ExchangeRate = resp.Estimate.ToAmount.Div(resp.Estimate.FromAmount)
	}
	if resp.Message != "" {
		quote.Errors = append(quote.Errors, resp.Message)
	}
	// Route estimates go stale quickly; expire them client-side.
	expires := time.Now().Add(30 * time.Second)
	quote.ExpiresAt = &expires
	return quote, nil
}

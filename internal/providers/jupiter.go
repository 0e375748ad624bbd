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

// jupiterMints maps supported token symbols to Solana mint addresses.
// Jupiter quotes amounts in base units of these mints.
var jupiterMints = map[string]string{
	"SOL":  "So11111111111111111111111111111111111111112",
	"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	"JUP":  "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
	"BONK": "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
}

// JupiterClient wraps the Jupiter same-chain swap quote API (Solana only).
type JupiterClient struct {
	httpClient
}

func NewJupiterClient(cfg config.QuoteProvider, log *logger.Logger) *JupiterClient {
	return &JupiterClient{httpClient: newHTTPClient(cfg, log)}
}

func (c *JupiterClient) Name() string  { return config.ProviderJupiter }
func (c *JupiterClient) Priority() int { return c.cfg.Priority }

func (c *JupiterClient) Supports(req QuoteRequest) bool {
	if req.FromChain != ChainSolana || req.ToChain != ChainSolana {
		return false
	}
	_, fromOK := jupiterMints[req.FromCurrency]
	_, toOK := jupiterMints[req.ToCurrency]
	return fromOK && toOK
}

func (c *JupiterClient) GetQuote(ctx context.Context, req QuoteRequest) (models.Quote, error) {
	if err := ValidateQuoteRequest(req); err != nil {
		return models.Quote{}, err
	}
	if req.FromChain != ChainSolana || req.ToChain != ChainSolana {
		return models.Quote{}, fmt.Errorf("%w: jupiter routes solana only", ErrUnsupportedChain)
	}
	inputMint, ok := jupiterMints[req.FromCurrency]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.FromCurrency)
	}
	outputMint, ok := jupiterMints[req.ToCurrency]
	if !ok {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.ToCurrency)
	}

	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", req.Amount)
	query.Set("slippageBps", "50")
	endpoint := fmt.Sprintf("%s/quote?%s", c.cfg.BaseURL, query.Encode())

	var resp struct {
		InAmount    decimal.Decimal `json:"inAmount"`
		OutAmount   decimal.Decimal `json:"outAmount"`
		PlatformFee *struct {
			Amount decimal.Decimal `json:"amount"`
		} `json:"platformFee"`
		PriceImpactPct decimal.Decimal `json:"priceImpactPct"`
		ErrorMessage   string          `json:"error"`
	}
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &resp); err != nil {
		return models.Quote{}, err
	}

	quote := models.Quote{
		ProviderID:   c.Name(),
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		FromAmount:   resp.InAmount,
		ToAmount:     resp.OutAmount,
	}
	if resp.PlatformFee != nil {
		quote.FeeAmount = resp.PlatformFee.Amount
	}
	if !resp.OutAmount.IsZero() && !resp.InAmount.IsZero() {
		quote.ExchangeRate = resp.OutAmount.Div(resp.InAmount)
	}
	if resp.ErrorMessage != "" {
		quote.Errors = append(quote.Errors, resp.ErrorMessage)
	}
	return quote, nil
}

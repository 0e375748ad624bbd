package providers

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// fiatCurrencies covers the fiat side of onramp requests. Anything else is
// treated as a crypto asset.
var fiatCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "CHF": true, "JPY": true,
	"AUD": true, "CAD": true, "BRL": true, "INR": true, "NGN": true,
	"MXN": true, "TRY": true, "ZAR": true, "SEK": true, "PLN": true,
}

// IsFiat reports whether a currency code names a supported fiat currency.
func IsFiat(code string) bool {
	return fiatCurrencies[code]
}

// ValidateQuoteRequest rejects structurally broken requests before any
// upstream call: required fields present and amount a finite positive
// decimal.
func ValidateQuoteRequest(req QuoteRequest) error {
	if req.FromCurrency == "" {
		return fmt.Errorf("from_currency is required")
	}
	if req.ToCurrency == "" {
		return fmt.Errorf("to_currency is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return fmt.Errorf("amount %q is not a valid decimal", req.Amount)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	switch req.Ranking {
	case "", RankRecommended, RankCheapest, RankFastest:
	default:
		return fmt.Errorf("ranking %q is not one of RECOMMENDED, CHEAPEST, FASTEST", req.Ranking)
	}
	return nil
}

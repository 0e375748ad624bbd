package aggregator

import (
	"context"
	"fmt"
	"strings"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"
	"multichain-wallet-api/internal/providers"
)

// AllProvidersFailedError is returned when not a single provider produced a
// usable quote. It enumerates every provider's failure so callers can tell
// total failure apart from partial failure.
type AllProvidersFailedError struct {
	Failures map[string]string
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for provider, reason := range e.Failures {
		parts = append(parts, provider+": "+reason)
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Aggregator fans a quote request out to every capable provider and collects
// all results, errored quotes included, so the caller can explain per
// provider why a route is unavailable.
type Aggregator struct {
	configuration *config.Config
	logger        *logger.Logger
	quoters       []providers.QuoteProvider
}

func New(configuration *config.Config, log *logger.Logger, quoters []providers.QuoteProvider) *Aggregator {
	return &Aggregator{
		configuration: configuration,
		logger:        log,
		quoters:       quoters,
	}
}

// GetAggregatedQuotes queries all providers supporting the requested pair
// concurrently, each bounded by its own timeout. One provider failing never
// fails the aggregate call; the call fails only when every provider does.
func (a *Aggregator) GetAggregatedQuotes(ctx context.Context, req providers.QuoteRequest) ([]models.Quote, error) {
	if err := providers.ValidateQuoteRequest(req); err != nil {
		return nil, err
	}

	eligible := make([]providers.QuoteProvider, 0, len(a.quoters))
	for _, q := range a.quoters {
		if q.Supports(req) {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no provider services %s -> %s", providers.ErrUnsupportedChain, req.FromChain, req.ToChain)
	}

	type providerResult struct {
		quote models.Quote
		err   error
		name  string
	}

	resultsChannel := make(chan providerResult, len(eligible))

	// Limit concurrent requests
	maxConcurrent := a.configuration.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = len(eligible)
	}
	semaphore := make(chan struct{}, maxConcurrent)

	for _, quoter := range eligible {
		go func(p providers.QuoteProvider) {
			semaphore <- struct{}{}        // Acquire semaphore
			defer func() { <-semaphore }() // Release semaphore

			a.logger.Debugf("Fetching quote from provider: %s", p.Name())
			quote, err := p.GetQuote(ctx, req)
			resultsChannel <- providerResult{quote: quote, err: err, name: p.Name()}
		}(quoter)
	}

	quotes := make([]models.Quote, 0, len(eligible))
	failures := make(map[string]string)

	for i := 0; i < len(eligible); i++ {
		result := <-resultsChannel
		if result.err != nil {
			a.logger.Warnf("Provider %s failed: %v", result.name, result.err)
			failures[result.name] = result.err.Error()
			// Keep the provider in the response with its failure reason so
			// the UI can show "not available via X".
			quotes = append(quotes, models.Quote{
				ProviderID:   result.name,
				FromCurrency: req.FromCurrency,
				ToCurrency:   req.ToCurrency,
				Errors:       []string{result.err.Error()},
			})
			continue
		}
		if len(result.quote.Errors) > 0 {
			failures[result.name] = strings.Join(result.quote.Errors, "; ")
		}
		quotes = append(quotes, result.quote)
	}

	if len(failures) == len(eligible) {
		a.logger.Errorf("All %d quote providers failed for %s -> %s", len(eligible), req.FromCurrency, req.ToCurrency)
		return quotes, &AllProvidersFailedError{Failures: failures}
	}

	return quotes, nil
}

// Selectable filters an aggregated result down to quotes the user may pick.
func Selectable(quotes []models.Quote, paymentMethod string) []models.Quote {
	selectable := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Selectable(paymentMethod) {
			selectable = append(selectable, q)
		}
	}
	return selectable
}

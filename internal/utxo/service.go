package utxo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"multichain-wallet-api/internal/cache"
	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
)

// Service fronts the per-chain clients with a short-TTL cache. Fee markets
// and mempools move fast, so the TTL stays in the seconds range.
type Service struct {
	clients map[string]*Client
	cache   *cache.Cache
	ttl     time.Duration
	logger  *logger.Logger
}

// NewService builds clients for every configured chain backend.
func NewService(cfg *config.Config, store *cache.Cache, log *logger.Logger) *Service {
	clients := make(map[string]*Client, len(cfg.UTXOChains))
	for _, chainCfg := range cfg.UTXOChains {
		if !SupportedChain(chainCfg.Chain) {
			log.Warnf("Ignoring unknown UTXO chain in configuration: %s", chainCfg.Chain)
			continue
		}
		clients[chainCfg.Chain] = NewClient(chainCfg, log)
	}
	return &Service{
		clients: clients,
		cache:   store,
		ttl:     cfg.UTXOCacheTTL,
		logger:  log,
	}
}

// Client returns the raw backend client for a chain.
func (s *Service) Client(chain string) (*Client, error) {
	client, ok := s.clients[chain]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedChain, chain)
	}
	return client, nil
}

// FeeEstimates returns cached fee estimates for a chain.
func (s *Service) FeeEstimates(ctx context.Context, chain string) (FeeEstimates, error) {
	client, err := s.Client(chain)
	if err != nil {
		return nil, err
	}
	value, err := s.cache.GetOrFetch(ctx, "fees:"+chain, s.ttl, func(ctx context.Context) (interface{}, error) {
		return client.FeeEstimates(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(FeeEstimates), nil
}

// History returns cached transaction history for an address.
func (s *Service) History(ctx context.Context, chain, address string, limit int) ([]Tx, error) {
	client, err := s.Client(chain)
	if err != nil {
		return nil, err
	}
	key := "history:" + chain + ":" + address + ":" + strconv.Itoa(limit)
	value, err := s.cache.GetOrFetch(ctx, key, s.ttl, func(ctx context.Context) (interface{}, error) {
		return client.History(ctx, address, limit)
	})
	if err != nil {
		return nil, err
	}
	return value.([]Tx), nil
}

// UTXOs returns the cached unspent set for an address.
func (s *Service) UTXOs(ctx context.Context, chain, address string) ([]UTXO, error) {
	client, err := s.Client(chain)
	if err != nil {
		return nil, err
	}
	value, err := s.cache.GetOrFetch(ctx, "utxos:"+chain+":"+address, s.ttl, func(ctx context.Context) (interface{}, error) {
		return client.UTXOs(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return value.([]UTXO), nil
}

// Balance returns the cached balance for an address.
func (s *Service) Balance(ctx context.Context, chain, address string) (Balance, error) {
	client, err := s.Client(chain)
	if err != nil {
		return Balance{}, err
	}
	value, err := s.cache.GetOrFetch(ctx, "balance:"+chain+":"+address, s.ttl, func(ctx context.Context) (interface{}, error) {
		return client.Balance(ctx, address)
	})
	if err != nil {
		return Balance{}, err
	}
	return value.(Balance), nil
}

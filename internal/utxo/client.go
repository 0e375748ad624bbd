package utxo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"

	"github.com/shopspring/decimal"
)

// FeeEstimates maps confirmation targets (in blocks) to sat/vB rates.
type FeeEstimates map[string]decimal.Decimal

// UTXO is one unspent output of an address.
type UTXO struct {
	TxID   string          `json:"txid"`
	Vout   uint32          `json:"vout"`
	Value  decimal.Decimal `json:"value"` // satoshis
	Status TxStatus        `json:"status"`
}

// TxStatus is the confirmation state of a transaction or output.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height,omitempty"`
	BlockTime   int64  `json:"block_time,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
}

// Tx is one history entry for an address.
type Tx struct {
	TxID   string   `json:"txid"`
	Fee    int64    `json:"fee"`
	Status TxStatus `json:"status"`
}

// Balance summarizes an address's confirmed and pending funds in satoshis.
type Balance struct {
	Chain       string          `json:"chain"`
	Address     string          `json:"address"`
	Confirmed   decimal.Decimal `json:"confirmed"`
	Unconfirmed decimal.Decimal `json:"unconfirmed"`
}

// Client queries one esplora-style chain backend.
type Client struct {
	chain      string
	baseURL    string
	logger     *logger.Logger
	httpClient *http.Client
}

// NewClient creates a chain client from its backend configuration.
func NewClient(cfg config.UTXOChain, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		chain:      cfg.Chain,
		baseURL:    cfg.BaseURL,
		logger:     log,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Chain returns the chain identifier this client serves.
func (c *Client) Chain() string { return c.chain }

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s backend returned status %d", c.chain, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", c.chain, err)
	}
	return nil
}

// FeeEstimates fetches the current fee market estimates.
func (c *Client) FeeEstimates(ctx context.Context) (FeeEstimates, error) {
	var fees FeeEstimates
	if err := c.get(ctx, "/fee-estimates", &fees); err != nil {
		return nil, err
	}
	return fees, nil
}

// History fetches recent transactions for an address, newest first, capped at
// limit when positive.
func (c *Client) History(ctx context.Context, address string, limit int) ([]Tx, error) {
	if err := ValidateAddress(c.chain, address); err != nil {
		return nil, err
	}
	var txs []Tx
	if err := c.get(ctx, "/address/"+url.PathEscape(address)+"/txs", &txs); err != nil {
		return nil, err
	}
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// UTXOs fetches the unspent outputs of an address.
func (c *Client) UTXOs(ctx context.Context, address string) ([]UTXO, error) {
	if err := ValidateAddress(c.chain, address); err != nil {
		return nil, err
	}
	var utxos []UTXO
	if err := c.get(ctx, "/address/"+url.PathEscape(address)+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// Balance derives confirmed and unconfirmed balances from the UTXO set.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	utxos, err := c.UTXOs(ctx, address)
	if err != nil {
		return Balance{}, err
	}
	balance := Balance{
		Chain:       c.chain,
		Address:     address,
		Confirmed:   decimal.Zero,
		Unconfirmed: decimal.Zero,
	}
	for _, u := range utxos {
		if u.Status.Confirmed {
			balance.Confirmed = balance.Confirmed.Add(u.Value)
		} else {
			balance.Unconfirmed = balance.Unconfirmed.Add(u.Value)
		}
	}
	return balance, nil
}

// TxStatusByID looks a transaction up by id; used by reconciliation to check
// incoming on-chain transfers.
func (c *Client) TxStatusByID(ctx context.Context, txid string) (TxStatus, error) {
	var status TxStatus
	if err := c.get(ctx, "/tx/"+url.PathEscape(txid)+"/status", &status); err != nil {
		return TxStatus{}, err
	}
	return status, nil
}

// OrderStatusForTx maps an on-chain transaction's confirmation state onto the
// order status enum, making chain lookups usable as a reconciliation source.
func (c *Client) OrderStatusForTx(ctx context.Context, txid string) (models.OrderStatus, error) {
	status, err := c.TxStatusByID(ctx, txid)
	if err != nil {
		return "", err
	}
	if status.Confirmed {
		return models.StatusCompleted, nil
	}
	return models.StatusProcessing, nil
}

// OrderStatusForAddress infers an incoming transfer's status from the payout
// address's recent history when no transaction reference is known yet. A
// confirmed transaction completes the order, an unconfirmed one marks it
// processing, an empty history leaves it pending.
func (c *Client) OrderStatusForAddress(ctx context.Context, address string, txLimit int) (models.OrderStatus, error) {
	txs, err := c.History(ctx, address, txLimit)
	if err != nil {
		return "", err
	}
	status := models.StatusPending
	for _, tx := range txs {
		if tx.Status.Confirmed {
			return models.StatusCompleted, nil
		}
		status = models.StatusProcessing
	}
	return status, nil
}

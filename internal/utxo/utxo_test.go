package utxo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"multichain-wallet-api/internal/cache"
	"multichain-wallet-api/internal/config"
	"multichain-wallet-api/internal/models"
	"multichain-wallet-api/internal/testutils"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		chain   string
		address string
		wantErr bool
	}{
		{
			name:    "bitcoin bech32",
			chain:   "bitcoin",
			address: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
			wantErr: false,
		},
		{
			name:    "bitcoin legacy P2PKH",
			chain:   "bitcoin",
			address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
			wantErr: false,
		},
		{
			name:    "bitcoin P2SH",
			chain:   "bitcoin",
			address: "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",
			wantErr: false,
		},
		{
			name:    "litecoin P2PKH",
			chain:   "litecoin",
			address: "LaMT348PWRnrqeeWArpwQPbuanpXDZGEUz",
			wantErr: false,
		},
		{
			name:    "dogecoin P2PKH",
			chain:   "dogecoin",
			address: "DH5yaieqoZN36fDVciNyRueRGvGLR3mr7L",
			wantErr: false,
		},
		{
			name:    "bitcoin address on litecoin",
			chain:   "litecoin",
			address: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
			wantErr: true,
		},
		{
			name:    "litecoin address on bitcoin",
			chain:   "bitcoin",
			address: "LaMT348PWRnrqeeWArpwQPbuanpXDZGEUz",
			wantErr: true,
		},
		{
			name:    "garbage input",
			chain:   "bitcoin",
			address: "not-an-address",
			wantErr: true,
		},
		{
			name:    "unsupported chain",
			chain:   "monero",
			address: "anything",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.chain, tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%s, %s) error = %v, wantErr %v", tt.chain, tt.address, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress_SentinelKinds(t *testing.T) {
	if err := ValidateAddress("monero", "anything"); !errors.Is(err, ErrUnsupportedChain) {
		t.Errorf("ValidateAddress(monero) error = %v, want ErrUnsupportedChain", err)
	}
	if err := ValidateAddress("bitcoin", "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ValidateAddress(bitcoin, garbage) error = %v, want ErrInvalidAddress", err)
	}
	if err := ValidateAddress("litecoin", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("cross-fork address error = %v, want ErrInvalidAddress", err)
	}
}

func TestSupportedChain(t *testing.T) {
	for _, chain := range []string{"bitcoin", "litecoin", "dogecoin"} {
		if !SupportedChain(chain) {
			t.Errorf("SupportedChain(%s) = false, want true", chain)
		}
	}
	if SupportedChain("ethereum") {
		t.Errorf("SupportedChain(ethereum) = true, want false")
	}
}

func testChainServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(config.UTXOChain{
		Chain:   "bitcoin",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, testutils.MockLogger())
	return server, client
}

func TestClient_FeeEstimates(t *testing.T) {
	_, client := testChainServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fee-estimates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"1": 25.7, "6": 12.1, "144": 3.05}`))
	})

	fees, err := client.FeeEstimates(context.Background())
	if err != nil {
		t.Fatalf("FeeEstimates() error = %v", err)
	}
	if fees["1"].String() != "25.7" {
		t.Errorf("fees[1] = %s, want 25.7", fees["1"])
	}
	if len(fees) != 3 {
		t.Errorf("fees = %d targets, want 3", len(fees))
	}
}

func TestClient_Balance(t *testing.T) {
	_, client := testChainServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"txid": "aa", "vout": 0, "value": 100000, "status": {"confirmed": true, "block_height": 900000}},
			{"txid": "bb", "vout": 1, "value": 50000, "status": {"confirmed": true, "block_height": 900001}},
			{"txid": "cc", "vout": 0, "value": 25000, "status": {"confirmed": false}}
		]`))
	})

	balance, err := client.Balance(context.Background(), "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err != nil {
		t.Fatalf("Balance() error = %v", err)
	}
	if balance.Confirmed.String() != "150000" {
		t.Errorf("Confirmed = %s, want 150000", balance.Confirmed)
	}
	if balance.Unconfirmed.String() != "25000" {
		t.Errorf("Unconfirmed = %s, want 25000", balance.Unconfirmed)
	}
}

func TestClient_History_Limit(t *testing.T) {
	_, client := testChainServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"txid": "aa", "fee": 300, "status": {"confirmed": true}},
			{"txid": "bb", "fee": 250, "status": {"confirmed": true}},
			{"txid": "cc", "fee": 150, "status": {"confirmed": false}}
		]`))
	})

	txs, err := client.History(context.Background(), "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("History() = %d entries, want limit-capped 2", len(txs))
	}
	if txs[0].TxID != "aa" {
		t.Errorf("History()[0].TxID = %s, want newest first", txs[0].TxID)
	}
}

func TestClient_History_RejectsBadAddress(t *testing.T) {
	_, client := testChainServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend called for invalid address")
	})

	if _, err := client.History(context.Background(), "invalid", 10); err == nil {
		t.Error("History() error = nil, want address validation failure before any backend call")
	}
}

func TestClient_OrderStatusForTx(t *testing.T) {
	tests := []struct {
		name string
		body string
		want models.OrderStatus
	}{
		{"confirmed", `{"confirmed": true, "block_height": 900000}`, models.StatusCompleted},
		{"unconfirmed", `{"confirmed": false}`, models.StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := testChainServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			status, err := client.OrderStatusForTx(context.Background(), "aa")
			if err != nil {
				t.Fatalf("OrderStatusForTx() error = %v", err)
			}
			if status != tt.want {
				t.Errorf("OrderStatusForTx() = %s, want %s", status, tt.want)
			}
		})
	}
}

func TestService_CachesFeeEstimates(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"1": 20}`))
	}))
	defer server.Close()

	cfg := testutils.MockConfig()
	cfg.UTXOChains = []config.UTXOChain{{Chain: "bitcoin", BaseURL: server.URL, Timeout: 2 * time.Second}}

	store, err := cache.New(16)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	service := NewService(cfg, store, testutils.MockLogger())

	for i := 0; i < 3; i++ {
		if _, err := service.FeeEstimates(context.Background(), "bitcoin"); err != nil {
			t.Fatalf("FeeEstimates() call %d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("backend calls = %d, want cached after first", got)
	}
}

func TestService_UnsupportedChain(t *testing.T) {
	cfg := testutils.MockConfig()
	cfg.UTXOChains = nil
	store, err := cache.New(16)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	service := NewService(cfg, store, testutils.MockLogger())

	if _, err := service.FeeEstimates(context.Background(), "bitcoin"); !errors.Is(err, ErrUnsupportedChain) {
		t.Errorf("FeeEstimates() error = %v, want ErrUnsupportedChain", err)
	}
	if _, err := service.Client("bitcoin"); !errors.Is(err, ErrUnsupportedChain) {
		t.Errorf("Client() error = %v, want ErrUnsupportedChain", err)
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Quote is one provider's priced offer for converting an amount of one
// currency into another. Amounts are decimals and marshal as JSON strings;
// floats lose precision on crypto denominations.
type Quote struct {
	ProviderID       string          `json:"provider_id"`
	FromCurrency     string          `json:"from_currency"`
	ToCurrency       string          `json:"to_currency"`
	FromAmount       decimal.Decimal `json:"from_amount"`
	ToAmount         decimal.Decimal `json:"to_amount"`
	FeeAmount        decimal.Decimal `json:"fee_amount"`
	NetworkFeeAmount decimal.Decimal `json:"network_fee_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	PaymentMethods   []string        `json:"available_payment_methods,omitempty"`
	Errors           []string        `json:"errors,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
}

// Selectable reports whether the quote may be offered to the user. A quote
// carrying provider-reported errors is kept in responses for diagnostics but
// must never be selectable. When a payment method was requested the provider
// must support it.
func (q Quote) Selectable(paymentMethod string) bool {
	if len(q.Errors) > 0 {
		return false
	}
	if paymentMethod == "" {
		return true
	}
	for _, m := range q.PaymentMethods {
		if m == paymentMethod {
			return true
		}
	}
	return false
}

// OrderStatus is the lifecycle state of a provider-side order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusCompleted  OrderStatus = "completed"
	StatusFailed     OrderStatus = "failed"
	StatusRefunded   OrderStatus = "refunded"
	StatusCancelled  OrderStatus = "cancelled"
)

// forwardTransitions is the partial order of allowed status moves. A record
// must never regress toward pending once it has left it.
var forwardTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:  {StatusRefunded, StatusCancelled},
	StatusFailed:     {StatusRefunded, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is forward
// in the lifecycle partial order.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return false
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions at all.
func (s OrderStatus) Terminal() bool {
	return len(forwardTransitions[s]) == 0
}

// Order is a provider-side submitted conversion intent tracked locally for
// reconciliation. Mutated only by the reconciliation job.
type Order struct {
	RecordID      uuid.UUID   `json:"record_id"`
	OrderID       string      `json:"order_id"`
	ProviderID    string      `json:"provider_id"`
	UserID        string      `json:"user_id"`
	Status        OrderStatus `json:"status"`
	FromAsset     string      `json:"from_asset"`
	ToAsset       string      `json:"to_asset"`
	PayoutAddress string      `json:"payout_address"`
	RefundAddress string      `json:"refund_address,omitempty"`
	ExternalRef   string      `json:"external_ref,omitempty"`
	Attempts      int         `json:"attempts"`
	LastCheckedAt *time.Time  `json:"last_checked_at,omitempty"`
	ScheduledFor  time.Time   `json:"scheduled_for"`
	ExpiresAt     time.Time   `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ReconcileDetail records the outcome of re-checking a single order.
type ReconcileDetail struct {
	RecordID   uuid.UUID   `json:"record_id"`
	OrderID    string      `json:"order_id"`
	ProviderID string      `json:"provider_id"`
	OldStatus  OrderStatus `json:"old_status"`
	NewStatus  OrderStatus `json:"new_status"`
	Updated    bool        `json:"updated"`
	Error      string      `json:"error,omitempty"`
}

// ReconcileSummary is the result of one reconciliation sweep.
type ReconcileSummary struct {
	Checked int               `json:"checked"`
	Updated int               `json:"updated"`
	Failed  int               `json:"failed"`
	Details []ReconcileDetail `json:"details"`
}

// StatusEvent is emitted to the notification dispatcher on every applied
// status transition.
type StatusEvent struct {
	RecordID   uuid.UUID   `json:"record_id"`
	OrderID    string      `json:"order_id"`
	ProviderID string      `json:"provider_id"`
	UserID     string      `json:"user_id"`
	OldStatus  OrderStatus `json:"old_status"`
	NewStatus  OrderStatus `json:"new_status"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// ErrorResponse is the uniform error envelope returned by the HTTP surface.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthCheck is the /health response body.
type HealthCheck struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

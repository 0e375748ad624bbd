package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuote_Selectable(t *testing.T) {
	tests := []struct {
		name          string
		quote         Quote
		paymentMethod string
		expected      bool
	}{
		{
			name: "clean quote with no method filter",
			quote: Quote{
				ProviderID:     "moonpay",
				PaymentMethods: []string{"credit_debit_card", "sepa_bank_transfer"},
			},
			paymentMethod: "",
			expected:      true,
		},
		{
			name: "clean quote with supported method",
			quote: Quote{
				ProviderID:     "moonpay",
				PaymentMethods: []string{"credit_debit_card", "sepa_bank_transfer"},
			},
			paymentMethod: "credit_debit_card",
			expected:      true,
		},
		{
			name: "clean quote with unsupported method",
			quote: Quote{
				ProviderID:     "moonpay",
				PaymentMethods: []string{"credit_debit_card"},
			},
			paymentMethod: "apple_pay",
			expected:      false,
		},
		{
			name: "errored quote is never selectable",
			quote: Quote{
				ProviderID: "transak",
				Errors:     []string{"pair not supported"},
			},
			paymentMethod: "",
			expected:      false,
		},
		{
			name: "errored quote stays unselectable even with matching method",
			quote: Quote{
				ProviderID:     "transak",
				PaymentMethods: []string{"credit_debit_card"},
				Errors:         []string{"amount below minimum"},
			},
			paymentMethod: "credit_debit_card",
			expected:      false,
		},
		{
			name: "no advertised methods with a method filter",
			quote: Quote{
				ProviderID: "jupiter",
			},
			paymentMethod: "credit_debit_card",
			expected:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.quote.Selectable(tt.paymentMethod); got != tt.expected {
				t.Errorf("Selectable(%q) = %v, want %v", tt.paymentMethod, got, tt.expected)
			}
		})
	}
}

func TestQuote_DecimalAmounts(t *testing.T) {
	quote := Quote{
		FromAmount: decimal.RequireFromString("100.00"),
		ToAmount:   decimal.RequireFromString("0.00154321"),
	}

	// Decimal amounts must compare exactly, no float drift
	if !quote.ToAmount.Equal(decimal.RequireFromString("0.00154321")) {
		t.Errorf("ToAmount = %s, want 0.00154321", quote.ToAmount)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     OrderStatus
		to       OrderStatus
		expected bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},
		{"completed to cancelled", StatusCompleted, StatusCancelled, true},
		{"failed to refunded", StatusFailed, StatusRefunded, true},
		{"failed to cancelled", StatusFailed, StatusCancelled, true},

		{"processing back to pending", StatusProcessing, StatusPending, false},
		{"completed back to pending", StatusCompleted, StatusPending, false},
		{"completed back to processing", StatusCompleted, StatusProcessing, false},
		{"refunded to anything", StatusRefunded, StatusPending, false},
		{"cancelled to anything", StatusCancelled, StatusProcessing, false},
		{"same status is not a transition", StatusProcessing, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
		})
	}
}

func TestCanTransition_NeverRegresses(t *testing.T) {
	all := []OrderStatus{
		StatusPending, StatusProcessing, StatusCompleted,
		StatusFailed, StatusRefunded, StatusCancelled,
	}

	// Nothing ever moves back to pending, and terminal states stay terminal
	for _, from := range all {
		if from != StatusPending && CanTransition(from, StatusPending) {
			t.Errorf("CanTransition(%s, pending) = true, want false", from)
		}
	}
	for _, to := range all {
		if CanTransition(StatusRefunded, to) {
			t.Errorf("CanTransition(refunded, %s) = true, want false", to)
		}
		if CanTransition(StatusCancelled, to) {
			t.Errorf("CanTransition(cancelled, %s) = true, want false", to)
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, false}, // refund still possible
		{StatusFailed, false},
		{StatusRefunded, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

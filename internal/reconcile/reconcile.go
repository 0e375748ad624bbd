// Package reconcile re-checks pending order records against their
// authoritative external sources and applies forward-only status
// transitions.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"multichain-wallet-api/internal/logger"
	"multichain-wallet-api/internal/models"
	"multichain-wallet-api/internal/providers"

	"github.com/google/uuid"
)

// RecordStore is the persistence surface the job needs. *store.Store
// satisfies it; tests use fakes.
type RecordStore interface {
	SelectPending(ctx context.Context, maxRows int, userID string, includeFresh bool) ([]models.Order, error)
	TransitionStatus(ctx context.Context, recordID uuid.UUID, from, to models.OrderStatus) (bool, error)
	TouchChecked(ctx context.Context, recordID uuid.UUID, checkedAt time.Time) error
}

// ChainSource resolves an on-chain transaction reference to an order status;
// used for records whose provider has no order API (incoming transfers).
type ChainSource interface {
	OrderStatusForTx(ctx context.Context, txid string) (models.OrderStatus, error)
}

// AddressScanner infers a status from an address's recent history, bounded by
// a per-address transaction limit. Chain sources that support it are used for
// records that have no transaction reference yet. *utxo.Client satisfies it.
type AddressScanner interface {
	OrderStatusForAddress(ctx context.Context, address string, txLimit int) (models.OrderStatus, error)
}

// Options bounds one sweep.
type Options struct {
	MaxRows           int
	TxLimitPerAddress int
	IncludeFresh      bool
	UserID            string // scoped sweep; derived from a verified session, never from the request body
}

// Job is the reconciliation sweep. Safe for concurrent triggering: an
// in-flight guard keeps at most one check per record at a time.
type Job struct {
	store      RecordStore
	checkers   map[string]providers.StatusChecker
	chains     map[string]ChainSource
	dispatcher Dispatcher
	logger     *logger.Logger

	inFlight      map[uuid.UUID]struct{}
	inFlightMutex sync.Mutex

	loopTicker *time.Ticker
	stopLoop   chan struct{}
	loopOnce   sync.Once
}

// Dispatcher matches notify.Dispatcher without importing it.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.StatusEvent) error
}

// NewJob wires the sweep to its record store, status sources and dispatcher.
func NewJob(store RecordStore, checkers map[string]providers.StatusChecker, chains map[string]ChainSource, dispatcher Dispatcher, log *logger.Logger) *Job {
	return &Job{
		store:      store,
		checkers:   checkers,
		chains:     chains,
		dispatcher: dispatcher,
		logger:     log,
		inFlight:   make(map[uuid.UUID]struct{}),
		stopLoop:   make(chan struct{}),
	}
}

// Run performs one sweep: select a bounded batch, re-query each record's
// source of truth, and apply forward-only transitions. Each record is
// isolated; one failure never aborts the batch. Re-running over unchanged
// external state is a no-op.
func (j *Job) Run(ctx context.Context, opts Options) (models.ReconcileSummary, error) {
	if opts.MaxRows <= 0 {
		opts.MaxRows = 100
	}
	if opts.TxLimitPerAddress <= 0 {
		opts.TxLimitPerAddress = 25
	}

	candidates, err := j.store.SelectPending(ctx, opts.MaxRows, opts.UserID, opts.IncludeFresh)
	if err != nil {
		return models.ReconcileSummary{}, fmt.Errorf("failed to select candidates: %w", err)
	}

	summary := models.ReconcileSummary{Details: make([]models.ReconcileDetail, 0, len(candidates))}
	for _, order := range candidates {
		summary.Checked++
		detail := j.reconcileOne(ctx, order, opts)
		if detail.Error != "" {
			summary.Failed++
		} else if detail.Updated {
			summary.Updated++
		}
		summary.Details = append(summary.Details, detail)
	}

	j.logger.WithComponent("reconcile").
		WithField("checked", summary.Checked).
		WithField("updated", summary.Updated).
		WithField("failed", summary.Failed).
		Info("Reconciliation sweep finished")
	return summary, nil
}

// reconcileOne re-checks a single record against external truth.
func (j *Job) reconcileOne(ctx context.Context, order models.Order, opts Options) models.ReconcileDetail {
	detail := models.ReconcileDetail{
		RecordID:   order.RecordID,
		OrderID:    order.OrderID,
		ProviderID: order.ProviderID,
		OldStatus:  order.Status,
		NewStatus:  order.Status,
	}

	if !j.acquire(order.RecordID) {
		detail.Error = "reconciliation already in flight for record"
		return detail
	}
	defer j.release(order.RecordID)

	target, err := j.externalStatus(ctx, order, opts)
	if err != nil {
		j.logger.Warnf("Failed to re-query %s order %s: %v", order.ProviderID, order.OrderID, err)
		detail.Error = err.Error()
		return detail
	}

	if touchErr := j.store.TouchChecked(ctx, order.RecordID, time.Now()); touchErr != nil {
		j.logger.Warnf("Failed to record check attempt for %s: %v", order.RecordID, touchErr)
	}

	if target == order.Status {
		return detail
	}
	if !models.CanTransition(order.Status, target) {
		// External truth regressed or repeated a terminal state; never move
		// a record backward.
		j.logger.Warnf("Ignoring non-forward transition %s -> %s for record %s", order.Status, target, order.RecordID)
		return detail
	}

	applied, err := j.store.TransitionStatus(ctx, order.RecordID, order.Status, target)
	if err != nil {
		detail.Error = err.Error()
		return detail
	}
	if !applied {
		// A concurrent sweep already moved the record; nothing to do.
		return detail
	}

	detail.NewStatus = target
	detail.Updated = true

	event := models.StatusEvent{
		RecordID:   order.RecordID,
		OrderID:    order.OrderID,
		ProviderID: order.ProviderID,
		UserID:     order.UserID,
		OldStatus:  order.Status,
		NewStatus:  target,
		OccurredAt: time.Now(),
	}
	if j.dispatcher != nil {
		if err := j.dispatcher.Dispatch(ctx, event); err != nil {
			j.logger.Warnf("Failed to dispatch status event for %s: %v", order.RecordID, err)
		}
	}
	return detail
}

// externalStatus picks the authoritative source for a record: the provider's
// order API when one exists, otherwise the chain lookup via the external tx
// reference, otherwise a bounded scan of the payout address history.
func (j *Job) externalStatus(ctx context.Context, order models.Order, opts Options) (models.OrderStatus, error) {
	if checker, ok := j.checkers[order.ProviderID]; ok {
		ref := order.ExternalRef
		if ref == "" {
			ref = order.OrderID
		}
		return checker.GetOrderStatus(ctx, ref)
	}
	if chain, ok := j.chains[order.ProviderID]; ok {
		if order.ExternalRef != "" {
			return chain.OrderStatusForTx(ctx, order.ExternalRef)
		}
		if scanner, ok := chain.(AddressScanner); ok && order.PayoutAddress != "" {
			return scanner.OrderStatusForAddress(ctx, order.PayoutAddress, opts.TxLimitPerAddress)
		}
		return "", fmt.Errorf("record %s has no transaction reference", order.RecordID)
	}
	return "", fmt.Errorf("no status source for provider %q", order.ProviderID)
}

func (j *Job) acquire(recordID uuid.UUID) bool {
	j.inFlightMutex.Lock()
	defer j.inFlightMutex.Unlock()
	if _, busy := j.inFlight[recordID]; busy {
		return false
	}
	j.inFlight[recordID] = struct{}{}
	return true
}

func (j *Job) release(recordID uuid.UUID) {
	j.inFlightMutex.Lock()
	delete(j.inFlight, recordID)
	j.inFlightMutex.Unlock()
}

// Start runs sweeps on an interval until Stop is called. Used by deployments
// without an external cron trigger.
func (j *Job) Start(interval time.Duration, opts Options) {
	if interval <= 0 {
		return
	}
	j.loopTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-j.loopTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if _, err := j.Run(ctx, opts); err != nil {
					j.logger.Errorf("Scheduled reconciliation sweep failed: %v", err)
				}
				cancel()
			case <-j.stopLoop:
				j.loopTicker.Stop()
				return
			}
		}
	}()
}

// Stop stops the interval loop
func (j *Job) Stop() {
	j.loopOnce.Do(func() {
		close(j.stopLoop)
	})
}

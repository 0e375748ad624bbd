package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"multichain-wallet-api/internal/models"
	"multichain-wallet-api/internal/providers"
	"multichain-wallet-api/internal/testutils"

	"github.com/google/uuid"
)

// memoryStore is an in-memory RecordStore with the same compare-and-swap
// transition semantics as the database store.
type memoryStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	listed []uuid.UUID

	selectErr error
}

func newMemoryStore(orders ...models.Order) *memoryStore {
	ms := &memoryStore{orders: make(map[uuid.UUID]*models.Order)}
	for i := range orders {
		order := orders[i]
		ms.orders[order.RecordID] = &order
		ms.listed = append(ms.listed, order.RecordID)
	}
	return ms
}

func (ms *memoryStore) SelectPending(ctx context.Context, maxRows int, userID string, includeFresh bool) ([]models.Order, error) {
	if ms.selectErr != nil {
		return nil, ms.selectErr
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []models.Order
	for _, id := range ms.listed {
		order := ms.orders[id]
		if order.Status != models.StatusPending {
			continue
		}
		if userID != "" && order.UserID != userID {
			continue
		}
		out = append(out, *order)
		if len(out) >= maxRows {
			break
		}
	}
	return out, nil
}

func (ms *memoryStore) TransitionStatus(ctx context.Context, recordID uuid.UUID, from, to models.OrderStatus) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, errors.New("transition not allowed")
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	order, ok := ms.orders[recordID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (ms *memoryStore) TouchChecked(ctx context.Context, recordID uuid.UUID, checkedAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if order, ok := ms.orders[recordID]; ok {
		order.Attempts++
		order.LastCheckedAt = &checkedAt
	}
	return nil
}

func (ms *memoryStore) status(recordID uuid.UUID) models.OrderStatus {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.orders[recordID].Status
}

// fakeChecker returns a scripted status per external ref.
type fakeChecker struct {
	name     string
	statuses map[string]models.OrderStatus
	err      error
	calls    int
}

func (f *fakeChecker) Name() string { return f.name }
func (f *fakeChecker) GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	status, ok := f.statuses[externalRef]
	if !ok {
		return "", errors.New("order not found")
	}
	return status, nil
}

// blockingChecker parks inside the status lookup until released, so a test
// can hold a record's in-flight slot across a second sweep.
type blockingChecker struct {
	name    string
	entered chan struct{}
	release chan struct{}
	status  models.OrderStatus
}

func (b *blockingChecker) Name() string { return b.name }
func (b *blockingChecker) GetOrderStatus(ctx context.Context, externalRef string) (models.OrderStatus, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.status, nil
}

// fakeChain resolves txids to statuses.
type fakeChain struct {
	statuses map[string]models.OrderStatus
}

func (f *fakeChain) OrderStatusForTx(ctx context.Context, txid string) (models.OrderStatus, error) {
	status, ok := f.statuses[txid]
	if !ok {
		return "", errors.New("tx not found")
	}
	return status, nil
}

// fakeScanningChain additionally answers address scans, recording the limit.
type fakeScanningChain struct {
	fakeChain
	addressStatuses map[string]models.OrderStatus
	lastTxLimit     int
}

func (f *fakeScanningChain) OrderStatusForAddress(ctx context.Context, address string, txLimit int) (models.OrderStatus, error) {
	f.lastTxLimit = txLimit
	status, ok := f.addressStatuses[address]
	if !ok {
		return "", errors.New("address not found")
	}
	return status, nil
}

// captureDispatcher records every dispatched status event.
type captureDispatcher struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (c *captureDispatcher) Dispatch(ctx context.Context, event models.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestJob(store RecordStore, checker *fakeChecker, dispatcher Dispatcher) *Job {
	var checkers map[string]providers.StatusChecker
	if checker != nil {
		checkers = map[string]providers.StatusChecker{checker.name: checker}
	}
	return NewJob(store, checkers, nil, dispatcher, testutils.MockLogger())
}

func TestJob_Run_AppliesForwardTransition(t *testing.T) {
	order := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(order)
	checker := &fakeChecker{
		name:     "moonpay",
		statuses: map[string]models.OrderStatus{order.ExternalRef: models.StatusCompleted},
	}
	dispatcher := &captureDispatcher{}
	job := newTestJob(store, checker, dispatcher)

	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Checked != 1 || summary.Updated != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 checked, 1 updated, 0 failed", summary)
	}
	if got := store.status(order.RecordID); got != models.StatusCompleted {
		t.Errorf("record status = %s, want completed", got)
	}
	if dispatcher.count() != 1 {
		t.Errorf("dispatched events = %d, want 1", dispatcher.count())
	}
}

func TestJob_Run_Idempotent(t *testing.T) {
	order := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(order)
	checker := &fakeChecker{
		name:     "moonpay",
		statuses: map[string]models.OrderStatus{order.ExternalRef: models.StatusCompleted},
	}
	dispatcher := &captureDispatcher{}
	job := newTestJob(store, checker, dispatcher)

	if _, err := job.Run(context.Background(), Options{MaxRows: 10}); err != nil {
		t.Fatalf("Run() first sweep error = %v", err)
	}

	// Second sweep over unchanged external state changes nothing: the record
	// left pending, so it is no longer a candidate.
	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() second sweep error = %v", err)
	}
	if summary.Checked != 0 || summary.Updated != 0 {
		t.Errorf("second sweep summary = %+v, want nothing checked or updated", summary)
	}
	if dispatcher.count() != 1 {
		t.Errorf("dispatched events after two sweeps = %d, want 1", dispatcher.count())
	}
}

func TestJob_Run_SingleInFlightPerRecord(t *testing.T) {
	order := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(order)
	checker := &blockingChecker{
		name:    "moonpay",
		entered: make(chan struct{}),
		release: make(chan struct{}),
		status:  models.StatusCompleted,
	}
	dispatcher := &captureDispatcher{}
	job := NewJob(store, map[string]providers.StatusChecker{"moonpay": checker}, nil, dispatcher, testutils.MockLogger())

	done := make(chan models.ReconcileSummary, 1)
	go func() {
		summary, _ := job.Run(context.Background(), Options{MaxRows: 10})
		done <- summary
	}()
	// First sweep is now parked inside the status lookup, holding the
	// record's in-flight slot
	<-checker.entered

	second, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() concurrent sweep error = %v", err)
	}
	if second.Checked != 1 || second.Updated != 0 || second.Failed != 1 {
		t.Errorf("concurrent sweep summary = %+v, want the busy record rejected", second)
	}
	if len(second.Details) != 1 || !strings.Contains(second.Details[0].Error, "already in flight") {
		t.Errorf("concurrent sweep detail = %+v, want already-in-flight error", second.Details)
	}

	close(checker.release)
	first := <-done
	if first.Updated != 1 {
		t.Errorf("first sweep summary = %+v, want the transition applied", first)
	}
	if got := store.status(order.RecordID); got != models.StatusCompleted {
		t.Errorf("record status = %s, want completed exactly once", got)
	}
	if dispatcher.count() != 1 {
		t.Errorf("dispatched events = %d, want exactly 1", dispatcher.count())
	}
}

func TestJob_Run_NeverRegresses(t *testing.T) {
	order := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(order)
	// External source still reports pending
	checker := &fakeChecker{
		name:     "moonpay",
		statuses: map[string]models.OrderStatus{order.ExternalRef: models.StatusPending},
	}
	job := newTestJob(store, checker, &captureDispatcher{})

	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Updated != 0 {
		t.Errorf("summary.Updated = %d, want 0 for unchanged external state", summary.Updated)
	}
	if got := store.status(order.RecordID); got != models.StatusPending {
		t.Errorf("record status = %s, want pending untouched", got)
	}
}

func TestJob_Run_RecordsAttempts(t *testing.T) {
	order := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(order)
	checker := &fakeChecker{
		name:     "moonpay",
		statuses: map[string]models.OrderStatus{order.ExternalRef: models.StatusPending},
	}
	job := newTestJob(store, checker, &captureDispatcher{})

	if _, err := job.Run(context.Background(), Options{MaxRows: 10}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	store.mu.Lock()
	got := store.orders[order.RecordID]
	store.mu.Unlock()
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if got.LastCheckedAt == nil {
		t.Errorf("LastCheckedAt not recorded")
	}
}

func TestJob_Run_BatchCap(t *testing.T) {
	orders := make([]models.Order, 5)
	statuses := make(map[string]models.OrderStatus)
	for i := range orders {
		orders[i] = testutils.MockOrder("moonpay", "user-1")
		statuses[orders[i].ExternalRef] = models.StatusCompleted
	}
	store := newMemoryStore(orders...)
	checker := &fakeChecker{name: "moonpay", statuses: statuses}
	job := newTestJob(store, checker, &captureDispatcher{})

	summary, err := job.Run(context.Background(), Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Checked != 2 {
		t.Errorf("summary.Checked = %d, want batch capped at 2", summary.Checked)
	}
	if checker.calls != 2 {
		t.Errorf("external calls = %d, want 2", checker.calls)
	}
}

func TestJob_Run_FailureIsolation(t *testing.T) {
	healthy := testutils.MockOrder("moonpay", "user-1")
	broken := testutils.MockOrder("moonpay", "user-1")
	store := newMemoryStore(broken, healthy)
	checker := &fakeChecker{
		name: "moonpay",
		statuses: map[string]models.OrderStatus{
			healthy.ExternalRef: models.StatusCompleted,
			// broken.ExternalRef deliberately missing: lookup fails
		},
	}
	job := newTestJob(store, checker, &captureDispatcher{})

	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() error = %v, want per-record isolation", err)
	}
	if summary.Checked != 2 || summary.Updated != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 2 checked, 1 updated, 1 failed", summary)
	}
	if got := store.status(healthy.RecordID); got != models.StatusCompleted {
		t.Errorf("healthy record status = %s, want completed despite sibling failure", got)
	}
}

func TestJob_Run_UserScope(t *testing.T) {
	mine := testutils.MockOrder("moonpay", "user-1")
	theirs := testutils.MockOrder("moonpay", "user-2")
	store := newMemoryStore(mine, theirs)
	checker := &fakeChecker{
		name: "moonpay",
		statuses: map[string]models.OrderStatus{
			mine.ExternalRef:   models.StatusCompleted,
			theirs.ExternalRef: models.StatusCompleted,
		},
	}
	job := newTestJob(store, checker, &captureDispatcher{})

	summary, err := job.Run(context.Background(), Options{MaxRows: 10, UserID: "user-1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Checked != 1 {
		t.Errorf("summary.Checked = %d, want only the scoped user's record", summary.Checked)
	}
	if got := store.status(theirs.RecordID); got != models.StatusPending {
		t.Errorf("other user's record status = %s, want untouched pending", got)
	}
}

func TestJob_Run_ChainFallback(t *testing.T) {
	order := testutils.MockOrder("bitcoin", "user-1")
	store := newMemoryStore(order)
	chain := &fakeChain{
		statuses: map[string]models.OrderStatus{order.ExternalRef: models.StatusCompleted},
	}
	job := NewJob(store, nil, map[string]ChainSource{"bitcoin": chain}, &captureDispatcher{}, testutils.MockLogger())

	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Updated != 1 {
		t.Errorf("summary.Updated = %d, want 1 via chain source", summary.Updated)
	}
	if got := store.status(order.RecordID); got != models.StatusCompleted {
		t.Errorf("record status = %s, want completed", got)
	}
}

func TestJob_Run_AddressScanFallback(t *testing.T) {
	order := testutils.MockOrder("bitcoin", "user-1")
	order.ExternalRef = "" // no txid known yet, only the payout address
	store := newMemoryStore(order)
	chain := &fakeScanningChain{
		addressStatuses: map[string]models.OrderStatus{order.PayoutAddress: models.StatusCompleted},
	}
	job := NewJob(store, nil, map[string]ChainSource{"bitcoin": chain}, &captureDispatcher{}, testutils.MockLogger())

	summary, err := job.Run(context.Background(), Options{MaxRows: 10, TxLimitPerAddress: 7})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Updated != 1 {
		t.Errorf("summary.Updated = %d, want 1 via address scan", summary.Updated)
	}
	if chain.lastTxLimit != 7 {
		t.Errorf("address scan tx limit = %d, want 7 passed through", chain.lastTxLimit)
	}
	if got := store.status(order.RecordID); got != models.StatusCompleted {
		t.Errorf("record status = %s, want completed", got)
	}
}

func TestJob_Run_NoStatusSource(t *testing.T) {
	order := testutils.MockOrder("unknown-provider", "user-1")
	store := newMemoryStore(order)
	job := NewJob(store, nil, nil, &captureDispatcher{}, testutils.MockLogger())

	summary, err := job.Run(context.Background(), Options{MaxRows: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary.Failed = %d, want 1 for record without a status source", summary.Failed)
	}
	if got := store.status(order.RecordID); got != models.StatusPending {
		t.Errorf("record status = %s, want untouched pending", got)
	}
}

func TestJob_Run_SelectError(t *testing.T) {
	store := newMemoryStore()
	store.selectErr = errors.New("connection refused")
	job := NewJob(store, nil, nil, nil, testutils.MockLogger())

	if _, err := job.Run(context.Background(), Options{MaxRows: 10}); err == nil {
		t.Error("Run() error = nil, want select failure surfaced")
	}
}

//go:build !integration

package usecase

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cuenty-subscription-engine/internal/domain"
	"cuenty-subscription-engine/internal/domain/model"
	"cuenty-subscription-engine/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock TransactionManager ----

// mockTxManager runs the callback immediately with NoTX. Tests that need
// transaction-level serialization (concurrent reservations) set Serialize,
// which holds one mutex across each callback the way a serializable
// transaction would.
type mockTxManager struct {
	mu        sync.Mutex
	Serialize bool
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func newMockTxManager() *mockTxManager { return &mockTxManager{} }

func (m *mockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	if m.Serialize {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(ctx, repository.NoTX)
}

// ---- In-memory AccountRepository ----

type memAccountRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Account
	saveErr error
}

var _ repository.AccountRepository = (*memAccountRepo)(nil)

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{store: make(map[string]*model.Account)}
}

func copyAccount(a *model.Account) *model.Account {
	cp := *a
	cp.Slots = append([]model.Slot(nil), a.Slots...)
	return &cp
}

func (m *memAccountRepo) Save(ctx context.Context, tx repository.Tx, account *model.Account) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[account.ID] = copyAccount(account)
	return nil
}

func (m *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyAccount(a), nil
}

func (m *memAccountRepo) list(filter func(*model.Account) bool) []repository.AccountFreeCount {
	var out []repository.AccountFreeCount
	for _, a := range m.store {
		if !filter(a) {
			continue
		}
		cp := copyAccount(a)
		out = append(out, repository.AccountFreeCount{Account: cp, FreeSlots: cp.FreeSlots()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.CreatedAt.Before(out[j].Account.CreatedAt)
	})
	return out
}

func (m *memAccountRepo) ListByService(ctx context.Context, tx repository.Tx, service string) ([]repository.AccountFreeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(a *model.Account) bool { return a.Active && a.Service == service }), nil
}

func (m *memAccountRepo) ListAll(ctx context.Context, tx repository.Tx) ([]repository.AccountFreeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(func(*model.Account) bool { return true }), nil
}

func (m *memAccountRepo) Lock(ctx context.Context, tx repository.Tx, accountID string) error {
	return nil
}

func (m *memAccountRepo) FindFreeSlot(ctx context.Context, tx repository.Tx, accountID string) (*model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for i := range a.Slots {
		if a.Slots[i].Free() {
			cp := a.Slots[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNoCapacity
}

func (m *memAccountRepo) FindSlot(ctx context.Context, tx repository.Tx, ref model.SlotRef) (*model.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[ref.AccountID]
	if !ok || ref.SlotIndex < 0 || ref.SlotIndex >= len(a.Slots) {
		return nil, domain.ErrNotFound
	}
	cp := a.Slots[ref.SlotIndex]
	return &cp, nil
}

func (m *memAccountRepo) SaveSlot(ctx context.Context, tx repository.Tx, slot *model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[slot.AccountID]
	if !ok || slot.Index < 0 || slot.Index >= len(a.Slots) {
		return domain.ErrNotFound
	}
	a.Slots[slot.Index] = *slot
	return nil
}

func (m *memAccountRepo) FreeSlotCount(ctx context.Context, tx repository.Tx, accountID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[accountID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return a.FreeSlots(), nil
}

func (m *memAccountRepo) SetActive(ctx context.Context, tx repository.Tx, accountID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Active = active
	return nil
}

// ---- In-memory PlanRepository ----

type memPlanRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Plan
}

var _ repository.PlanRepository = (*memPlanRepo)(nil)

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{store: make(map[string]*model.Plan)}
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *plan
	m.store[plan.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Plan, 0, len(m.store))
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memPlanRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// ---- In-memory ComboRepository ----

type memComboRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Combo
}

var _ repository.ComboRepository = (*memComboRepo)(nil)

func newMemComboRepo() *memComboRepo {
	return &memComboRepo{store: make(map[string]*model.Combo)}
}

func copyCombo(c *model.Combo) *model.Combo {
	cp := *c
	cp.Items = append([]model.ComboItem(nil), c.Items...)
	return &cp
}

func (m *memComboRepo) Save(ctx context.Context, tx repository.Tx, combo *model.Combo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[combo.ID] = copyCombo(combo)
	return nil
}

func (m *memComboRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Combo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyCombo(c), nil
}

func (m *memComboRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Combo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Combo, 0, len(m.store))
	for _, c := range m.store {
		out = append(out, copyCombo(c))
	}
	return out, nil
}

func (m *memComboRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// ---- In-memory CustomerRepository ----

type memCustomerRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Customer
}

var _ repository.CustomerRepository = (*memCustomerRepo)(nil)

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{store: make(map[string]*model.Customer)}
}

func (m *memCustomerRepo) Save(ctx context.Context, tx repository.Tx, customer *model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *customer
	m.store[customer.ID] = &cp
	return nil
}

func (m *memCustomerRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCustomerRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Customer, 0, len(m.store))
	for _, c := range m.store {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ---- In-memory SubscriptionRepository ----

type memSubRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Subscription
	saveErr error
}

var _ repository.SubscriptionRepository = (*memSubRepo)(nil)

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{store: make(map[string]*model.Subscription)}
}

func copySub(s *model.Subscription) *model.Subscription {
	cp := *s
	if s.Slot != nil {
		ref := *s.Slot
		cp.Slot = &ref
	}
	return &cp
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[sub.ID] = copySub(sub)
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok || s.DeletedAt != nil {
		return nil, domain.ErrNotFound
	}
	return copySub(s), nil
}

func (m *memSubRepo) ListByStatus(ctx context.Context, tx repository.Tx, statuses ...model.SubscriptionStatus) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.DeletedAt != nil {
			continue
		}
		for _, st := range statuses {
			if s.Status == st {
				out = append(out, copySub(s))
				break
			}
		}
	}
	return out, nil
}

func (m *memSubRepo) ListByCustomer(ctx context.Context, tx repository.Tx, customerID string) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.DeletedAt == nil && s.CustomerID == customerID {
			out = append(out, copySub(s))
		}
	}
	return out, nil
}

func (m *memSubRepo) Lock(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	return nil
}

func (m *memSubRepo) DeleteTerminatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for _, s := range m.store {
		if s.DeletedAt != nil || !s.Status.Terminal() {
			continue
		}
		terminal := s.CreatedAt
		if s.CancelledAt != nil {
			terminal = *s.CancelledAt
		} else if s.NextRenewalAt != nil {
			terminal = *s.NextRenewalAt
		}
		if terminal.Before(cutoff) {
			s.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

// ---- In-memory RenewalAttemptRepository ----

type memAttemptRepo struct {
	mu    sync.RWMutex
	store map[string]*model.RenewalAttempt // key subscriptionID|cycle
}

var _ repository.RenewalAttemptRepository = (*memAttemptRepo)(nil)

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{store: make(map[string]*model.RenewalAttempt)}
}

func attemptKey(subscriptionID string, cycle model.CycleDate) string {
	return subscriptionID + "|" + string(cycle)
}

func (m *memAttemptRepo) Create(ctx context.Context, tx repository.Tx, attempt *model.RenewalAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attemptKey(attempt.SubscriptionID, attempt.CycleDate)
	if _, ok := m.store[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *attempt
	m.store[key] = &cp
	return nil
}

func (m *memAttemptRepo) Update(ctx context.Context, tx repository.Tx, attempt *model.RenewalAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attemptKey(attempt.SubscriptionID, attempt.CycleDate)
	if _, ok := m.store[key]; !ok {
		return domain.ErrNotFound
	}
	cp := *attempt
	m.store[key] = &cp
	return nil
}

func (m *memAttemptRepo) FindByCycle(ctx context.Context, tx repository.Tx, subscriptionID string, cycle model.CycleDate) (*model.RenewalAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[attemptKey(subscriptionID, cycle)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAttemptRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, a := range m.store {
		if a.CreatedAt.Before(cutoff) {
			delete(m.store, key)
			n++
		}
	}
	return n, nil
}

// ---- In-memory NotificationEventRepository ----

type memEventRepo struct {
	mu    sync.RWMutex
	store map[string]*model.NotificationEvent // key subscriptionID|kind|cycle
}

var _ repository.NotificationEventRepository = (*memEventRepo)(nil)

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{store: make(map[string]*model.NotificationEvent)}
}

func eventKey(subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) string {
	return strings.Join([]string{subscriptionID, string(kind), string(cycle)}, "|")
}

func (m *memEventRepo) Create(ctx context.Context, tx repository.Tx, event *model.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventKey(event.SubscriptionID, event.Kind, event.CycleDate)
	if _, ok := m.store[key]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *event
	m.store[key] = &cp
	return nil
}

func (m *memEventRepo) Update(ctx context.Context, tx repository.Tx, event *model.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventKey(event.SubscriptionID, event.Kind, event.CycleDate)
	if _, ok := m.store[key]; !ok {
		return domain.ErrNotFound
	}
	cp := *event
	m.store[key] = &cp
	return nil
}

func (m *memEventRepo) FindByKey(ctx context.Context, tx repository.Tx, subscriptionID string, kind model.NotificationKind, cycle model.CycleDate) (*model.NotificationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[eventKey(subscriptionID, kind, cycle)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEventRepo) ListFailed(ctx context.Context, tx repository.Tx, limit int) ([]*model.NotificationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.NotificationEvent
	for _, e := range m.store {
		if e.Status == model.NotificationEventFailed {
			cp := *e
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, e := range m.store {
		if e.CreatedAt.Before(cutoff) {
			delete(m.store, key)
			n++
		}
	}
	return n, nil
}

// ---- Fake PaymentCharger ----

type fakeCharger struct {
	mu         sync.Mutex
	calls      int
	ChargeFunc func(ctx context.Context, customerID, subscriptionID string, amount int64) (string, error)
}

func newFakeCharger() *fakeCharger { return &fakeCharger{} }

func (f *fakeCharger) Name() string { return "fake" }

func (f *fakeCharger) Charge(ctx context.Context, customerID, subscriptionID string, amount int64) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.ChargeFunc != nil {
		return f.ChargeFunc(ctx, customerID, subscriptionID, amount)
	}
	return "charge-ref-1", nil
}

func (f *fakeCharger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- Fake NotificationChannel ----

type fakeChannel struct {
	mu        sync.Mutex
	name      string
	failTimes int // fail the first N deliveries
	failAll   bool
	delivered []model.NotificationPayload
}

func newFakeChannel(name string) *fakeChannel { return &fakeChannel{name: name} }

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(ctx context.Context, kind model.NotificationKind, payload model.NotificationPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return domain.ErrOperationFailed
	}
	if f.failTimes > 0 {
		f.failTimes--
		return domain.ErrOperationFailed
	}
	f.delivered = append(f.delivered, payload)
	return nil
}

func (f *fakeChannel) Deliveries() []model.NotificationPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.NotificationPayload(nil), f.delivered...)
}

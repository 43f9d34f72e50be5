package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

// MockStore is a hand-written, in-memory implementation of
// SubscriptionRepository, QueueRepository and ProductRepository used in
// unit tests. One mutex guards all three so cross-table writes (MarkSent)
// are atomic, like the PostgreSQL transaction they stand in for.
type MockStore struct {
	mu       sync.Mutex
	subs     map[string]*domain.Subscription
	items    map[string]*domain.QueueItem
	order    []string // queue item ids in creation order
	products map[string]*domain.ProductDetails

	lastSeeded time.Time

	// Optional error overrides; set in tests to simulate failure paths.
	ListAllPendingErr error
	ListPendingErr    error
	ClaimErr          error
	ProductErr        error

	// Call counters used to assert which paths touched the store.
	listAllPendingCalls int
	listPendingCalls    int
	productCalls        int
	queueWrites         int
}

func NewMockStore() *MockStore {
	return &MockStore{
		subs:     make(map[string]*domain.Subscription),
		items:    make(map[string]*domain.QueueItem),
		products: make(map[string]*domain.ProductDetails),
	}
}

// ---- test helpers ----

// PutProduct seeds the product catalog.
func (m *MockStore) PutProduct(p domain.ProductDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := p
	m.products[p.ID] = &clone
}

// SeedSubscription inserts a pending subscription for productID and returns it.
func (m *MockStore) SeedSubscription(productID, email string) *domain.Subscription {
	m.mu.Lock()
	created := time.Now().UTC()
	if !created.After(m.lastSeeded) {
		created = m.lastSeeded.Add(time.Microsecond)
	}
	m.lastSeeded = created
	m.mu.Unlock()

	s := &domain.Subscription{
		ID:        uuid.New().String(),
		ProductID: productID,
		Email:     email,
		CreatedAt: created,
	}
	_ = m.Insert(context.Background(), s)
	return s
}

// Items returns a snapshot of every queue item in creation order.
func (m *MockStore) Items() []*domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.QueueItem, 0, len(m.order))
	for _, id := range m.order {
		if q, ok := m.items[id]; ok {
			clone := *q
			result = append(result, &clone)
		}
	}
	return result
}

// SetItemState overwrites status and attempts on an item.
func (m *MockStore) SetItemState(id string, status domain.Status, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.items[id]; ok {
		q.Status = status
		q.Attempts = attempts
	}
}

// BackdateProcessing moves processed_at of an item into the past.
func (m *MockStore) BackdateProcessing(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.items[id]; ok && q.ProcessedAt != nil {
		t := q.ProcessedAt.Add(-d)
		q.ProcessedAt = &t
	}
}

func (m *MockStore) ListAllPendingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAllPendingCalls
}

func (m *MockStore) ListPendingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPendingCalls
}

func (m *MockStore) ProductCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.productCalls
}

// QueueWrites counts every successful queue mutation.
func (m *MockStore) QueueWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueWrites
}

// ---- SubscriptionRepository ----

func (m *MockStore) Insert(_ context.Context, s *domain.Subscription) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if !existing.Delivered && existing.ProductID == s.ProductID &&
			strings.EqualFold(existing.Email, s.Email) {
			return domain.ErrConflict
		}
	}
	clone := *s
	m.subs[s.ID] = &clone
	return nil
}

func (m *MockStore) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.subs, id)
	// Mirrors ON DELETE CASCADE.
	for qid, q := range m.items {
		if q.SubscriptionID == id {
			delete(m.items, qid)
		}
	}
	return nil
}

func (m *MockStore) ListPending(_ context.Context, productID string) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listPendingCalls++
	if m.ListPendingErr != nil {
		return nil, m.ListPendingErr
	}
	var result []*domain.Subscription
	for _, s := range m.subs {
		if s.ProductID == productID && !s.Delivered {
			clone := *s
			result = append(result, &clone)
		}
	}
	sortSubscriptions(result)
	return result, nil
}

func (m *MockStore) ListAllPending(_ context.Context) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listAllPendingCalls++
	if m.ListAllPendingErr != nil {
		return nil, m.ListAllPendingErr
	}
	var result []*domain.Subscription
	for _, s := range m.subs {
		if !s.Delivered {
			clone := *s
			result = append(result, &clone)
		}
	}
	sortSubscriptions(result)
	return result, nil
}

func (m *MockStore) MarkDelivered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !s.Delivered {
		s.Delivered = true
		s.DeliveredAt = &at
	}
	return nil
}

// ---- ProductRepository ----

func (m *MockStore) GetProductDetails(_ context.Context, productID string) (*domain.ProductDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productCalls++
	if m.ProductErr != nil {
		return nil, m.ProductErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

// ---- QueueRepository ----

func (m *MockStore) Enqueue(_ context.Context, s *domain.Subscription, maxAttempts int) (*domain.QueueItem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	item := &domain.QueueItem{
		ID:             uuid.New().String(),
		SubscriptionID: s.ID,
		ProductID:      s.ProductID,
		Email:          s.Email,
		Status:         domain.StatusPending,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirrors idx_queue_open_subscription.
	if m.hasOpenItemLocked(s.ID, "") {
		return nil, fmt.Errorf("%w: subscription %s already queued", domain.ErrConflict, s.ID)
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	m.queueWrites++
	clone := *item
	return &clone, nil
}

func (m *MockStore) HasOpenItem(_ context.Context, subscriptionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasOpenItemLocked(subscriptionID, ""), nil
}

func (m *MockStore) GetItem(_ context.Context, id string) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *q
	return &clone, nil
}

func (m *MockStore) List(_ context.Context, f domain.QueueFilter) ([]*domain.QueueItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.QueueItem
	for i := len(m.order) - 1; i >= 0; i-- {
		q, ok := m.items[m.order[i]]
		if !ok {
			continue
		}
		if f.Status != nil && q.Status != *f.Status {
			continue
		}
		clone := *q
		matched = append(matched, &clone)
	}
	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MockStore) ClaimBatch(_ context.Context, limit int) ([]*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	now := time.Now().UTC()
	var claimed []*domain.QueueItem
	for _, id := range m.order {
		if len(claimed) >= limit {
			break
		}
		q, ok := m.items[id]
		if !ok || !q.Claimable() {
			continue
		}
		q.Status = domain.StatusProcessing
		q.Attempts++
		q.ProcessedAt = &now
		m.queueWrites++
		clone := *q
		claimed = append(claimed, &clone)
	}
	return claimed, nil
}

func (m *MockStore) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.items[id]
	if !ok || q.Status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	q.Status = domain.StatusSent
	q.SentAt = &sentAt
	q.LastError = nil
	if s, ok := m.subs[q.SubscriptionID]; ok && !s.Delivered {
		s.Delivered = true
		s.DeliveredAt = &sentAt
	}
	m.queueWrites++
	return nil
}

func (m *MockStore) MarkFailed(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.items[id]
	if !ok || q.Status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}
	q.Status = domain.StatusFailed
	q.LastError = &errMsg
	m.queueWrites++
	return nil
}

func (m *MockStore) RequeueFailed(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range m.order {
		q, ok := m.items[id]
		if !ok || q.Status != domain.StatusFailed || q.Attempts >= q.MaxAttempts {
			continue
		}
		if m.hasOpenItemLocked(q.SubscriptionID, q.ID) {
			continue
		}
		q.Status = domain.StatusPending
		n++
	}
	m.queueWrites += int(n)
	return n, nil
}

func (m *MockStore) ExpireStale(_ context.Context, lease time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-lease)
	msg := "processing lease expired"
	var n int64
	for _, q := range m.items {
		if q.Status == domain.StatusProcessing && q.ProcessedAt != nil && q.ProcessedAt.Before(cutoff) {
			q.Status = domain.StatusFailed
			q.LastError = &msg
			n++
		}
	}
	m.queueWrites += int(n)
	return n, nil
}

func (m *MockStore) RetryFailed(_ context.Context, includeExhausted bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range m.order {
		q, ok := m.items[id]
		if !ok || q.Status != domain.StatusFailed {
			continue
		}
		if !includeExhausted && q.Attempts >= q.MaxAttempts {
			continue
		}
		if s, ok := m.subs[q.SubscriptionID]; ok && s.Delivered {
			continue
		}
		if m.hasOpenItemLocked(q.SubscriptionID, q.ID) {
			continue
		}
		q.Status = domain.StatusPending
		q.Attempts = 0
		q.LastError = nil
		n++
	}
	m.queueWrites += int(n)
	return n, nil
}

func (m *MockStore) ClearFailed(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, q := range m.items {
		if q.Status == domain.StatusFailed {
			delete(m.items, id)
			n++
		}
	}
	m.queueWrites += int(n)
	return n, nil
}

func (m *MockStore) StatusSummary(_ context.Context) (domain.StatusSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.StatusSummary
	for _, q := range m.items {
		s.Add(q.Status, 1)
	}
	return s, nil
}

func (m *MockStore) hasOpenItemLocked(subscriptionID, exceptID string) bool {
	for id, q := range m.items {
		if id == exceptID || q.SubscriptionID != subscriptionID {
			continue
		}
		if q.Status == domain.StatusPending || q.Status == domain.StatusProcessing {
			return true
		}
	}
	return false
}

func sortSubscriptions(subs []*domain.Subscription) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].ProductID != subs[j].ProductID {
			return subs[i].ProductID < subs[j].ProductID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

var (
	_ SubscriptionRepository = (*MockStore)(nil)
	_ QueueRepository        = (*MockStore)(nil)
	_ ProductRepository      = (*MockStore)(nil)
)

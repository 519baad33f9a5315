// Package uowtest provides an in-memory UnitOfWork and stores for service
// tests. Units of work are serialized and roll back on error.
package uowtest

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizbook/backend/internal/application/uow"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/google/uuid"
)

// Memory holds all state shared by the in-memory stores
type Memory struct {
	mu   sync.Mutex
	txMu sync.Mutex

	transactions  map[string]payment.Transaction
	subscriptions map[uuid.UUID]subscription.Subscription
	messages      []notification.Message
	plans         map[uuid.UUID]plan.Plan
	users         map[uuid.UUID]account.User

	// EnqueueErr, when set, fails every Enqueue call
	EnqueueErr error
	// Now stamps store-side writes
	Now func() time.Time

	Payments      *Payments
	Subscriptions *Subscriptions
	Outbox        *Outbox
	Plans         *Plans
	Users         *Users
}

var _ uow.UnitOfWork = (*Memory)(nil)

// New creates an empty Memory
func New() *Memory {
	m := &Memory{
		transactions:  make(map[string]payment.Transaction),
		subscriptions: make(map[uuid.UUID]subscription.Subscription),
		plans:         make(map[uuid.UUID]plan.Plan),
		users:         make(map[uuid.UUID]account.User),
		Now:           time.Now,
	}
	m.Payments = &Payments{m: m}
	m.Subscriptions = &Subscriptions{m: m}
	m.Outbox = &Outbox{m: m}
	m.Plans = &Plans{m: m}
	m.Users = &Users{m: m}
	return m
}

// Stores returns the stores bound to this memory
func (m *Memory) Stores() uow.Stores {
	return uow.Stores{Payments: m.Payments, Subscriptions: m.Subscriptions, Notifications: m.Outbox}
}

// Do runs fn serialized against other units of work and restores the prior
// state if fn fails
func (m *Memory) Do(ctx context.Context, fn func(ctx context.Context, stores uow.Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	txs := make(map[string]payment.Transaction, len(m.transactions))
	for k, v := range m.transactions {
		txs[k] = v
	}
	subs := make(map[uuid.UUID]subscription.Subscription, len(m.subscriptions))
	for k, v := range m.subscriptions {
		subs[k] = v
	}
	msgs := append([]notification.Message(nil), m.messages...)
	m.mu.Unlock()

	if err := fn(ctx, m.Stores()); err != nil {
		m.mu.Lock()
		m.transactions, m.subscriptions, m.messages = txs, subs, msgs
		m.mu.Unlock()
		return err
	}
	return nil
}

// Messages returns the notifications enqueued so far
func (m *Memory) Messages() []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Message(nil), m.messages...)
}

// AddPlan stores a plan
func (m *Memory) AddPlan(p plan.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

// AddUser stores a user
func (m *Memory) AddUser(u account.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutSubscription stores a subscription as-is
func (m *Memory) PutSubscription(s subscription.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = s
}

// TransactionCount returns the number of stored transactions
func (m *Memory) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

// Payments implements payment.Store
type Payments struct{ m *Memory }

var _ payment.Store = (*Payments)(nil)

func (p *Payments) Create(ctx context.Context, t *payment.Transaction) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if _, ok := p.m.transactions[t.ReferenceID]; ok {
		return shared.ErrDuplicateReference
	}
	p.m.transactions[t.ReferenceID] = *t
	return nil
}

func (p *Payments) FindByReference(ctx context.Context, referenceID string) (*payment.Transaction, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	t, ok := p.m.transactions[referenceID]
	if !ok {
		return nil, payment.ErrTransactionNotFound
	}
	return &t, nil
}

func (p *Payments) ApplyOutcome(ctx context.Context, referenceID string, outcome payment.Outcome, detail payment.OutcomeDetail) (payment.ApplyResult, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	t, ok := p.m.transactions[referenceID]
	if !ok {
		return payment.ApplyResult{}, payment.ErrTransactionNotFound
	}
	applied, err := payment.ApplyOutcome(&t, outcome, detail, p.m.Now())
	if err != nil {
		return payment.ApplyResult{}, err
	}
	if applied {
		p.m.transactions[referenceID] = t
	}
	return payment.ApplyResult{Applied: applied, Transaction: &t}, nil
}

func (p *Payments) RecordRawPayload(ctx context.Context, referenceID string, raw []byte) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	t, ok := p.m.transactions[referenceID]
	if !ok {
		return payment.ErrTransactionNotFound
	}
	if t.Status.IsTerminal() {
		return nil
	}
	t.RawResponse = raw
	p.m.transactions[referenceID] = t
	return nil
}

func (p *Payments) List(ctx context.Context, filter payment.ListFilter) ([]payment.Transaction, int64, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []payment.Transaction
	for _, t := range p.m.transactions {
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

// Subscriptions implements subscription.Repository
type Subscriptions struct{ m *Memory }

var _ subscription.Repository = (*Subscriptions)(nil)

func (r *Subscriptions) byBusiness(businessID uuid.UUID) (subscription.Subscription, bool) {
	for _, s := range r.m.subscriptions {
		if s.BusinessID == businessID {
			return s, true
		}
	}
	return subscription.Subscription{}, false
}

func (r *Subscriptions) Create(ctx context.Context, s *subscription.Subscription) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.byBusiness(s.BusinessID); ok {
		return subscription.ErrAlreadyExisting
	}
	r.m.subscriptions[s.ID] = *s
	return nil
}

func (r *Subscriptions) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.subscriptions[id]
	if !ok {
		return nil, subscription.ErrNoSubscription
	}
	return &s, nil
}

func (r *Subscriptions) FindByBusinessID(ctx context.Context, businessID uuid.UUID) (*subscription.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.byBusiness(businessID)
	if !ok {
		return nil, subscription.ErrNoSubscription
	}
	return &s, nil
}

func (r *Subscriptions) Save(ctx context.Context, s *subscription.Subscription) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.subscriptions[s.ID]
	if !ok {
		return subscription.ErrNoSubscription
	}
	if cur.Version != s.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	r.m.subscriptions[s.ID] = *s
	return nil
}

func (r *Subscriptions) Activate(ctx context.Context, businessID, planID uuid.UUID, startsAt, endsAt, now time.Time) (*subscription.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.byBusiness(businessID)
	if !ok {
		s = subscription.Subscription{
			BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
			BusinessID:        businessID,
			Status:            subscription.StatusExpired,
		}
	}
	if err := subscription.Activate(&s, planID, startsAt, endsAt, now); err != nil {
		return nil, err
	}
	r.m.subscriptions[s.ID] = s
	return &s, nil
}

func (r *Subscriptions) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.subscriptions[id]
	if !ok || s.Status != subscription.StatusTrial || s.TrialEndsAt == nil || !s.TrialEndsAt.Before(now) {
		return false, nil
	}
	s.Status = subscription.StatusExpired
	s.Touch(now)
	s.IncrementVersion()
	r.m.subscriptions[id] = s
	return true, nil
}

func (r *Subscriptions) ExpireActive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.subscriptions[id]
	if !ok || s.Status != subscription.StatusActive || s.EndsAt == nil || !s.EndsAt.Before(now) {
		return false, nil
	}
	s.Status = subscription.StatusExpired
	s.Touch(now)
	s.IncrementVersion()
	r.m.subscriptions[id] = s
	return true, nil
}

func (r *Subscriptions) MarkTrialWarned(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.subscriptions[id]
	if !ok || s.Status != subscription.StatusTrial || s.LastWarnedAt != nil {
		return false, nil
	}
	s.LastWarnedAt = &now
	r.m.subscriptions[id] = s
	return true, nil
}

func (r *Subscriptions) scan(page subscription.Page, match func(s subscription.Subscription) bool) []subscription.Subscription {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range r.m.subscriptions {
		if bytes.Compare(s.ID[:], page.AfterID[:]) <= 0 || !match(s) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out
}

func (r *Subscriptions) FindTrialsEndingBetween(ctx context.Context, from, to time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	return r.scan(page, func(s subscription.Subscription) bool {
		return s.Status == subscription.StatusTrial && s.LastWarnedAt == nil && s.TrialEndsAt != nil &&
			!s.TrialEndsAt.Before(from) && s.TrialEndsAt.Before(to)
	}), nil
}

func (r *Subscriptions) FindLapsedTrials(ctx context.Context, now time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	return r.scan(page, func(s subscription.Subscription) bool {
		return s.Status == subscription.StatusTrial && s.TrialEndsAt != nil && s.TrialEndsAt.Before(now)
	}), nil
}

func (r *Subscriptions) FindLapsedActive(ctx context.Context, now time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	return r.scan(page, func(s subscription.Subscription) bool {
		return s.Status == subscription.StatusActive && s.EndsAt != nil && s.EndsAt.Before(now)
	}), nil
}

// Outbox implements notification.Dispatcher by recording messages
type Outbox struct{ m *Memory }

var _ notification.Dispatcher = (*Outbox)(nil)

func (o *Outbox) Enqueue(ctx context.Context, msg notification.Message) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	if o.m.EnqueueErr != nil {
		return o.m.EnqueueErr
	}
	o.m.messages = append(o.m.messages, msg)
	return nil
}

// Plans implements plan.Repository
type Plans struct{ m *Memory }

var _ plan.Repository = (*Plans)(nil)

func (p *Plans) FindByID(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	pl, ok := p.m.plans[id]
	if !ok {
		return nil, shared.NewNotFoundError("Plan")
	}
	return &pl, nil
}

func (p *Plans) FindActive(ctx context.Context) ([]plan.Plan, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []plan.Plan
	for _, pl := range p.m.plans {
		if pl.IsActive {
			out = append(out, pl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

// Users implements account.Directory
type Users struct{ m *Memory }

var _ account.Directory = (*Users)(nil)

func (u *Users) FindByID(ctx context.Context, id uuid.UUID) (*account.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, shared.NewNotFoundError("User")
	}
	return &user, nil
}

func (u *Users) FindOwner(ctx context.Context, businessID uuid.UUID) (*account.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	for _, user := range u.m.users {
		if user.BusinessID != nil && *user.BusinessID == businessID {
			return &user, nil
		}
	}
	return nil, shared.NewNotFoundError("User")
}

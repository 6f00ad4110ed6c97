package payroll

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Service defines payroll ledger operations.
type Service interface {
	Deposit(ctx context.Context, amount int64) (int64, error)
	Balance(ctx context.Context) (int64, error)
	AddEmployee(ctx context.Context, address string, salary, intervalSeconds int64) (Employee, error)
	DeactivateEmployee(ctx context.Context, address string) (Employee, error)
	GetEmployee(ctx context.Context, address string) (Employee, error)
	RosterLen(ctx context.Context) (int, error)
	AddressAt(ctx context.Context, index int) (string, error)
	SettleOne(ctx context.Context, address string) (Payment, error)
	SettleAll(ctx context.Context) (Pass, error)
	AnyDue(ctx context.Context) (bool, error)
	Trigger(ctx context.Context) (Pass, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu        sync.RWMutex
	employees map[string]*Employee
	roster    []string // registration order; deactivated entries are skipped, never removed
	balance   int64

	settling int32 // settlement re-entrancy flag, accessed atomically
	now      func() time.Time
	notifier Notifier
}

// Option configures InMemory behavior.
type Option func(*InMemory)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *InMemory) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithNotifier attaches an event sink for payroll notifications.
func WithNotifier(n Notifier) Option {
	return func(s *InMemory) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewInMemory creates an empty payroll ledger with a zero vault balance.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		employees: make(map[string]*Employee),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) notify(evt Event) {
	if s.notifier != nil {
		s.notifier.Notify(evt)
	}
}

// beginSettlement takes the settlement flag. A false return means another
// settlement holds it (including a notification callback re-entering the
// engine) and the caller must reject with ErrReentrantCall.
func (s *InMemory) beginSettlement() bool {
	return atomic.CompareAndSwapInt32(&s.settling, 0, 1)
}

func (s *InMemory) endSettlement() {
	atomic.StoreInt32(&s.settling, 0)
}

func (s *InMemory) Deposit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	s.mu.Lock()
	s.balance += amount
	balance := s.balance
	now := s.now().UTC()
	s.mu.Unlock()

	s.notify(Event{Type: EventFundsDeposited, Amount: amount, Balance: balance, At: now})
	return balance, nil
}

func (s *InMemory) Balance(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance, nil
}

func (s *InMemory) AddEmployee(ctx context.Context, address string, salary, intervalSeconds int64) (Employee, error) {
	if strings.TrimSpace(address) == "" {
		return Employee{}, ErrInvalidAddress
	}
	if salary <= 0 || intervalSeconds < 0 {
		return Employee{}, ErrInvalidAmount
	}

	s.mu.Lock()
	if rec, ok := s.employees[address]; ok && rec.Active {
		s.mu.Unlock()
		return Employee{}, ErrAlreadyActive
	}
	_, seen := s.employees[address]
	now := s.now().UTC()
	// A re-add after deactivation starts a fresh record: schedule and
	// accumulators reset, the original roster slot is reused.
	rec := &Employee{
		Address:         address,
		Salary:          salary,
		IntervalSeconds: intervalSeconds,
		CreatedAt:       now,
		LastPaidAt:      now,
		Active:          true,
	}
	s.employees[address] = rec
	if !seen {
		s.roster = append(s.roster, address)
	}
	out := *rec
	balance := s.balance
	s.mu.Unlock()

	s.notify(Event{Type: EventEmployeeAdded, Address: address, Balance: balance, At: now})
	return out, nil
}

func (s *InMemory) DeactivateEmployee(ctx context.Context, address string) (Employee, error) {
	s.mu.Lock()
	rec, ok := s.employees[address]
	if !ok || !rec.Active {
		s.mu.Unlock()
		return Employee{}, ErrNotActive
	}
	rec.Active = false
	out := *rec
	balance := s.balance
	now := s.now().UTC()
	s.mu.Unlock()

	s.notify(Event{Type: EventEmployeeRemoved, Address: address, Balance: balance, At: now})
	return out, nil
}

func (s *InMemory) GetEmployee(ctx context.Context, address string) (Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.employees[address]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return *rec, nil
}

func (s *InMemory) RosterLen(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roster), nil
}

func (s *InMemory) AddressAt(ctx context.Context, index int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.roster) {
		return "", ErrNotFound
	}
	return s.roster[index], nil
}

func (s *InMemory) SettleOne(ctx context.Context, address string) (Payment, error) {
	if !s.beginSettlement() {
		return Payment{}, ErrReentrantCall
	}
	defer s.endSettlement()

	p, err := s.settleOne(address)
	if err != nil {
		return Payment{}, err
	}
	s.notify(Event{Type: EventSalaryPaid, Address: p.Address, Amount: p.Amount, Balance: p.Balance, At: p.PaidAt})
	return p, nil
}

func (s *InMemory) settleOne(address string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.employees[address]
	if !ok || !rec.Active {
		return Payment{}, ErrNotActive
	}
	now := s.now().UTC()
	if now.Before(rec.NextPayout()) {
		return Payment{}, ErrTooEarly
	}
	if s.balance < rec.Salary {
		return Payment{}, ErrInsufficientFunds
	}
	return s.applyLocked(rec, now), nil
}

// applyLocked performs the four settlement effects for one employee: vault
// debit, earned increment, payment clock advance, and the payment record the
// caller turns into a notification. Caller holds mu and the settlement flag.
func (s *InMemory) applyLocked(rec *Employee, now time.Time) Payment {
	s.balance -= rec.Salary
	rec.TotalEarned += rec.Salary
	rec.LastPaidAt = now
	return Payment{
		ID:      newID(),
		Address: rec.Address,
		Amount:  rec.Salary,
		PaidAt:  now,
		Balance: s.balance,
	}
}

// passLocked runs one settlement pass over the roster as it exists at call
// time. The balance is re-read per employee, so an earlier payout in the same
// pass can exhaust funds for a later one (registration order wins).
func (s *InMemory) passLocked(now time.Time) (Pass, []Event) {
	pass := Pass{At: now}
	var events []Event
	for _, addr := range s.roster {
		pass.Evaluated++
		rec := s.employees[addr]
		if rec == nil || !IsDue(*rec, now, s.balance) {
			continue
		}
		p := s.applyLocked(rec, now)
		pass.Payments = append(pass.Payments, p)
		events = append(events, Event{Type: EventSalaryPaid, Address: p.Address, Amount: p.Amount, Balance: p.Balance, At: now})
	}
	pass.Balance = s.balance
	return pass, events
}

func (s *InMemory) anyDueLocked(now time.Time) bool {
	for _, addr := range s.roster {
		if rec := s.employees[addr]; rec != nil && IsDue(*rec, now, s.balance) {
			return true
		}
	}
	return false
}

func (s *InMemory) SettleAll(ctx context.Context) (Pass, error) {
	if !s.beginSettlement() {
		return Pass{}, ErrReentrantCall
	}
	defer s.endSettlement()

	pass, events := s.settleAll()
	for _, evt := range events {
		s.notify(evt)
	}
	return pass, nil
}

func (s *InMemory) settleAll() (Pass, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passLocked(s.now().UTC())
}

func (s *InMemory) AnyDue(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anyDueLocked(s.now().UTC()), nil
}

func (s *InMemory) Trigger(ctx context.Context) (Pass, error) {
	if !s.beginSettlement() {
		return Pass{}, ErrReentrantCall
	}
	defer s.endSettlement()

	pass, events, err := s.trigger()
	if err != nil {
		return Pass{}, err
	}
	for _, evt := range events {
		s.notify(evt)
	}
	return pass, nil
}

// trigger re-checks due existence against current state before settling, so a
// caller acting on a stale probe gets ErrNothingDue instead of an empty pass.
func (s *InMemory) trigger() (Pass, []Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if !s.anyDueLocked(now) {
		return Pass{}, nil, ErrNothingDue
	}
	pass, events := s.passLocked(now)
	return pass, events, nil
}

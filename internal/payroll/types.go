package payroll

import (
	"errors"
	"time"

	"payvault.org/internal/ids"
)

// Employee is one payroll record. Amounts are integer value units. No floats.
type Employee struct {
	Address         string    `json:"address"`
	Salary          int64     `json:"salary"`
	IntervalSeconds int64     `json:"interval_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	LastPaidAt      time.Time `json:"last_paid_at"`
	TotalEarned     int64     `json:"total_earned"`
	// TotalWithdrawn is reserved for an employee-initiated withdrawal flow;
	// no operation mutates it.
	TotalWithdrawn int64 `json:"total_withdrawn"`
	Active         bool  `json:"active"`
}

// Interval returns the payment interval as a duration.
func (e Employee) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

// NextPayout returns the earliest instant this employee can be settled again.
func (e Employee) NextPayout() time.Time {
	return e.LastPaidAt.Add(e.Interval())
}

// Payment is the applied result of one settlement.
type Payment struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	Amount  int64     `json:"amount"`
	PaidAt  time.Time `json:"paid_at"`
	Balance int64     `json:"balance"` // vault balance immediately after the debit
}

// Pass reports one full iteration over the roster: every address evaluated
// exactly once, due employees settled in registration order.
type Pass struct {
	At        time.Time `json:"at"`
	Evaluated int       `json:"evaluated"`
	Payments  []Payment `json:"payments"`
	Balance   int64     `json:"balance"`
}

// Event types, one per observable state change.
const (
	EventFundsDeposited  = "funds_deposited"
	EventEmployeeAdded   = "employee_added"
	EventEmployeeRemoved = "employee_removed"
	EventSalaryPaid      = "salary_paid"
)

// Event is a single payroll notification.
type Event struct {
	Type    string    `json:"type"`
	Address string    `json:"address,omitempty"`
	Amount  int64     `json:"amount,omitempty"`
	Balance int64     `json:"balance"`
	At      time.Time `json:"at"`
}

// Notifier receives exactly one event per applied state change. Events are
// delivered after the mutation is visible and outside the state lock.
type Notifier interface {
	Notify(Event)
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount (must be > 0)")
	ErrAlreadyActive     = errors.New("employee already active")
	ErrNotActive         = errors.New("employee not active")
	ErrTooEarly          = errors.New("payment interval has not elapsed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNothingDue        = errors.New("no salary due")
	ErrReentrantCall     = errors.New("settlement in progress")
)

func newID() string {
	return ids.New()
}

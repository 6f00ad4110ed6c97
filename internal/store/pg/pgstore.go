package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"payvault.org/internal/ids"
	"payvault.org/internal/payroll"
)

// Store is the durable payroll ledger backed by PostgreSQL.
type Store struct {
	db *sql.DB

	// In-process settlement guard; concurrent passes from other processes
	// serialize on the vault row lock instead.
	settling int32
	now      func() time.Time
	notifier payroll.Notifier
}

var _ payroll.Service = (*Store)(nil)

// Option configures Store behavior.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithNotifier attaches an event sink for payroll notifications.
func WithNotifier(n payroll.Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithDB wraps an existing connection (used by tests with sqlmock).
func NewWithDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable; wired into readiness.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) notify(evt payroll.Event) {
	if s.notifier != nil {
		s.notifier.Notify(evt)
	}
}

func (s *Store) beginSettlement() bool {
	return atomic.CompareAndSwapInt32(&s.settling, 0, 1)
}

func (s *Store) endSettlement() {
	atomic.StoreInt32(&s.settling, 0)
}

func (s *Store) Deposit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, payroll.ErrInvalidAmount
	}
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		update vault set balance = balance + $1, updated_at = now()
		where id = 1
		returning balance
	`, amount).Scan(&balance)
	if err != nil {
		return 0, err
	}
	s.notify(payroll.Event{Type: payroll.EventFundsDeposited, Amount: amount, Balance: balance, At: s.now().UTC()})
	return balance, nil
}

func (s *Store) Balance(ctx context.Context) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `select balance from vault where id = 1`).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) AddEmployee(ctx context.Context, address string, salary, intervalSeconds int64) (payroll.Employee, error) {
	if !validAddress(address) {
		return payroll.Employee{}, payroll.ErrInvalidAddress
	}
	if salary <= 0 || intervalSeconds < 0 {
		return payroll.Employee{}, payroll.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.Employee{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `select active from employees where address = $1 for update`, address).Scan(&active)
	switch {
	case err == nil && active:
		return payroll.Employee{}, payroll.ErrAlreadyActive
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return payroll.Employee{}, err
	}

	now := s.now().UTC()
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `
			insert into employees(address, salary, interval_seconds, created_at, last_paid_at)
			values ($1, $2, $3, $4, $4)
		`, address, salary, intervalSeconds, now); err != nil {
			return payroll.Employee{}, err
		}
	} else {
		// Re-add of a deactivated address: fresh record, same roster slot.
		if _, err := tx.ExecContext(ctx, `
			update employees
			set salary = $2, interval_seconds = $3, created_at = $4, last_paid_at = $4,
			    total_earned = 0, total_withdrawn = 0, active = true
			where address = $1
		`, address, salary, intervalSeconds, now); err != nil {
			return payroll.Employee{}, err
		}
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `select balance from vault where id = 1`).Scan(&balance); err != nil {
		return payroll.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return payroll.Employee{}, err
	}

	emp := payroll.Employee{
		Address:         address,
		Salary:          salary,
		IntervalSeconds: intervalSeconds,
		CreatedAt:       now,
		LastPaidAt:      now,
		Active:          true,
	}
	s.notify(payroll.Event{Type: payroll.EventEmployeeAdded, Address: address, Balance: balance, At: now})
	return emp, nil
}

func (s *Store) DeactivateEmployee(ctx context.Context, address string) (payroll.Employee, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payroll.Employee{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var emp payroll.Employee
	err = tx.QueryRowContext(ctx, `
		update employees set active = false
		where address = $1 and active
		returning address, salary, interval_seconds, created_at, last_paid_at, total_earned, total_withdrawn, active
	`, address).Scan(&emp.Address, &emp.Salary, &emp.IntervalSeconds, &emp.CreatedAt, &emp.LastPaidAt, &emp.TotalEarned, &emp.TotalWithdrawn, &emp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Employee{}, payroll.ErrNotActive
	}
	if err != nil {
		return payroll.Employee{}, err
	}

	var balance int64
	if err := tx.QueryRowContext(ctx, `select balance from vault where id = 1`).Scan(&balance); err != nil {
		return payroll.Employee{}, err
	}
	if err := tx.Commit(); err != nil {
		return payroll.Employee{}, err
	}

	s.notify(payroll.Event{Type: payroll.EventEmployeeRemoved, Address: address, Balance: balance, At: s.now().UTC()})
	return emp, nil
}

func (s *Store) GetEmployee(ctx context.Context, address string) (payroll.Employee, error) {
	var emp payroll.Employee
	err := s.db.QueryRowContext(ctx, `
		select address, salary, interval_seconds, created_at, last_paid_at, total_earned, total_withdrawn, active
		from employees where address = $1
	`, address).Scan(&emp.Address, &emp.Salary, &emp.IntervalSeconds, &emp.CreatedAt, &emp.LastPaidAt, &emp.TotalEarned, &emp.TotalWithdrawn, &emp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Employee{}, payroll.ErrNotFound
	}
	if err != nil {
		return payroll.Employee{}, err
	}
	return emp, nil
}

func (s *Store) RosterLen(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from employees`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) AddressAt(ctx context.Context, index int) (string, error) {
	if index < 0 {
		return "", payroll.ErrNotFound
	}
	var address string
	err := s.db.QueryRowContext(ctx, `
		select address from employees order by sequence asc offset $1 limit 1
	`, index).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", payroll.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return address, nil
}

func (s *Store) SettleOne(ctx context.Context, address string) (payroll.Payment, error) {
	if !s.beginSettlement() {
		return payroll.Payment{}, payroll.ErrReentrantCall
	}
	defer s.endSettlement()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payroll.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Vault first, then employee rows: stable lock order across settlement paths.
	var balance int64
	if err := tx.QueryRowContext(ctx, `select balance from vault where id = 1 for update`).Scan(&balance); err != nil {
		return payroll.Payment{}, err
	}

	var emp payroll.Employee
	err = tx.QueryRowContext(ctx, `
		select address, salary, interval_seconds, created_at, last_paid_at, total_earned, total_withdrawn, active
		from employees where address = $1 for update
	`, address).Scan(&emp.Address, &emp.Salary, &emp.IntervalSeconds, &emp.CreatedAt, &emp.LastPaidAt, &emp.TotalEarned, &emp.TotalWithdrawn, &emp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.Payment{}, payroll.ErrNotActive
	}
	if err != nil {
		return payroll.Payment{}, err
	}
	if !emp.Active {
		return payroll.Payment{}, payroll.ErrNotActive
	}

	now := s.now().UTC()
	if now.Before(emp.NextPayout()) {
		return payroll.Payment{}, payroll.ErrTooEarly
	}
	if balance < emp.Salary {
		return payroll.Payment{}, payroll.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `
		update employees set total_earned = total_earned + $2, last_paid_at = $3
		where address = $1
	`, address, emp.Salary, now); err != nil {
		return payroll.Payment{}, err
	}
	if err := tx.QueryRowContext(ctx, `
		update vault set balance = balance - $1, updated_at = now()
		where id = 1
		returning balance
	`, emp.Salary).Scan(&balance); err != nil {
		return payroll.Payment{}, err
	}
	if err := tx.Commit(); err != nil {
		return payroll.Payment{}, err
	}

	p := payroll.Payment{
		ID:      ids.New(),
		Address: address,
		Amount:  emp.Salary,
		PaidAt:  now,
		Balance: balance,
	}
	s.notify(payroll.Event{Type: payroll.EventSalaryPaid, Address: p.Address, Amount: p.Amount, Balance: p.Balance, At: now})
	return p, nil
}

func (s *Store) SettleAll(ctx context.Context) (payroll.Pass, error) {
	if !s.beginSettlement() {
		return payroll.Pass{}, payroll.ErrReentrantCall
	}
	defer s.endSettlement()

	pass, events, err := s.runPass(ctx, false)
	if err != nil {
		return payroll.Pass{}, err
	}
	for _, evt := range events {
		s.notify(evt)
	}
	return pass, nil
}

func (s *Store) AnyDue(ctx context.Context) (bool, error) {
	balance, err := s.Balance(ctx)
	if err != nil {
		return false, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select address, salary, interval_seconds, created_at, last_paid_at, total_earned, total_withdrawn, active
		from employees where active order by sequence asc
	`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	now := s.now().UTC()
	for rows.Next() {
		var emp payroll.Employee
		if err := rows.Scan(&emp.Address, &emp.Salary, &emp.IntervalSeconds, &emp.CreatedAt, &emp.LastPaidAt, &emp.TotalEarned, &emp.TotalWithdrawn, &emp.Active); err != nil {
			return false, err
		}
		if payroll.IsDue(emp, now, balance) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) Trigger(ctx context.Context) (payroll.Pass, error) {
	if !s.beginSettlement() {
		return payroll.Pass{}, payroll.ErrReentrantCall
	}
	defer s.endSettlement()

	pass, events, err := s.runPass(ctx, true)
	if err != nil {
		return payroll.Pass{}, err
	}
	for _, evt := range events {
		s.notify(evt)
	}
	return pass, nil
}

// runPass settles every due employee in roster order inside one serializable
// transaction. The balance decreases as the pass proceeds, so earlier
// registrations win under scarcity. With requireDue set, an empty candidate
// set aborts with ErrNothingDue before any mutation.
func (s *Store) runPass(ctx context.Context, requireDue bool) (payroll.Pass, []payroll.Event, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return payroll.Pass{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	if err := tx.QueryRowContext(ctx, `select balance from vault where id = 1 for update`).Scan(&balance); err != nil {
		return payroll.Pass{}, nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		select address, salary, interval_seconds, created_at, last_paid_at, total_earned, total_withdrawn, active
		from employees order by sequence asc for update
	`)
	if err != nil {
		return payroll.Pass{}, nil, err
	}
	var roster []payroll.Employee
	for rows.Next() {
		var emp payroll.Employee
		if err := rows.Scan(&emp.Address, &emp.Salary, &emp.IntervalSeconds, &emp.CreatedAt, &emp.LastPaidAt, &emp.TotalEarned, &emp.TotalWithdrawn, &emp.Active); err != nil {
			rows.Close()
			return payroll.Pass{}, nil, err
		}
		roster = append(roster, emp)
	}
	if err := rows.Close(); err != nil {
		return payroll.Pass{}, nil, err
	}
	if err := rows.Err(); err != nil {
		return payroll.Pass{}, nil, err
	}

	now := s.now().UTC()
	if requireDue {
		due := false
		for _, emp := range roster {
			if payroll.IsDue(emp, now, balance) {
				due = true
				break
			}
		}
		if !due {
			return payroll.Pass{}, nil, payroll.ErrNothingDue
		}
	}

	pass := payroll.Pass{At: now, Evaluated: len(roster)}
	var events []payroll.Event
	for _, emp := range roster {
		if !payroll.IsDue(emp, now, balance) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			update employees set total_earned = total_earned + $2, last_paid_at = $3
			where address = $1
		`, emp.Address, emp.Salary, now); err != nil {
			return payroll.Pass{}, nil, err
		}
		balance -= emp.Salary
		p := payroll.Payment{
			ID:      ids.New(),
			Address: emp.Address,
			Amount:  emp.Salary,
			PaidAt:  now,
			Balance: balance,
		}
		pass.Payments = append(pass.Payments, p)
		events = append(events, payroll.Event{Type: payroll.EventSalaryPaid, Address: p.Address, Amount: p.Amount, Balance: p.Balance, At: now})
	}
	if len(pass.Payments) > 0 {
		if _, err := tx.ExecContext(ctx, `
			update vault set balance = $1, updated_at = now() where id = 1
		`, balance); err != nil {
			return payroll.Pass{}, nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return payroll.Pass{}, nil, err
	}
	pass.Balance = balance
	return pass, events, nil
}

func validAddress(address string) bool {
	return strings.TrimSpace(address) != ""
}

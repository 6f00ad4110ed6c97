package payroll

import "time"

// IsDue is the eligibility policy: an employee is due when the record is
// active, the payment interval has elapsed since the last payout, and the
// vault balance covers one salary. Pure and deterministic; settlement
// re-evaluates it against current state rather than trusting earlier probes.
func IsDue(e Employee, now time.Time, balance int64) bool {
	return e.Active && !now.Before(e.NextPayout()) && balance >= e.Salary
}

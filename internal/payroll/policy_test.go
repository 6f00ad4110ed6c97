package payroll

import (
	"testing"
	"time"
)

func TestIsDue(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	emp := Employee{
		Address:         "a",
		Salary:          50,
		IntervalSeconds: 3600,
		CreatedAt:       base,
		LastPaidAt:      base,
		Active:          true,
	}

	cases := []struct {
		name    string
		mutate  func(e Employee) Employee
		now     time.Time
		balance int64
		want    bool
	}{
		{"before interval", nil, base.Add(59 * time.Minute), 1000, false},
		{"exactly at interval", nil, base.Add(time.Hour), 1000, true},
		{"after interval", nil, base.Add(2 * time.Hour), 1000, true},
		{"balance below salary", nil, base.Add(time.Hour), 49, false},
		{"balance equals salary", nil, base.Add(time.Hour), 50, true},
		{"inactive", func(e Employee) Employee { e.Active = false; return e }, base.Add(2 * time.Hour), 1000, false},
		{"zero interval due immediately", func(e Employee) Employee { e.IntervalSeconds = 0; return e }, base, 1000, true},
		{"zero interval without funds", func(e Employee) Employee { e.IntervalSeconds = 0; return e }, base, 0, false},
	}
	for _, tc := range cases {
		e := emp
		if tc.mutate != nil {
			e = tc.mutate(e)
		}
		if got := IsDue(e, tc.now, tc.balance); got != tc.want {
			t.Errorf("%s: IsDue = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsDueDeterministic(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	e := Employee{Address: "a", Salary: 10, IntervalSeconds: 60, LastPaidAt: base, Active: true}
	now := base.Add(61 * time.Minute)
	first := IsDue(e, now, 10)
	for i := 0; i < 100; i++ {
		if IsDue(e, now, 10) != first {
			t.Fatal("policy is not deterministic for identical inputs")
		}
	}
}

func TestNextPayout(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	e := Employee{LastPaidAt: base, IntervalSeconds: 90}
	if got := e.NextPayout(); !got.Equal(base.Add(90 * time.Second)) {
		t.Fatalf("NextPayout = %v", got)
	}
	e.IntervalSeconds = 0
	if got := e.NextPayout(); !got.Equal(base) {
		t.Fatalf("NextPayout with zero interval = %v", got)
	}
}

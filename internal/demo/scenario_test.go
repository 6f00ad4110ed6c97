package demo

import "testing"

func TestGeneratorIsDeterministicForSeed(t *testing.T) {
	a := NewGenerator(42)
	b := NewGenerator(42)
	for i := 0; i < 10; i++ {
		da := a.NextDeposit()
		db := b.NextDeposit()
		if da != db {
			t.Fatalf("step %d: deposits diverged: %+v vs %+v", i, da, db)
		}
	}
}

func TestNextDepositStaysWithinBounds(t *testing.T) {
	g := NewGenerator(7)
	var top int64
	for _, h := range g.Roster() {
		if h.Salary > top {
			top = h.Salary
		}
	}
	for i := 0; i < 100; i++ {
		d := g.NextDeposit()
		if d.Amount < top || d.Amount >= top*5 {
			t.Fatalf("deposit %d outside [top, 5*top): %d (top %d)", i, d.Amount, top)
		}
		if d.Narrative == "" {
			t.Fatalf("deposit %d has empty narrative", i)
		}
	}
}

func TestOverrideRosterCopiesInput(t *testing.T) {
	g := NewGenerator(1)
	custom := []Hire{{Address: "solo-001", Label: "Contractor", Salary: 50_000, IntervalSeconds: 30}}
	g.OverrideRoster(custom)
	custom[0].Address = "mutated"
	roster := g.Roster()
	if len(roster) != 1 || roster[0].Address != "solo-001" {
		t.Fatalf("roster not isolated from caller slice: %+v", roster)
	}
}

func TestCounterTracksUnitsAndMajor(t *testing.T) {
	var c Counter
	c.AddDeposit(Deposit{Amount: 250})
	c.AddDeposit(Deposit{Amount: 150})
	c.AddPayment(100)
	if c.Deposits != 2 || c.DepositUnits != 400 {
		t.Fatalf("deposit counter wrong: %+v", c)
	}
	if c.Payments != 1 || c.PaidUnits != 100 {
		t.Fatalf("payment counter wrong: %+v", c)
	}
	if got := c.DepositMajor(); got != 4 {
		t.Fatalf("DepositMajor = %v, want 4", got)
	}
	if got := c.PaidMajor(); got != 1 {
		t.Fatalf("PaidMajor = %v, want 1", got)
	}
}

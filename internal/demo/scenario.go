package demo

import (
	"math/rand"
	"time"
)

type Hire struct {
	Address         string
	Label           string
	Salary          int64
	IntervalSeconds int64
}

type Deposit struct {
	Amount    int64
	Narrative string
}

type Scenario struct {
	Name       string
	Roster     []Hire
	Narratives []string
}

func FieldCrewScenario() Scenario {
	return Scenario{
		Name: "FieldCrewPayroll",
		Roster: []Hire{
			{Address: "crew-ops-001", Label: "Operations engineer", Salary: 185_000, IntervalSeconds: 60},
			{Address: "crew-ops-002", Label: "Site reliability", Salary: 172_500, IntervalSeconds: 90},
			{Address: "crew-fin-001", Label: "Treasury analyst", Salary: 157_500, IntervalSeconds: 120},
		},
		Narratives: []string{
			"Quarterly budget tranche released to the vault",
			"Client invoice cleared, proceeds routed to payroll",
			"Treasury top-up ahead of the pay cycle",
		},
	}
}

type Generator struct {
	scenario Scenario
	rnd      *rand.Rand
}

func NewGenerator(seed int64) Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return Generator{scenario: FieldCrewScenario(), rnd: rand.New(rand.NewSource(seed))}
}

// NextDeposit produces a vault top-up between 1x and 5x the largest salary,
// so passes settle a varying subset of the roster.
func (g Generator) NextDeposit() Deposit {
	var top int64
	for _, h := range g.scenario.Roster {
		if h.Salary > top {
			top = h.Salary
		}
	}
	if top == 0 {
		top = 100_000
	}
	amount := top + g.rnd.Int63n(top*4)
	narrative := g.scenario.Narratives[g.rnd.Intn(len(g.scenario.Narratives))]
	return Deposit{Amount: amount, Narrative: narrative}
}

func (g Generator) Roster() []Hire {
	return append([]Hire(nil), g.scenario.Roster...)
}

func (g *Generator) OverrideRoster(roster []Hire) {
	g.scenario.Roster = append([]Hire(nil), roster...)
}

package turnover_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"turnline/internal/config"
	"turnline/internal/dice"
	"turnline/internal/domain"
	"turnline/internal/ledger"
	"turnline/internal/money"
	"turnline/internal/turnover"
)

var campaignDate = time.Date(3025, 6, 1, 0, 0, 0, 0, time.UTC)

func bornAged(age int) time.Time {
	return campaignDate.AddDate(-age, 0, -1)
}

func veteranTech(id string) domain.Person {
	return domain.Person{
		ID:            id,
		Name:          "Tech " + id,
		Status:        domain.StatusActive,
		PrimaryRole:   domain.RoleTech,
		Experience:    domain.ExperienceVeteran,
		BirthDate:     bornAged(30),
		MonthlySalary: money.Of(1000),
	}
}

func snapshot(roster ...domain.Person) turnover.Snapshot {
	return turnover.Snapshot{
		Campaign: domain.Campaign{ID: "camp-1", Date: campaignDate, UnitRating: domain.RatingC},
		Roster:   roster,
	}
}

func calculator() turnover.Calculator {
	return turnover.Calculator{Config: config.Default("camp-1")}
}

func TestVeteranScenarioTarget(t *testing.T) {
	targets := calculator().TargetNumbers(snapshot(veteranTech("p1")), nil)
	tr, ok := targets["p1"]
	if !ok {
		t.Fatalf("p1 missing from targets")
	}
	if tr.Value() != 6 {
		t.Fatalf("target = %d (%s), want 6", tr.Value(), tr.Description())
	}
	if got := tr.Description(); got != "3 (base) +3 (Veteran)" {
		t.Fatalf("description = %q", got)
	}

	for _, tc := range []struct {
		roll    int
		departs bool
	}{{5, true}, {8, false}} {
		l := ledger.New()
		roller := turnover.Roller{Payouts: turnover.PayoutCalculator{
			Config: config.Default("camp-1"),
			Dice:   dice.NewSequence(tc.roll, 7),
		}}
		res := roller.Roll(l, turnover.RollInput{
			Targets: targets,
			Persons: map[string]domain.Person{"p1": veteranTech("p1")},
			Date:    campaignDate,
		})
		if got := len(res.Departing) == 1; got != tc.departs {
			t.Fatalf("roll %d: departs = %v, want %v", tc.roll, got, tc.departs)
		}
		_, has := l.Payout("p1")
		if has != tc.departs {
			t.Fatalf("roll %d: payout recorded = %v", tc.roll, has)
		}
	}
}

func TestModifierBreakdown(t *testing.T) {
	cfg := config.Default("camp-1")
	cfg.Options.UseShareSystem = true
	fatigue := 25
	p := domain.Person{
		ID:                "p1",
		Status:            domain.StatusActive,
		PrimaryRole:       domain.RoleMekWarrior,
		Experience:        domain.ExperienceElite,
		Officer:           true,
		BirthDate:         bornAged(66),
		PermanentInjuries: 2,
		Origin:            domain.Origin{Pirate: true, Clan: true},
	}
	s := turnover.Snapshot{
		Campaign: domain.Campaign{ID: "camp-1", Date: campaignDate, UnitRating: domain.RatingA, Fatigue: &fatigue},
		Roster:   []domain.Person{p},
	}
	contract := domain.Contract{ID: "k1", Status: domain.ContractBreach, SharePct: 30}
	tr := turnover.Calculator{Config: cfg}.TargetNumbers(s, &contract)["p1"]

	want := []turnover.Modifier{
		{Value: 4, Label: "Elite"},
		{Value: -2, Label: "Unit rating A"},
		{Value: 2, Label: "Contract breach"},
		{Value: 2, Label: "Fatigue"},
		{Value: 1, Label: "Pirate origin"},
		{Value: -2, Label: "Clan origin"},
		{Value: -1, Label: "Officer"},
		{Value: 2, Label: "Age"},
		{Value: -3, Label: "Shares"},
		{Value: -1, Label: "Combat role"},
		{Value: 2, Label: "Permanent injuries"},
	}
	if !reflect.DeepEqual(tr.Modifiers, want) {
		t.Fatalf("modifiers = %+v", tr.Modifiers)
	}
	if tr.Value() != 3+4-2+2+2+1-2-1+2-3-1+2 {
		t.Fatalf("value = %d", tr.Value())
	}
}

func TestFatigueAppliesAboveThreshold(t *testing.T) {
	for _, tc := range []struct {
		fatigue int
		want    int
	}{{9, 6}, {10, 6}, {11, 7}, {20, 8}} {
		fatigue := tc.fatigue
		s := snapshot(veteranTech("p1"))
		s.Campaign.Fatigue = &fatigue
		tr := calculator().TargetNumbers(s, nil)["p1"]
		if tr.Value() != tc.want {
			t.Fatalf("fatigue %d: target = %d (%s), want %d", tc.fatigue, tr.Value(), tr.Description(), tc.want)
		}
	}
}

func TestModifiersCanBeDisabled(t *testing.T) {
	cfg := config.Default("camp-1")
	cfg.Options.Modifiers = config.Modifiers{}
	p := veteranTech("p1")
	p.PermanentInjuries = 3
	p.BirthDate = bornAged(90)
	tr := turnover.Calculator{Config: cfg}.TargetNumbers(snapshot(p), nil)["p1"]
	if len(tr.Modifiers) != 0 || tr.Value() != 3 {
		t.Fatalf("disabled modifiers applied: %s", tr.Description())
	}
}

func TestUnknownInputsContributeZero(t *testing.T) {
	p := veteranTech("p1")
	p.Experience = domain.ExperienceUnknown
	p.BirthDate = time.Time{}
	s := snapshot(p)
	s.Campaign.UnitRating = domain.UnitRating(9)
	tr := calculator().TargetNumbers(s, nil)["p1"]
	if tr.Value() != 3 {
		t.Fatalf("target = %s, want base only", tr.Description())
	}
}

func TestAgePenaltyIsMonotonic(t *testing.T) {
	calc := calculator()
	prev := -100
	under50 := 0
	for age := 18; age <= 120; age++ {
		p := veteranTech("p1")
		p.BirthDate = bornAged(age)
		v := calc.TargetNumbers(snapshot(p), nil)["p1"].Value()
		if v < prev {
			t.Fatalf("age %d: target %d dropped below %d", age, v, prev)
		}
		if age < 50 {
			under50 = v
		} else if v < under50 {
			t.Fatalf("age %d: target %d below the under-50 target %d", age, v, under50)
		}
		prev = v
	}
	bands := config.Default("camp-1").Targets.AgeBands
	if got := turnover.AgeModifier(bands, 49); got != 0 {
		t.Fatalf("AgeModifier(49) = %d", got)
	}
	if got := turnover.AgeModifier(bands, 50); got != 1 {
		t.Fatalf("AgeModifier(50) = %d", got)
	}
	if got, capped := turnover.AgeModifier(bands, 200), turnover.AgeModifier(bands, 105); got != capped {
		t.Fatalf("age modifier not capped: %d vs %d", got, capped)
	}
}

func TestEligibility(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*domain.Person)
		founder bool
		want    turnover.Exclusion
	}{
		{"eligible", func(*domain.Person) {}, false, turnover.Eligible},
		{"killed", func(p *domain.Person) { p.Status = domain.StatusKilled }, false, turnover.ExcludedInactive},
		{"dependent", func(p *domain.Person) { p.PrimaryRole = domain.RoleDependent }, false, turnover.ExcludedDependent},
		{"bondsman", func(p *domain.Person) { p.Prisoner = domain.PrisonerBondsman }, false, turnover.ExcludedPrisoner},
		{"deployed", func(p *domain.Person) { p.Deployed = true }, false, turnover.ExcludedDeployed},
		{"founder", func(p *domain.Person) { p.Founder = true }, false, turnover.ExcludedFounder},
		{"founder with random retirement", func(p *domain.Person) { p.Founder = true }, true, turnover.Eligible},
		{"squad member", func(p *domain.Person) { p.PrimaryRole = domain.RoleSoldier; p.UnitID = "u1" }, false, turnover.ExcludedSquad},
		{"squad commander", func(p *domain.Person) {
			p.PrimaryRole = domain.RoleBattleArmour
			p.UnitID = "u1"
			p.UnitCommander = true
		}, false, turnover.Eligible},
		{"unassigned soldier", func(p *domain.Person) { p.PrimaryRole = domain.RoleSoldier }, false, turnover.Eligible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := veteranTech("p1")
			tc.mutate(&p)
			if got := turnover.Eligibility(p, tc.founder); got != tc.want {
				t.Fatalf("Eligibility = %q, want %q", got, tc.want)
			}
		})
	}

	dep := veteranTech("p2")
	dep.PrimaryRole = domain.RoleDependent
	targets := calculator().TargetNumbers(snapshot(veteranTech("p1"), dep), nil)
	if _, ok := targets["p2"]; ok || len(targets) != 1 {
		t.Fatalf("targets = %v", targets)
	}
}

func TestLeadershipOverrun(t *testing.T) {
	skill := 0
	commander := veteranTech("boss")
	commander.Leadership = &skill
	roster := []domain.Person{commander}
	for i := 0; i < 13; i++ {
		p := veteranTech("mw" + string(rune('a'+i)))
		p.PrimaryRole = domain.RoleVehicleCrew
		roster = append(roster, p)
	}
	s := snapshot(roster...)
	s.Campaign.CommanderID = "boss"
	targets := calculator().TargetNumbers(s, nil)
	if !strings.Contains(targets["mwa"].Description(), "+1 (Leadership (combat))") {
		t.Fatalf("combat over capacity not penalised: %s", targets["mwa"].Description())
	}
	if strings.Contains(targets["boss"].Description(), "Leadership") {
		t.Fatalf("support within capacity penalised: %s", targets["boss"].Description())
	}

	for i := 0; i < 12; i++ {
		p := veteranTech("mx" + string(rune('a'+i)))
		p.PrimaryRole = domain.RoleVehicleCrew
		s.Roster = append(s.Roster, p)
	}
	targets = calculator().TargetNumbers(s, nil)
	if !strings.Contains(targets["mwa"].Description(), "+2 (Leadership (combat))") {
		t.Fatalf("double overrun not capped at two tiers: %s", targets["mwa"].Description())
	}

	cfg := config.Default("camp-1")
	cfg.Options.UseLeadershipModifier = false
	targets = turnover.Calculator{Config: cfg}.TargetNumbers(s, nil)
	if strings.Contains(targets["mwa"].Description(), "Leadership") {
		t.Fatalf("leadership modifier applied while disabled")
	}
}

func TestShareValue(t *testing.T) {
	opts := config.Default("camp-1").Options
	c := domain.Campaign{NetWorth: money.Of(1_000_000), LargeCraftValue: money.Of(400_000)}
	a, b := veteranTech("a"), veteranTech("b")
	a.Shares, b.Shares = 2, 4
	roster := []domain.Person{a, b}

	if v := turnover.ShareValue(c, roster, opts); !v.IsZero() {
		t.Fatalf("share system off: value = %s", v)
	}
	opts.UseShareSystem = true
	if v := turnover.ShareValue(c, roster, opts); !v.Equal(money.Of(100_000)) {
		t.Fatalf("value = %s, want 100000", v)
	}
	opts.SharesExcludeLargeCraft = false
	if v := turnover.ShareValue(c, roster, opts); v.String() != "166666.67" {
		t.Fatalf("value = %s", v)
	}
	if v := turnover.ShareValue(c, nil, opts); !v.IsZero() {
		t.Fatalf("no shares: value = %s", v)
	}
	c.NetWorth = money.Of(-5)
	if v := turnover.ShareValue(c, roster, opts); !v.IsZero() {
		t.Fatalf("negative worth: value = %s", v)
	}
}

package turnover

import (
	"log/slog"

	"turnline/internal/config"
	"turnline/internal/dice"
	"turnline/internal/domain"
	"turnline/internal/ledger"
	"turnline/internal/money"
)

// PayoutCalculator prices what a departing or killed person is owed.
type PayoutCalculator struct {
	Config *config.Config
	Dice   dice.Roller
	Logger *slog.Logger
}

func (c PayoutCalculator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Compute rolls the payout of p. Killed persons roll 1d5 and then a bonus die
// on the killed-in-action table; everyone else rolls 2d6 adjusted by
// experience and rank. The share of net worth is added in every branch when
// the share system is on, including when a unit is stolen.
func (c PayoutCalculator) Compute(p domain.Person, killed bool, shareValue money.Money) ledger.Payout {
	opts := c.Config.Options
	table := c.Config.Payouts
	out := ledger.Payout{Reason: ledger.ReasonTurnover, RecruitRole: domain.RoleNone}

	roll := c.coreRoll(p, killed)
	if roll >= table.StolenUnitRoll && p.HasRole(domain.Role.IsAerospacePilot) {
		out.StolenUnit = true
	} else {
		if p.PrimaryRole.IsInfantry() && p.UnitID != "" {
			out.Cash = table.InfantryCompensation
		} else {
			out.Cash = p.MonthlySalary.Times(table.SalaryMonths)
		}
		if !opts.UseShareSystem && p.PrimaryRole.IsUnitPilot() && p.PriorWeightClass != nil {
			switch {
			case roll <= table.WeightDownAtOrBelow:
				out.WeightClassDelta = -1
			case roll >= table.WeightUpAtOrAbove:
				out.WeightClassDelta = 1
			}
		}
	}
	if opts.UseShareSystem && p.Shares > 0 {
		out.Cash = out.Cash.Plus(shareValue.Times(int64(p.Shares)))
	}
	if killed {
		out.Reason = ledger.ReasonKilled
		c.killedBonus(p, &out)
	}
	return out
}

func (c PayoutCalculator) coreRoll(p domain.Person, killed bool) int {
	if killed {
		return c.Dice.Die(5)
	}
	roll := c.Dice.D6(2)
	if p.Experience.Valid() {
		roll += max(-1, int(p.Experience)-2)
	} else {
		c.logger().Warn("unknown experience level; payout roll unadjusted", "person_id", p.ID, "experience", int(p.Experience))
	}
	if p.Officer {
		roll++
	}
	return roll
}

func (c PayoutCalculator) killedBonus(p domain.Person, out *ledger.Payout) {
	switch c.Dice.Die(6) {
	case 2:
		out.Dependents = 1
	case 3:
		out.Dependents = c.Dice.D6(1)
	case 4, 5:
		out.Recruit = true
		out.RecruitRole = p.PrimaryRole
		if out.RecruitRole == "" {
			out.RecruitRole = domain.RoleNone
		}
	case 6:
		out.Heir = true
	}
}

package turnover

import (
	"log/slog"
	"sort"
	"time"

	"turnline/internal/domain"
	"turnline/internal/ledger"
	"turnline/internal/money"
)

// Roller performs the turnover roll for a batch of persons and records the
// outcomes in a ledger.
type Roller struct {
	Payouts PayoutCalculator
	Logger  *slog.Logger
}

func (r Roller) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

type RollInput struct {
	Targets    map[string]TargetRoll
	Persons    map[string]domain.Person
	ShareValue money.Money
	// ContractID is the contract that triggered the roll, empty for a
	// periodic review.
	ContractID string
	Date       time.Time
}

// RollOutcome is one person's roll against their target.
type RollOutcome struct {
	PersonID string `json:"person_id"`
	Target   int    `json:"target"`
	Roll     int    `json:"roll"`
	Departs  bool   `json:"departs"`
}

type RollResult struct {
	Departing []string      `json:"departing"`
	Rolls     []RollOutcome `json:"rolls"`
}

// Roll rolls 2d6 for each target in person id order. A person departs when the
// roll is below their target; their payout is recorded against the
// triggering contract. The last roll date is updated even when nobody leaves.
func (r Roller) Roll(l *ledger.Ledger, in RollInput) RollResult {
	if in.ContractID != "" {
		l.MarkRollRequired(in.ContractID)
	}
	ids := make([]string, 0, len(in.Targets))
	for id := range in.Targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := RollResult{Departing: []string{}, Rolls: []RollOutcome{}}
	for _, id := range ids {
		p, ok := in.Persons[id]
		if !ok {
			r.logger().Warn("target for unknown person; skipped", "person_id", id)
			continue
		}
		target := in.Targets[id].Value()
		roll := r.Payouts.Dice.D6(2)
		departs := roll < target
		result.Rolls = append(result.Rolls, RollOutcome{PersonID: id, Target: target, Roll: roll, Departs: departs})
		if !departs {
			continue
		}
		payout := r.Payouts.Compute(p, false, in.ShareValue)
		if err := l.Record(id, payout, in.ContractID); err != nil {
			r.logger().Warn("turnover payout not recorded", "person_id", id, "error", err)
			continue
		}
		result.Departing = append(result.Departing, id)
	}

	if in.ContractID != "" {
		l.ClearRollRequired(in.ContractID)
	}
	l.SetLastRollDate(in.Date)
	return result
}

// Package ledger tracks turnover outcomes that have been rolled but not yet
// paid out and cleared.
//
// A Ledger holds three collections: the contracts whose turnover roll is still
// due, the persons whose payout is waiting on a contract's resolution, and the
// outstanding payout of each person. Every person in a pending set has a
// payout; a payout may exist without a contract.
//
// A Ledger is not safe for concurrent use. Callers serialize mutations per
// campaign.
package ledger

import (
	"errors"
	"sort"
	"time"

	"turnline/internal/domain"
	"turnline/internal/money"
)

// Reasons a payout was recorded.
const (
	ReasonTurnover  = "turnover"
	ReasonKilled    = "killed"
	ReasonDismissed = "dismissed"
)

// Payout is the compensation or narrative outcome owed to one departing person.
type Payout struct {
	Reason           string      `json:"reason" yaml:"reason"`
	WeightClassDelta int         `json:"weight_class_delta" yaml:"weight_class_delta"`
	Dependents       int         `json:"dependents" yaml:"dependents"`
	Cash             money.Money `json:"cash" yaml:"cash"`
	Recruit          bool        `json:"recruit" yaml:"recruit"`
	RecruitRole      domain.Role `json:"recruit_role" yaml:"recruit_role"`
	Heir             bool        `json:"heir" yaml:"heir"`
	StolenUnit       bool        `json:"stolen_unit" yaml:"stolen_unit"`
	StolenUnitID     string      `json:"stolen_unit_id,omitempty" yaml:"stolen_unit_id,omitempty"`
}

// ReplacementWeightClass applies the weight drift to the class of the unit the
// person last served in.
func (p Payout) ReplacementWeightClass(prior domain.WeightClass) domain.WeightClass {
	return prior.Shift(p.WeightClassDelta)
}

var (
	ErrNoPayout      = errors.New("no outstanding payout for person")
	ErrNoStolenUnit  = errors.New("payout does not grant a stolen unit")
	ErrEmptyPersonID = errors.New("person id required")
)

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Ledger struct {
	rollRequired set
	pending      map[string]set
	payouts      map[string]Payout
	lastRollDate time.Time
}

func New() *Ledger {
	return &Ledger{
		rollRequired: set{},
		pending:      map[string]set{},
		payouts:      map[string]Payout{},
	}
}

// MarkRollRequired notes that a turnover roll is due for the contract.
func (l *Ledger) MarkRollRequired(contractID string) {
	if contractID == "" {
		return
	}
	l.rollRequired[contractID] = struct{}{}
}

// ClearRollRequired reports whether the contract was waiting on a roll.
func (l *Ledger) ClearRollRequired(contractID string) bool {
	if _, ok := l.rollRequired[contractID]; !ok {
		return false
	}
	delete(l.rollRequired, contractID)
	return true
}

func (l *Ledger) IsRollRequired(contractID string) bool {
	_, ok := l.rollRequired[contractID]
	return ok
}

func (l *Ledger) RollRequired() []string { return l.rollRequired.sorted() }

// Record stores the payout for a person, tied to contractID when it is not
// empty.
//
// Merge rule: a person holds at most one payout and the latest call wins. A
// later determination (killed, dismissed) replaces an earlier unresolved one.
// Contract associations accumulate, so the person stays pending until every
// contract that references them has been resolved.
func (l *Ledger) Record(personID string, p Payout, contractID string) error {
	if personID == "" {
		return ErrEmptyPersonID
	}
	l.payouts[personID] = p
	if contractID != "" {
		members, ok := l.pending[contractID]
		if !ok {
			members = set{}
			l.pending[contractID] = members
		}
		members[personID] = struct{}{}
	}
	return nil
}

// AssignStolenUnit sets the concrete unit a departing pilot takes with them.
func (l *Ledger) AssignStolenUnit(personID, unitID string) error {
	p, ok := l.payouts[personID]
	if !ok {
		return ErrNoPayout
	}
	if !p.StolenUnit {
		return ErrNoStolenUnit
	}
	p.StolenUnitID = unitID
	l.payouts[personID] = p
	return nil
}

// RemovePerson drops every trace of a person deleted from the roster.
func (l *Ledger) RemovePerson(personID string) bool {
	_, removed := l.payouts[personID]
	delete(l.payouts, personID)
	for contractID, members := range l.pending {
		if _, ok := members[personID]; ok {
			removed = true
			delete(members, personID)
			if len(members) == 0 {
				delete(l.pending, contractID)
			}
		}
	}
	return removed
}

func (l *Ledger) Payout(personID string) (Payout, bool) {
	p, ok := l.payouts[personID]
	return p, ok
}

// Payouts returns a copy of the payout map.
func (l *Ledger) Payouts() map[string]Payout {
	out := make(map[string]Payout, len(l.payouts))
	for k, v := range l.payouts {
		out[k] = v
	}
	return out
}

// PayoutPersons lists persons with an outstanding payout, sorted.
func (l *Ledger) PayoutPersons() []string {
	out := make([]string, 0, len(l.payouts))
	for k := range l.payouts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pending lists the persons waiting on the contract, sorted.
func (l *Ledger) Pending(contractID string) []string {
	return l.pending[contractID].sorted()
}

func (l *Ledger) PendingContracts() []string {
	out := make([]string, 0, len(l.pending))
	for k := range l.pending {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ContractsFor lists the contracts a person is pending on, sorted.
func (l *Ledger) ContractsFor(personID string) []string {
	var out []string
	for contractID, members := range l.pending {
		if _, ok := members[personID]; ok {
			out = append(out, contractID)
		}
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) LastRollDate() time.Time { return l.lastRollDate }

func (l *Ledger) SetLastRollDate(t time.Time) { l.lastRollDate = t }

// IsEmpty reports whether nothing is due, pending or owed.
func (l *Ledger) IsEmpty() bool {
	return len(l.rollRequired) == 0 && len(l.pending) == 0 && len(l.payouts) == 0
}

// ReviewDue reports whether a periodic turnover review is due on now.
func (l *Ledger) ReviewDue(now time.Time, interval string) bool {
	var next time.Time
	switch interval {
	case "monthly":
		next = l.lastRollDate.AddDate(0, 1, 0)
	case "quarterly":
		next = l.lastRollDate.AddDate(0, 3, 0)
	case "yearly":
		next = l.lastRollDate.AddDate(1, 0, 0)
	default:
		return false
	}
	if l.lastRollDate.IsZero() {
		return true
	}
	return !now.Before(next)
}

// CheckInvariants returns an error naming the first pending person without a
// payout.
func (l *Ledger) CheckInvariants() error {
	for _, contractID := range l.PendingContracts() {
		for _, personID := range l.Pending(contractID) {
			if _, ok := l.payouts[personID]; !ok {
				return &InvariantError{ContractID: contractID, PersonID: personID}
			}
		}
	}
	return nil
}

type InvariantError struct {
	ContractID string
	PersonID   string
}

func (e *InvariantError) Error() string {
	return "person " + e.PersonID + " pending on contract " + e.ContractID + " has no payout"
}

// Summary aggregates what the ledger currently owes.
type Summary struct {
	RollRequired int         `json:"roll_required"`
	Pending      int         `json:"pending_contracts"`
	Payouts      int         `json:"payouts"`
	Cash         money.Money `json:"cash"`
	StolenUnits  int         `json:"stolen_units"`
	Dependents   int         `json:"dependents"`
	Recruits     int         `json:"recruits"`
	Heirs        int         `json:"heirs"`
}

func (l *Ledger) Summary() Summary {
	s := Summary{
		RollRequired: len(l.rollRequired),
		Pending:      len(l.pending),
		Payouts:      len(l.payouts),
	}
	for _, p := range l.payouts {
		s.Cash = s.Cash.Plus(p.Cash)
		s.Dependents += p.Dependents
		if p.StolenUnit {
			s.StolenUnits++
		}
		if p.Recruit {
			s.Recruits++
		}
		if p.Heir {
			s.Heirs++
		}
	}
	return s
}

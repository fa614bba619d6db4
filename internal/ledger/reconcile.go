package ledger

// ReconcileReport lists what Reconcile dropped.
type ReconcileReport struct {
	Payouts []string            `json:"payouts"`
	Pending map[string][]string `json:"pending"`
}

// Removed reports the total number of entries dropped.
func (r ReconcileReport) Removed() int {
	n := len(r.Payouts)
	for _, ids := range r.Pending {
		n += len(ids)
	}
	return n
}

// Reconcile drops payouts and pending memberships of persons for whom exists
// returns false. Pending sets left empty are dropped. Contracts awaiting a roll
// are never touched; they are not persons.
func (l *Ledger) Reconcile(exists func(personID string) bool) ReconcileReport {
	report := ReconcileReport{Pending: map[string][]string{}}
	for _, personID := range l.PayoutPersons() {
		if !exists(personID) {
			delete(l.payouts, personID)
			report.Payouts = append(report.Payouts, personID)
		}
	}
	for _, contractID := range l.PendingContracts() {
		members := l.pending[contractID]
		for _, personID := range members.sorted() {
			if !exists(personID) {
				delete(members, personID)
				report.Pending[contractID] = append(report.Pending[contractID], personID)
			}
		}
		if len(members) == 0 {
			delete(l.pending, contractID)
		}
	}
	return report
}

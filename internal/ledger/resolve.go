package ledger

// ResolveContract closes out a contract. Its pending set is dropped, the
// payouts of persons not pending on any other contract are discarded and the
// contract no longer needs a roll. Unknown or already resolved contracts are a
// no-op. The persons whose payouts were discarded are returned, sorted.
func (l *Ledger) ResolveContract(contractID string) []string {
	delete(l.rollRequired, contractID)
	members, ok := l.pending[contractID]
	if !ok {
		return nil
	}
	delete(l.pending, contractID)
	var cleared []string
	for _, personID := range members.sorted() {
		if l.pendingElsewhere(personID) {
			continue
		}
		if _, ok := l.payouts[personID]; ok {
			delete(l.payouts, personID)
			cleared = append(cleared, personID)
		}
	}
	return cleared
}

// ResolveAll resolves every pending contract and then discards every payout,
// including those never tied to a contract. It returns the number of payouts
// discarded.
func (l *Ledger) ResolveAll() int {
	n := 0
	for _, contractID := range l.PendingContracts() {
		n += len(l.ResolveContract(contractID))
	}
	n += len(l.payouts)
	l.payouts = map[string]Payout{}
	return n
}

func (l *Ledger) pendingElsewhere(personID string) bool {
	for _, members := range l.pending {
		if _, ok := members[personID]; ok {
			return true
		}
	}
	return false
}

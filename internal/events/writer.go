package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"turnline/internal/db"
)

// Event types written by the engine.
const (
	TurnoverRolled    = "turnover.rolled"
	PersonSeparated   = "person.separated"
	PersonRemoved     = "person.removed"
	ContractCompleted = "contract.completed"
	ContractResolved  = "ledger.contract_resolved"
	LedgerResolvedAll = "ledger.resolved_all"
	LedgerReconciled  = "ledger.reconciled"
	LedgerImported    = "ledger.imported"
	StolenUnitSet     = "payout.stolen_unit_assigned"
	PayoutsSettled    = "payout.settled"
	RosterImported    = "roster.imported"
	ConfigUpdated     = "config.updated"
)

type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, campaignID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(ts,type,campaign_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		ts, evtType, nullable(campaignID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

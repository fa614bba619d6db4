package server

import (
	"encoding/json"
	"sort"

	"turnline/internal/domain"
	"turnline/internal/engine"
	"turnline/internal/ledger"
	"turnline/internal/money"
	"turnline/internal/turnover"
)

// Request payloads

type RollRequest struct {
	ContractID string `json:"contract_id,omitempty" doc:"Concluded contract that triggered the roll; omit for a periodic review"`
}

type CompleteContractRequest struct {
	Status string `json:"status" enum:"success,partial,failed,breach"`
}

type ResolveRequest struct {
	ContractID string `json:"contract_id,omitempty"`
	All        bool   `json:"all,omitempty" doc:"Resolve every contract and discard every payout"`
}

type SettleRequest struct {
	ContractID string `json:"contract_id,omitempty" doc:"Settle one contract; omit to settle every payout"`
}

type StolenUnitRequest struct {
	UnitID string `json:"unit_id" minLength:"1"`
}

// Response payloads

type CampaignResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	UnitRating string `json:"unit_rating"`
}

type LedgerResponse struct {
	CampaignID string          `json:"campaign_id"`
	ReviewDue  bool            `json:"review_due"`
	Summary    ledger.Summary  `json:"summary"`
	Ledger     ledger.Document `json:"ledger"`
}

type TargetResponse struct {
	PersonID    string              `json:"person_id"`
	Target      int                 `json:"target"`
	Base        int                 `json:"base"`
	Modifiers   []turnover.Modifier `json:"modifiers"`
	Description string              `json:"description"`
}

type TargetsResponse struct {
	CampaignID string           `json:"campaign_id"`
	ContractID string           `json:"contract_id,omitempty"`
	Targets    []TargetResponse `json:"targets"`
}

type ResolveResponse struct {
	Cleared []string `json:"cleared"`
	Count   int      `json:"count"`
}

type SettlementResponse struct {
	PersonID      string        `json:"person_id"`
	Payout        ledger.Payout `json:"payout"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

type SettleResponse struct {
	Settled []SettlementResponse `json:"settled"`
	Total   money.Money          `json:"total"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

// Conversion helpers

func campaignResponse(c domain.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:         c.ID,
		Name:       c.Name,
		Date:       c.Date.Format("2006-01-02"),
		UnitRating: c.UnitRating.String(),
	}
}

func targetsResponse(campaignID string, res engine.TargetsResult) TargetsResponse {
	out := TargetsResponse{CampaignID: campaignID, ContractID: res.ContractID, Targets: []TargetResponse{}}
	for personID, t := range res.Targets {
		out.Targets = append(out.Targets, TargetResponse{
			PersonID:    personID,
			Target:      t.Value(),
			Base:        t.Base,
			Modifiers:   nonNilSlice(t.Modifiers),
			Description: t.Description(),
		})
	}
	sort.Slice(out.Targets, func(i, j int) bool { return out.Targets[i].PersonID < out.Targets[j].PersonID })
	return out
}

func settleResponse(res engine.SettleResult) SettleResponse {
	out := SettleResponse{Settled: []SettlementResponse{}, Total: res.Total}
	for _, s := range res.Settled {
		out.Settled = append(out.Settled, SettlementResponse(s))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		CampaignID: e.CampaignID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

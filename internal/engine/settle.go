package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"turnline/internal/domain"
	"turnline/internal/events"
	"turnline/internal/ledger"
	"turnline/internal/money"
	"turnline/internal/repo"
)

const payoutCategory = "turnover_payout"

type SettleOptions struct {
	CampaignID string
	// ContractID settles the payouts cleared by resolving that contract.
	// Empty settles every outstanding payout.
	ContractID string
	ActorID    string
}

// Settlement is one payout that was paid and cleared.
type Settlement struct {
	PersonID      string        `json:"person_id"`
	Payout        ledger.Payout `json:"payout"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

type SettleResult struct {
	Settled []Settlement `json:"settled"`
	Total   money.Money  `json:"total"`
}

// Settle pays out the cash of the payouts a resolution clears, posts one
// finance debit per paid person, marks departing persons as retired and then
// resolves. Persons still pending on another contract are paid when that
// contract settles.
func (e Engine) Settle(ctx context.Context, opts SettleOptions) (SettleResult, error) {
	res := SettleResult{Settled: []Settlement{}, Total: money.Zero()}
	err := e.mutate(ctx, opts.CampaignID, func(s *state) error {
		owed := s.ledger.Payouts()
		var cleared []string
		if opts.ContractID != "" {
			cleared = s.ledger.ResolveContract(opts.ContractID)
		} else {
			for id := range owed {
				cleared = append(cleared, id)
			}
			sort.Strings(cleared)
			s.ledger.ResolveAll()
		}
		date := s.campaign.Date.Format("2006-01-02")
		now := e.now().UTC().Format(time.RFC3339)
		for _, personID := range cleared {
			p := owed[personID]
			st := Settlement{PersonID: personID, Payout: p}
			if p.Cash.IsPositive() {
				st.TransactionID = uuid.NewString()
				if err := e.Repo.PostTransaction(ctx, s.tx, domain.Transaction{
					ID:          st.TransactionID,
					CampaignID:  s.campaign.ID,
					Date:        date,
					Amount:      p.Cash.Neg(),
					Category:    payoutCategory,
					Description: fmt.Sprintf("Turnover payout (%s) for %s", p.Reason, personID),
					CreatedAt:   now,
				}); err != nil {
					return fmt.Errorf("post payout of %s: %w", personID, err)
				}
				res.Total = res.Total.Plus(p.Cash)
			}
			if p.Reason == ledger.ReasonTurnover || p.Reason == "" {
				if err := e.retire(ctx, s, personID); err != nil {
					return err
				}
			}
			res.Settled = append(res.Settled, st)
		}
		e.logger().Info("payouts settled", "campaign_id", s.campaign.ID, "contract_id", opts.ContractID,
			"settled", len(res.Settled), "total", res.Total.String())
		return e.Events.Append(ctx, s.tx, events.PayoutsSettled, s.campaign.ID, "contract", opts.ContractID, opts.ActorID, events.EventPayload{
			"persons": cleared,
			"total":   res.Total,
		})
	})
	return res, err
}

// retire marks a person who left through turnover. A person already removed
// from the roster is left alone.
func (e Engine) retire(ctx context.Context, s *state, personID string) error {
	p, err := e.Repo.GetPersonTx(ctx, s.tx, s.campaign.ID, personID)
	if errors.Is(err, repo.ErrNotFound) {
		e.logger().Debug("settled person not on roster", "campaign_id", s.campaign.ID, "person_id", personID)
		return nil
	}
	if err != nil {
		return err
	}
	if !p.IsActive() {
		return nil
	}
	return e.Repo.UpdatePersonStatus(ctx, s.tx, s.campaign.ID, personID, domain.StatusRetired)
}

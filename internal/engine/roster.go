package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"turnline/internal/config"
	"turnline/internal/domain"
	"turnline/internal/events"
	"turnline/internal/ledger"
	"turnline/internal/repo"
)

// Roster is the import format of a campaign: the campaign record, its
// contracts, its persons and optionally its turnover config.
type Roster struct {
	Campaign  domain.Campaign   `yaml:"campaign"`
	Contracts []domain.Contract `yaml:"contracts"`
	Persons   []domain.Person   `yaml:"persons"`
	Config    *config.Config    `yaml:"config,omitempty"`
}

// ParseRoster reads a roster file. Persons and contracts without an id get a
// generated one.
func ParseRoster(data []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("%w: roster yaml: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(r.Campaign.ID) == "" {
		return r, invalid("roster campaign.id is required")
	}
	if r.Campaign.Date.IsZero() {
		return r, invalid("roster campaign.date is required")
	}
	if !r.Campaign.UnitRating.Valid() {
		return r, invalid("roster campaign.unit_rating %d out of range", r.Campaign.UnitRating)
	}
	if r.Campaign.Name == "" {
		r.Campaign.Name = r.Campaign.ID
	}
	seen := map[string]bool{}
	for i := range r.Persons {
		p := &r.Persons[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if seen[p.ID] {
			return r, invalid("person %s listed twice", p.ID)
		}
		seen[p.ID] = true
		if !p.PrimaryRole.Valid() || !p.SecondaryRole.Valid() {
			return r, invalid("person %s has an unknown role", p.ID)
		}
		if p.Shares < 0 || p.PermanentInjuries < 0 {
			return r, invalid("person %s has negative shares or injuries", p.ID)
		}
		p.CampaignID = r.Campaign.ID
	}
	for i := range r.Contracts {
		c := &r.Contracts[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Status == "" {
			c.Status = domain.ContractActive
		}
		if !c.Status.Valid() {
			return r, invalid("contract %s status %q", c.ID, c.Status)
		}
		c.CampaignID = r.Campaign.ID
	}
	return r, nil
}

type ImportOptions struct {
	// Prune deletes persons missing from the roster and drops their ledger
	// entries.
	Prune   bool
	ActorID string
}

type ImportResult struct {
	CampaignID string                 `json:"campaign_id"`
	Persons    int                    `json:"persons"`
	Contracts  int                    `json:"contracts"`
	Pruned     []string               `json:"pruned,omitempty"`
	Reconciled ledger.ReconcileReport `json:"reconciled"`
}

// ImportRoster creates or updates a campaign from a roster.
func (e Engine) ImportRoster(ctx context.Context, r Roster, opts ImportOptions) (ImportResult, error) {
	res := ImportResult{CampaignID: r.Campaign.ID, Persons: len(r.Persons), Contracts: len(r.Contracts)}
	if r.Campaign.CreatedAt == "" {
		r.Campaign.CreatedAt = e.now().UTC().Format(time.RFC3339)
	}
	defer e.lock()()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertCampaign(ctx, tx, r.Campaign); err != nil {
		return res, fmt.Errorf("upsert campaign: %w", err)
	}
	if r.Config != nil {
		if err := e.Repo.UpsertCampaignConfigTx(ctx, tx, r.Campaign.ID, r.Config); err != nil {
			return res, fmt.Errorf("%w: config: %v", ErrInvalidInput, err)
		}
	}
	for _, c := range r.Contracts {
		if err := e.Repo.UpsertContract(ctx, tx, c); err != nil {
			return res, fmt.Errorf("upsert contract %s: %w", c.ID, err)
		}
	}
	listed := map[string]bool{}
	for _, p := range r.Persons {
		listed[p.ID] = true
		if err := e.Repo.UpsertPerson(ctx, tx, p); err != nil {
			return res, fmt.Errorf("upsert person %s: %w", p.ID, err)
		}
	}
	if opts.Prune {
		existing, err := e.Repo.ListPersonsTx(ctx, tx, r.Campaign.ID)
		if err != nil {
			return res, err
		}
		for _, p := range existing {
			if listed[p.ID] {
				continue
			}
			if err := e.Repo.DeletePerson(ctx, tx, r.Campaign.ID, p.ID); err != nil {
				return res, err
			}
			res.Pruned = append(res.Pruned, p.ID)
		}
	}

	s, err := e.load(ctx, tx, r.Campaign.ID)
	if err != nil {
		return res, err
	}
	res.Reconciled = s.orphans
	if err := e.saveLedger(ctx, tx, r.Campaign.ID, s.ledger); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, events.RosterImported, r.Campaign.ID, "campaign", r.Campaign.ID, opts.ActorID, events.EventPayload{
		"persons":   res.Persons,
		"contracts": res.Contracts,
		"pruned":    res.Pruned,
	}); err != nil {
		return res, err
	}
	return res, tx.Commit()
}

// RemovePerson deletes a person from the roster and every ledger entry that
// names them.
func (e Engine) RemovePerson(ctx context.Context, campaignID, personID, actorID string) error {
	return e.mutate(ctx, campaignID, func(s *state) error {
		err := e.Repo.DeletePerson(ctx, s.tx, campaignID, personID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("person %s: %w", personID, repo.ErrNotFound)
		}
		if err != nil {
			return err
		}
		hadEntries := s.ledger.RemovePerson(personID)
		return e.Events.Append(ctx, s.tx, events.PersonRemoved, campaignID, "person", personID, actorID, events.EventPayload{
			"ledger_entries_dropped": hadEntries,
		})
	})
}

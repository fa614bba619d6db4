package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"turnline/internal/config"
	"turnline/internal/db"
	"turnline/internal/dice"
	"turnline/internal/domain"
	"turnline/internal/events"
	"turnline/internal/ledger"
	"turnline/internal/repo"
	"turnline/internal/turnover"
)

// Engine drives the turnover ledger of the campaigns stored in DB. Every
// mutation loads the ledger, changes it and saves it in one transaction,
// serialized across copies of the Engine.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Logger *slog.Logger
	// Dice is the random source for rolls. When nil every roll seeds a new
	// roller and logs the seed.
	Dice dice.Roller
	Now  func() time.Time

	mu *sync.Mutex
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn, Dialect: dialect},
		Events: events.Writer{DB: conn, Dialect: dialect},
		Now:    time.Now,
		mu:     &sync.Mutex{},
	}
}

var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) roller() (dice.Roller, error) {
	if e.Dice != nil {
		return e.Dice, nil
	}
	seed, err := dice.NewSeed()
	if err != nil {
		return nil, err
	}
	e.logger().Info("turnover dice seeded", "seed", seed)
	return dice.NewSeeded(seed), nil
}

// state is what a mutation sees of one campaign.
type state struct {
	tx       *sql.Tx
	campaign domain.Campaign
	config   *config.Config
	ledger   *ledger.Ledger
	// orphans is what load dropped for persons no longer on the roster.
	orphans ledger.ReconcileReport
}

func (e Engine) lock() func() {
	if e.mu == nil {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

// mutate runs fn against the campaign's ledger and persists the result when
// fn succeeds.
func (e Engine) mutate(ctx context.Context, campaignID string, fn func(s *state) error) error {
	defer e.lock()()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s, err := e.load(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := e.saveLedger(ctx, tx, campaignID, s.ledger); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) load(ctx context.Context, tx *sql.Tx, campaignID string) (*state, error) {
	campaign, err := e.Repo.GetCampaignTx(ctx, tx, campaignID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("campaign %s: %w", campaignID, repo.ErrNotFound)
		}
		return nil, err
	}
	cfg, err := e.Repo.GetCampaignConfigTx(ctx, tx, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		cfg, err = config.Default(campaignID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("campaign %s config: %w", campaignID, err)
	}
	l, err := e.loadLedger(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}
	s := &state{tx: tx, campaign: campaign, config: cfg, ledger: l}
	if s.orphans, err = e.reconcile(ctx, s); err != nil {
		return nil, err
	}
	if n := s.orphans.Removed(); n > 0 {
		e.logger().Info("dropped ledger entries of persons no longer on roster", "campaign_id", campaignID, "dropped", n)
	}
	return s, nil
}

// loadLedger reads the stored ledger. A document that cannot be read starts
// the campaign over with an empty ledger rather than failing the load.
func (e Engine) loadLedger(ctx context.Context, tx *sql.Tx, campaignID string) (*ledger.Ledger, error) {
	doc, err := e.Repo.GetLedgerDocument(ctx, tx, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return ledger.New(), nil
	}
	if err != nil {
		return nil, err
	}
	l, err := ledger.Decode(doc, e.logger().With("campaign_id", campaignID))
	if err != nil {
		e.logger().Error("stored ledger unreadable; continuing with an empty ledger", "campaign_id", campaignID, "error", err)
	}
	return l, nil
}

func (e Engine) saveLedger(ctx context.Context, tx *sql.Tx, campaignID string, l *ledger.Ledger) error {
	doc, err := ledger.Encode(l)
	if err != nil {
		return err
	}
	return e.Repo.SaveLedgerDocument(ctx, tx, campaignID, doc)
}

func (e Engine) snapshot(ctx context.Context, s *state) (turnover.Snapshot, error) {
	roster, err := e.Repo.ListPersonsTx(ctx, s.tx, s.campaign.ID)
	if err != nil {
		return turnover.Snapshot{}, err
	}
	contracts, err := e.Repo.ListContractsTx(ctx, s.tx, s.campaign.ID)
	if err != nil {
		return turnover.Snapshot{}, err
	}
	return turnover.Snapshot{Campaign: s.campaign, Roster: roster, Contracts: contracts}, nil
}

// view runs fn against a read-only load of the campaign.
func (e Engine) view(ctx context.Context, campaignID string, fn func(s *state) error) error {
	defer e.lock()()
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: e.Repo.Dialect == db.Postgres})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s, err := e.load(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	return fn(s)
}

// Ledger returns the campaign's ledger.
func (e Engine) Ledger(ctx context.Context, campaignID string) (*ledger.Ledger, error) {
	var l *ledger.Ledger
	err := e.view(ctx, campaignID, func(s *state) error {
		l = s.ledger
		return nil
	})
	return l, err
}

// Config returns the campaign's stored config, or the default when none was
// imported.
func (e Engine) Config(ctx context.Context, campaignID string) (*config.Config, error) {
	var cfg *config.Config
	err := e.view(ctx, campaignID, func(s *state) error {
		cfg = s.config
		return nil
	})
	return cfg, err
}

// SetConfig stores a validated config for the campaign.
func (e Engine) SetConfig(ctx context.Context, campaignID string, cfg *config.Config, actorID string) error {
	return e.mutate(ctx, campaignID, func(s *state) error {
		if err := e.Repo.UpsertCampaignConfigTx(ctx, s.tx, campaignID, cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return e.Events.Append(ctx, s.tx, events.ConfigUpdated, campaignID, "campaign", campaignID, actorID, nil)
	})
}

// TargetsResult pairs each eligible person with their target.
type TargetsResult struct {
	ContractID string                         `json:"contract_id,omitempty"`
	Targets    map[string]turnover.TargetRoll `json:"targets"`
}

// Targets computes the current target numbers, for the conclusion of
// contractID when it is set.
func (e Engine) Targets(ctx context.Context, campaignID, contractID string) (TargetsResult, error) {
	res := TargetsResult{ContractID: contractID}
	err := e.view(ctx, campaignID, func(s *state) error {
		snap, err := e.snapshot(ctx, s)
		if err != nil {
			return err
		}
		contract, err := e.contract(ctx, s, contractID)
		if err != nil {
			return err
		}
		calc := turnover.Calculator{Config: s.config, Logger: e.logger()}
		res.Targets = calc.TargetNumbers(snap, contract)
		return nil
	})
	return res, err
}

func (e Engine) contract(ctx context.Context, s *state, contractID string) (*domain.Contract, error) {
	if contractID == "" {
		return nil, nil
	}
	c, err := e.Repo.GetContractTx(ctx, s.tx, s.campaign.ID, contractID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("contract %s: %w", contractID, repo.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

type RollOptions struct {
	CampaignID string
	// ContractID is the concluded contract that triggered the roll; empty
	// for a periodic review.
	ContractID string
	ActorID    string
}

// Roll performs a turnover pass and records every departure in the ledger.
func (e Engine) Roll(ctx context.Context, opts RollOptions) (turnover.RollResult, error) {
	var res turnover.RollResult
	rng, err := e.roller()
	if err != nil {
		return res, err
	}
	err = e.mutate(ctx, opts.CampaignID, func(s *state) error {
		snap, err := e.snapshot(ctx, s)
		if err != nil {
			return err
		}
		contract, err := e.contract(ctx, s, opts.ContractID)
		if err != nil {
			return err
		}
		calc := turnover.Calculator{Config: s.config, Logger: e.logger()}
		persons := map[string]domain.Person{}
		for _, p := range snap.Roster {
			persons[p.ID] = p
		}
		roller := turnover.Roller{
			Payouts: turnover.PayoutCalculator{Config: s.config, Dice: rng, Logger: e.logger()},
			Logger:  e.logger(),
		}
		res = roller.Roll(s.ledger, turnover.RollInput{
			Targets:    calc.TargetNumbers(snap, contract),
			Persons:    persons,
			ShareValue: turnover.ShareValue(s.campaign, snap.Roster, s.config.Options),
			ContractID: opts.ContractID,
			Date:       s.campaign.Date,
		})
		e.logger().Info("turnover rolled", "campaign_id", s.campaign.ID, "contract_id", opts.ContractID,
			"rolled", len(res.Rolls), "departing", len(res.Departing))
		return e.Events.Append(ctx, s.tx, events.TurnoverRolled, s.campaign.ID, "contract", opts.ContractID, opts.ActorID, events.EventPayload{
			"rolled":    len(res.Rolls),
			"departing": res.Departing,
			"date":      s.campaign.Date.Format("2006-01-02"),
		})
	})
	return res, err
}

// ReviewDue reports whether a periodic review is due on the campaign date.
func (e Engine) ReviewDue(ctx context.Context, campaignID string) (bool, error) {
	var due bool
	err := e.view(ctx, campaignID, func(s *state) error {
		due = s.ledger.ReviewDue(s.campaign.Date, s.config.Options.ReviewInterval)
		return nil
	})
	return due, err
}

// CompleteContract records the outcome of a contract and, when configured,
// marks the turnover roll it triggers as due.
func (e Engine) CompleteContract(ctx context.Context, campaignID, contractID string, status domain.ContractStatus, actorID string) error {
	if !status.Valid() || status == domain.ContractActive {
		return invalid("contract outcome %q", status)
	}
	return e.mutate(ctx, campaignID, func(s *state) error {
		if _, err := e.contract(ctx, s, contractID); err != nil {
			return err
		}
		if err := e.Repo.UpdateContractStatus(ctx, s.tx, campaignID, contractID, status); err != nil {
			return err
		}
		if s.config.Options.RollOnContractEnd {
			s.ledger.MarkRollRequired(contractID)
		}
		return e.Events.Append(ctx, s.tx, events.ContractCompleted, campaignID, "contract", contractID, actorID, events.EventPayload{
			"status":        status,
			"roll_required": s.ledger.IsRollRequired(contractID),
		})
	})
}

// ResolveContract clears the contract's pending payouts. Unknown or already
// resolved contracts are a no-op.
func (e Engine) ResolveContract(ctx context.Context, campaignID, contractID, actorID string) ([]string, error) {
	var cleared []string
	err := e.mutate(ctx, campaignID, func(s *state) error {
		cleared = s.ledger.ResolveContract(contractID)
		return e.Events.Append(ctx, s.tx, events.ContractResolved, campaignID, "contract", contractID, actorID, events.EventPayload{
			"cleared": cleared,
		})
	})
	return cleared, err
}

// ResolveAll resolves every pending contract and discards every payout.
func (e Engine) ResolveAll(ctx context.Context, campaignID, actorID string) (int, error) {
	var n int
	err := e.mutate(ctx, campaignID, func(s *state) error {
		n = s.ledger.ResolveAll()
		return e.Events.Append(ctx, s.tx, events.LedgerResolvedAll, campaignID, "ledger", campaignID, actorID, events.EventPayload{
			"cleared": n,
		})
	})
	return n, err
}

// Reconcile drops ledger entries of persons no longer on the roster. Every
// load already does this; Reconcile persists the result and records it.
func (e Engine) Reconcile(ctx context.Context, campaignID, actorID string) (ledger.ReconcileReport, error) {
	var report ledger.ReconcileReport
	err := e.mutate(ctx, campaignID, func(s *state) error {
		report = s.orphans
		if report.Removed() == 0 {
			return nil
		}
		return e.Events.Append(ctx, s.tx, events.LedgerReconciled, campaignID, "ledger", campaignID, actorID, events.EventPayload{
			"payouts": report.Payouts,
			"pending": report.Pending,
		})
	})
	return report, err
}

func (e Engine) reconcile(ctx context.Context, s *state) (ledger.ReconcileReport, error) {
	roster, err := e.Repo.ListPersonsTx(ctx, s.tx, s.campaign.ID)
	if err != nil {
		return ledger.ReconcileReport{}, err
	}
	present := make(map[string]bool, len(roster))
	for _, p := range roster {
		present[p.ID] = true
	}
	report := s.ledger.Reconcile(func(id string) bool {
		if !present[id] {
			e.logger().Debug("dropping ledger entry of person no longer on roster", "campaign_id", s.campaign.ID, "person_id", id)
			return false
		}
		return true
	})
	return report, nil
}

// SeparationOptions describes an out-of-band departure.
type SeparationOptions struct {
	CampaignID string
	PersonID   string
	// Status is killed or dismissed.
	Status     domain.PersonStatus
	ContractID string
	ActorID    string
}

// RecordSeparation prices the payout of a killed or dismissed person and
// records it, replacing any earlier unresolved payout of theirs.
func (e Engine) RecordSeparation(ctx context.Context, opts SeparationOptions) (ledger.Payout, error) {
	var payout ledger.Payout
	if opts.Status != domain.StatusKilled && opts.Status != domain.StatusDismissed {
		return payout, invalid("separation status %q; want killed or dismissed", opts.Status)
	}
	rng, err := e.roller()
	if err != nil {
		return payout, err
	}
	err = e.mutate(ctx, opts.CampaignID, func(s *state) error {
		p, err := e.Repo.GetPersonTx(ctx, s.tx, opts.CampaignID, opts.PersonID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("person %s: %w", opts.PersonID, repo.ErrNotFound)
			}
			return err
		}
		if opts.ContractID != "" {
			if _, err := e.contract(ctx, s, opts.ContractID); err != nil {
				return err
			}
		}
		roster, err := e.Repo.ListPersonsTx(ctx, s.tx, opts.CampaignID)
		if err != nil {
			return err
		}
		calc := turnover.PayoutCalculator{Config: s.config, Dice: rng, Logger: e.logger()}
		killed := opts.Status == domain.StatusKilled
		payout = calc.Compute(p, killed, turnover.ShareValue(s.campaign, roster, s.config.Options))
		if !killed {
			payout.Reason = ledger.ReasonDismissed
		}
		if err := s.ledger.Record(p.ID, payout, opts.ContractID); err != nil {
			return err
		}
		if err := e.Repo.UpdatePersonStatus(ctx, s.tx, opts.CampaignID, p.ID, opts.Status); err != nil {
			return err
		}
		return e.Events.Append(ctx, s.tx, events.PersonSeparated, opts.CampaignID, "person", p.ID, opts.ActorID, events.EventPayload{
			"status":      opts.Status,
			"contract_id": opts.ContractID,
			"payout":      payout,
		})
	})
	return payout, err
}

// AssignStolenUnit records the unit a departing pilot takes with them.
func (e Engine) AssignStolenUnit(ctx context.Context, campaignID, personID, unitID, actorID string) error {
	if unitID == "" {
		return invalid("unit id required")
	}
	return e.mutate(ctx, campaignID, func(s *state) error {
		if err := s.ledger.AssignStolenUnit(personID, unitID); err != nil {
			if errors.Is(err, ledger.ErrNoPayout) {
				return fmt.Errorf("payout of %s: %w", personID, repo.ErrNotFound)
			}
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return e.Events.Append(ctx, s.tx, events.StolenUnitSet, campaignID, "person", personID, actorID, events.EventPayload{
			"unit_id": unitID,
		})
	})
}

// ExportLedger returns the canonical ledger document.
func (e Engine) ExportLedger(ctx context.Context, campaignID string) ([]byte, error) {
	l, err := e.Ledger(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return ledger.Encode(l)
}

// ImportLedger replaces the campaign's ledger with a document, which may be
// in a legacy form. Entries of persons not on the roster are dropped.
func (e Engine) ImportLedger(ctx context.Context, campaignID string, data []byte, actorID string) (ledger.ReconcileReport, error) {
	var report ledger.ReconcileReport
	err := e.mutate(ctx, campaignID, func(s *state) error {
		l, err := ledger.Decode(data, e.logger().With("campaign_id", campaignID))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		s.ledger = l
		if report, err = e.reconcile(ctx, s); err != nil {
			return err
		}
		return e.Events.Append(ctx, s.tx, events.LedgerImported, campaignID, "ledger", campaignID, actorID, events.EventPayload{
			"summary": l.Summary(),
			"dropped": report.Removed(),
		})
	})
	return report, err
}

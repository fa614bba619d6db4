package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"turnline/internal/config"
	"turnline/internal/db"
	"turnline/internal/domain"
	"turnline/internal/money"
)

const dateLayout = "2006-01-02"

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) q(query string) string { return db.Rebind(r.Dialect, query) }

const campaignColumns = `id,name,date,unit_rating,fatigue,pirate,COALESCE(commander_id,''),net_worth,large_craft_value,created_at`

func scanCampaign(row interface{ Scan(...any) error }) (domain.Campaign, error) {
	var c domain.Campaign
	var date string
	var fatigue sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &date, &c.UnitRating, &fatigue, &c.Pirate, &c.CommanderID, &c.NetWorth, &c.LargeCraftValue, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if c.Date, err = time.Parse(dateLayout, date); err != nil {
		return c, fmt.Errorf("campaign %s date %q: %w", c.ID, date, err)
	}
	if fatigue.Valid {
		f := int(fatigue.Int64)
		c.Fatigue = &f
	}
	return c, nil
}

// UpsertCampaign inserts the campaign or updates everything but created_at.
func (r Repo) UpsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO campaigns(id,name,date,unit_rating,fatigue,pirate,commander_id,net_worth,large_craft_value,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, date=excluded.date, unit_rating=excluded.unit_rating, fatigue=excluded.fatigue,
pirate=excluded.pirate, commander_id=excluded.commander_id, net_worth=excluded.net_worth, large_craft_value=excluded.large_craft_value`),
		c.ID, c.Name, c.Date.Format(dateLayout), int(c.UnitRating), nullableIntPtr(c.Fatigue), c.Pirate, nullable(c.CommanderID),
		c.NetWorth, c.LargeCraftValue, c.CreatedAt)
	return err
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return r.GetCampaignTx(ctx, nil, id)
}

func (r Repo) GetCampaignTx(ctx context.Context, tx *sql.Tx, id string) (domain.Campaign, error) {
	return scanCampaign(r.conn(tx).QueryRowContext(ctx, r.q(`SELECT `+campaignColumns+` FROM campaigns WHERE id=?`), id))
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// SingleCampaign returns the only campaign in the database.
func (r Repo) SingleCampaign(ctx context.Context) (domain.Campaign, error) {
	campaigns, err := r.ListCampaigns(ctx)
	if err != nil {
		return domain.Campaign{}, err
	}
	if len(campaigns) == 0 {
		return domain.Campaign{}, ErrNotFound
	}
	if len(campaigns) > 1 {
		return domain.Campaign{}, fmt.Errorf("multiple campaigns exist; specify --campaign")
	}
	return campaigns[0], nil
}

func (r Repo) UpsertCampaignConfig(ctx context.Context, campaignID string, cfg *config.Config) error {
	return r.UpsertCampaignConfigTx(ctx, nil, campaignID, cfg)
}

func (r Repo) UpsertCampaignConfigTx(ctx context.Context, tx *sql.Tx, campaignID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Campaign.ID = campaignID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO campaign_configs(campaign_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(campaign_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`), campaignID, string(payload), now, now)
	return err
}

func (r Repo) GetCampaignConfig(ctx context.Context, campaignID string) (*config.Config, error) {
	return r.GetCampaignConfigTx(ctx, nil, campaignID)
}

func (r Repo) GetCampaignConfigTx(ctx context.Context, tx *sql.Tx, campaignID string) (*config.Config, error) {
	var payload string
	err := r.conn(tx).QueryRowContext(ctx, r.q(`SELECT config_json FROM campaign_configs WHERE campaign_id=?`), campaignID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Campaign.ID == "" {
		cfg.Campaign.ID = campaignID
	}
	return &cfg, cfg.Validate()
}

const personColumns = `id,campaign_id,name,status,primary_role,secondary_role,experience,officer,tactical_genius,COALESCE(birth_date,''),
permanent_injuries,prior_weight_class,origin_faction,origin_pirate,origin_mercenary,origin_clan,monthly_salary,shares,deployed,
prisoner_status,founder,unit_id,unit_commander,leadership`

func scanPerson(row interface{ Scan(...any) error }) (domain.Person, error) {
	var p domain.Person
	var birth string
	var weight, leadership sql.NullInt64
	err := row.Scan(&p.ID, &p.CampaignID, &p.Name, &p.Status, &p.PrimaryRole, &p.SecondaryRole, &p.Experience, &p.Officer, &p.TacticalGenius, &birth,
		&p.PermanentInjuries, &weight, &p.Origin.Faction, &p.Origin.Pirate, &p.Origin.Mercenary, &p.Origin.Clan, &p.MonthlySalary, &p.Shares, &p.Deployed,
		&p.Prisoner, &p.Founder, &p.UnitID, &p.UnitCommander, &leadership)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if birth != "" {
		if p.BirthDate, err = time.Parse(dateLayout, birth); err != nil {
			return p, fmt.Errorf("person %s birth date %q: %w", p.ID, birth, err)
		}
	}
	if weight.Valid {
		w := domain.WeightClass(weight.Int64)
		p.PriorWeightClass = &w
	}
	if leadership.Valid {
		l := int(leadership.Int64)
		p.Leadership = &l
	}
	return p, nil
}

func (r Repo) UpsertPerson(ctx context.Context, tx *sql.Tx, p domain.Person) error {
	var birth any
	if !p.BirthDate.IsZero() {
		birth = p.BirthDate.Format(dateLayout)
	}
	var weight any
	if p.PriorWeightClass != nil {
		weight = int(*p.PriorWeightClass)
	}
	if p.Status == "" {
		p.Status = domain.StatusActive
	}
	if p.Prisoner == "" {
		p.Prisoner = domain.PrisonerFree
	}
	if p.PrimaryRole == "" {
		p.PrimaryRole = domain.RoleNone
	}
	if p.SecondaryRole == "" {
		p.SecondaryRole = domain.RoleNone
	}
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO persons(id,campaign_id,name,status,primary_role,secondary_role,experience,officer,tactical_genius,birth_date,
permanent_injuries,prior_weight_class,origin_faction,origin_pirate,origin_mercenary,origin_clan,monthly_salary,shares,deployed,
prisoner_status,founder,unit_id,unit_commander,leadership)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(campaign_id,id) DO UPDATE SET name=excluded.name, status=excluded.status, primary_role=excluded.primary_role,
secondary_role=excluded.secondary_role, experience=excluded.experience, officer=excluded.officer, tactical_genius=excluded.tactical_genius,
birth_date=excluded.birth_date, permanent_injuries=excluded.permanent_injuries, prior_weight_class=excluded.prior_weight_class,
origin_faction=excluded.origin_faction, origin_pirate=excluded.origin_pirate, origin_mercenary=excluded.origin_mercenary,
origin_clan=excluded.origin_clan, monthly_salary=excluded.monthly_salary, shares=excluded.shares, deployed=excluded.deployed,
prisoner_status=excluded.prisoner_status, founder=excluded.founder, unit_id=excluded.unit_id, unit_commander=excluded.unit_commander,
leadership=excluded.leadership`),
		p.ID, p.CampaignID, p.Name, string(p.Status), string(p.PrimaryRole), string(p.SecondaryRole), int(p.Experience), p.Officer, p.TacticalGenius, birth,
		p.PermanentInjuries, weight, p.Origin.Faction, p.Origin.Pirate, p.Origin.Mercenary, p.Origin.Clan, p.MonthlySalary, p.Shares, p.Deployed,
		string(p.Prisoner), p.Founder, p.UnitID, p.UnitCommander, nullableIntPtr(p.Leadership))
	return err
}

func (r Repo) GetPerson(ctx context.Context, campaignID, id string) (domain.Person, error) {
	return r.GetPersonTx(ctx, nil, campaignID, id)
}

func (r Repo) GetPersonTx(ctx context.Context, tx *sql.Tx, campaignID, id string) (domain.Person, error) {
	return scanPerson(r.conn(tx).QueryRowContext(ctx, r.q(`SELECT `+personColumns+` FROM persons WHERE campaign_id=? AND id=?`), campaignID, id))
}

func (r Repo) ListPersons(ctx context.Context, campaignID string) ([]domain.Person, error) {
	return r.ListPersonsTx(ctx, nil, campaignID)
}

func (r Repo) ListPersonsTx(ctx context.Context, tx *sql.Tx, campaignID string) ([]domain.Person, error) {
	rows, err := r.conn(tx).QueryContext(ctx, r.q(`SELECT `+personColumns+` FROM persons WHERE campaign_id=? ORDER BY id`), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePersonStatus(ctx context.Context, tx *sql.Tx, campaignID, id string, status domain.PersonStatus) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE persons SET status=? WHERE campaign_id=? AND id=?`), string(status), campaignID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePerson(ctx context.Context, tx *sql.Tx, campaignID, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM persons WHERE campaign_id=? AND id=?`), campaignID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertContract(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	if c.Status == "" {
		c.Status = domain.ContractActive
	}
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO contracts(campaign_id,id,name,status,share_pct) VALUES (?,?,?,?,?)
ON CONFLICT(campaign_id,id) DO UPDATE SET name=excluded.name, status=excluded.status, share_pct=excluded.share_pct`),
		c.CampaignID, c.ID, c.Name, string(c.Status), c.SharePct)
	return err
}

func scanContract(row interface{ Scan(...any) error }) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Status, &c.SharePct)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, campaignID, id string) (domain.Contract, error) {
	return scanContract(r.conn(tx).QueryRowContext(ctx, r.q(`SELECT id,campaign_id,name,status,share_pct FROM contracts WHERE campaign_id=? AND id=?`), campaignID, id))
}

func (r Repo) ListContracts(ctx context.Context, campaignID string) ([]domain.Contract, error) {
	return r.ListContractsTx(ctx, nil, campaignID)
}

func (r Repo) ListContractsTx(ctx context.Context, tx *sql.Tx, campaignID string) ([]domain.Contract, error) {
	rows, err := r.conn(tx).QueryContext(ctx, r.q(`SELECT id,campaign_id,name,status,share_pct FROM contracts WHERE campaign_id=? ORDER BY id`), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateContractStatus(ctx context.Context, tx *sql.Tx, campaignID, id string, status domain.ContractStatus) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE contracts SET status=? WHERE campaign_id=? AND id=?`), string(status), campaignID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLedgerDocument returns the stored ledger document, or ErrNotFound when
// the campaign has never saved one.
func (r Repo) GetLedgerDocument(ctx context.Context, tx *sql.Tx, campaignID string) ([]byte, error) {
	var doc string
	err := r.conn(tx).QueryRowContext(ctx, r.q(`SELECT document FROM ledgers WHERE campaign_id=?`), campaignID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (r Repo) SaveLedgerDocument(ctx context.Context, tx *sql.Tx, campaignID string, doc []byte) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO ledgers(campaign_id,document,updated_at) VALUES (?,?,?)
ON CONFLICT(campaign_id) DO UPDATE SET document=excluded.document, updated_at=excluded.updated_at`), campaignID, string(doc), now)
	return err
}

// PostTransaction writes a finance row. Negative amounts are debits.
func (r Repo) PostTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO finance_transactions(id,campaign_id,date,amount,category,description,created_at) VALUES (?,?,?,?,?,?,?)`),
		t.ID, t.CampaignID, t.Date, t.Amount, t.Category, t.Description, t.CreatedAt)
	return err
}

func (r Repo) ListTransactions(ctx context.Context, campaignID string) ([]domain.Transaction, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT id,campaign_id,date,amount,category,description,created_at FROM finance_transactions WHERE campaign_id=? ORDER BY date, created_at, id`), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Date, &t.Amount, &t.Category, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Balance sums every transaction of the campaign.
func (r Repo) Balance(ctx context.Context, campaignID string) (money.Money, error) {
	txs, err := r.ListTransactions(ctx, campaignID)
	if err != nil {
		return money.Zero(), err
	}
	total := money.Zero()
	for _, t := range txs {
		total = total.Plus(t.Amount)
	}
	return total, nil
}

const eventColumns = `id,ts,type,COALESCE(campaign_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CampaignID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events first, optionally filtered by type.
func (r Repo) LatestEvents(ctx context.Context, limit int, campaignID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, campaignID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// LatestEventID returns the highest event id, scoped to the campaign when one
// is given, or 0 when there are no events.
func (r Repo) LatestEventID(ctx context.Context, campaignID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id=?`
		args = append(args, campaignID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, r.q(query), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

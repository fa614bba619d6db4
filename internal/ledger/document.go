package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"turnline/internal/domain"
	"turnline/internal/money"
)

const dateLayout = "2006-01-02"

// Document is the persisted form of a Ledger. JSON documents decode too since
// YAML is a superset of JSON.
type Document struct {
	RollRequired []string       `yaml:"roll_required" json:"roll_required"`
	Pending      []PendingEntry `yaml:"pending" json:"pending"`
	Payouts      []PayoutEntry  `yaml:"payouts" json:"payouts"`
	LastRollDate string         `yaml:"last_roll_date,omitempty" json:"last_roll_date,omitempty"`
}

type PendingEntry struct {
	Contract string   `yaml:"contract" json:"contract"`
	Persons  []string `yaml:"persons" json:"persons"`
}

type PayoutEntry struct {
	Person string `yaml:"person" json:"person"`
	Payout `yaml:",inline" json:",inline"`
}

// Document renders the ledger with every collection sorted.
func (l *Ledger) Document() Document {
	doc := Document{
		RollRequired: l.RollRequired(),
		Pending:      []PendingEntry{},
		Payouts:      []PayoutEntry{},
	}
	for _, contractID := range l.PendingContracts() {
		doc.Pending = append(doc.Pending, PendingEntry{Contract: contractID, Persons: l.Pending(contractID)})
	}
	for _, personID := range l.PayoutPersons() {
		doc.Payouts = append(doc.Payouts, PayoutEntry{Person: personID, Payout: l.payouts[personID]})
	}
	if !l.lastRollDate.IsZero() {
		doc.LastRollDate = l.lastRollDate.Format(dateLayout)
	}
	return doc
}

// Encode writes the canonical YAML form of the ledger.
func Encode(l *Ledger) ([]byte, error) {
	data, err := yaml.Marshal(l.Document())
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return data, nil
}

// ErrUnreadable reports a document that could not be read at all.
var ErrUnreadable = errors.New("ledger document unreadable")

// Decode reads a persisted ledger. It never fails hard: malformed entries are
// logged and skipped, and a document that cannot be parsed at all yields an
// empty ledger together with an ErrUnreadable error the caller may ignore.
// An empty document is an empty ledger.
func Decode(data []byte, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := New()
	if strings.TrimSpace(string(data)) == "" {
		return l, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		logger.Error("ledger document unparsable; starting empty", "error", err)
		return New(), fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		logger.Error("ledger document is not a mapping; starting empty", "kind", doc.Kind)
		return New(), fmt.Errorf("%w: top level is not a mapping", ErrUnreadable)
	}
	d := decoder{logger: logger, ledger: l}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i].Value, doc.Content[i+1]
		switch key {
		case "roll_required", "rollRequired":
			d.rollRequired(value)
		case "pending", "unresolved":
			d.pending(value)
		case "payouts":
			d.payouts(value)
		case "last_roll_date", "lastRetirementRoll":
			d.lastRollDate(value)
		default:
			logger.Warn("ledger document: ignoring unknown field", "field", key)
		}
	}
	d.dropDangling()
	return l, nil
}

type decoder struct {
	logger *slog.Logger
	ledger *Ledger
	// pending memberships are applied after payouts are known.
	memberships []PendingEntry
}

func (d *decoder) rollRequired(n *yaml.Node) {
	if n.Kind != yaml.SequenceNode {
		d.logger.Warn("ledger document: roll_required is not a list; skipped", "line", n.Line)
		return
	}
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode || strings.TrimSpace(item.Value) == "" {
			d.logger.Warn("ledger document: skipping malformed roll_required entry", "line", item.Line)
			continue
		}
		d.ledger.MarkRollRequired(strings.TrimSpace(item.Value))
	}
}

func (d *decoder) pending(n *yaml.Node) {
	if n.Kind != yaml.SequenceNode {
		d.logger.Warn("ledger document: pending is not a list; skipped", "line", n.Line)
		return
	}
	for _, item := range n.Content {
		var entry PendingEntry
		if err := item.Decode(&entry); err != nil {
			d.logger.Warn("ledger document: skipping malformed pending entry", "line", item.Line, "error", err)
			continue
		}
		entry.Contract = strings.TrimSpace(entry.Contract)
		if entry.Contract == "" {
			d.logger.Warn("ledger document: skipping pending entry without contract", "line", item.Line)
			continue
		}
		d.memberships = append(d.memberships, entry)
	}
}

// rawPayout mirrors PayoutEntry with loose field types and legacy aliases.
type rawPayout struct {
	Person            string `yaml:"person"`
	Reason            string `yaml:"reason"`
	WeightClassDelta  *int   `yaml:"weight_class_delta"`
	WeightClass       *int   `yaml:"weight_class"`
	Dependents        *int   `yaml:"dependents"`
	DependentsGained  *int   `yaml:"dependents_gained"`
	Cash              string `yaml:"cash"`
	PayoutAmount      string `yaml:"payout_amount"`
	Recruit           bool   `yaml:"recruit"`
	RecruitGranted    bool   `yaml:"recruit_granted"`
	RecruitRole       string `yaml:"recruit_role"`
	Heir              bool   `yaml:"heir"`
	HeirGranted       bool   `yaml:"heir_granted"`
	StolenUnit        bool   `yaml:"stolen_unit"`
	StolenUnitGranted bool   `yaml:"stolen_unit_granted"`
	StolenUnitID      string `yaml:"stolen_unit_id"`
}

func (d *decoder) payouts(n *yaml.Node) {
	if n.Kind != yaml.SequenceNode {
		d.logger.Warn("ledger document: payouts is not a list; skipped", "line", n.Line)
		return
	}
	for _, item := range n.Content {
		var raw rawPayout
		if err := item.Decode(&raw); err != nil {
			d.logger.Warn("ledger document: skipping malformed payout", "line", item.Line, "error", err)
			continue
		}
		personID, p, err := raw.toPayout()
		if err != nil {
			d.logger.Warn("ledger document: skipping invalid payout", "line", item.Line, "person", raw.Person, "error", err)
			continue
		}
		_ = d.ledger.Record(personID, p, "")
	}
}

func (r rawPayout) toPayout() (string, Payout, error) {
	personID := strings.TrimSpace(r.Person)
	if personID == "" {
		return "", Payout{}, ErrEmptyPersonID
	}
	p := Payout{
		Reason:       r.Reason,
		Recruit:      r.Recruit || r.RecruitGranted,
		RecruitRole:  domain.Role(strings.TrimSpace(r.RecruitRole)),
		Heir:         r.Heir || r.HeirGranted,
		StolenUnit:   r.StolenUnit || r.StolenUnitGranted,
		StolenUnitID: strings.TrimSpace(r.StolenUnitID),
	}
	if p.Reason == "" {
		p.Reason = ReasonTurnover
	}
	switch {
	case r.WeightClassDelta != nil:
		p.WeightClassDelta = *r.WeightClassDelta
	case r.WeightClass != nil:
		p.WeightClassDelta = *r.WeightClass
	}
	switch {
	case r.Dependents != nil:
		p.Dependents = *r.Dependents
	case r.DependentsGained != nil:
		p.Dependents = *r.DependentsGained
	}
	if p.Dependents < 0 {
		return "", Payout{}, fmt.Errorf("dependents must not be negative: %d", p.Dependents)
	}
	cash := r.Cash
	if cash == "" {
		cash = r.PayoutAmount
	}
	if cash != "" {
		m, err := money.Parse(cash)
		if err != nil {
			return "", Payout{}, err
		}
		if m.IsNegative() {
			return "", Payout{}, fmt.Errorf("cash must not be negative: %s", m)
		}
		p.Cash = m
	}
	if !p.RecruitRole.Valid() {
		return "", Payout{}, fmt.Errorf("unknown recruit role %q", p.RecruitRole)
	}
	if !p.Recruit || p.RecruitRole == "" {
		p.RecruitRole = domain.RoleNone
	}
	return personID, p, nil
}

func (d *decoder) lastRollDate(n *yaml.Node) {
	value := strings.TrimSpace(n.Value)
	if n.Kind != yaml.ScalarNode || value == "" {
		return
	}
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			d.ledger.SetLastRollDate(t)
			return
		}
	}
	d.logger.Warn("ledger document: skipping unparsable last_roll_date", "value", value)
}

// dropDangling applies pending memberships, skipping persons with no payout.
func (d *decoder) dropDangling() {
	for _, entry := range d.memberships {
		for _, personID := range entry.Persons {
			personID = strings.TrimSpace(personID)
			p, ok := d.ledger.payouts[personID]
			if !ok {
				d.logger.Warn("ledger document: pending person has no payout; skipped",
					"contract", entry.Contract, "person", personID)
				continue
			}
			_ = d.ledger.Record(personID, p, entry.Contract)
		}
	}
}

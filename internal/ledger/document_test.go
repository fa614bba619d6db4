package ledger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"turnline/internal/domain"
	"turnline/internal/ledger"
	"turnline/internal/money"
)

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := seeded(t)
	must(t, l.Record("P5", ledger.Payout{
		Reason:       ledger.ReasonKilled,
		Dependents:   4,
		Recruit:      true,
		RecruitRole:  domain.RoleMekWarrior,
		StolenUnit:   true,
		StolenUnitID: "unit-1",
	}, "C2"))
	l.SetLastRollDate(time.Date(3025, 6, 1, 0, 0, 0, 0, time.UTC))

	data, err := ledger.Encode(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := ledger.Decode(data, nil)
	if err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	again, err := ledger.Encode(back)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatalf("round trip mismatch:\n%s\n---\n%s", data, again)
	}
	p, _ := back.Payout("P5")
	if p.RecruitRole != domain.RoleMekWarrior || p.StolenUnitID != "unit-1" || p.Reason != ledger.ReasonKilled {
		t.Fatalf("P5 = %+v", p)
	}
	if !back.LastRollDate().Equal(l.LastRollDate()) {
		t.Fatalf("last roll date = %v", back.LastRollDate())
	}
}

func TestDecodeToleratesLegacyAndMalformedEntries(t *testing.T) {
	doc := `
roll_required: [C9, {bad: entry}]
pending:
  - contract: C1
    persons: [P1, P2, ghost]
  - persons: [P1]
  - "not a mapping"
payouts:
  - person: P1
    payout_amount: "48,000.00 C-bills"
    dependents_gained: 2
  - person: P2
    cash: "1.234,50"
    stolen_unit_granted: true
  - person: P3
    cash: "lots"
  - person: ""
    cash: "10"
  - person: P4
    dependents: -1
  - person: P5
    recruit: true
    recruit_role: starship_captain
  - person: P6
    cash: "48.000 C-bills"
  - person: P7
    cash: "abc9xyz"
  - person: P8
    cash: "CB 12-34"
last_roll_date: 3025-01-15
surprise: true
`
	var logs bytes.Buffer
	l, err := ledger.Decode([]byte(doc), quietLogger(&logs))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := l.RollRequired(); !reflect.DeepEqual(got, []string{"C9"}) {
		t.Fatalf("roll_required = %v", got)
	}
	if got := l.Pending("C1"); !reflect.DeepEqual(got, []string{"P1", "P2"}) {
		t.Fatalf("pending C1 = %v", got)
	}
	if got := l.PayoutPersons(); !reflect.DeepEqual(got, []string{"P1", "P2", "P6"}) {
		t.Fatalf("payout persons = %v", got)
	}
	p1, _ := l.Payout("P1")
	if p1.Cash.String() != "48000.00" || p1.Dependents != 2 || p1.RecruitRole != domain.RoleNone {
		t.Fatalf("P1 = %+v", p1)
	}
	p2, _ := l.Payout("P2")
	if !p2.Cash.Equal(money.MustParse("1234.50")) || !p2.StolenUnit {
		t.Fatalf("P2 = %+v", p2)
	}
	if p6, _ := l.Payout("P6"); p6.Cash.String() != "48000.00" {
		t.Fatalf("P6 cash = %s, want 48000.00", p6.Cash)
	}
	if l.LastRollDate().Format("2006-01-02") != "3025-01-15" {
		t.Fatalf("last roll date = %v", l.LastRollDate())
	}
	for _, want := range []string{"skipping invalid payout", "pending person has no payout", "unknown field"} {
		if !strings.Contains(logs.String(), want) {
			t.Fatalf("expected log %q in:\n%s", want, logs.String())
		}
	}
	must(t, l.CheckInvariants())

	canonical, err := ledger.Encode(l)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(canonical), `cash: "48000.00"`) {
		t.Fatalf("canonical form missing normalized cash:\n%s", canonical)
	}
}

func TestDecodeUnreadableYieldsEmptyLedger(t *testing.T) {
	var logs bytes.Buffer
	for _, doc := range []string{"roll_required: [", "- just\n- a list\n", "42"} {
		l, err := ledger.Decode([]byte(doc), quietLogger(&logs))
		if !errors.Is(err, ledger.ErrUnreadable) {
			t.Fatalf("Decode(%q) error = %v, want ErrUnreadable", doc, err)
		}
		if l == nil || !l.IsEmpty() {
			t.Fatalf("Decode(%q) should return an empty ledger", doc)
		}
	}
	l, err := ledger.Decode(nil, nil)
	if err != nil || !l.IsEmpty() {
		t.Fatalf("empty document = %v, %v", l, err)
	}
}

func TestDecodeAcceptsJSON(t *testing.T) {
	doc := `{"roll_required":["C1"],"pending":[{"contract":"C2","persons":["P1"]}],"payouts":[{"person":"P1","cash":12.5}],"last_roll_date":"3025-02-01"}`
	l, err := ledger.Decode([]byte(doc), nil)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}
	p, ok := l.Payout("P1")
	if !ok || p.Cash.String() != "12.50" {
		t.Fatalf("P1 = %+v", p)
	}
	if !l.IsRollRequired("C1") || len(l.Pending("C2")) != 1 {
		t.Fatalf("json document not applied: %+v", l.Document())
	}
}

package db

import "testing"

func TestRebind(t *testing.T) {
	q := `UPDATE ledgers SET document=?, updated_at=? WHERE campaign_id=?`
	if got := Rebind(SQLite, q); got != q {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
	want := `UPDATE ledgers SET document=$1, updated_at=$2 WHERE campaign_id=$3`
	if got := Rebind(Postgres, q); got != want {
		t.Fatalf("postgres rebind = %s", got)
	}
}

func TestParseDialect(t *testing.T) {
	for raw, want := range map[string]Dialect{"": SQLite, "SQLite": SQLite, "postgres": Postgres, "pgx": Postgres} {
		got, err := ParseDialect(raw)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("mysql accepted")
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"turnline/internal/db"
	"turnline/internal/dice"
	"turnline/internal/engine"
	"turnline/internal/engine/auth"
	"turnline/internal/migrate"
	"turnline/internal/money"
	"turnline/internal/turnover"
)

const testSecret = "test-secret"

const testRoster = `
campaign:
  id: camp-1
  name: Gray Death
  date: 3025-06-01
  unit_rating: 2
contracts:
  - id: k1
    status: active
persons:
  - id: p1
    primary_role: tech
    experience: 3
    birth_date: 2995-01-01
    monthly_salary: "1000"
  - id: p2
    primary_role: aerospace_pilot
    experience: 2
    officer: true
    birth_date: 2998-01-01
    monthly_salary: "1500"
`

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, rolls ...int) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, db.SQLite)
	e.Dice = dice.NewSequence(rolls...)
	roster, err := engine.ParseRoster([]byte(testRoster))
	if err != nil {
		t.Fatalf("parse roster: %v", err)
	}
	if _, err := e.ImportRoster(context.Background(), roster, engine.ImportOptions{ActorID: "tester"}); err != nil {
		t.Fatalf("import roster: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, perms ...string) map[string]string {
	t.Helper()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "tester",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Permissions: perms,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns/camp-1/ledger", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous ledger: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns/camp-1/ledger", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized || !strings.Contains(string(body), "invalid_credentials") {
		t.Fatalf("bad token: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/turnover/roll", map[string]any{}, bearer(t, auth.LedgerRead))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("read-only roll: %d %s", res.StatusCode, body)
	}
}

func TestRollAssignAndSettle(t *testing.T) {
	// p1 rolls 12 and stays; p2 rolls 2, departs and takes a fighter on 9+1.
	srv, cleanup := newTestServer(t, 12, 2, 9)
	defer cleanup()
	client := srv.Client()
	write := bearer(t, auth.LedgerWrite)
	base := srv.URL + "/v0/campaigns/camp-1"

	res, body := doJSON(t, client, http.MethodGet, base+"/targets", nil, write)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("targets: %d %s", res.StatusCode, body)
	}
	var targets TargetsResponse
	if err := json.Unmarshal(body, &targets); err != nil {
		t.Fatalf("unmarshal targets: %v", err)
	}
	if len(targets.Targets) != 2 || targets.Targets[0].PersonID != "p1" || targets.Targets[0].Target != 6 {
		t.Fatalf("targets = %+v", targets)
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/contracts/k1/complete", map[string]any{"status": "success"}, write)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, base+"/turnover/roll", map[string]any{"contract_id": "k1"}, write)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("roll: %d %s", res.StatusCode, body)
	}
	var rolled turnover.RollResult
	if err := json.Unmarshal(body, &rolled); err != nil {
		t.Fatalf("unmarshal roll: %v", err)
	}
	if len(rolled.Departing) != 1 || rolled.Departing[0] != "p2" || len(rolled.Rolls) != 2 {
		t.Fatalf("roll = %+v", rolled)
	}

	res, body = doJSON(t, client, http.MethodPut, base+"/payouts/p2/stolen-unit", map[string]any{"unit_id": "fighter-3"}, write)
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("assign unit: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPut, base+"/payouts/p1/stolen-unit", map[string]any{"unit_id": "mech-1"}, write)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("assign unit without payout: %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/ledger", nil, bearer(t, auth.LedgerRead))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ledger: %d %s", res.StatusCode, body)
	}
	var ledgerResp LedgerResponse
	if err := json.Unmarshal(body, &ledgerResp); err != nil {
		t.Fatalf("unmarshal ledger: %v", err)
	}
	if len(ledgerResp.Ledger.Payouts) != 1 || ledgerResp.Ledger.Payouts[0].StolenUnitID != "fighter-3" {
		t.Fatalf("ledger = %+v", ledgerResp.Ledger)
	}
	if ledgerResp.Summary.StolenUnits != 1 || ledgerResp.ReviewDue {
		t.Fatalf("summary = %+v, review due %v", ledgerResp.Summary, ledgerResp.ReviewDue)
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/payouts/settle", map[string]any{"contract_id": "k1"}, write)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("settle: %d %s", res.StatusCode, body)
	}
	var settled SettleResponse
	if err := json.Unmarshal(body, &settled); err != nil {
		t.Fatalf("unmarshal settle: %v", err)
	}
	if len(settled.Settled) != 1 || !settled.Total.Equal(money.Zero()) || settled.Settled[0].TransactionID != "" {
		t.Fatalf("stolen unit settles without cash: %+v", settled)
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/events?type=payout.settled", nil, write)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, body)
	}
	var evts paginatedEvents
	if err := json.Unmarshal(body, &evts); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(evts.Items) != 1 || evts.Items[0].ActorID != "tester" {
		t.Fatalf("events = %+v", evts)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	write := bearer(t, "ledger.*")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/campaigns/missing/ledger", nil, write)
	if res.StatusCode != http.StatusNotFound || !strings.Contains(string(body), `"not_found"`) {
		t.Fatalf("unknown campaign: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/contracts/k1/complete", map[string]any{"status": "active"}, write)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("active outcome: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/ledger/resolve", map[string]any{}, write)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("resolve without target: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/ledger/resolve", map[string]any{"contract_id": "k1"}, write)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, body)
	}
	var resolved ResolveResponse
	if err := json.Unmarshal(body, &resolved); err != nil || resolved.Count != 0 || resolved.Cleared == nil {
		t.Fatalf("resolve = %+v, %v", resolved, err)
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/campaigns/camp-1/ledger/reconcile", nil, write)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"removed":0`) {
		t.Fatalf("reconcile: %d %s", res.StatusCode, body)
	}
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter([]string{" ", ""})
	if !all.match("anything") {
		t.Fatalf("blank filter should match everything")
	}
	only := newEventFilter([]string{"payout.settled"})
	if !only.match("payout.settled") || only.match("turnover.rolled") {
		t.Fatalf("filter mismatch")
	}
}

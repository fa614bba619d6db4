package turnlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Turnline HTTP API client.
type Client struct {
	BaseURL     string
	CampaignID  string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, campaignID string) *Client {
	return &Client{
		BaseURL:    baseURL,
		CampaignID: campaignID,
		Timeout:    10 * time.Second,
	}
}

// Payout is what a departing person is owed. Cash is a decimal string.
type Payout struct {
	Person           string `json:"person,omitempty"`
	Reason           string `json:"reason"`
	WeightClassDelta int    `json:"weight_class_delta"`
	Dependents       int    `json:"dependents"`
	Cash             string `json:"cash"`
	Recruit          bool   `json:"recruit"`
	RecruitRole      string `json:"recruit_role"`
	Heir             bool   `json:"heir"`
	StolenUnit       bool   `json:"stolen_unit"`
	StolenUnitID     string `json:"stolen_unit_id,omitempty"`
}

type PendingEntry struct {
	Contract string   `json:"contract"`
	Persons  []string `json:"persons"`
}

// Ledger is the unresolved turnover ledger of a campaign.
type Ledger struct {
	CampaignID string `json:"campaign_id"`
	ReviewDue  bool   `json:"review_due"`
	Summary    struct {
		RollRequired int    `json:"roll_required"`
		Pending      int    `json:"pending_contracts"`
		Payouts      int    `json:"payouts"`
		Cash         string `json:"cash"`
		StolenUnits  int    `json:"stolen_units"`
	} `json:"summary"`
	Ledger struct {
		RollRequired []string       `json:"roll_required"`
		Pending      []PendingEntry `json:"pending"`
		Payouts      []Payout       `json:"payouts"`
		LastRollDate string         `json:"last_roll_date,omitempty"`
	} `json:"ledger"`
}

type Modifier struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

type Target struct {
	PersonID    string     `json:"person_id"`
	Target      int        `json:"target"`
	Base        int        `json:"base"`
	Modifiers   []Modifier `json:"modifiers"`
	Description string     `json:"description"`
}

type RollOutcome struct {
	PersonID string `json:"person_id"`
	Target   int    `json:"target"`
	Roll     int    `json:"roll"`
	Departs  bool   `json:"departs"`
}

type RollResult struct {
	Departing []string      `json:"departing"`
	Rolls     []RollOutcome `json:"rolls"`
}

type ResolveResult struct {
	Cleared []string `json:"cleared"`
	Count   int      `json:"count"`
}

type ReconcileResult struct {
	Payouts []string            `json:"payouts"`
	Pending map[string][]string `json:"pending"`
	Removed int                 `json:"removed"`
}

type Settlement struct {
	PersonID      string `json:"person_id"`
	Payout        Payout `json:"payout"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type SettleResult struct {
	Settled []Settlement `json:"settled"`
	Total   string       `json:"total"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	CampaignID string         `json:"campaign_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Ledger returns the campaign's unresolved ledger.
func (c *Client) Ledger(ctx context.Context) (Ledger, error) {
	var resp Ledger
	err := c.do(ctx, http.MethodGet, c.campaignPath("ledger"), nil, &resp)
	return resp, err
}

// Targets returns the current target numbers, for the conclusion of
// contractID when it is set.
func (c *Client) Targets(ctx context.Context, contractID string) ([]Target, error) {
	endpoint := c.campaignPath("targets")
	if contractID != "" {
		endpoint += "?contract_id=" + url.QueryEscape(contractID)
	}
	var resp struct {
		Targets []Target `json:"targets"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Targets, err
}

// CompleteContract records a contract outcome.
func (c *Client) CompleteContract(ctx context.Context, contractID, status string) error {
	endpoint := c.campaignPath(fmt.Sprintf("contracts/%s/complete", url.PathEscape(contractID)))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"status": status}, nil)
}

// Roll performs a turnover roll; an empty contractID is a periodic review.
func (c *Client) Roll(ctx context.Context, contractID string) (RollResult, error) {
	body := map[string]any{}
	if contractID != "" {
		body["contract_id"] = contractID
	}
	var resp RollResult
	err := c.do(ctx, http.MethodPost, c.campaignPath("turnover/roll"), body, &resp)
	return resp, err
}

// ResolveContract clears the payouts pending on one contract.
func (c *Client) ResolveContract(ctx context.Context, contractID string) (ResolveResult, error) {
	var resp ResolveResult
	err := c.do(ctx, http.MethodPost, c.campaignPath("ledger/resolve"), map[string]any{"contract_id": contractID}, &resp)
	return resp, err
}

// ResolveAll clears the whole ledger.
func (c *Client) ResolveAll(ctx context.Context) (ResolveResult, error) {
	var resp ResolveResult
	err := c.do(ctx, http.MethodPost, c.campaignPath("ledger/resolve"), map[string]any{"all": true}, &resp)
	return resp, err
}

// Reconcile drops ledger entries of persons no longer on the roster.
func (c *Client) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var resp ReconcileResult
	err := c.do(ctx, http.MethodPost, c.campaignPath("ledger/reconcile"), nil, &resp)
	return resp, err
}

// Settle pays and clears payouts, of one contract or all of them.
func (c *Client) Settle(ctx context.Context, contractID string) (SettleResult, error) {
	body := map[string]any{}
	if contractID != "" {
		body["contract_id"] = contractID
	}
	var resp SettleResult
	err := c.do(ctx, http.MethodPost, c.campaignPath("payouts/settle"), body, &resp)
	return resp, err
}

// AssignStolenUnit records the unit a departing pilot takes.
func (c *Client) AssignStolenUnit(ctx context.Context, personID, unitID string) error {
	endpoint := c.campaignPath(fmt.Sprintf("payouts/%s/stolen-unit", url.PathEscape(personID)))
	return c.do(ctx, http.MethodPut, endpoint, map[string]any{"unit_id": unitID}, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns events after the cursor in ascending order, or the most
// recent events when the cursor is empty.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("after", cursor)
	}
	endpoint := c.campaignPath("events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) campaignPath(p string) string {
	campaign := url.PathEscape(c.CampaignID)
	return fmt.Sprintf("v0/campaigns/%s/%s", campaign, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

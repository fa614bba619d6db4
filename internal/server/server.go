package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"turnline/internal/domain"
	"turnline/internal/engine"
	"turnline/internal/engine/auth"
	"turnline/internal/repo"
	"turnline/internal/turnover"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"campaign c1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the turnover ledger API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Request validation errors are plain bad requests.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Turnline API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, logger: logger}
	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	h.registerCampaigns(group)
	h.registerTurnover(group)
	h.registerLedger(group)
	h.registerPayouts(group)
	h.registerEvents(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

type handlers struct {
	engine engine.Engine
	logger *slog.Logger
}

func (h handlers) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidInput) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	h.logger.Error("request failed", "error", err)
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Type: huma.TypeObject}},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Turnline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Roles:       nonNilSlice(principal.Roles),
			Permissions: nonNilSlice(principal.Permissions),
			Source:      principal.Source,
		}}, nil
	})
}

type campaignPath struct {
	CampaignID string `path:"campaign_id"`
}

func (h handlers) registerCampaigns(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CampaignResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerRead); err != nil {
			return nil, h.handleError(err)
		}
		items, err := h.engine.Repo.ListCampaigns(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		out := make([]CampaignResponse, 0, len(items))
		for _, c := range items {
			out = append(out, campaignResponse(c))
		}
		return &struct {
			Body []CampaignResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-contract",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/contracts/{contract_id}/complete",
		Summary:     "Record a contract outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ContractID string `path:"contract_id"`
		Body       CompleteContractRequest
	}) (*struct{}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := h.engine.CompleteContract(ctx, input.CampaignID, input.ContractID, domain.ContractStatus(input.Body.Status), actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerTurnover(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-targets",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/targets",
		Summary:     "Turnover target numbers",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		ContractID string `query:"contract_id"`
	}) (*struct {
		Body TargetsResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerRead); err != nil {
			return nil, h.handleError(err)
		}
		res, err := h.engine.Targets(ctx, input.CampaignID, input.ContractID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TargetsResponse `json:"body"`
		}{Body: targetsResponse(input.CampaignID, res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "roll-turnover",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/turnover/roll",
		Summary:     "Roll turnover and record departures",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Body       RollRequest
	}) (*struct {
		Body turnover.RollResult `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.engine.Roll(ctx, engine.RollOptions{
			CampaignID: input.CampaignID,
			ContractID: input.Body.ContractID,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body turnover.RollResult `json:"body"`
		}{Body: res}, nil
	})
}

func (h handlers) registerLedger(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-ledger",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/ledger",
		Summary:     "Unresolved turnover ledger",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body LedgerResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerRead); err != nil {
			return nil, h.handleError(err)
		}
		l, err := h.engine.Ledger(ctx, input.CampaignID)
		if err != nil {
			return nil, h.handleError(err)
		}
		due, err := h.engine.ReviewDue(ctx, input.CampaignID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body LedgerResponse `json:"body"`
		}{Body: LedgerResponse{
			CampaignID: input.CampaignID,
			ReviewDue:  due,
			Summary:    l.Summary(),
			Ledger:     l.Document(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-ledger",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/ledger/resolve",
		Summary:     "Resolve a contract or the whole ledger",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Body       ResolveRequest
	}) (*struct {
		Body ResolveResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var out ResolveResponse
		switch {
		case input.Body.All && input.Body.ContractID != "":
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "contract_id and all are exclusive", nil)
		case input.Body.All:
			n, err := h.engine.ResolveAll(ctx, input.CampaignID, actorID)
			if err != nil {
				return nil, h.handleError(err)
			}
			out = ResolveResponse{Cleared: []string{}, Count: n}
		case input.Body.ContractID != "":
			cleared, err := h.engine.ResolveContract(ctx, input.CampaignID, input.Body.ContractID, actorID)
			if err != nil {
				return nil, h.handleError(err)
			}
			out = ResolveResponse{Cleared: nonNilSlice(cleared), Count: len(cleared)}
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "contract_id or all is required", nil)
		}
		return &struct {
			Body ResolveResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-ledger",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/ledger/reconcile",
		Summary:     "Drop entries of persons no longer on the roster",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body reconcileResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := h.engine.Reconcile(ctx, input.CampaignID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body reconcileResponse `json:"body"`
		}{Body: reconcileResponse{
			Payouts: nonNilSlice(report.Payouts),
			Pending: report.Pending,
			Removed: report.Removed(),
		}}, nil
	})
}

type reconcileResponse struct {
	Payouts []string            `json:"payouts"`
	Pending map[string][]string `json:"pending"`
	Removed int                 `json:"removed"`
}

func (h handlers) registerPayouts(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "settle-payouts",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/payouts/settle",
		Summary:     "Pay and clear payouts",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Body       SettleRequest
	}) (*struct {
		Body SettleResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.engine.Settle(ctx, engine.SettleOptions{
			CampaignID: input.CampaignID,
			ContractID: input.Body.ContractID,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SettleResponse `json:"body"`
		}{Body: settleResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-stolen-unit",
		Method:      http.MethodPut,
		Path:        "/campaigns/{campaign_id}/payouts/{person_id}/stolen-unit",
		Summary:     "Record the unit a departing pilot takes",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		PersonID   string `path:"person_id"`
		Body       StolenUnitRequest
	}) (*struct{}, error) {
		if err := requirePermission(ctx, auth.LedgerWrite); err != nil {
			return nil, h.handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.AssignStolenUnit(ctx, input.CampaignID, input.PersonID, input.Body.UnitID, actorID); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" default:"50"`
		After      string `query:"after" doc:"Return events after this id in ascending order"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, auth.LedgerRead); err != nil {
			return nil, h.handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var (
			items []domain.Event
			err   error
		)
		if input.After != "" {
			cursor, perr := strconv.ParseInt(input.After, 10, 64)
			if perr != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"after": input.After})
			}
			items, err = h.engine.Repo.EventsAfter(ctx, limit+1, cursor, input.CampaignID)
		} else {
			items, err = h.engine.Repo.LatestEvents(ctx, limit+1, input.CampaignID, input.Type)
		}
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			if input.After != "" {
				resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			}
		}
		for _, evt := range items {
			if input.Type != "" && evt.Type != input.Type {
				continue
			}
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

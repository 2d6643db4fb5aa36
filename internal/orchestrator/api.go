package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/nightwatch/internal/authmw"
	"github.com/linnemanlabs/nightwatch/internal/toolexec"
)

// API exposes session status, registered-service health, and tool
// invocation over HTTP, mirroring vigil's internal/alertapi route
// registration pattern. Health and session-status routes are read-only
// and unguarded; the tool-invocation route causes motion and is guarded
// by authmw's bearer middleware.
type API struct {
	logger log.Logger
	orch   *Orchestrator
	token  string
}

// NewAPI creates an API bound to orch. token, if non-empty, guards the
// mutating tool-invocation route with authmw.BearerToken.
func NewAPI(logger log.Logger, orch *Orchestrator, token string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if orch == nil {
		panic(xerrors.New("orchestrator is required"))
	}
	return &API{logger: logger, orch: orch, token: token}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/session", a.handleSession)
		r.Group(func(r chi.Router) {
			if a.token != "" {
				r.Use(authmw.BearerToken(a.token))
			}
			r.Post("/tools/{name}", a.handleInvokeTool)
		})
	})
}

type healthService struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Required  bool   `json:"required"`
	LastError string `json:"last_error,omitempty"`
}

type healthResponse struct {
	Healthy  bool            `json:"healthy"`
	Services []healthService `json:"services"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	entries := a.orch.Registry.List()

	resp := healthResponse{
		Healthy:  a.orch.Registry.AllRequiredRunning(),
		Services: make([]healthService, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Services = append(resp.Services, healthService{
			Name:      e.Name,
			Status:    string(e.Status),
			Required:  e.Required,
			LastError: e.LastError,
		})
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Bool("nightwatch.health.healthy", resp.Healthy))

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	cur := a.orch.Sessions.Current()
	if cur == nil {
		http.Error(w, `{"error":"no session in progress"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cur)
}

type invokeToolRequest map[string]any

func (a *API) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("nightwatch.tool.name", name))

	var params invokeToolRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
			return
		}
	}

	result := a.orch.ExecuteTool(r.Context(), name, params)

	span.SetAttributes(attribute.String("nightwatch.tool.status", string(result.Status)))

	status := statusToHTTP(result.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

func statusToHTTP(s toolexec.Status) int {
	switch s {
	case toolexec.StatusSuccess:
		return http.StatusOK
	case toolexec.StatusNotFound:
		return http.StatusNotFound
	case toolexec.StatusInvalidParams:
		return http.StatusBadRequest
	case toolexec.StatusVetoed:
		return http.StatusConflict
	case toolexec.StatusTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Package apihttp exposes the supervisory surface: coordinator status,
// manual overrides and run-history downloads. Handlers follow one
// struct per route with a ServeHTTP method; auth and RBAC are applied
// by the wrapping middleware.
package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"waterscada/internal/history"
	"waterscada/internal/report"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/scada"
)

// StatusSource yields a point-in-time coordinator status.
type StatusSource interface {
	Status() scada.Status
}

// StatusHandler serves the coordinator status snapshot.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// ServeHTTP handles GET /api/v1/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.source.Status())
}

// OverridesHandler manages operator overrides on the manual policy.
type OverridesHandler struct {
	policy *scada.ManualPolicy
	cfg    *runtimecfg.RuntimeConfig
}

// NewOverridesHandler constructs an OverridesHandler.
func NewOverridesHandler(policy *scada.ManualPolicy, cfg *runtimecfg.RuntimeConfig) *OverridesHandler {
	return &OverridesHandler{policy: policy, cfg: cfg}
}

type overrideRequest struct {
	AgentID string `json:"agent_id"`
	Action  string `json:"action"`
}

// ServeHTTP handles /api/v1/overrides: GET lists active overrides, POST
// sets one, DELETE clears one.
func (h *OverridesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.policy == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		forced := h.policy.Evaluate(0)
		sort.Slice(forced, func(i, j int) bool { return forced[i].AgentID < forced[j].AgentID })
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(forced)
	case http.MethodPost:
		var body overrideRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if err := h.validate(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.policy.Set(body.AgentID, body.Action)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		agentID := r.URL.Query().Get("agent_id")
		if agentID == "" {
			http.Error(w, "agent_id is required", http.StatusBadRequest)
			return
		}
		h.policy.Clear(agentID)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *OverridesHandler) validate(body overrideRequest) error {
	if body.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if body.Action == "" {
		return errors.New("action is required")
	}
	if h.cfg != nil {
		agent := h.cfg.AgentByID(body.AgentID)
		if agent == nil {
			return errors.New("unknown agent")
		}
		if agent.Role != runtimecfg.RoleActuator {
			return errors.New("agent is not an actuator")
		}
	}
	return nil
}

// RunsHandler serves run history and its exports:
//
//	GET /api/v1/runs/{id}            JSON step records
//	GET /api/v1/runs/{id}/export.xlsx
//	GET /api/v1/runs/{id}/export.pdf
type RunsHandler struct {
	reader history.Reader
}

// NewRunsHandler constructs a RunsHandler.
func NewRunsHandler(reader history.Reader) *RunsHandler {
	return &RunsHandler{reader: reader}
}

// ServeHTTP dispatches on the path below /api/v1/runs/.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if rest == "" || rest == r.URL.Path {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}
	runID, format := rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		runID, format = rest[:i], rest[i+1:]
	}
	if runID == "" {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}

	records, err := h.reader.ListByRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "query run error", http.StatusInternalServerError)
		return
	}

	switch format {
	case "":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	case "export.xlsx":
		out, err := report.BuildRunXLSX(runID, records)
		if err != nil {
			http.Error(w, "build export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="run-`+runID+`.xlsx"`)
		_, _ = w.Write(out)
	case "export.pdf":
		out, err := report.BuildRunPDF(runID, records)
		if err != nil {
			http.Error(w, "build export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="run-`+runID+`.pdf"`)
		_, _ = w.Write(out)
	default:
		http.Error(w, "unknown export format", http.StatusNotFound)
	}
}

// Package dashboards exposes dashboard sessions over HTTP.
package dashboards

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"crossfilter/internal/core"
)

// Service is the dashboard runtime used by the handler.
type Service interface {
	Dashboard() (*core.Dashboard, error)
	CreateSession(ctx context.Context) (*core.Session, error)
	Session(id string) (*core.Session, error)
	CloseSession(ctx context.Context, id string) error
	Interact(ctx context.Context, sessionID, controlID string, value core.FilterRange) (core.SyncResult, error)
	Render(ctx context.Context, sessionID, componentID string) (core.ChartArtifact, error)
}

// Handler provides HTTP access to the dashboard, its sessions and exports.
type Handler struct {
	Service Service
	Exports ExportScheduler
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewHandler constructs a dashboard HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{Service: svc}
}

const (
	sessionsPrefix = "/api/v1/sessions"
	exportsPrefix  = "/api/v1/exports/"
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "dashboard service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/metrics":
		if h.Metrics == nil {
			http.NotFound(w, r)
			return
		}
		h.Metrics.ServeHTTP(w, r)
	case path == "/api/v1/dashboard":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleDashboard(w)
	case path == sessionsPrefix:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCreateSession(w, r)
	case strings.HasPrefix(path, sessionsPrefix+"/"):
		h.handleSession(w, r, strings.TrimPrefix(path, sessionsPrefix+"/"))
	case strings.HasPrefix(path, exportsPrefix):
		h.handleExport(w, r, strings.TrimPrefix(path, exportsPrefix))
	default:
		http.NotFound(w, r)
	}
}

type dashboardResponse struct {
	Title    string                   `json:"title"`
	Dataset  string                   `json:"dataset"`
	Bounds   core.FilterRange         `json:"bounds"`
	Pages    []core.Page              `json:"pages"`
	Controls []core.ControlDescriptor `json:"controls"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter) {
	d, err := h.Service.Dashboard()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{
		Title:    d.Title(),
		Dataset:  d.Dataset().Name(),
		Bounds:   d.Bounds(),
		Pages:    d.Pages(),
		Controls: d.Controls(),
	})
}

type sessionView struct {
	ID      string            `json:"id"`
	Filter  *core.FilterRange `json:"filter,omitempty"`
	Widgets map[string]string `json:"widgets"`
}

func newSessionView(s *core.Session) sessionView {
	view := sessionView{ID: s.ID(), Widgets: make(map[string]string)}
	if v, ok := s.Filter(); ok {
		view.Filter = v.Ptr()
	}
	for _, widget := range s.Engine().Widgets() {
		view.Widgets[widget.ID()] = widget.Current().String()
	}
	return view
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Service.CreateSession(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": newSessionView(sess)})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(segments) == 1:
		switch r.Method {
		case http.MethodGet:
			sess, err := h.Service.Session(id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"session": newSessionView(sess)})
		case http.MethodDelete:
			if err := h.Service.CloseSession(r.Context(), id); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(segments) == 2 && segments[1] == "filter":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		sess, err := h.Service.Session(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		value, ok := sess.Filter()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"initialized": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"initialized": true, "filter": value})
	case len(segments) == 3 && segments[1] == "controls":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleInteract(w, r, id, segments[2])
	case len(segments) == 3 && segments[1] == "components":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleRender(w, r, id, segments[2])
	case len(segments) == 2 && segments[1] == "exports":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleExportCreate(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type interactRequest struct {
	Value *core.FilterRange `json:"value"`
}

type renderView struct {
	Widget    string              `json:"widget"`
	Component string              `json:"component"`
	Artifact  *core.ChartArtifact `json:"artifact,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type interactResponse struct {
	Value        core.FilterRange `json:"value"`
	StoreChanged bool             `json:"store_changed"`
	Clamped      []string         `json:"clamped,omitempty"`
	Changed      []string         `json:"changed,omitempty"`
	Applied      []string         `json:"applied,omitempty"`
	Renders      []renderView     `json:"renders,omitempty"`
}

func newInteractResponse(result core.SyncResult) interactResponse {
	resp := interactResponse{
		Value:        result.Value,
		StoreChanged: result.StoreChanged,
		Clamped:      result.Clamped,
		Changed:      result.Changed,
		Applied:      result.Applied,
	}
	for _, render := range result.Renders {
		view := renderView{Widget: render.WidgetID, Component: render.ComponentID}
		if render.Err != nil {
			view.Error = render.Err.Error()
		} else {
			artifact := render.Artifact
			view.Artifact = &artifact
		}
		resp.Renders = append(resp.Renders, view)
	}
	return resp
}

func (h *Handler) handleInteract(w http.ResponseWriter, r *http.Request, sessionID, controlID string) {
	var req interactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, core.ErrOutOfRange) {
			writeServiceError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	result, err := h.Service.Interact(r.Context(), sessionID, controlID, *req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInteractResponse(result))
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request, sessionID, componentID string) {
	format := FormatJSON
	if raw := r.URL.Query().Get("format"); raw != "" {
		parsed, err := ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = parsed
	}
	artifact, err := h.Service.Render(r.Context(), sessionID, componentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	switch format {
	case FormatCSV:
		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		_ = writeArtifactCSV(w, artifact)
	case FormatHTML:
		w.Header().Set("Content-Type", format.ContentType())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buildHTML(artifact))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"artifact": artifact})
	}
}

type exportRequest struct {
	Component   string   `json:"component"`
	Formats     []string `json:"formats"`
	RequestedBy string   `json:"requested_by"`
	Reason      string   `json:"reason"`
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request, sessionID string) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	formats := make([]ExportFormat, 0, len(req.Formats))
	for _, raw := range req.Formats {
		format, err := ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}
	record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{
		SessionID:   sessionID,
		ComponentID: req.Component,
		Formats:     formats,
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	if h.Exports == nil || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var notFound core.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrDataUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

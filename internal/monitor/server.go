// Package monitor exposes the gesture manager over HTTP: JSON state for
// tooling, debug charts for people.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gesture.arbiter/internal/db"
	"github.com/banshee-data/gesture.arbiter/internal/gesture"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/progress"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/samplecache"
	"github.com/banshee-data/gesture.arbiter/internal/gesture/stats"
	"github.com/banshee-data/gesture.arbiter/internal/httputil"
	"github.com/banshee-data/gesture.arbiter/internal/monitoring"
)

// Controller is the slice of the session manager the monitor needs.
type Controller interface {
	Mode() gesture.Mode
	Targets() []gesture.Label
	Profile() gesture.Profile
	SetMode(ctx context.Context, mode gesture.Mode) error
	SetTarget(ctx context.Context, targets []gesture.Label) error
	SetDeveloperDefinedTarget(ctx context.Context, names []string) error
	SetClassifier(ctx context.Context, name, sub string) error
	UpdateGestureStat(ctx context.Context, force bool) error
	Stats() *stats.Store
	Progress() *progress.State
	Cache() *samplecache.Cache
}

// IdentificationLog lists recent arbitration decisions.
type IdentificationLog interface {
	RecentIdentifications(ctx context.Context, limit int) ([]db.Identification, error)
}

type Server struct {
	ctrl Controller
	idl  IdentificationLog
	log  monitoring.Logger
}

// NewServer returns a Server. idl may be nil.
func NewServer(ctrl Controller, idl IdentificationLog) *Server {
	return &Server{ctrl: ctrl, idl: idl, log: monitoring.Tagged("monitor")}
}

// AttachRoutes mounts the JSON API.
func (s *Server) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/gesture/stats", s.handleStats)
	mux.HandleFunc("/api/gesture/stats/update", s.handleUpdateStats)
	mux.HandleFunc("/api/gesture/progress", s.handleProgress)
	mux.HandleFunc("/api/gesture/session", s.handleSession)
	mux.HandleFunc("/api/gesture/identifications", s.handleIdentifications)
}

// AttachAdminRoutes mounts the debug pages.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("gesture-stats", "Per-label recognizer error and confidence chart", s.handleStatsChart)
	debug.HandleFunc("sample-trace.png", "Angular velocity trace of a cached sample (?id=)", s.handleSampleTrace)
}

type statsResponse struct {
	Rows    []stats.Row            `json:"rows"`
	Summary []stats.ProfileSummary `json:"summary"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeStats(w)
}

func (s *Server) writeStats(w http.ResponseWriter) {
	st := s.ctrl.Stats()
	resp := statsResponse{Rows: st.Snapshot(), Summary: st.Summary()}
	if resp.Rows == nil {
		resp.Rows = []stats.Row{}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := s.ctrl.UpdateGestureStat(r.Context(), force); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeStats(w)
}

type progressResponse struct {
	*progress.State
	Total int64 `json:"total"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	st := s.ctrl.Progress()
	httputil.WriteJSON(w, http.StatusOK, progressResponse{State: st, Total: st.Total()})
}

type sessionRequest struct {
	Mode          *string  `json:"mode"`
	Targets       []int    `json:"targets"`
	Named         []string `json:"named_targets"`
	Classifier    *string  `json:"classifier"`
	SubClassifier string   `json:"sub_classifier"`
}

type sessionResponse struct {
	Mode       string   `json:"mode"`
	Targets    []string `json:"targets"`
	Classifier string   `json:"classifier"`
	Cached     int      `json:"cached_samples"`
}

// handleSession reports the session and, on POST, applies a JSON
// sessionRequest. Fields left out are unchanged.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req sessionRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.applySession(r.Context(), req); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	resp := sessionResponse{
		Mode:       s.ctrl.Mode().String(),
		Targets:    []string{},
		Classifier: s.ctrl.Profile().Path(),
		Cached:     s.ctrl.Cache().Len(),
	}
	for _, t := range s.ctrl.Targets() {
		resp.Targets = append(resp.Targets, t.String())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) applySession(ctx context.Context, req sessionRequest) error {
	if req.Targets != nil {
		targets := make([]gesture.Label, len(req.Targets))
		for i, t := range req.Targets {
			targets[i] = gesture.Indexed(t)
		}
		if err := s.ctrl.SetTarget(ctx, targets); err != nil {
			return err
		}
	}
	// named targets first so a pending session closes under its own profile
	if req.Named != nil {
		if err := s.ctrl.SetDeveloperDefinedTarget(ctx, req.Named); err != nil {
			return err
		}
	}
	if req.Classifier != nil {
		if err := s.ctrl.SetClassifier(ctx, *req.Classifier, req.SubClassifier); err != nil {
			return err
		}
	}
	if req.Mode != nil {
		mode, ok := gesture.ParseMode(*req.Mode)
		if !ok {
			return fmt.Errorf("unknown mode %q; use names joined by |, e.g. %s", *req.Mode,
				gesture.ModeSmartIdentify|gesture.ModeSmartTrain)
		}
		if err := s.ctrl.SetMode(ctx, mode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleIdentifications(w http.ResponseWriter, r *http.Request) {
	if s.idl == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "identification log not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.idl.RecentIdentifications(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []db.Identification{}
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

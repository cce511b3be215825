package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
)

// AnalysisService is the part of application.AnalysisService served over HTTP.
type AnalysisService interface {
	Info(ctx context.Context) (domain.Analysis, error)
	ComputeGroupAsync(ctx context.Context, dims domain.Dimensions, force bool) (domain.GroupState, error)
	GroupStates() []domain.GroupState
	GetGroup(ctx context.Context, id uint) (domain.Group, domain.GroupGraph, error)
}

type Handler struct {
	service AnalysisService
	logger  logrus.FieldLogger
}

func NewRouter(service AnalysisService, logger logrus.FieldLogger) http.Handler {
	h := &Handler{service: service, logger: logger}
	r := chi.NewRouter()
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/analysis", h.handleAPIAnalysis)
		api.Get("/dimensions", h.handleAPIDimensions)
		api.Get("/groups", h.handleAPIListGroups)
		api.Post("/groups", h.handleAPIComputeGroup)
		api.Get("/groups/{id}", h.handleAPIGetGroup)
	})

	return r
}

type apiAnalysisResponse struct {
	domain.Analysis
	UnknownURLs int64 `json:"unknown_urls"`
}

func (h *Handler) handleAPIAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := h.service.Info(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiAnalysisResponse{Analysis: analysis, UnknownURLs: analysis.UnknownURLs()})
}

func (h *Handler) handleAPIDimensions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dimensions": domain.DimensionNames(),
		"follow":     []domain.FollowFilter{domain.FollowAny, domain.FollowOnly, domain.FollowNoFollow},
	})
}

func (h *Handler) handleAPIListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GroupStates())
}

type apiComputeGroupRequest struct {
	GroupBy1 string `json:"group_by1"`
	GroupBy2 string `json:"group_by2"`
	Follow   string `json:"follow"`
	Force    bool   `json:"force"`
}

func (h *Handler) handleAPIComputeGroup(w http.ResponseWriter, r *http.Request) {
	var req apiComputeGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	dims := domain.Dimensions{GroupBy1: req.GroupBy1, GroupBy2: req.GroupBy2, Follow: domain.FollowFilter(req.Follow)}
	state, err := h.service.ComputeGroupAsync(r.Context(), dims, req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if state.Status == domain.GroupSuccess {
		status = http.StatusOK
	}
	writeJSON(w, status, state)
}

type apiGroupResponse struct {
	Group domain.Group       `json:"group"`
	Nodes []domain.GroupNode `json:"nodes"`
	Links []domain.GroupLink `json:"links"`
}

func (h *Handler) handleAPIGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid group id"})
		return
	}
	group, graph, err := h.service.GetGroup(r.Context(), uint(id))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiGroupResponse{Group: group, Nodes: graph.Nodes, Links: graph.Links})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnknownDimension):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGroupComputing), errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

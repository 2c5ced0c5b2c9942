// Package httpapi mounts the HTTP surface: websocket upgrade, health, match
// listings, admin abort and the results archive.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tetris-lite/apps/server/internal/lobby"
	"tetris-lite/apps/server/internal/match"
	"tetris-lite/apps/server/internal/results"
)

const storeTimeout = 5 * time.Second

type Options struct {
	Lobby *lobby.Lobby
	Store results.Store
	// WebSocket serves /ws. Nil leaves the route unmounted.
	WebSocket http.HandlerFunc
	// AdminToken guards the abort route. Empty disables it.
	AdminToken string
	Logger     *zap.Logger
}

type handler struct {
	lobby      *lobby.Lobby
	store      results.Store
	adminToken string
	log        *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{
		lobby:      opts.Lobby,
		store:      opts.Store,
		adminToken: opts.AdminToken,
		log:        logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/health", h.health)
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket)
	}
	r.Route("/matches", func(r chi.Router) {
		r.Get("/", h.listMatches)
		r.Post("/", h.createMatch)
		r.Get("/{id}", h.getMatch)
		r.With(h.requireAdmin).Post("/{id}/abort", h.abortMatch)
	})
	r.Route("/results", func(r chi.Router) {
		r.Get("/", h.recentResults)
		r.Get("/{id}", h.getResult)
	})
	return r
}

func (h *handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin routes disabled")
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) listMatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": h.lobby.List(),
	})
}

func (h *handler) createMatch(w http.ResponseWriter, _ *http.Request) {
	m, err := h.lobby.Create()
	if err != nil {
		if errors.Is(err, lobby.ErrShutdown) {
			writeError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		h.log.Error("create match", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create match failed")
		return
	}
	writeJSON(w, http.StatusCreated, m.Info())
}

func (h *handler) getMatch(w http.ResponseWriter, r *http.Request) {
	m := h.lobby.Get(chi.URLParam(r, "id"))
	if m == nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, m.Info())
}

func (h *handler) abortMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req := abortRequest{Reason: "admin"}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	err := h.lobby.Abort(id, strings.TrimSpace(req.Reason))
	var de *match.DeclineError
	switch {
	case errors.As(err, &de):
		writeError(w, http.StatusNotFound, "match not found")
	case errors.Is(err, match.ErrMatchClosed):
		writeError(w, http.StatusConflict, "match already closed")
	case err != nil:
		h.log.Error("abort match", zap.String("match", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "abort failed")
	default:
		h.log.Info("match aborted", zap.String("match", id), zap.String("reason", req.Reason))
		if m := h.lobby.Get(id); m != nil {
			writeJSON(w, http.StatusOK, m.Info())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

func (h *handler) recentResults(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	items, err := h.store.Recent(ctx, limit)
	if err != nil {
		h.log.Error("query recent results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query recent results failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
	})
}

func (h *handler) getResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	s, err := h.store.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, results.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		h.log.Error("query result", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query result failed")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

func bearerToken(raw string) string {
	const prefix = "Bearer "
	if len(raw) < len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(prefix):])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

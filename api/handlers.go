package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seenimoa/stockdash/internal/dashboard"
	"github.com/seenimoa/stockdash/internal/stockapi"
	"github.com/seenimoa/stockdash/pkg/utils"
)

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
}

// HealthStatus is the payload of /health.
type HealthStatus struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	MarketStatus string `json:"market_status"`
	TimeIST      string `json:"time_ist"`
	Upstream     string `json:"upstream"`
	Sessions     int    `json:"sessions"`
	WSClients    int    `json:"ws_clients"`
}

// ============================================================
// Dashboard page
// ============================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	view := dashboard.Render(sess.Ctrl.State())

	var buf bytes.Buffer
	if err := s.page.ExecuteTemplate(&buf, "dashboard.html", view); err != nil {
		s.log.Error("render dashboard", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// handleSearchForm serves the search form. Button and Enter key both post
// here. The search keeps running after the redirect if it is slow; the page
// picks up the result over the WebSocket.
func (s *Server) handleSearchForm(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	q := r.PostForm.Get("q")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Ctrl.SearchFor(s.bgCtx, q)
	}()

	select {
	case <-done:
	case <-time.After(s.formWait):
	case <-r.Context().Done():
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ============================================================
// JSON API
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthStatus{
			Status:       "ok",
			Version:      s.version,
			MarketStatus: utils.MarketStatus(),
			TimeIST:      utils.FormatDateTimeIST(utils.NowIST()),
			Upstream:     s.cfg.Upstream.BaseURL,
			Sessions:     s.sessions.Len(),
			WSClients:    s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    dashboard.Render(sess.Ctrl.State()),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sess := s.session(w, r)
	if err := sess.Ctrl.SearchFor(r.Context(), req.Query); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    dashboard.Render(sess.Ctrl.State()),
	})
}

// handleStock fetches one snapshot without touching any session.
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when it is set, so only then is the param escaped.
	symbol := chi.URLParam(r, "symbol")
	if r.URL.RawPath != "" {
		var err error
		if symbol, err = url.PathUnescape(symbol); err != nil {
			writeError(w, http.StatusBadRequest, "invalid symbol")
			return
		}
	}
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	snap, err := s.fetcher.FetchStock(r.Context(), symbol)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: snap})
}

// statusFor maps a search or fetch error to an HTTP status.
func statusFor(err error) int {
	var se *stockapi.StatusError
	switch {
	case errors.Is(err, dashboard.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, stockapi.ErrEmptySymbol):
		return http.StatusBadRequest
	case errors.As(err, &se) && se.NotFound():
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

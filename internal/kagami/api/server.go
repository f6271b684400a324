// Package api implements the debugging HTTP API.
//
// It exposes the persisted LLM call log so operators can inspect exactly what
// was sent to each provider and what came back:
//
//	GET /healthz                → liveness probe
//	GET /api/llm-logs           → paged call log (filters: status, start_time,
//	                              end_time, page, limit, order)
//	GET /api/llm-logs/{id}      → one call log entry
//
// Timestamps in query parameters use "YYYY-MM-DD HH:MM:SS" (Asia/Shanghai)
// or RFC 3339. Responses are JSON; CORS is enabled for configured origins so
// a local dashboard can query the gateway directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bdobrica/Kagami/common/timefmt"
	"github.com/bdobrica/Kagami/internal/kagami/store"
)

// CallRepo is the minimal interface the server needs from the store.
type CallRepo interface {
	ListCalls(ctx context.Context, f store.CallFilter) ([]*store.CallLog, int, error)
	GetCall(ctx context.Context, id int64) (*store.CallLog, error)
}

// Server serves the debugging API.
type Server struct {
	addr    string
	repo    CallRepo
	origins map[string]bool
	server  *http.Server
}

// New creates a Server listening on addr. allowedOrigins lists the CORS
// origins permitted to query the API; "*" allows any origin.
func New(addr string, repo CallRepo, allowedOrigins []string) *Server {
	s := &Server{
		addr:    addr,
		repo:    repo,
		origins: make(map[string]bool, len(allowedOrigins)),
	}
	for _, o := range allowedOrigins {
		s.origins[o] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/llm-logs", s.handleListCalls)
	mux.HandleFunc("/api/llm-logs/{id}", s.handleGetCall)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// corsMiddleware answers preflight requests and stamps allowed origins on
// every response.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.origins["*"] || s.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound; the server
// shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.addr, err)
	}
	slog.Info("api server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callLogJSON is the wire shape of one call log entry.
type callLogJSON struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Input     string `json:"input"`
	Output    string `json:"output"`
}

// listResponse pages call log entries.
type listResponse struct {
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Entries []callLogJSON `json:"entries"`
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := store.CallFilter{Status: q.Get("status")}

	var err error
	if filter.Start, err = parseTimeParam(q.Get("start_time")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid start_time: %v", err))
		return
	}
	if filter.End, err = parseTimeParam(q.Get("end_time")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid end_time: %v", err))
		return
	}
	if filter.Page, err = parseIntParam(q.Get("page")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid page: %v", err))
		return
	}
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %v", err))
		return
	}
	switch q.Get("order") {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		writeError(w, http.StatusBadRequest, "invalid order: must be asc or desc")
		return
	}

	entries, total, err := s.repo.ListCalls(r.Context(), filter)
	if err != nil {
		slog.Error("api: list call logs failed", "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	resp := listResponse{
		Total:   total,
		Page:    max(filter.Page, 1),
		Limit:   filter.Limit,
		Entries: make([]callLogJSON, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toJSON(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	entry, err := s.repo.GetCall(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no such call log")
		return
	}
	if err != nil {
		slog.Error("api: get call log failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(entry))
}

// --- helpers ---

func toJSON(e *store.CallLog) callLogJSON {
	return callLogJSON{
		ID:        e.ID,
		Timestamp: timefmt.Format(e.Timestamp),
		Status:    e.Status,
		Input:     e.Input,
		Output:    e.Output,
	}
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := timefmt.Parse(s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseIntParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// TestHandler exposes the HTTP handler for use in httptest.NewServer.
// This is only intended for tests.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}

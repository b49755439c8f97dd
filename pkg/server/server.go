// Package server exposes the caching agent over HTTP: a think endpoint,
// cache statistics, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/budget"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Thinker is the slice of the caching middleware the HTTP layer needs.
type Thinker interface {
	Think(ctx context.Context, req agent.Request) (models.ThinkResult, error)
	ConversationID() string
	Reset()
}

// CacheStatter provides cache statistics for the stats endpoint.
type CacheStatter interface {
	Stats() (models.CacheStats, error)
}

// Server serves the think API for one configured user. The middleware's
// conversation window is single-owner, so requests are serialized.
type Server struct {
	listen  string
	thinker Thinker
	cache   CacheStatter
	mux     *http.ServeMux

	mu       sync.Mutex
	lastTier string
}

// New creates a Server. gatherer backs GET /metrics and may be nil to
// disable the endpoint. The thinker is attached separately because its
// recorder comes from this server; see Recorder.
func New(listen string, cache CacheStatter, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		listen: listen,
		cache:  cache,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/think", s.handleThink)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// SetThinker attaches the caching middleware. Must be called before the
// server accepts think requests.
func (s *Server) SetThinker(t Thinker) {
	s.thinker = t
}

// Recorder wraps next so the server can report the cache tier of each
// answer in a response header. Install the result as the middleware's
// recorder when wiring the server.
func (s *Server) Recorder(next agent.Recorder) agent.Recorder {
	return &tierRecorder{server: s, next: next}
}

type tierRecorder struct {
	server *Server
	next   agent.Recorder
}

func (t *tierRecorder) RecordTurn(ctx context.Context, turn models.Turn) error {
	t.server.lastTier = turn.CacheTier
	if t.next != nil {
		return t.next.RecordTurn(ctx, turn)
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("droidpilot listening on %s", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// thinkRequest is the JSON body of POST /v1/think.
type thinkRequest struct {
	Query      string `json:"query"`
	Screenshot string `json:"screenshot,omitempty"`
	UITree     string `json:"ui_tree,omitempty"`
	Reset      bool   `json:"reset,omitempty"`
}

// thinkResponse is the JSON body of a successful think call.
type thinkResponse struct {
	ConversationID string         `json:"conversation_id"`
	Action         string         `json:"action"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolArgs       map[string]any `json:"tool_args,omitempty"`
	Content        string         `json:"content,omitempty"`
	Usage          *models.Usage  `json:"usage,omitempty"`
}

func (s *Server) handleThink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req thinkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	if s.thinker == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "agent not attached")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Reset {
		s.thinker.Reset()
	}

	s.lastTier = ""
	result, err := s.thinker.Think(r.Context(), agent.Request{
		Query:      req.Query,
		Screenshot: req.Screenshot,
		UITree:     req.UITree,
	})
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			writeJSONError(w, http.StatusTooManyRequests, "token budget exceeded")
			return
		}
		writeJSONError(w, http.StatusBadGateway, "think failed: "+err.Error())
		return
	}

	tier := s.lastTier
	if tier == "" {
		tier = "miss"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Droidpilot-Cache", tier)
	json.NewEncoder(w).Encode(thinkResponse{
		ConversationID: s.thinker.ConversationID(),
		Action:         result.Action,
		ToolName:       result.ToolName,
		ToolArgs:       result.ToolArgs,
		Content:        result.Content,
		Usage:          result.Usage,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.cache == nil {
		writeJSONError(w, http.StatusNotFound, "cache is disabled")
		return
	}
	stats, err := s.cache.Stats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"droidpilot_error","code":%d}}`, message, code)
}

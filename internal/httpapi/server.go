// Package httpapi serves stored matches, badges and ranks over HTTP, starts
// sync runs, and streams their progress over a websocket.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"riftledger/internal/archive"
	"riftledger/internal/badges"
	"riftledger/internal/collector"
	"riftledger/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Syncer starts sync runs. *collector.Engine satisfies it.
type Syncer interface {
	Sync(ctx context.Context, puuid string, onProgress collector.ProgressFunc) (*collector.SyncResult, error)
	SyncByRiotID(ctx context.Context, riotID string, onProgress collector.ProgressFunc) (*collector.SyncResult, error)
}

// RankReader serves cached ranks. *rank.Cache satisfies it.
type RankReader interface {
	GetPlayerRank(ctx context.Context, puuid string, maxAge time.Duration) (*store.RankRecord, error)
}

// SyncRequest is the body of POST /api/sync. Exactly one field is set.
type SyncRequest struct {
	RiotID string `json:"riotId,omitempty"`
	PUUID  string `json:"puuid,omitempty"`
}

// Player is the identifier the request names.
func (r SyncRequest) Player() string {
	if r.RiotID != "" {
		return r.RiotID
	}
	return r.PUUID
}

// SyncHook is called after every sync run, successful or not.
type SyncHook func(req SyncRequest, result *collector.SyncResult, err error)

// SyncStatus is the body of GET /api/sync/status.
type SyncStatus struct {
	Running    bool                  `json:"running"`
	Player     string                `json:"player,omitempty"`
	StartedAt  *time.Time            `json:"startedAt,omitempty"`
	Progress   *collector.Progress   `json:"progress,omitempty"`
	LastResult *collector.SyncResult `json:"lastResult,omitempty"`
	LastError  string                `json:"lastError,omitempty"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Server is the HTTP API.
type Server struct {
	store      store.Store
	syncer     Syncer
	ranks      RankReader
	evaluator  *badges.Evaluator
	hub        *Hub
	metrics    *collector.Metrics
	log        *zap.SugaredLogger
	baseCtx    context.Context
	rankMaxAge time.Duration
	onSyncDone SyncHook

	mu     sync.Mutex
	status SyncStatus
	runs   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and sync logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics exposes the registry at /metrics.
func WithMetrics(m *collector.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRankMaxAge sets how old a cached rank may be before /api/rank refreshes it.
func WithRankMaxAge(d time.Duration) Option {
	return func(s *Server) { s.rankMaxAge = d }
}

// WithSyncHook registers a callback run after each sync.
func WithSyncHook(fn SyncHook) Option {
	return func(s *Server) { s.onSyncDone = fn }
}

// WithBaseContext sets the context background syncs run under. Sync runs
// outlive the request that started them.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// NewServer creates the API server.
func NewServer(st store.Store, syncer Syncer, ranks RankReader, evaluator *badges.Evaluator, hub *Hub, opts ...Option) *Server {
	s := &Server{
		store:      st,
		syncer:     syncer,
		ranks:      ranks,
		evaluator:  evaluator,
		hub:        hub,
		log:        zap.NewNop().Sugar(),
		baseCtx:    context.Background(),
		rankMaxAge: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/matches", s.handleMatches)
	mux.HandleFunc("GET /api/matches/{id}", s.handleMatch)
	mux.HandleFunc("GET /api/matches/{id}/badges", s.handleBadges)
	mux.HandleFunc("GET /api/rank/{puuid}", s.handleRank)
	mux.HandleFunc("POST /api/sync", s.handleStartSync)
	mux.HandleFunc("GET /api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("GET /ws/progress", s.hub.ServeWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

// Wait blocks until every background sync has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// Status returns a snapshot of the sync state.
func (s *Server) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.Progress != nil {
		p := *st.Progress
		st.Progress = &p
	}
	return st
}

type matchesResponse struct {
	Matches []archive.Entry `json:"matches"`
	Total   int             `json:"total"`
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{PUUID: q.Get("puuid"), Limit: defaultListLimit}

	var err error
	if filter.QueueID, err = intParam(q.Get("queue"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid queue")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), defaultListLimit); err != nil || filter.Limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	recs, err := s.store.ListMatches(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list matches", err)
		return
	}
	total, err := s.store.CountMatches(r.Context(), filter.PUUID)
	if err != nil {
		s.internalError(w, "count matches", err)
		return
	}

	resp := matchesResponse{Matches: make([]archive.Entry, 0, len(recs)), Total: total}
	for i := range recs {
		resp.Matches = append(resp.Matches, collector.Summarize(&recs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type matchResponse struct {
	archive.Entry
	HasTimeline bool `json:"hasTimeline"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getMatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{Entry: collector.Summarize(rec), HasTimeline: rec.HasTimeline()})
}

type badgesResponse struct {
	MatchID string          `json:"matchId"`
	Badges  []badges.Earned `json:"badges"`
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getMatch(w, r)
	if !ok {
		return
	}
	earned, err := s.evaluator.Evaluate(rec)
	if err != nil {
		s.internalError(w, "evaluate badges", err)
		return
	}
	if earned == nil {
		earned = []badges.Earned{}
	}
	writeJSON(w, http.StatusOK, badgesResponse{MatchID: rec.MatchID, Badges: earned})
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) (*store.MatchRecord, bool) {
	id := r.PathValue("id")
	rec, err := s.store.GetMatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "get match", err)
		return nil, false
	}
	return rec, true
}

type rankResponse struct {
	PUUID     string           `json:"puuid"`
	Solo      *store.QueueRank `json:"solo"`
	Flex      *store.QueueRank `json:"flex"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ranks.GetPlayerRank(r.Context(), r.PathValue("puuid"), s.rankMaxAge)
	if err != nil {
		s.internalError(w, "get rank", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "rank unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rankResponse{PUUID: rec.PUUID, Solo: rec.Solo, Flex: rec.Flex, FetchedAt: rec.FetchedAt})
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.RiotID == "") == (req.PUUID == "") {
		writeError(w, http.StatusBadRequest, "exactly one of riotId or puuid is required")
		return
	}

	if !s.begin(req) {
		writeError(w, http.StatusConflict, "sync already running")
		return
	}

	s.runs.Add(1)
	go s.runSync(req)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "player": req.Player()})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

// begin claims the single sync slot.
func (s *Server) begin(req SyncRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return false
	}
	now := time.Now()
	s.status.Running = true
	s.status.Player = req.Player()
	s.status.StartedAt = &now
	s.status.Progress = nil
	return true
}

func (s *Server) runSync(req SyncRequest) {
	defer s.runs.Done()

	onProgress := func(p collector.Progress) {
		s.mu.Lock()
		s.status.Progress = &p
		s.mu.Unlock()
		s.hub.Broadcast("progress", p)
	}

	var (
		result *collector.SyncResult
		err    error
	)
	if req.RiotID != "" {
		result, err = s.syncer.SyncByRiotID(s.baseCtx, req.RiotID, onProgress)
	} else {
		result, err = s.syncer.Sync(s.baseCtx, req.PUUID, onProgress)
	}

	now := time.Now()
	s.mu.Lock()
	s.status.Running = false
	s.status.FinishedAt = &now
	s.status.LastResult = result
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warnw("sync failed", "player", req.Player(), "error", err)
		s.hub.Broadcast("sync_failed", map[string]any{"player": req.Player(), "error": err.Error(), "result": result})
	} else {
		s.log.Infow("sync finished", "player", req.Player(), "new", result.NewMatches, "failed", result.Failed)
		s.hub.Broadcast("sync_complete", result)
	}
	if result != nil && result.OtherSubjectMatches > 0 {
		s.log.Warnw("store holds matches for another player", "player", req.Player(), "otherMatches", result.OtherSubjectMatches)
		s.hub.Broadcast("sync_warning", map[string]any{
			"player":  req.Player(),
			"warning": fmt.Sprintf("store already holds %d matches for another player; shared matches keep the first player's stats", result.OtherSubjectMatches),
		})
	}

	if s.onSyncDone != nil {
		s.onSyncDone(req, result, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.log.Errorw(what+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, what+" failed")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debugw("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

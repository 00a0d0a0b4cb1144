package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"

	"github.com/hardstakes/arena/internal/domain/history"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/infrastructure/sse"
	"github.com/hardstakes/arena/internal/p2p/protocol"
	"github.com/hardstakes/arena/internal/p2p/state"
)

// Node is the consensus runtime the API fronts.
type Node interface {
	ID() string
	RaftAddr() string
	State() string
	IsLeader() bool
	LeaderAddr() string
	LeaderNodeID() string
	Stats() map[string]string
	Machine() *state.Machine
	ApplyTx(ctx context.Context, tx protocol.Tx) error
	AddVoter(ctx context.Context, nodeID, raftAddr string) error
	RemoveServer(ctx context.Context, nodeID string) error
}

// Server provides HTTP endpoints for the arena node.
type Server struct {
	node     Node
	hub      *sse.Hub
	receipts history.Recorder
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// Option customizes a Server.
type Option func(*Server)

// WithAllowedOrigins sets the browser origins accepted on the play channel.
// Requests without an Origin header and same-host origins are always
// accepted; "*" accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = originChecker(origins)
	}
}

// NewServer builds the API. hub may be nil, which disables the watch feed.
func NewServer(node Node, hub *sse.Hub, receipts history.Recorder, logger zerolog.Logger, opts ...Option) *Server {
	if receipts == nil {
		receipts = history.Nop{}
	}
	s := &Server{
		node:     node,
		hub:      hub,
		receipts: receipts,
		logger:   logger.With().Str("component", "api").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(nil),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin != "" {
			set[origin] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/v1/arena", func(r chi.Router) {
		// Streams are long-lived and must not sit behind the request timeout.
		r.Get("/matches/{matchId}/play", s.play)
		if s.hub != nil {
			r.Get("/matches/{matchId}/watch", s.watch)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/tx", s.submitTx)
			r.Get("/stats", s.stateStats)
			r.Get("/raft", s.raftStatus)
			r.Post("/raft/join", s.raftJoin)
			r.Post("/raft/remove", s.raftRemove)

			r.Get("/matches/pending", s.listPending)
			r.Get("/matches/{matchId}", s.getMatch)
			r.Get("/matches/{matchId}/game", s.getGame)
			r.Get("/matches/{matchId}/events", s.listEvents)
			r.Get("/matches/{matchId}/receipt", s.getReceipt)
			r.Get("/receipts", s.listReceipts)
			r.Get("/accounts/{identity}", s.getAccount)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"nodeId":   s.node.ID(),
		"state":    s.node.State(),
		"leader":   s.node.LeaderAddr(),
		"leaderId": s.node.LeaderNodeID(),
	})
}

func (s *Server) submitTx(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		s.respondNotLeader(w, "submit to leader")
		return
	}
	var tx protocol.Tx
	if err := decodeBody(r, &tx); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.ApplyTx(r.Context(), tx); err != nil {
		if isLeadershipErr(err) {
			s.respondNotLeader(w, err.Error())
			return
		}
		status, code := classify(err)
		s.logger.Debug().Err(err).Str("tx_id", tx.TxID).Str("op", string(tx.Op)).Str("code", code).Msg("tx rejected")
		respondError(w, status, code, err.Error(), map[string]any{"tx_id": tx.TxID})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tx_id":  tx.TxID,
		"op":     tx.Op,
		"status": "APPLIED",
	})
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	machine := s.node.Machine()
	match, ok := machine.GetMatch(matchID)
	if !ok {
		respondError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "match not found", nil)
		return
	}
	out := map[string]any{
		"match": match,
		"pot":   machine.Balance(match.Vault()),
	}
	if bindings, ok := machine.GetBindings(matchID); ok {
		out["sessions"] = bindings
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	game, ok := s.node.Machine().GetGame(matchID)
	if !ok {
		respondError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "contest not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, game)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.node.Machine().GetMatch(matchID); !ok && matchID != 0 {
		respondError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "match not found", nil)
		return
	}
	limit, offset := parseLimitOffset(r, 100, 500)
	respondJSON(w, http.StatusOK, map[string]any{
		"match_id": matchID,
		"events":   s.node.Machine().ListEvents(matchID, limit, offset),
	})
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 100, 500)
	respondJSON(w, http.StatusOK, map[string]any{
		"match_ids": s.node.Machine().PendingCommits(limit),
	})
}

func (s *Server) getReceipt(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	receipt, err := s.receipts.GetByMatch(r.Context(), matchID)
	if errors.Is(err, history.ErrReceiptNotFound) {
		respondError(w, http.StatusNotFound, "RECEIPT_NOT_FOUND", "no receipt recorded for match", nil)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Uint64("match_id", matchID).Msg("receipt lookup failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "receipt lookup failed", nil)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
	limit, _ := parseLimitOffset(r, 50, 500)
	receipts, err := s.receipts.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("receipt list failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "receipt list failed", nil)
		return
	}
	if receipts == nil {
		receipts = []*history.Receipt{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := identity.Parse(chi.URLParam(r, "identity"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": s.node.Machine().Balance(account),
	})
}

func (s *Server) stateStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.node.Machine().StateStats())
}

func (s *Server) raftStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"node_id":    s.node.ID(),
		"raft_addr":  s.node.RaftAddr(),
		"state":      s.node.State(),
		"leader":     s.node.LeaderAddr(),
		"leader_id":  s.node.LeaderNodeID(),
		"is_leader":  s.node.IsLeader(),
		"raft_stats": s.node.Stats(),
	})
}

type raftJoinRequest struct {
	NodeID   string `json:"node_id"`
	RaftAddr string `json:"raft_addr"`
}

func (s *Server) raftJoin(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		s.respondNotLeader(w, "submit to leader")
		return
	}
	var req raftJoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		if isLeadershipErr(err) {
			s.respondNotLeader(w, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "JOIN_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

type raftRemoveRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) raftRemove(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		s.respondNotLeader(w, "submit to leader")
		return
	}
	var req raftRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.RemoveServer(r.Context(), req.NodeID); err != nil {
		if isLeadershipErr(err) {
			s.respondNotLeader(w, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "REMOVE_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func (s *Server) respondNotLeader(w http.ResponseWriter, message string) {
	respondError(w, http.StatusConflict, "NOT_LEADER", message, map[string]any{
		"leader":    s.node.LeaderAddr(),
		"leader_id": s.node.LeaderNodeID(),
	})
}

func matchIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "matchId"))
	matchID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "matchId must be an unsigned integer", nil)
		return 0, false
	}
	return matchID, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			offset = parsed
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	out := map[string]any{
		"error":   code,
		"message": message,
	}
	for k, v := range extra {
		out[k] = v
	}
	respondJSON(w, status, out)
}

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}

package oracle

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_deps.go -package=mocks . Submitter,Source,KeyStore

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hardstakes/arena/internal/domain/bridge"
	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/history"
	"github.com/hardstakes/arena/internal/domain/settlement"
	"github.com/hardstakes/arena/internal/infrastructure/keystore"
	"github.com/hardstakes/arena/internal/p2p/protocol"
	"github.com/hardstakes/arena/internal/p2p/state"
)

// Submitter replicates a signed tx.
type Submitter interface {
	IsLeader() bool
	ApplyTx(ctx context.Context, tx protocol.Tx) error
}

// Source is the read side of the arena machine.
type Source interface {
	PendingCommits(limit int) []uint64
	GetMatch(matchID uint64) (escrow.MatchState, bool)
	GetGame(matchID uint64) (contest.GameState, bool)
	ListEvents(matchID uint64, limit, offset int) []state.Event
}

// KeyStore yields signing keys by role.
type KeyStore interface {
	SigningKey(ctx context.Context, role string) (ed25519.PrivateKey, error)
}

// Service commits finished contests to the escrow on behalf of the results
// authority and records a receipt for each settlement.
type Service struct {
	submitter Submitter
	source    Source
	keys      KeyStore
	recorder  history.Recorder
	logger    zerolog.Logger
	now       func() time.Time

	// unrecorded holds settled matches whose receipt write failed. A settled
	// match leaves PendingCommits, so this set is the only path back to it.
	mu         sync.Mutex
	unrecorded map[uint64]struct{}
}

func NewService(
	submitter Submitter,
	source Source,
	keys KeyStore,
	recorder history.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		submitter:  submitter,
		source:     source,
		keys:       keys,
		recorder:   recorder,
		logger:     logger.With().Str("service", "oracle").Logger(),
		now:        time.Now,
		unrecorded: map[uint64]struct{}{},
	}
}

// ProcessPending settles up to limit finished contests and returns how many
// it settled in this pass. Receipts that failed to record on an earlier pass
// are retried first. Followers commit nothing. A failure on one match is
// logged and does not stop the others.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	s.retryReceipts(ctx)
	if !s.submitter.IsLeader() {
		return 0, nil
	}
	pending := s.source.PendingCommits(limit)
	if len(pending) == 0 {
		return 0, nil
	}
	key, err := s.keys.SigningKey(ctx, keystore.RoleAuthority)
	if err != nil {
		return 0, fmt.Errorf("results authority key: %w", err)
	}

	settled := 0
	for _, matchID := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if err := s.commit(ctx, key, matchID); err != nil {
			s.logger.Warn().Err(err).Uint64("match_id", matchID).Msg("result commit failed")
			continue
		}
		settled++
		if err := s.record(ctx, matchID); err != nil {
			s.logger.Warn().Err(err).Uint64("match_id", matchID).Msg("receipt deferred")
			s.deferReceipt(matchID)
		}
	}
	return settled, nil
}

// Unrecorded lists settled matches still waiting for a receipt.
func (s *Service) Unrecorded() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.unrecorded))
	for id := range s.unrecorded {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Service) deferReceipt(matchID uint64) {
	s.mu.Lock()
	s.unrecorded[matchID] = struct{}{}
	s.mu.Unlock()
}

// retryReceipts re-records deferred receipts. Record is idempotent per match,
// so a retry after a write that did land is harmless.
func (s *Service) retryReceipts(ctx context.Context) {
	for _, matchID := range s.Unrecorded() {
		if ctx.Err() != nil {
			return
		}
		if err := s.record(ctx, matchID); err != nil {
			s.logger.Warn().Err(err).Uint64("match_id", matchID).Msg("receipt retry failed")
			continue
		}
		s.mu.Lock()
		delete(s.unrecorded, matchID)
		s.mu.Unlock()
		s.logger.Info().Uint64("match_id", matchID).Msg("deferred receipt recorded")
	}
}

func (s *Service) commit(ctx context.Context, key ed25519.PrivateKey, matchID uint64) error {
	payload, err := json.Marshal(protocol.ResultCommitPayload{MatchID: matchID})
	if err != nil {
		return err
	}
	tx := protocol.Tx{
		TxID:      uuid.NewString(),
		Nonce:     uuid.NewString(),
		Timestamp: s.now().UTC(),
		Op:        protocol.OpResultCommit,
		Payload:   payload,
	}
	if err := tx.Sign(key); err != nil {
		return err
	}

	switch err := s.submitter.ApplyTx(ctx, tx); {
	case err == nil:
		s.logger.Info().Uint64("match_id", matchID).Str("tx_id", tx.TxID).Msg("match settled")
	case errors.Is(err, bridge.ErrAlreadySettled):
		s.logger.Debug().Uint64("match_id", matchID).Msg("match already settled")
	default:
		return err
	}
	return nil
}

func (s *Service) record(ctx context.Context, matchID uint64) error {
	match, ok := s.source.GetMatch(matchID)
	if !ok || match.Status != escrow.StatusCompleted {
		return fmt.Errorf("match %d not completed after commit", matchID)
	}
	winner, _ := match.Winner.Get()
	split, err := settlement.Compute(match.Stake)
	if err != nil {
		return err
	}
	receipt := &history.Receipt{
		ReceiptID: uuid.New(),
		MatchID:   matchID,
		Winner:    winner,
		Admin:     match.Admin,
		Stake:     match.Stake,
		Payout:    split.Payout,
		Fee:       split.Fee,
		SettledAt: s.now().UTC(),
	}
	if game, ok := s.source.GetGame(matchID); ok {
		receipt.FrameCount = game.FrameCount
		receipt.ContestKind = game.Kind.String()
	}
	for _, ev := range s.source.ListEvents(matchID, 20, 0) {
		if ev.Type == state.EventMatchSettled {
			receipt.TxID = ev.TxID
			receipt.SettledAt = ev.CreatedAt
			break
		}
	}
	if err := s.recorder.Record(ctx, receipt); err != nil {
		return fmt.Errorf("record receipt: %w", err)
	}
	return nil
}

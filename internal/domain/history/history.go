package history

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_recorder.go -package=mocks . Recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hardstakes/arena/internal/domain/identity"
)

var ErrReceiptNotFound = errors.New("receipt not found")

// Receipt is the off-chain record of one settled match.
type Receipt struct {
	ReceiptID   uuid.UUID         `json:"receiptId"`
	MatchID     uint64            `json:"matchId"`
	TxID        string            `json:"txId"`
	Winner      identity.Identity `json:"winner"`
	Admin       identity.Identity `json:"admin"`
	Stake       uint64            `json:"stake"`
	Payout      uint64            `json:"payout"`
	Fee         uint64            `json:"fee"`
	FrameCount  uint64            `json:"frameCount"`
	ContestKind string            `json:"contestKind"`
	SettledAt   time.Time         `json:"settledAt"`
}

// Recorder persists settlement receipts.
type Recorder interface {
	Record(ctx context.Context, receipt *Receipt) error
	GetByMatch(ctx context.Context, matchID uint64) (*Receipt, error)
	ListRecent(ctx context.Context, limit int) ([]*Receipt, error)
}

// Nop discards receipts. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Receipt) error { return nil }

func (Nop) GetByMatch(context.Context, uint64) (*Receipt, error) {
	return nil, ErrReceiptNotFound
}

func (Nop) ListRecent(context.Context, int) ([]*Receipt, error) { return nil, nil }

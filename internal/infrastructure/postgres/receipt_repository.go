package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hardstakes/arena/internal/domain/history"
	"github.com/hardstakes/arena/internal/domain/identity"
)

// ReceiptRepository implements history.Recorder.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Amounts are unsigned 64-bit and travel as decimal text so NUMERIC(20,0)
// holds the full range.
const receiptColumns = `receipt_id, match_id::text, tx_id, winner, admin, stake::text, payout::text, fee::text, frame_count::text, contest_kind, settled_at`

// Record inserts a receipt. A second receipt for the same match is ignored.
func (r *ReceiptRepository) Record(ctx context.Context, rc *history.Receipt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO settlement_receipts
		(receipt_id, match_id, tx_id, winner, admin, stake, payout, fee, frame_count, contest_kind, settled_at)
		VALUES ($1,$2::numeric,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10,$11)
		ON CONFLICT (match_id) DO NOTHING
	`, rc.ReceiptID, u64(rc.MatchID), rc.TxID, rc.Winner.String(), rc.Admin.String(),
		u64(rc.Stake), u64(rc.Payout), u64(rc.Fee), u64(rc.FrameCount), rc.ContestKind, rc.SettledAt)
	return err
}

func (r *ReceiptRepository) GetByMatch(ctx context.Context, matchID uint64) (*history.Receipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM settlement_receipts WHERE match_id=$1::numeric`, u64(matchID))
	rc, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, history.ErrReceiptNotFound
	}
	return rc, err
}

func (r *ReceiptRepository) ListRecent(ctx context.Context, limit int) ([]*history.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM settlement_receipts ORDER BY settled_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*history.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func scanReceipt(row pgx.Row) (*history.Receipt, error) {
	var (
		rc                                  history.Receipt
		matchID, stake, payout, fee, frames string
		winner, admin                       string
	)
	if err := row.Scan(&rc.ReceiptID, &matchID, &rc.TxID, &winner, &admin, &stake, &payout, &fee, &frames, &rc.ContestKind, &rc.SettledAt); err != nil {
		return nil, err
	}
	var err error
	if rc.Winner, err = identity.Parse(winner); err != nil {
		return nil, fmt.Errorf("winner: %w", err)
	}
	if rc.Admin, err = identity.Parse(admin); err != nil {
		return nil, fmt.Errorf("admin: %w", err)
	}
	for _, f := range []struct {
		dst *uint64
		raw string
	}{
		{&rc.MatchID, matchID},
		{&rc.Stake, stake},
		{&rc.Payout, payout},
		{&rc.Fee, fee},
		{&rc.FrameCount, frames},
	} {
		if *f.dst, err = strconv.ParseUint(f.raw, 10, 64); err != nil {
			return nil, err
		}
	}
	return &rc, nil
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

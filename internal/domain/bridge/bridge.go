// Package bridge carries a finished contest's outcome into the escrow exactly once.
package bridge

import (
	"errors"
	"fmt"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/domain/settlement"
)

var (
	ErrUnauthorized   = errors.New("caller is not the results authority")
	ErrNotFinished    = errors.New("contest has not finished")
	ErrAlreadySettled = errors.New("match already settled")
)

// Result is the outcome of a successful commit.
type Result struct {
	Match  escrow.MatchState `json:"match"`
	Winner identity.Identity `json:"winner"`
	Split  settlement.Split  `json:"split"`
}

// Commit settles match from game's outcome. Only authority may call it. The
// returned match must be stored by the caller together with the bank's
// staged transfers; on error nothing should be committed.
func Commit(caller, authority identity.Identity, game contest.GameState, match escrow.MatchState, bank escrow.Bank) (Result, error) {
	if caller != authority {
		return Result{}, ErrUnauthorized
	}
	if match.Status == escrow.StatusCompleted {
		return Result{}, ErrAlreadySettled
	}
	if game.Status != contest.StatusFinished {
		return Result{}, ErrNotFinished
	}
	winner, ok := game.Winner.Get()
	if !ok {
		return Result{}, fmt.Errorf("%w: no winner recorded", ErrNotFinished)
	}
	split, err := settlement.Compute(match.Stake)
	if err != nil {
		return Result{}, err
	}
	settled, err := match.Finalize(bank, winner, match.Admin, split.Payout, split.Fee)
	if err != nil {
		return Result{}, err
	}
	return Result{Match: settled, Winner: winner, Split: split}, nil
}

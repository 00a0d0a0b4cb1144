package api

import (
	"errors"
	"net/http"

	"github.com/hardstakes/arena/internal/domain/bridge"
	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/settlement"
	"github.com/hardstakes/arena/internal/ledger"
	"github.com/hardstakes/arena/internal/p2p/state"
)

// rejection maps a machine error to its stable wire code.
type rejection struct {
	err    error
	status int
	code   string
}

var rejections = []rejection{
	{escrow.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{escrow.ErrMatchFull, http.StatusConflict, "MATCH_FULL"},
	{escrow.ErrSamePlayer, http.StatusConflict, "SAME_PLAYER"},
	{escrow.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{escrow.ErrInvalidWinner, http.StatusConflict, "INVALID_WINNER"},
	{escrow.ErrMatchExists, http.StatusConflict, "MATCH_EXISTS"},
	{escrow.ErrMatchNotFound, http.StatusNotFound, "MATCH_NOT_FOUND"},
	{state.ErrGameNotFound, http.StatusNotFound, "MATCH_NOT_FOUND"},
	{contest.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{bridge.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{state.ErrNotTreasury, http.StatusForbidden, "UNAUTHORIZED"},
	{contest.ErrNotActive, http.StatusConflict, "NOT_ACTIVE"},
	{contest.ErrSeatTaken, http.StatusConflict, "MATCH_FULL"},
	{contest.ErrInvalidKind, http.StatusBadRequest, "INVALID_KIND"},
	{contest.ErrFrameOverflow, http.StatusUnprocessableEntity, "OVERFLOW"},
	{bridge.ErrNotFinished, http.StatusConflict, "NOT_FINISHED"},
	{bridge.ErrAlreadySettled, http.StatusConflict, "ALREADY_SETTLED"},
	{settlement.ErrOverflow, http.StatusUnprocessableEntity, "OVERFLOW"},
	{ledger.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{ledger.ErrBalanceOverflow, http.StatusUnprocessableEntity, "OVERFLOW"},
	{delegation.ErrDelegateBound, http.StatusConflict, "DELEGATE_BOUND"},
	{delegation.ErrDelegateConflict, http.StatusConflict, "DELEGATE_CONFLICT"},
	{delegation.ErrNotParticipant, http.StatusForbidden, "NOT_PARTICIPANT"},
	{delegation.ErrSessionClosed, http.StatusConflict, "SESSION_CLOSED"},
	{delegation.ErrInvalidDelegate, http.StatusBadRequest, "INVALID_PARAM"},
}

func classify(err error) (int, string) {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.status, r.code
		}
	}
	return http.StatusBadRequest, "TX_REJECTED"
}

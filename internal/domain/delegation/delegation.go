package delegation

import (
	"errors"
	"fmt"

	"github.com/hardstakes/arena/internal/domain/identity"
)

// Side is the seat an input is attributed to.
type Side uint8

const (
	Unauthorized Side = iota
	PlayerOne
	PlayerTwo
)

func (s Side) String() string {
	switch s {
	case PlayerOne:
		return "PLAYER_ONE"
	case PlayerTwo:
		return "PLAYER_TWO"
	default:
		return "UNAUTHORIZED"
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrDelegateBound    = errors.New("side already has a session delegate")
	ErrDelegateConflict = errors.New("delegate already acts for this match")
	ErrNotParticipant   = errors.New("principal is not seated in this match")
	ErrSessionClosed    = errors.New("match no longer accepts session delegates")
	ErrInvalidDelegate  = errors.New("delegate identity is required")
)

// Seats are the principals of a match. Side two is unset until someone joins.
type Seats struct {
	One identity.Identity
	Two identity.Optional
}

// Credential binds a principal's side to a short-lived delegate key for one match.
type Credential struct {
	MatchID   uint64            `json:"matchId"`
	Side      Side              `json:"side"`
	Principal identity.Identity `json:"principal"`
	Delegate  identity.Identity `json:"delegate"`
}

// Bindings are the delegates of one match, one slot per side.
type Bindings struct {
	MatchID uint64            `json:"matchId"`
	One     identity.Optional `json:"playerOne"`
	Two     identity.Optional `json:"playerTwo"`
}

// Authorize records delegate as the signer for principal's side.
// A bound side is never silently rebound; the receiver is not modified.
func (b Bindings) Authorize(seats Seats, principal, delegate identity.Identity) (Bindings, Credential, error) {
	if delegate.IsZero() {
		return b, Credential{}, ErrInvalidDelegate
	}
	side := Unauthorized
	switch {
	case principal == seats.One:
		side = PlayerOne
	case seats.Two.Is(principal):
		side = PlayerTwo
	default:
		return b, Credential{}, ErrNotParticipant
	}

	own, other := b.One, b.Two
	otherPrincipal := seats.Two
	if side == PlayerTwo {
		own, other = b.Two, b.One
		otherPrincipal = identity.Some(seats.One)
	}
	if own.Valid {
		return b, Credential{}, fmt.Errorf("%w: %s", ErrDelegateBound, side)
	}
	if other.Is(delegate) || otherPrincipal.Is(delegate) {
		return b, Credential{}, ErrDelegateConflict
	}

	next := b
	if side == PlayerOne {
		next.One = identity.Some(delegate)
	} else {
		next.Two = identity.Some(delegate)
	}
	return next, Credential{MatchID: b.MatchID, Side: side, Principal: principal, Delegate: delegate}, nil
}

// AdmitJoiner rejects a joiner that is already bound as a delegate. Seating it
// would let one key sign for both sides.
func (b Bindings) AdmitJoiner(joiner identity.Identity) error {
	if b.One.Is(joiner) || b.Two.Is(joiner) {
		return ErrDelegateConflict
	}
	return nil
}

// ResolveSide attributes signer to a side. A side with a bound delegate only
// answers to that delegate; otherwise its principal signs directly. Side one
// is checked first.
func (b Bindings) ResolveSide(seats Seats, signer identity.Identity) Side {
	if signerFor(b.One, identity.Some(seats.One)) == signer {
		return PlayerOne
	}
	if seats.Two.Valid && signerFor(b.Two, seats.Two) == signer {
		return PlayerTwo
	}
	return Unauthorized
}

func signerFor(delegate, principal identity.Optional) identity.Identity {
	if delegate.Valid {
		return delegate.ID
	}
	return principal.ID
}

package contest

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/identity"
)

// Status is the simulator lifecycle: Waiting -> Active -> Finished.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusActive
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusActive:
		return "ACTIVE"
	case StatusFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusWaiting, StatusActive, StatusFinished} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown contest status %q", text)
}

var (
	ErrUnauthorized  = errors.New("signer is not authorized for either side")
	ErrNotActive     = errors.New("contest is not active")
	ErrSeatTaken     = errors.New("contest side two is already bound")
	ErrInvalidKind   = errors.New("unknown contest kind")
	ErrInvalidParams = errors.New("invalid contest parameters")
	ErrFrameOverflow = errors.New("frame counter overflow")
)

// Params are the arena dimensions shared by every replica.
type Params struct {
	MapRadius   uint64 `yaml:"map_radius" json:"mapRadius"`
	SpawnOffset int64  `yaml:"spawn_offset" json:"spawnOffset"`
}

// DefaultParams is the standard dohyo.
func DefaultParams() Params {
	return Params{MapRadius: 500, SpawnOffset: 200}
}

// Validate rejects arenas where a side would spawn outside the ring.
func (p Params) Validate() error {
	if p.MapRadius == 0 {
		return fmt.Errorf("%w: map_radius must be positive", ErrInvalidParams)
	}
	if p.SpawnOffset < 0 || uint64(p.SpawnOffset) > p.MapRadius {
		return fmt.Errorf("%w: spawn_offset must be within [0, map_radius]", ErrInvalidParams)
	}
	return nil
}

// Vec is a fixed-point position.
type Vec struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
}

// Input is one tick of stick input from a side.
type Input struct {
	DX int8 `json:"dx"`
	DY int8 `json:"dy"`
}

// SideResolver attributes a signer to a side of the match.
type SideResolver interface {
	ResolveSide(signer identity.Identity) delegation.Side
}

// ResolverFunc adapts a function to SideResolver.
type ResolverFunc func(signer identity.Identity) delegation.Side

func (f ResolverFunc) ResolveSide(signer identity.Identity) delegation.Side { return f(signer) }

// GameState is the simulator record of one match.
type GameState struct {
	MatchID    uint64            `json:"matchId"`
	Kind       Kind              `json:"contestKind"`
	P1         identity.Identity `json:"p1Identity"`
	P2         identity.Optional `json:"p2Identity"`
	P1Pos      Vec               `json:"p1Position"`
	P2Pos      Vec               `json:"p2Position"`
	P1Rot      int64             `json:"p1Rotation"`
	P2Rot      int64             `json:"p2Rotation"`
	MapRadius  uint64            `json:"mapRadius"`
	FrameCount uint64            `json:"frameCount"`
	Status     Status            `json:"contestStatus"`
	Winner     identity.Optional `json:"contestWinner"`
}

// Init seeds a contest with the sides placed symmetrically about the origin,
// facing each other. It starts Active only when both sides are bound.
func Init(matchID uint64, kind Kind, params Params, p1 identity.Identity, p2 identity.Optional) (GameState, error) {
	if !kind.Valid() {
		return GameState{}, ErrInvalidKind
	}
	if err := params.Validate(); err != nil {
		return GameState{}, err
	}
	g := GameState{
		MatchID:   matchID,
		Kind:      kind,
		P1:        p1,
		P2:        p2,
		P1Pos:     Vec{X: -params.SpawnOffset},
		P2Pos:     Vec{X: params.SpawnOffset},
		P1Rot:     0,
		P2Rot:     HalfTurn,
		MapRadius: params.MapRadius,
		Status:    StatusWaiting,
	}
	if p2.Valid {
		g.Status = StatusActive
	}
	return g, nil
}

// Seat binds side two and starts the contest.
func (g GameState) Seat(p2 identity.Identity) (GameState, error) {
	if g.P2.Valid {
		return g, ErrSeatTaken
	}
	if g.Status != StatusWaiting {
		return g, ErrNotActive
	}
	next := g
	next.P2 = identity.Some(p2)
	next.Status = StatusActive
	return next, nil
}

// ApplyInput moves the signer's side and then checks for a ring-out.
// Rejected inputs return the receiver unchanged.
func (g GameState) ApplyInput(r SideResolver, signer identity.Identity, in Input) (GameState, error) {
	side := r.ResolveSide(signer)
	if side == delegation.Unauthorized {
		return g, ErrUnauthorized
	}
	if g.Status != StatusActive {
		return g, ErrNotActive
	}
	if g.FrameCount == math.MaxUint64 {
		return g, ErrFrameOverflow
	}
	next := g
	switch side {
	case delegation.PlayerOne:
		pose := Advance(next.Kind, Pose{Pos: next.P1Pos, Rot: next.P1Rot}, in)
		next.P1Pos, next.P1Rot = pose.Pos, pose.Rot
	case delegation.PlayerTwo:
		pose := Advance(next.Kind, Pose{Pos: next.P2Pos, Rot: next.P2Rot}, in)
		next.P2Pos, next.P2Rot = pose.Pos, pose.Rot
	}
	next.checkRingOut()
	next.FrameCount++
	return next, nil
}

// checkRingOut finishes the contest when a side leaves the ring. Side one is
// checked first, so if both sides are out side one loses.
func (g *GameState) checkRingOut() {
	if outside(g.P1Pos, g.MapRadius) {
		g.Status = StatusFinished
		g.Winner = g.P2
		return
	}
	if g.P2.Valid && outside(g.P2Pos, g.MapRadius) {
		g.Status = StatusFinished
		g.Winner = identity.Some(g.P1)
	}
}

// outside reports x²+y² > r², evaluated in 128 bits so saturated positions
// still compare correctly.
func outside(p Vec, radius uint64) bool {
	ax, ay := magnitude(p.X), magnitude(p.Y)
	xh, xl := bits.Mul64(ax, ax)
	yh, yl := bits.Mul64(ay, ay)
	lo, carry := bits.Add64(xl, yl, 0)
	hi, _ := bits.Add64(xh, yh, carry)
	rh, rl := bits.Mul64(radius, radius)
	if hi != rh {
		return hi > rh
	}
	return lo > rl
}

func magnitude(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if b > 0 && sum < a {
		return math.MaxInt64
	}
	if b < 0 && sum > a {
		return math.MinInt64
	}
	return sum
}

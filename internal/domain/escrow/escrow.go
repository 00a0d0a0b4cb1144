package escrow

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/ledger"
)

// Status is the escrow lifecycle. It only moves forward.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusActive
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusActive:
		return "ACTIVE"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusWaiting, StatusActive, StatusCompleted} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown match status %q", text)
}

var (
	ErrInvalidAmount = errors.New("stake must be greater than zero")
	ErrMatchFull     = errors.New("match is full")
	ErrSamePlayer    = errors.New("player cannot join own match")
	ErrInvalidState  = errors.New("invalid match state")
	ErrInvalidWinner = errors.New("winner is not in this match")
	ErrMatchExists   = errors.New("match already exists")
	ErrMatchNotFound = errors.New("match not found")
)

// Bank moves funds between accounts atomically with the enclosing operation.
type Bank interface {
	Transfer(from, to identity.Identity, amount uint64) error
}

// RecordSize is the fixed encoded size of a MatchState.
const RecordSize = identity.Size + 2*identity.OptionalSize + identity.Size + 8 + 8 + 1

// MatchState is the custody record of one wagered match.
type MatchState struct {
	PlayerOne identity.Identity `json:"playerOne"`
	PlayerTwo identity.Optional `json:"playerTwo"`
	Winner    identity.Optional `json:"winner"`
	Admin     identity.Identity `json:"admin"`
	Stake     uint64            `json:"stakeAmount"`
	MatchID   uint64            `json:"matchId"`
	Status    Status            `json:"status"`
}

// VaultAddress is the custody account of a match.
func VaultAddress(matchID uint64) identity.Identity {
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], matchID)
	return ledger.DeriveAddress([]byte("vault"), seed[:])
}

// Vault returns the custody account of m.
func (m MatchState) Vault() identity.Identity { return VaultAddress(m.MatchID) }

// Open creates a match and deposits the opener's stake into the vault.
func Open(bank Bank, opener identity.Identity, matchID, stake uint64, admin identity.Identity) (MatchState, error) {
	if stake == 0 {
		return MatchState{}, ErrInvalidAmount
	}
	m := MatchState{
		PlayerOne: opener,
		Admin:     admin,
		Stake:     stake,
		MatchID:   matchID,
		Status:    StatusWaiting,
	}
	if err := bank.Transfer(opener, m.Vault(), stake); err != nil {
		return MatchState{}, fmt.Errorf("deposit stake: %w", err)
	}
	return m, nil
}

// Join seats the second player and deposits their stake.
// The receiver is never modified; callers store the returned state.
func (m MatchState) Join(bank Bank, joiner identity.Identity) (MatchState, error) {
	if m.Status != StatusWaiting {
		return m, ErrMatchFull
	}
	if joiner == m.PlayerOne {
		return m, ErrSamePlayer
	}
	if err := bank.Transfer(joiner, m.Vault(), m.Stake); err != nil {
		return m, fmt.Errorf("deposit stake: %w", err)
	}
	next := m
	next.PlayerTwo = identity.Some(joiner)
	next.Status = StatusActive
	return next, nil
}

// IsPlayer reports whether id holds a seat.
func (m MatchState) IsPlayer(id identity.Identity) bool {
	return id == m.PlayerOne || m.PlayerTwo.Is(id)
}

// Finalize pays the winner and the fee recipient from the vault and completes
// the match. Both disbursements go through bank, which commits them together.
func (m MatchState) Finalize(bank Bank, winner, feeRecipient identity.Identity, payout, fee uint64) (MatchState, error) {
	if m.Status != StatusActive {
		return m, ErrInvalidState
	}
	if !m.IsPlayer(winner) {
		return m, ErrInvalidWinner
	}
	vault := m.Vault()
	if err := bank.Transfer(vault, winner, payout); err != nil {
		return m, fmt.Errorf("pay winner: %w", err)
	}
	if err := bank.Transfer(vault, feeRecipient, fee); err != nil {
		return m, fmt.Errorf("pay fee: %w", err)
	}
	next := m
	next.Status = StatusCompleted
	next.Winner = identity.Some(winner)
	return next, nil
}

// MarshalBinary encodes the fixed-size record.
func (m MatchState) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, m.PlayerOne[:]...)
	buf = m.PlayerTwo.AppendBinary(buf)
	buf = m.Winner.AppendBinary(buf)
	buf = append(buf, m.Admin[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, m.Stake)
	buf = binary.LittleEndian.AppendUint64(buf, m.MatchID)
	buf = append(buf, byte(m.Status))
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (m *MatchState) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("match record: want %d bytes, got %d", RecordSize, len(data))
	}
	var out MatchState
	off := 0
	copy(out.PlayerOne[:], data[off:off+identity.Size])
	off += identity.Size
	var err error
	if out.PlayerTwo, err = identity.DecodeOptional(data[off:]); err != nil {
		return err
	}
	off += identity.OptionalSize
	if out.Winner, err = identity.DecodeOptional(data[off:]); err != nil {
		return err
	}
	off += identity.OptionalSize
	copy(out.Admin[:], data[off:off+identity.Size])
	off += identity.Size
	out.Stake = binary.LittleEndian.Uint64(data[off:])
	off += 8
	out.MatchID = binary.LittleEndian.Uint64(data[off:])
	off += 8
	out.Status = Status(data[off])
	if out.Status > StatusCompleted {
		return fmt.Errorf("match record: invalid status %d", data[off])
	}
	*m = out
	return nil
}

// MarshalJSON adds the derived vault address to the JSON view.
func (m MatchState) MarshalJSON() ([]byte, error) {
	type view MatchState
	return json.Marshal(struct {
		view
		Vault identity.Identity `json:"vault"`
	}{view: view(m), Vault: m.Vault()})
}

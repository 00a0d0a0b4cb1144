package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/ledger"
	"github.com/hardstakes/arena/internal/p2p/protocol"
)

const (
	EventMatchOpened       = "MATCH_OPENED"
	EventMatchJoined       = "MATCH_JOINED"
	EventSessionAuthorized = "SESSION_AUTHORIZED"
	EventContestFinished   = "CONTEST_FINISHED"
	EventMatchSettled      = "MATCH_SETTLED"
	EventAccountCredited   = "ACCOUNT_CREDITED"
)

var (
	ErrNotTreasury  = errors.New("only the treasury may credit accounts")
	ErrGameNotFound = errors.New("contest not found")
)

// Genesis holds the constants every replica must agree on.
type Genesis struct {
	ResultsAuthority identity.Identity `json:"resultsAuthority"`
	Treasury         identity.Identity `json:"treasury"`
	Contest          contest.Params    `json:"contest"`
}

func (g Genesis) Validate() error {
	if g.ResultsAuthority.IsZero() {
		return errors.New("results authority is required")
	}
	if g.Treasury.IsZero() {
		return errors.New("treasury is required")
	}
	return g.Contest.Validate()
}

type Event struct {
	EventID   string            `json:"eventId"`
	MatchID   uint64            `json:"matchId"`
	Type      string            `json:"type"`
	Actor     identity.Identity `json:"actor"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	TxID      string            `json:"txId"`
}

// snapshot is the persisted machine. Matches and games are kept in their
// fixed-size binary record form.
type snapshot struct {
	Genesis   Genesis                        `json:"genesis"`
	Balances  map[identity.Identity]uint64   `json:"balances"`
	Matches   map[uint64][]byte              `json:"matches"`
	Games     map[uint64][]byte              `json:"games"`
	Bindings  map[uint64]delegation.Bindings `json:"bindings"`
	Events    map[uint64][]Event             `json:"events"`
	AppliedTx map[string]bool                `json:"appliedTx"`
}

// Machine is the deterministic arena state machine.
type Machine struct {
	mu       sync.RWMutex
	genesis  Genesis
	ledger   *ledger.Ledger
	matches  map[uint64]escrow.MatchState
	games    map[uint64]contest.GameState
	bindings map[uint64]delegation.Bindings
	events   map[uint64][]Event
	applied  map[string]bool
	observer func(Event)
}

func NewMachine(genesis Genesis) *Machine {
	m := &Machine{genesis: genesis}
	m.reset()
	return m
}

// Observe registers fn to receive every event as it is committed. fn runs
// under the machine lock and must not block or call back into m.
func (m *Machine) Observe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

func (m *Machine) reset() {
	m.ledger = ledger.New()
	m.matches = map[uint64]escrow.MatchState{}
	m.games = map[uint64]contest.GameState{}
	m.bindings = map[uint64]delegation.Bindings{}
	m.events = map[uint64][]Event{}
	m.applied = map[string]bool{}
}

// Marshal serializes current machine snapshot.
func (m *Machine) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := snapshot{
		Genesis:   m.genesis,
		Balances:  m.ledger.Balances(),
		Matches:   make(map[uint64][]byte, len(m.matches)),
		Games:     make(map[uint64][]byte, len(m.games)),
		Bindings:  make(map[uint64]delegation.Bindings, len(m.bindings)),
		Events:    make(map[uint64][]Event, len(m.events)),
		AppliedTx: make(map[string]bool, len(m.applied)),
	}
	for id, match := range m.matches {
		raw, err := match.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("match %d: %w", id, err)
		}
		s.Matches[id] = raw
	}
	for id, game := range m.games {
		raw, err := game.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("game %d: %w", id, err)
		}
		s.Games[id] = raw
	}
	for id, b := range m.bindings {
		s.Bindings[id] = b
	}
	for id, events := range m.events {
		s.Events[id] = append([]Event(nil), events...)
	}
	for txID := range m.applied {
		s.AppliedTx[txID] = true
	}
	return json.Marshal(s)
}

// Unmarshal restores machine state from snapshot payload.
func (m *Machine) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty snapshot")
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	matches := make(map[uint64]escrow.MatchState, len(s.Matches))
	for id, raw := range s.Matches {
		var match escrow.MatchState
		if err := match.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("match %d: %w", id, err)
		}
		matches[id] = match
	}
	games := make(map[uint64]contest.GameState, len(s.Games))
	for id, raw := range s.Games {
		var game contest.GameState
		if err := game.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("game %d: %w", id, err)
		}
		games[id] = game
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.genesis = s.Genesis
	m.ledger.Restore(s.Balances)
	m.matches = matches
	m.games = games
	for id, b := range s.Bindings {
		m.bindings[id] = b
	}
	for id, events := range s.Events {
		m.events[id] = events
	}
	for txID, ok := range s.AppliedTx {
		if ok {
			m.applied[txID] = true
		}
	}
	return nil
}

// ApplyTx validates and applies one signed transaction. A rejected tx leaves
// the machine unchanged; an already applied tx id is a no-op.
func (m *Machine) ApplyTx(tx protocol.Tx) error {
	if err := tx.Verify(); err != nil {
		return err
	}
	signer, err := tx.Signer()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applied[tx.TxID] {
		return nil
	}
	c := call{tx: tx, signer: signer, at: tx.Timestamp.UTC()}

	switch tx.Op {
	case protocol.OpAccountCredit:
		err = m.applyAccountCreditLocked(c)
	case protocol.OpMatchOpen:
		err = m.applyMatchOpenLocked(c)
	case protocol.OpMatchJoin:
		err = m.applyMatchJoinLocked(c)
	case protocol.OpSessionAuthorize:
		err = m.applySessionAuthorizeLocked(c)
	case protocol.OpContestInput:
		err = m.applyContestInputLocked(c)
	case protocol.OpResultCommit:
		err = m.applyResultCommitLocked(c)
	default:
		err = fmt.Errorf("unsupported op: %s", tx.Op)
	}
	if err != nil {
		return err
	}
	m.applied[tx.TxID] = true
	return nil
}

// call is one authenticated invocation.
type call struct {
	tx     protocol.Tx
	signer identity.Identity
	at     time.Time
}

// eventPayload encodes an event body. Handlers call it before their first
// write so an encoding failure rejects the tx with nothing stored.
func eventPayload(payload any) (json.RawMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return b, nil
}

func (m *Machine) appendEventLocked(matchID uint64, eventType string, c call, rawPayload json.RawMessage) {
	seq := len(m.events[matchID]) + 1
	ev := Event{
		EventID:   fmt.Sprintf("%s:%d:%06d", c.tx.TxID, matchID, seq),
		MatchID:   matchID,
		Type:      eventType,
		Actor:     c.signer,
		Payload:   rawPayload,
		CreatedAt: c.at,
		TxID:      c.tx.TxID,
	}
	m.events[matchID] = append(m.events[matchID], ev)
	if m.observer != nil {
		m.observer(cloneEvent(ev))
	}
}

package state

import (
	"sort"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/identity"
)

func pageWindow(total, limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return total, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return offset, end
}

func cloneEvent(in Event) Event {
	if in.Payload != nil {
		in.Payload = append([]byte(nil), in.Payload...)
	}
	return in
}

func (m *Machine) Genesis() Genesis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.genesis
}

func (m *Machine) GetMatch(matchID uint64) (escrow.MatchState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[matchID]
	return match, ok
}

func (m *Machine) GetGame(matchID uint64) (contest.GameState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	game, ok := m.games[matchID]
	return game, ok
}

// GetBindings returns the session delegates of a match. Settled matches have none.
func (m *Machine) GetBindings(matchID uint64) (delegation.Bindings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[matchID]
	return b, ok
}

// ResolveSide attributes signer to a side of matchID using the current bindings.
func (m *Machine) ResolveSide(matchID uint64, signer identity.Identity) delegation.Side {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.matches[matchID]
	if !ok {
		return delegation.Unauthorized
	}
	return m.bindings[matchID].ResolveSide(seatsOf(match), signer)
}

func (m *Machine) Balance(account identity.Identity) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Balance(account)
}

// ListEvents returns a match's events, newest first. Match 0 holds account events.
func (m *Machine) ListEvents(matchID uint64, limit, offset int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]Event(nil), m.events[matchID]...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].EventID > items[j].EventID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	start, end := pageWindow(len(items), limit, offset)
	out := make([]Event, 0, end-start)
	for _, event := range items[start:end] {
		out = append(out, cloneEvent(event))
	}
	return out
}

// PendingCommits lists matches whose contest has finished but whose escrow
// has not been settled, lowest match id first.
func (m *Machine) PendingCommits(limit int) []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint64, 0)
	for id, game := range m.games {
		if game.Status != contest.StatusFinished {
			continue
		}
		if match, ok := m.matches[id]; ok && match.Status == escrow.StatusActive {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	start, end := pageWindow(len(out), limit, 0)
	return out[start:end]
}

type Stats struct {
	Matches          int    `json:"matches"`
	WaitingMatches   int    `json:"waitingMatches"`
	ActiveMatches    int    `json:"activeMatches"`
	CompletedMatches int    `json:"completedMatches"`
	FinishedContests int    `json:"finishedContests"`
	PendingCommits   int    `json:"pendingCommits"`
	Accounts         int    `json:"accounts"`
	Supply           uint64 `json:"supply"`
	Events           int    `json:"events"`
	AppliedTx        int    `json:"appliedTx"`
}

func (m *Machine) StateStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{
		Matches:   len(m.matches),
		Accounts:  len(m.ledger.Balances()),
		AppliedTx: len(m.applied),
	}
	stats.Supply, _ = m.ledger.Total()
	for _, match := range m.matches {
		switch match.Status {
		case escrow.StatusWaiting:
			stats.WaitingMatches++
		case escrow.StatusActive:
			stats.ActiveMatches++
		case escrow.StatusCompleted:
			stats.CompletedMatches++
		}
	}
	for id, game := range m.games {
		if game.Status != contest.StatusFinished {
			continue
		}
		stats.FinishedContests++
		if m.matches[id].Status == escrow.StatusActive {
			stats.PendingCommits++
		}
	}
	for _, events := range m.events {
		stats.Events += len(events)
	}
	return stats
}

package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hardstakes/arena/internal/domain/bridge"
	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/p2p/protocol"
)

// Every handler below validates and stages first, then writes. Nothing is
// stored and no ledger batch is committed until the last check has passed.

func (m *Machine) applyAccountCreditLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.AccountCreditPayload](c.tx.Payload)
	if err != nil {
		return err
	}
	if c.signer != m.genesis.Treasury {
		return ErrNotTreasury
	}
	if payload.Account.IsZero() {
		return errors.New("account is required")
	}
	if payload.Amount == 0 {
		return escrow.ErrInvalidAmount
	}
	batch := m.ledger.Begin()
	if err := batch.Credit(payload.Account, payload.Amount); err != nil {
		return err
	}
	credited, err := eventPayload(payload)
	if err != nil {
		return err
	}
	batch.Commit()
	m.appendEventLocked(0, EventAccountCredited, c, credited)
	return nil
}

func (m *Machine) applyMatchOpenLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.MatchOpenPayload](c.tx.Payload)
	if err != nil {
		return err
	}
	if _, ok := m.matches[payload.MatchID]; ok {
		return fmt.Errorf("%w: %d", escrow.ErrMatchExists, payload.MatchID)
	}
	if payload.Admin.IsZero() {
		return errors.New("admin is required")
	}
	batch := m.ledger.Begin()
	match, err := escrow.Open(batch, c.signer, payload.MatchID, payload.Stake, payload.Admin)
	if err != nil {
		return err
	}
	game, err := contest.Init(payload.MatchID, payload.ContestKind, m.genesis.Contest, c.signer, identity.None())
	if err != nil {
		return err
	}
	bindings := delegation.Bindings{MatchID: payload.MatchID}
	var cred *delegation.Credential
	if payload.SessionKey != nil {
		next, granted, err := bindings.Authorize(seatsOf(match), c.signer, *payload.SessionKey)
		if err != nil {
			return err
		}
		bindings, cred = next, &granted
	}
	opened, err := eventPayload(map[string]any{
		"stake":       match.Stake,
		"admin":       match.Admin,
		"contestKind": game.Kind,
		"vault":       match.Vault(),
	})
	if err != nil {
		return err
	}
	authorized, err := credentialPayload(cred)
	if err != nil {
		return err
	}

	batch.Commit()
	m.matches[match.MatchID] = match
	m.games[game.MatchID] = game
	m.bindings[match.MatchID] = bindings
	m.appendEventLocked(match.MatchID, EventMatchOpened, c, opened)
	if authorized != nil {
		m.appendEventLocked(match.MatchID, EventSessionAuthorized, c, authorized)
	}
	return nil
}

func (m *Machine) applyMatchJoinLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.MatchJoinPayload](c.tx.Payload)
	if err != nil {
		return err
	}
	match, game, err := m.loadLocked(payload.MatchID)
	if err != nil {
		return err
	}
	batch := m.ledger.Begin()
	joined, err := match.Join(batch, c.signer)
	if err != nil {
		return err
	}
	seated, err := game.Seat(c.signer)
	if err != nil {
		return err
	}
	bindings := m.bindings[payload.MatchID]
	if err := bindings.AdmitJoiner(c.signer); err != nil {
		return err
	}
	var cred *delegation.Credential
	if payload.SessionKey != nil {
		next, granted, err := bindings.Authorize(seatsOf(joined), c.signer, *payload.SessionKey)
		if err != nil {
			return err
		}
		bindings, cred = next, &granted
	}
	joinedBody, err := eventPayload(map[string]any{
		"playerTwo": c.signer,
		"pot":       batch.Balance(joined.Vault()),
	})
	if err != nil {
		return err
	}
	authorized, err := credentialPayload(cred)
	if err != nil {
		return err
	}

	batch.Commit()
	m.matches[joined.MatchID] = joined
	m.games[seated.MatchID] = seated
	m.bindings[joined.MatchID] = bindings
	m.appendEventLocked(joined.MatchID, EventMatchJoined, c, joinedBody)
	if authorized != nil {
		m.appendEventLocked(joined.MatchID, EventSessionAuthorized, c, authorized)
	}
	return nil
}

func (m *Machine) applySessionAuthorizeLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.SessionAuthorizePayload](c.tx.Payload)
	if err != nil {
		return err
	}
	match, _, err := m.loadLocked(payload.MatchID)
	if err != nil {
		return err
	}
	if match.Status == escrow.StatusCompleted {
		return delegation.ErrSessionClosed
	}
	bindings, cred, err := m.bindings[payload.MatchID].Authorize(seatsOf(match), c.signer, payload.Delegate)
	if err != nil {
		return err
	}
	authorized, err := eventPayload(cred)
	if err != nil {
		return err
	}
	m.bindings[payload.MatchID] = bindings
	m.appendEventLocked(payload.MatchID, EventSessionAuthorized, c, authorized)
	return nil
}

func (m *Machine) applyContestInputLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.ContestInputPayload](c.tx.Payload)
	if err != nil {
		return err
	}
	match, game, err := m.loadLocked(payload.MatchID)
	if err != nil {
		return err
	}
	bindings, seats := m.bindings[payload.MatchID], seatsOf(match)
	resolver := contest.ResolverFunc(func(signer identity.Identity) delegation.Side {
		return bindings.ResolveSide(seats, signer)
	})
	next, err := game.ApplyInput(resolver, c.signer, contest.Input{DX: payload.DX, DY: payload.DY})
	if err != nil {
		return err
	}
	if next.Status != contest.StatusFinished {
		m.games[payload.MatchID] = next
		return nil
	}
	finished, err := eventPayload(map[string]any{
		"winner":     next.Winner,
		"frameCount": next.FrameCount,
	})
	if err != nil {
		return err
	}
	m.games[payload.MatchID] = next
	m.appendEventLocked(payload.MatchID, EventContestFinished, c, finished)
	return nil
}

func (m *Machine) applyResultCommitLocked(c call) error {
	payload, err := protocol.DecodePayload[protocol.ResultCommitPayload](c.tx.Payload)
	if err != nil {
		return err
	}
	match, game, err := m.loadLocked(payload.MatchID)
	if err != nil {
		return err
	}
	batch := m.ledger.Begin()
	res, err := bridge.Commit(c.signer, m.genesis.ResultsAuthority, game, match, batch)
	if err != nil {
		return err
	}
	settled, err := eventPayload(res)
	if err != nil {
		return err
	}

	batch.Commit()
	m.matches[payload.MatchID] = res.Match
	delete(m.bindings, payload.MatchID)
	m.appendEventLocked(payload.MatchID, EventMatchSettled, c, settled)
	return nil
}

func (m *Machine) loadLocked(matchID uint64) (escrow.MatchState, contest.GameState, error) {
	match, ok := m.matches[matchID]
	if !ok {
		return escrow.MatchState{}, contest.GameState{}, fmt.Errorf("%w: %d", escrow.ErrMatchNotFound, matchID)
	}
	game, ok := m.games[matchID]
	if !ok {
		return escrow.MatchState{}, contest.GameState{}, fmt.Errorf("%w: %d", ErrGameNotFound, matchID)
	}
	return match, game, nil
}

// credentialPayload encodes cred, or returns nil when no session was granted.
func credentialPayload(cred *delegation.Credential) (json.RawMessage, error) {
	if cred == nil {
		return nil, nil
	}
	return eventPayload(cred)
}

func seatsOf(match escrow.MatchState) delegation.Seats {
	return delegation.Seats{One: match.PlayerOne, Two: match.PlayerTwo}
}

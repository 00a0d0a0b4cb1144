package state

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hardstakes/arena/internal/domain/bridge"
	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/delegation"
	"github.com/hardstakes/arena/internal/domain/escrow"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/ledger"
	"github.com/hardstakes/arena/internal/p2p/protocol"
)

type party struct {
	id   identity.Identity
	priv ed25519.PrivateKey
}

type fixture struct {
	t         *testing.T
	m         *Machine
	treasury  party
	authority party
	seq       int
	at        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		treasury:  mustParty(t),
		authority: mustParty(t),
		at:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.m = NewMachine(Genesis{
		ResultsAuthority: f.authority.id,
		Treasury:         f.treasury.id,
		Contest:          contest.DefaultParams(),
	})
	return f
}

func (f *fixture) tx(p party, op protocol.Operation, payload any) protocol.Tx {
	f.t.Helper()
	f.seq++
	f.at = f.at.Add(time.Second)
	return signedTx(f.t, p.priv, fmt.Sprintf("tx-%04d", f.seq), f.at, op, payload)
}

func (f *fixture) apply(p party, op protocol.Operation, payload any) error {
	f.t.Helper()
	return f.m.ApplyTx(f.tx(p, op, payload))
}

func (f *fixture) mustApply(p party, op protocol.Operation, payload any) {
	f.t.Helper()
	if err := f.apply(p, op, payload); err != nil {
		f.t.Fatalf("apply %s: %v", op, err)
	}
}

func (f *fixture) credit(p party, amount uint64) {
	f.t.Helper()
	f.mustApply(f.treasury, protocol.OpAccountCredit, protocol.AccountCreditPayload{Account: p.id, Amount: amount})
}

func (f *fixture) snapshot() []byte {
	f.t.Helper()
	raw, err := f.m.Marshal()
	if err != nil {
		f.t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestMachineEndToEnd(t *testing.T) {
	f := newFixture(t)
	alice, bob, aliceSession, house := mustParty(t), mustParty(t), mustParty(t), mustParty(t)
	f.credit(alice, 1000)
	f.credit(bob, 1000)

	f.mustApply(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{
		MatchID:    1,
		Stake:      500,
		Admin:      house.id,
		SessionKey: &aliceSession.id,
	})
	f.mustApply(bob, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 1})

	match, _ := f.m.GetMatch(1)
	if match.Status != escrow.StatusActive || f.m.Balance(match.Vault()) != 1000 {
		t.Fatalf("expected active match with 1000 in vault, got %s / %d", match.Status, f.m.Balance(match.Vault()))
	}

	// The bound delegate replaces alice as the signer for side one.
	if err := f.apply(alice, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 1, DX: 1}); !errors.Is(err, contest.ErrUnauthorized) {
		t.Fatalf("expected principal to be unauthorized while a delegate is bound, got %v", err)
	}

	inputs := make([]protocol.ContestInputPayload, 0, 50)
	for i := 0; i < 2; i++ {
		inputs = append(inputs, protocol.ContestInputPayload{MatchID: 1, DY: 1})
	}
	for i := 0; i < 9; i++ {
		inputs = append(inputs, protocol.ContestInputPayload{MatchID: 1, DX: 1})
	}
	for i := 0; i < 39; i++ {
		inputs = append(inputs, protocol.ContestInputPayload{MatchID: 1, DX: -1})
	}
	for i, in := range inputs {
		f.mustApply(aliceSession, protocol.OpContestInput, in)
		game, _ := f.m.GetGame(1)
		if finished := game.Status == contest.StatusFinished; finished != (i == len(inputs)-1) {
			t.Fatalf("input %d: unexpected contest status %s", i+1, game.Status)
		}
	}

	game, _ := f.m.GetGame(1)
	if game.FrameCount != 50 || game.P1Pos != (contest.Vec{X: -500, Y: 20}) || !game.Winner.Is(bob.id) {
		t.Fatalf("unexpected final game: %+v", game)
	}
	if err := f.apply(bob, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 1, DX: 1}); !errors.Is(err, contest.ErrNotActive) {
		t.Fatalf("expected finished contest to reject input, got %v", err)
	}
	if pending := f.m.PendingCommits(10); len(pending) != 1 || pending[0] != 1 {
		t.Fatalf("expected match 1 pending commit, got %v", pending)
	}

	if err := f.apply(bob, protocol.OpResultCommit, protocol.ResultCommitPayload{MatchID: 1}); !errors.Is(err, bridge.ErrUnauthorized) {
		t.Fatalf("expected only the results authority to commit, got %v", err)
	}
	f.mustApply(f.authority, protocol.OpResultCommit, protocol.ResultCommitPayload{MatchID: 1})
	if err := f.apply(f.authority, protocol.OpResultCommit, protocol.ResultCommitPayload{MatchID: 1}); !errors.Is(err, bridge.ErrAlreadySettled) {
		t.Fatalf("expected second commit to fail with already settled, got %v", err)
	}

	match, _ = f.m.GetMatch(1)
	if match.Status != escrow.StatusCompleted || !match.Winner.Is(bob.id) {
		t.Fatalf("unexpected settled match: %+v", match)
	}
	want := map[identity.Identity]uint64{alice.id: 500, bob.id: 1480, house.id: 20, match.Vault(): 0}
	for id, amount := range want {
		if got := f.m.Balance(id); got != amount {
			t.Fatalf("balance %s: want %d, got %d", id, amount, got)
		}
	}
	if _, ok := f.m.GetBindings(1); ok {
		t.Fatalf("expected session bindings to be dropped at settlement")
	}
	if err := f.apply(alice, protocol.OpSessionAuthorize, protocol.SessionAuthorizePayload{MatchID: 1, Delegate: aliceSession.id}); !errors.Is(err, delegation.ErrSessionClosed) {
		t.Fatalf("expected session closed, got %v", err)
	}

	events := f.m.ListEvents(1, 100, 0)
	if len(events) != 5 || events[0].Type != EventMatchSettled {
		t.Fatalf("unexpected events: %+v", events)
	}
	stats := f.m.StateStats()
	if stats.CompletedMatches != 1 || stats.PendingCommits != 0 || stats.Supply != 2000 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMachineRejectedTxLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	alice, bob, poor, mallory := mustParty(t), mustParty(t), mustParty(t), mustParty(t)
	f.credit(alice, 1000)
	f.credit(bob, 1000)
	f.credit(poor, 10)
	f.mustApply(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 7, Stake: 400, Admin: f.treasury.id})

	before := f.snapshot()
	rejected := []struct {
		name    string
		signer  party
		op      protocol.Operation
		payload any
		want    error
	}{
		{"join own match", alice, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 7}, escrow.ErrSamePlayer},
		{"join without funds", poor, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 7}, ledger.ErrInsufficientFunds},
		{"join with conflicting delegate", bob, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 7, SessionKey: &alice.id}, delegation.ErrDelegateConflict},
		{"open taken id", bob, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 7, Stake: 1, Admin: f.treasury.id}, escrow.ErrMatchExists},
		{"open zero stake", bob, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 8, Stake: 0, Admin: f.treasury.id}, escrow.ErrInvalidAmount},
		{"credit from outsider", mallory, protocol.OpAccountCredit, protocol.AccountCreditPayload{Account: mallory.id, Amount: 5}, ErrNotTreasury},
		{"input before join", alice, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 7, DX: 1}, contest.ErrNotActive},
		{"input from outsider", mallory, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 7, DX: 1}, contest.ErrUnauthorized},
		{"commit unfinished", f.authority, protocol.OpResultCommit, protocol.ResultCommitPayload{MatchID: 7}, bridge.ErrNotFinished},
		{"unknown match", alice, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 99}, escrow.ErrMatchNotFound},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			err := f.apply(tc.signer, tc.op, tc.payload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if after := f.snapshot(); !bytes.Equal(before, after) {
				t.Fatalf("state changed after rejected tx")
			}
		})
	}
}

func TestMachineRejectsJoinerBoundAsDelegate(t *testing.T) {
	f := newFixture(t)
	alice, bob := mustParty(t), mustParty(t)
	f.credit(alice, 1000)
	f.credit(bob, 1000)
	f.mustApply(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 7, Stake: 100, Admin: f.treasury.id, SessionKey: &bob.id})

	before := f.snapshot()
	if err := f.apply(bob, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 7}); !errors.Is(err, delegation.ErrDelegateConflict) {
		t.Fatalf("expected delegate conflict, got %v", err)
	}
	if after := f.snapshot(); !bytes.Equal(before, after) {
		t.Fatalf("state changed after rejected join")
	}
	if side := f.m.ResolveSide(7, bob.id); side != delegation.PlayerOne {
		t.Fatalf("expected bob to remain side one's delegate only, got %s", side)
	}
	if match, _ := f.m.GetMatch(7); match.Status != escrow.StatusWaiting || match.PlayerTwo.Valid {
		t.Fatalf("expected match still waiting, got %+v", match)
	}
}

func TestMachineConcurrentJoins(t *testing.T) {
	f := newFixture(t)
	alice := mustParty(t)
	f.credit(alice, 100)
	f.mustApply(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 1, Stake: 100, Admin: f.treasury.id})

	joiners := make([]party, 8)
	txs := make([]protocol.Tx, len(joiners))
	for i := range joiners {
		joiners[i] = mustParty(t)
		f.credit(joiners[i], 100)
		txs[i] = f.tx(joiners[i], protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 1})
	}

	errs := make([]error, len(txs))
	var wg sync.WaitGroup
	for i := range txs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.m.ApplyTx(txs[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, escrow.ErrMatchFull):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful join, got %d", winners)
	}
	match, _ := f.m.GetMatch(1)
	if f.m.Balance(match.Vault()) != 200 {
		t.Fatalf("expected vault 200, got %d", f.m.Balance(match.Vault()))
	}
}

func TestMachineIgnoresReplayedTx(t *testing.T) {
	f := newFixture(t)
	alice := mustParty(t)
	tx := f.tx(f.treasury, protocol.OpAccountCredit, protocol.AccountCreditPayload{Account: alice.id, Amount: 50})
	for i := 0; i < 3; i++ {
		if err := f.m.ApplyTx(tx); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if got := f.m.Balance(alice.id); got != 50 {
		t.Fatalf("expected a single credit, got %d", got)
	}
}

func TestMachineSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	alice, bob, bobSession := mustParty(t), mustParty(t), mustParty(t)
	f.credit(alice, 300)
	f.credit(bob, 300)
	f.mustApply(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 3, Stake: 300, Admin: f.treasury.id, ContestKind: contest.KindTanks})
	f.mustApply(bob, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 3, SessionKey: &bobSession.id})
	f.mustApply(bobSession, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 3, DX: 2, DY: 3})

	raw := f.snapshot()
	restored := NewMachine(Genesis{})
	if err := restored.Unmarshal(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again, err := restored.Marshal()
	if err != nil {
		t.Fatalf("marshal restored: %v", err)
	}
	if !bytes.Equal(raw, again) {
		t.Fatalf("restored snapshot differs")
	}

	game, _ := restored.GetGame(3)
	original, _ := f.m.GetGame(3)
	if game != original || game.Kind != contest.KindTanks || game.FrameCount != 1 {
		t.Fatalf("unexpected restored game: %+v", game)
	}
	if restored.Genesis() != f.m.Genesis() {
		t.Fatalf("genesis not restored")
	}
	if restored.ResolveSide(3, bobSession.id) != delegation.PlayerTwo {
		t.Fatalf("expected restored binding to resolve to side two")
	}
}

func mustParty(t *testing.T) party {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id, err := identity.FromPublicKey(pub)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	return party{id: id, priv: priv}
}

func signedTx(t *testing.T, priv ed25519.PrivateKey, txID string, at time.Time, op protocol.Operation, payload any) protocol.Tx {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	tx := protocol.Tx{
		TxID:      txID,
		Nonce:     txID,
		Timestamp: at,
		Op:        op,
		Payload:   raw,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}

func TestEventPayloadEncoding(t *testing.T) {
	if _, err := eventPayload(map[string]any{"ratio": math.NaN()}); err == nil {
		t.Fatalf("expected unencodable payload to be rejected")
	}
	raw, err := eventPayload(map[string]any{"stake": uint64(5)})
	if err != nil || string(raw) != `{"stake":5}` {
		t.Fatalf("unexpected payload %s: %v", raw, err)
	}
	if raw, err := credentialPayload(nil); raw != nil || err != nil {
		t.Fatalf("expected no payload without a credential, got %s / %v", raw, err)
	}
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/history"
	historyMocks "github.com/hardstakes/arena/internal/domain/history/mocks"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/infrastructure/sse"
	"github.com/hardstakes/arena/internal/p2p/protocol"
	"github.com/hardstakes/arena/internal/p2p/state"
)

type fakeNode struct {
	machine *state.Machine
	leader  bool
}

func (n *fakeNode) ID() string               { return "node-1" }
func (n *fakeNode) RaftAddr() string         { return "127.0.0.1:7000" }
func (n *fakeNode) State() string            { return "Leader" }
func (n *fakeNode) IsLeader() bool           { return n.leader }
func (n *fakeNode) LeaderAddr() string       { return "127.0.0.1:7000" }
func (n *fakeNode) LeaderNodeID() string     { return "node-1" }
func (n *fakeNode) Stats() map[string]string { return map[string]string{"state": "Leader"} }
func (n *fakeNode) Machine() *state.Machine  { return n.machine }
func (n *fakeNode) ApplyTx(_ context.Context, tx protocol.Tx) error {
	return n.machine.ApplyTx(tx)
}
func (n *fakeNode) AddVoter(context.Context, string, string) error { return nil }
func (n *fakeNode) RemoveServer(context.Context, string) error     { return nil }

type signer struct {
	id   identity.Identity
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := identity.FromPublicKey(pub)
	require.NoError(t, err)
	return signer{id: id, priv: priv}
}

type harness struct {
	t        *testing.T
	node     *fakeNode
	receipts *historyMocks.MockRecorder
	srv      *httptest.Server
	treasury signer
	seq      int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{t: t, treasury: newSigner(t), receipts: historyMocks.NewMockRecorder(gomock.NewController(t))}
	h.node = &fakeNode{
		leader: true,
		machine: state.NewMachine(state.Genesis{
			ResultsAuthority: identity.Identity{42},
			Treasury:         h.treasury.id,
			Contest:          contest.DefaultParams(),
		}),
	}
	hub := sse.NewHub()
	h.node.machine.Observe(hub.Publish)
	h.srv = httptest.NewServer(NewServer(h.node, hub, h.receipts, zerolog.Nop(), opts...).Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) tx(s signer, op protocol.Operation, payload any) protocol.Tx {
	h.t.Helper()
	h.seq++
	raw, err := json.Marshal(payload)
	require.NoError(h.t, err)
	tx := protocol.Tx{
		TxID:      fmt.Sprintf("tx-%d", h.seq),
		Nonce:     fmt.Sprintf("n-%d", h.seq),
		Timestamp: time.Date(2026, 1, 1, 0, 0, h.seq, 0, time.UTC),
		Op:        op,
		Payload:   raw,
	}
	require.NoError(h.t, tx.Sign(s.priv))
	return tx
}

func (h *harness) submit(tx protocol.Tx) (int, map[string]any) {
	h.t.Helper()
	body, err := json.Marshal(tx)
	require.NoError(h.t, err)
	resp, err := http.Post(h.srv.URL+"/v1/arena/tx", "application/json", bytes.NewReader(body))
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) get(path string) (int, map[string]any) {
	h.t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// activeMatch funds two players and seats them in match 1.
func (h *harness) activeMatch() (signer, signer) {
	h.t.Helper()
	alice, bob := newSigner(h.t), newSigner(h.t)
	for _, p := range []signer{alice, bob} {
		status, _ := h.submit(h.tx(h.treasury, protocol.OpAccountCredit, protocol.AccountCreditPayload{Account: p.id, Amount: 1000}))
		require.Equal(h.t, http.StatusOK, status)
	}
	status, _ := h.submit(h.tx(alice, protocol.OpMatchOpen, protocol.MatchOpenPayload{MatchID: 1, Stake: 500, Admin: h.treasury.id}))
	require.Equal(h.t, http.StatusOK, status)
	status, _ = h.submit(h.tx(bob, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 1}))
	require.Equal(h.t, http.StatusOK, status)
	return alice, bob
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "node-1", body["nodeId"])
}

func TestSubmitTx(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		h := newHarness(t)
		alice, _ := h.activeMatch()

		status, body := h.get("/v1/arena/matches/1")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(1000), body["pot"])
		match := body["match"].(map[string]any)
		assert.Equal(t, "ACTIVE", match["status"])
		assert.Equal(t, alice.id.String(), match["playerOne"])

		status, body = h.get("/v1/arena/accounts/" + alice.id.String())
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, float64(500), body["balance"])
	})

	t.Run("rejection codes", func(t *testing.T) {
		h := newHarness(t)
		alice, _ := h.activeMatch()
		carol := newSigner(t)

		status, body := h.submit(h.tx(carol, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 1}))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "MATCH_FULL", body["error"])

		status, body = h.submit(h.tx(carol, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 1, DX: 1}))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "UNAUTHORIZED", body["error"])

		status, body = h.submit(h.tx(alice, protocol.OpResultCommit, protocol.ResultCommitPayload{MatchID: 1}))
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "UNAUTHORIZED", body["error"])

		status, body = h.submit(h.tx(alice, protocol.OpMatchJoin, protocol.MatchJoinPayload{MatchID: 9}))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "MATCH_NOT_FOUND", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newHarness(t)
		resp, err := http.Post(h.srv.URL+"/v1/arena/tx", "application/json", strings.NewReader(`{"tx_id":`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("follower redirects to leader", func(t *testing.T) {
		h := newHarness(t)
		h.node.leader = false
		status, body := h.submit(h.tx(h.treasury, protocol.OpAccountCredit, protocol.AccountCreditPayload{Account: identity.Identity{1}, Amount: 1}))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "NOT_LEADER", body["error"])
		assert.Equal(t, "127.0.0.1:7000", body["leader"])
	})
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	h.activeMatch()

	status, body := h.get("/v1/arena/matches/1/game")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ACTIVE", body["contestStatus"])
	assert.Equal(t, "SUMO", body["contestKind"])

	status, body = h.get("/v1/arena/matches/1/events?limit=1")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["events"], 1)

	status, _ = h.get("/v1/arena/matches/2")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.get("/v1/arena/matches/abc")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PARAM", body["error"])

	status, body = h.get("/v1/arena/stats")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["activeMatches"])

	status, body = h.get("/v1/arena/matches/pending")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["match_ids"])
}

func TestPlayChannel(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.activeMatch()
	mallory := newSigner(t)

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/v1/arena/matches/1/play"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	send := func(tx protocol.Tx) playFrame {
		t.Helper()
		require.NoError(t, conn.WriteJSON(tx))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame playFrame
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	frame := send(h.tx(alice, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 1, DX: 1}))
	require.Equal(t, FrameState, frame.Type)
	require.NotNil(t, frame.Game)
	assert.Equal(t, uint64(1), frame.Game.FrameCount)
	assert.Equal(t, contest.Vec{X: -190}, frame.Game.P1Pos)

	frame = send(h.tx(mallory, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 1, DX: 1}))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "UNAUTHORIZED", frame.Error)

	frame = send(h.tx(alice, protocol.OpContestInput, protocol.ContestInputPayload{MatchID: 2, DX: 1}))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "INVALID_PARAM", frame.Error)

	game, _ := h.node.machine.GetGame(1)
	assert.Equal(t, uint64(1), game.FrameCount)
}

func TestPlayOriginCheck(t *testing.T) {
	h := newHarness(t, WithAllowedOrigins([]string{"https://play.example/"}))
	h.activeMatch()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/v1/arena/matches/1/play"

	dial := func(origin string) (*http.Response, error) {
		t.Helper()
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(url, header)
		if conn != nil {
			conn.Close()
		}
		return resp, err
	}

	_, err := dial("https://play.example")
	assert.NoError(t, err)
	_, err = dial("")
	assert.NoError(t, err, "non-browser clients send no origin")
	_, err = dial(h.srv.URL)
	assert.NoError(t, err, "same host is always accepted")

	resp, err := dial("https://evil.example")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPlayUnknownMatch(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/v1/arena/matches/7/play")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "MATCH_NOT_FOUND", body["error"])
}

func TestWatchStreamsMatchEvents(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.activeMatch()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.srv.URL+"/v1/arena/matches/1/watch", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	delegate := newSigner(t)
	status, _ := h.submit(h.tx(alice, protocol.OpSessionAuthorize, protocol.SessionAuthorizePayload{MatchID: 1, Delegate: delegate.id}))
	require.Equal(t, http.StatusOK, status)

	var eventLine string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			break
		}
	}
	assert.Equal(t, state.EventSessionAuthorized, eventLine)
}

func TestWatchUnknownMatch(t *testing.T) {
	h := newHarness(t)
	status, body := h.get("/v1/arena/matches/3/watch")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "MATCH_NOT_FOUND", body["error"])
}

func TestReceipts(t *testing.T) {
	h := newHarness(t)
	winner := identity.Identity{9}
	h.receipts.EXPECT().GetByMatch(gomock.Any(), uint64(4)).Return(&history.Receipt{MatchID: 4, Winner: winner, Payout: 1960, Fee: 40}, nil)
	h.receipts.EXPECT().GetByMatch(gomock.Any(), uint64(5)).Return(nil, history.ErrReceiptNotFound)
	h.receipts.EXPECT().ListRecent(gomock.Any(), 2).Return(nil, nil)

	status, body := h.get("/v1/arena/matches/4/receipt")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, winner.String(), body["winner"])
	assert.Equal(t, float64(1960), body["payout"])

	status, body = h.get("/v1/arena/matches/5/receipt")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "RECEIPT_NOT_FOUND", body["error"])

	status, body = h.get("/v1/arena/receipts?limit=2")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["receipts"])
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/p2p/protocol"
)

const (
	playReadTimeout  = 60 * time.Second
	playWriteTimeout = 5 * time.Second
	playApplyTimeout = 5 * time.Second
	playOutQueue     = 32
)

// Frame types sent on the play channel.
const (
	FrameState = "STATE"
	FrameError = "ERROR"
)

type playFrame struct {
	Type    string             `json:"type"`
	TxID    string             `json:"tx_id,omitempty"`
	Game    *contest.GameState `json:"game,omitempty"`
	Error   string             `json:"error,omitempty"`
	Message string             `json:"message,omitempty"`
}

// play streams signed CONTEST_INPUT txs for one match. Each text frame is a
// tx; the reply is the resulting contest state or an error frame.
func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	matchID, ok := matchIDParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.node.Machine().GetGame(matchID); !ok {
		respondError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "contest not found", nil)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	logger := s.logger.With().Uint64("match_id", matchID).Str("remote", r.RemoteAddr).Logger()
	logger.Debug().Msg("play channel opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan playFrame, playOutQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-out:
				b, err := json.Marshal(frame)
				if err != nil {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(playWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(playReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		frame := s.applyPlayInput(ctx, matchID, msg)
		select {
		case out <- frame:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	logger.Debug().Msg("play channel closed")
}

func (s *Server) applyPlayInput(ctx context.Context, matchID uint64, msg []byte) playFrame {
	var tx protocol.Tx
	if err := json.Unmarshal(msg, &tx); err != nil {
		return playFrame{Type: FrameError, Error: "INVALID_PARAM", Message: err.Error()}
	}
	if tx.Op != protocol.OpContestInput {
		return playFrame{Type: FrameError, TxID: tx.TxID, Error: "INVALID_PARAM", Message: "only CONTEST_INPUT is accepted"}
	}
	payload, err := protocol.DecodePayload[protocol.ContestInputPayload](tx.Payload)
	if err != nil {
		return playFrame{Type: FrameError, TxID: tx.TxID, Error: "INVALID_PARAM", Message: err.Error()}
	}
	if payload.MatchID != matchID {
		return playFrame{Type: FrameError, TxID: tx.TxID, Error: "INVALID_PARAM", Message: fmt.Sprintf("input targets match %d", payload.MatchID)}
	}
	if !s.node.IsLeader() {
		return playFrame{Type: FrameError, TxID: tx.TxID, Error: "NOT_LEADER", Message: s.node.LeaderAddr()}
	}

	applyCtx, cancel := context.WithTimeout(ctx, playApplyTimeout)
	defer cancel()
	if err := s.node.ApplyTx(applyCtx, tx); err != nil {
		code := "NOT_LEADER"
		if !isLeadershipErr(err) {
			_, code = classify(err)
		}
		return playFrame{Type: FrameError, TxID: tx.TxID, Error: code, Message: err.Error()}
	}
	game, _ := s.node.Machine().GetGame(matchID)
	return playFrame{Type: FrameState, TxID: tx.TxID, Game: &game}
}

package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/identity"
)

func TestTxSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	payload, _ := json.Marshal(ContestInputPayload{MatchID: 1, DX: -1, DY: 1})
	tx := Tx{
		TxID:      "tx-1",
		Nonce:     "n1",
		Timestamp: time.Now().UTC(),
		Op:        OpContestInput,
		Payload:   payload,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	signer, err := tx.Signer()
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	want, _ := identity.FromPublicKey(pub)
	if signer != want {
		t.Fatalf("signer mismatch: %s != %s", signer, want)
	}

	tx.Payload, _ = json.Marshal(ContestInputPayload{MatchID: 1, DX: 1, DY: 1})
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected verify failure after tamper")
	}
}

func TestTxVerifyRejectsSwappedKey(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	other, _, _ := ed25519.GenerateKey(rand.Reader)
	payload, _ := json.Marshal(ResultCommitPayload{MatchID: 9})
	tx := Tx{TxID: "tx-2", Nonce: "n2", Timestamp: time.Now().UTC(), Op: OpResultCommit, Payload: payload}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, _ := identity.FromPublicKey(other)
	tx.PublicKey = id.String()
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected verify failure with a different public key")
	}
}

func TestValidateBasicRejectsUnknownOp(t *testing.T) {
	tx := Tx{TxID: "tx-3", Nonce: "n", Timestamp: time.Now(), Op: "STEP_CLAIM", Payload: []byte(`{}`), PublicKey: "aa", Signature: "bb"}
	if err := tx.ValidateBasic(); err == nil {
		t.Fatalf("expected unsupported op")
	}
}

func TestMatchOpenPayloadKind(t *testing.T) {
	p, err := DecodePayload[MatchOpenPayload](json.RawMessage(`{"match_id":1,"stake":500,"admin":"` +
		identity.Identity{9}.String() + `","contest_kind":"TANKS"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ContestKind != contest.KindTanks || p.SessionKey != nil {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if _, err := DecodePayload[MatchOpenPayload](json.RawMessage(`{"match_id":1,"contest_kind":"CHESS"}`)); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}

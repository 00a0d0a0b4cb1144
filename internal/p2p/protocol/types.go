package protocol

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/identity"
)

// Operation defines supported arena writes.
type Operation string

const (
	OpAccountCredit    Operation = "ACCOUNT_CREDIT"
	OpMatchOpen        Operation = "MATCH_OPEN"
	OpMatchJoin        Operation = "MATCH_JOIN"
	OpSessionAuthorize Operation = "SESSION_AUTHORIZE"
	OpContestInput     Operation = "CONTEST_INPUT"
	OpResultCommit     Operation = "RESULT_COMMIT"
)

var validOps = map[Operation]struct{}{
	OpAccountCredit:    {},
	OpMatchOpen:        {},
	OpMatchJoin:        {},
	OpSessionAuthorize: {},
	OpContestInput:     {},
	OpResultCommit:     {},
}

// Tx is the signed, replicated command envelope. The signer of a tx is the
// holder of PublicKey; there is no separate actor field to forge.
type Tx struct {
	TxID      string          `json:"tx_id"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Op        Operation       `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key"` // hex raw ed25519 public key
	Signature string          `json:"signature"`  // base64 raw signature
}

type txSignable struct {
	TxID      string          `json:"tx_id"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
	Op        Operation       `json:"op"`
	Payload   json.RawMessage `json:"payload"`
	PublicKey string          `json:"public_key"`
}

// CanonicalBytes returns the deterministic signing payload.
func (t Tx) CanonicalBytes() ([]byte, error) {
	signable := txSignable{
		TxID:      strings.TrimSpace(t.TxID),
		Nonce:     strings.TrimSpace(t.Nonce),
		Timestamp: t.Timestamp.UTC(),
		Op:        t.Op,
		Payload:   t.Payload,
		PublicKey: strings.ToLower(strings.TrimSpace(t.PublicKey)),
	}
	return json.Marshal(signable)
}

// ValidateBasic checks required immutable tx fields.
func (t Tx) ValidateBasic() error {
	if strings.TrimSpace(t.TxID) == "" {
		return errors.New("tx_id is required")
	}
	if strings.TrimSpace(t.Nonce) == "" {
		return errors.New("nonce is required")
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if _, ok := validOps[t.Op]; !ok {
		return fmt.Errorf("unsupported op: %s", t.Op)
	}
	if len(t.Payload) == 0 {
		return errors.New("payload is required")
	}
	if strings.TrimSpace(t.PublicKey) == "" {
		return errors.New("public_key is required")
	}
	if strings.TrimSpace(t.Signature) == "" {
		return errors.New("signature is required")
	}
	return nil
}

// Sign sets tx public key/signature for the given private key.
func (t *Tx) Sign(privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return errors.New("invalid private key")
	}
	t.PublicKey = hex.EncodeToString(privateKey.Public().(ed25519.PublicKey))
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	t.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))
	return nil
}

// Signer returns the identity that signed the tx. It does not verify the signature.
func (t Tx) Signer() (identity.Identity, error) {
	id, err := identity.Parse(t.PublicKey)
	if err != nil {
		return identity.Zero, fmt.Errorf("invalid public_key: %w", err)
	}
	return id, nil
}

// Verify validates tx signature using included public key.
func (t Tx) Verify() error {
	if err := t.ValidateBasic(); err != nil {
		return err
	}
	signer, err := t.Signer()
	if err != nil {
		return err
	}
	sigRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.Signature))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sigRaw) != ed25519.SignatureSize {
		return errors.New("invalid signature size")
	}
	payload, err := t.CanonicalBytes()
	if err != nil {
		return err
	}
	if !ed25519.Verify(signer.PublicKey(), payload, sigRaw) {
		return errors.New("signature verification failed")
	}
	return nil
}

// DecodePayload decodes operation payloads.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

type AccountCreditPayload struct {
	Account identity.Identity `json:"account"`
	Amount  uint64            `json:"amount"`
}

type MatchOpenPayload struct {
	MatchID     uint64             `json:"match_id"`
	Stake       uint64             `json:"stake"`
	Admin       identity.Identity  `json:"admin"`
	ContestKind contest.Kind       `json:"contest_kind"`
	SessionKey  *identity.Identity `json:"session_key,omitempty"`
}

type MatchJoinPayload struct {
	MatchID    uint64             `json:"match_id"`
	SessionKey *identity.Identity `json:"session_key,omitempty"`
}

type SessionAuthorizePayload struct {
	MatchID  uint64            `json:"match_id"`
	Delegate identity.Identity `json:"delegate"`
}

type ContestInputPayload struct {
	MatchID uint64 `json:"match_id"`
	DX      int8   `json:"dx"`
	DY      int8   `json:"dy"`
}

type ResultCommitPayload struct {
	MatchID uint64 `json:"match_id"`
}

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hardstakes/arena/internal/domain/contest"
	"github.com/hardstakes/arena/internal/domain/identity"
	"github.com/hardstakes/arena/internal/p2p/protocol"
)

type options struct {
	op         string
	txID       string
	nonce      string
	timestamp  string
	privateKey string
	whoami     bool

	matchID    uint64
	account    string
	amount     uint64
	stake      uint64
	admin      string
	kind       string
	sessionKey string
	delegate   string
	dx         int
	dy         int
}

func main() {
	var opt options

	flag.StringVar(&opt.op, "op", "", "operation: account-credit|match-open|match-join|session-authorize|contest-input|result-commit")
	flag.StringVar(&opt.txID, "tx-id", "", "tx identifier; random uuid when empty")
	flag.StringVar(&opt.nonce, "nonce", "", "nonce; random uuid when empty")
	flag.StringVar(&opt.timestamp, "timestamp", "", "RFC3339 timestamp; default now UTC")
	flag.StringVar(&opt.privateKey, "private-key", "", "hex ed25519 seed (32 bytes) or private key (64 bytes); default random")
	flag.BoolVar(&opt.whoami, "whoami", false, "print the signer identity and exit")

	flag.Uint64Var(&opt.matchID, "match-id", 1, "match identifier")
	flag.StringVar(&opt.account, "account", "", "hex identity credited by account-credit")
	flag.Uint64Var(&opt.amount, "amount", 0, "amount for account-credit")
	flag.Uint64Var(&opt.stake, "stake", 0, "per-side stake for match-open")
	flag.StringVar(&opt.admin, "admin", "", "hex fee recipient for match-open")
	flag.StringVar(&opt.kind, "kind", "SUMO", "contest kind for match-open: SUMO|TANKS")
	flag.StringVar(&opt.sessionKey, "session-key", "", "hex session key bound on match-open or match-join")
	flag.StringVar(&opt.delegate, "delegate", "", "hex delegate for session-authorize")
	flag.IntVar(&opt.dx, "dx", 0, "x input for contest-input, -128..127")
	flag.IntVar(&opt.dy, "dy", 0, "y input for contest-input, -128..127")
	flag.Parse()

	privateKey, err := loadPrivateKey(opt.privateKey)
	if err != nil {
		log.Fatal(err)
	}
	if opt.whoami {
		id, _ := identity.FromPublicKey(privateKey.Public().(ed25519.PublicKey))
		fmt.Println(id.String())
		return
	}

	op, err := parseOperation(opt.op)
	if err != nil {
		log.Fatal(err)
	}
	payload, err := buildPayload(op, opt)
	if err != nil {
		log.Fatal(err)
	}
	ts, err := parseTimestamp(opt.timestamp)
	if err != nil {
		log.Fatal(err)
	}

	tx := protocol.Tx{
		TxID:      orRandom(opt.txID),
		Nonce:     orRandom(opt.nonce),
		Timestamp: ts,
		Op:        op,
		Payload:   payload,
	}
	if err := tx.Sign(privateKey); err != nil {
		log.Fatal(err)
	}

	out, err := json.Marshal(tx)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = os.Stdout.Write(out)
}

func parseOperation(raw string) (protocol.Operation, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")) {
	case "account-credit":
		return protocol.OpAccountCredit, nil
	case "match-open":
		return protocol.OpMatchOpen, nil
	case "match-join":
		return protocol.OpMatchJoin, nil
	case "session-authorize":
		return protocol.OpSessionAuthorize, nil
	case "contest-input":
		return protocol.OpContestInput, nil
	case "result-commit":
		return protocol.OpResultCommit, nil
	default:
		return "", fmt.Errorf("unsupported op: %q", raw)
	}
}

func buildPayload(op protocol.Operation, opt options) (json.RawMessage, error) {
	switch op {
	case protocol.OpAccountCredit:
		account, err := identity.Parse(opt.account)
		if err != nil {
			return nil, fmt.Errorf("account: %w", err)
		}
		return json.Marshal(protocol.AccountCreditPayload{Account: account, Amount: opt.amount})

	case protocol.OpMatchOpen:
		admin, err := identity.Parse(opt.admin)
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		kind, err := contest.ParseKind(opt.kind)
		if err != nil {
			return nil, err
		}
		sessionKey, err := optionalIdentity(opt.sessionKey)
		if err != nil {
			return nil, fmt.Errorf("session-key: %w", err)
		}
		return json.Marshal(protocol.MatchOpenPayload{
			MatchID:     opt.matchID,
			Stake:       opt.stake,
			Admin:       admin,
			ContestKind: kind,
			SessionKey:  sessionKey,
		})

	case protocol.OpMatchJoin:
		sessionKey, err := optionalIdentity(opt.sessionKey)
		if err != nil {
			return nil, fmt.Errorf("session-key: %w", err)
		}
		return json.Marshal(protocol.MatchJoinPayload{MatchID: opt.matchID, SessionKey: sessionKey})

	case protocol.OpSessionAuthorize:
		delegate, err := identity.Parse(opt.delegate)
		if err != nil {
			return nil, fmt.Errorf("delegate: %w", err)
		}
		return json.Marshal(protocol.SessionAuthorizePayload{MatchID: opt.matchID, Delegate: delegate})

	case protocol.OpContestInput:
		if opt.dx < -128 || opt.dx > 127 || opt.dy < -128 || opt.dy > 127 {
			return nil, errors.New("dx and dy must fit in int8")
		}
		return json.Marshal(protocol.ContestInputPayload{MatchID: opt.matchID, DX: int8(opt.dx), DY: int8(opt.dy)})

	case protocol.OpResultCommit:
		return json.Marshal(protocol.ResultCommitPayload{MatchID: opt.matchID})
	}
	return nil, fmt.Errorf("unsupported op: %s", op)
}

func optionalIdentity(raw string) (*identity.Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := identity.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func orRandom(raw string) string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return uuid.NewString()
}

func parseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	return parsed.UTC(), nil
}

func loadPrivateKey(raw string) (ed25519.PrivateKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid private-key hex: %w", err)
	}
	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	default:
		return nil, fmt.Errorf("invalid private-key length: %d (expected 32 or 64 bytes)", len(decoded))
	}
}

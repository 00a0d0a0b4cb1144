package keystore

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hardstakes/arena/internal/domain/identity"
)

// Well-known key roles.
const (
	RoleAuthority = "authority"
	RoleTreasury  = "treasury"
)

var ErrKeyNotFound = errors.New("key not found")

// StaticKeyStore holds ed25519 signing keys by role, in memory.
type StaticKeyStore struct {
	keys map[string]ed25519.PrivateKey
}

// New builds a keystore from role to 32-byte seed.
func New(seeds map[string][]byte) (*StaticKeyStore, error) {
	ks := &StaticKeyStore{keys: make(map[string]ed25519.PrivateKey, len(seeds))}
	for role, seed := range seeds {
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key %q: seed must be %d bytes", role, ed25519.SeedSize)
		}
		ks.keys[role] = ed25519.NewKeyFromSeed(seed)
	}
	return ks, nil
}

// NewFromEnv builds a keystore from environment variables.
// ARENA_SIGNING_KEYS format: "role:hexseed,role2:hexseed".
// ARENA_SIGNING_KEY_<ROLE> overrides a single role.
func NewFromEnv() (*StaticKeyStore, error) {
	seeds := make(map[string][]byte)
	if raw := os.Getenv("ARENA_SIGNING_KEYS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 {
				return nil, errors.New("invalid ARENA_SIGNING_KEYS format")
			}
			seed, err := hex.DecodeString(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", parts[0], err)
			}
			seeds[strings.ToLower(strings.TrimSpace(parts[0]))] = seed
		}
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "ARENA_SIGNING_KEY_") {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		role := strings.ToLower(strings.TrimPrefix(parts[0], "ARENA_SIGNING_KEY_"))
		if len(parts) != 2 || role == "" {
			continue
		}
		seed, err := hex.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", role, err)
		}
		seeds[role] = seed
	}

	return New(seeds)
}

// SigningKey returns the private key for role.
func (s *StaticKeyStore) SigningKey(ctx context.Context, role string) (ed25519.PrivateKey, error) {
	_ = ctx
	key, ok := s.keys[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, role)
	}
	return key, nil
}

// Identity returns the public identity for role.
func (s *StaticKeyStore) Identity(role string) (identity.Identity, error) {
	key, err := s.SigningKey(context.Background(), role)
	if err != nil {
		return identity.Zero, err
	}
	return identity.FromPublicKey(key.Public().(ed25519.PublicKey))
}

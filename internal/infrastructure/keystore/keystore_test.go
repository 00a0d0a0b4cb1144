package keystore

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv(t *testing.T) {
	authority := strings.Repeat("01", ed25519.SeedSize)
	treasury := strings.Repeat("02", ed25519.SeedSize)
	t.Setenv("ARENA_SIGNING_KEYS", "authority:"+authority+", treasury:"+strings.Repeat("ff", ed25519.SeedSize))
	t.Setenv("ARENA_SIGNING_KEY_TREASURY", treasury)

	ks, err := NewFromEnv()
	require.NoError(t, err)

	key, err := ks.SigningKey(context.Background(), RoleAuthority)
	require.NoError(t, err)
	seed, _ := hex.DecodeString(authority)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)

	id, err := ks.Identity(RoleTreasury)
	require.NoError(t, err)
	seed, _ = hex.DecodeString(treasury)
	assert.Equal(t, []byte(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)), id[:])
}

func TestMissingRole(t *testing.T) {
	ks, err := New(nil)
	require.NoError(t, err)
	_, err = ks.SigningKey(context.Background(), RoleAuthority)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestInvalidSeed(t *testing.T) {
	_, err := New(map[string][]byte{RoleAuthority: {1, 2, 3}})
	assert.Error(t, err)

	t.Setenv("ARENA_SIGNING_KEYS", "authority")
	_, err = NewFromEnv()
	assert.Error(t, err)
}

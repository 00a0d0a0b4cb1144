package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the byte length of an identity (raw ed25519 public key).
const Size = ed25519.PublicKeySize

// OptionalSize is the fixed encoded length of an Optional: presence tag + payload.
const OptionalSize = 1 + Size

// Identity is an authenticated party: a raw ed25519 public key or a derived address.
type Identity [Size]byte

// Zero is the unset identity.
var Zero Identity

// FromPublicKey converts an ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != Size {
		return id, errors.New("invalid public key size")
	}
	copy(id[:], pub)
	return id, nil
}

// Parse decodes the hex text form.
func Parse(raw string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return id, fmt.Errorf("invalid identity: %w", err)
	}
	if len(b) != Size {
		return id, fmt.Errorf("invalid identity length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Identity {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id Identity) String() string { return hex.EncodeToString(id[:]) }

func (id Identity) IsZero() bool { return id == Zero }

// PublicKey returns the identity as an ed25519 key.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(append([]byte(nil), id[:]...))
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Optional is an identity that may be unset. Its binary form is always
// OptionalSize bytes so records holding it keep a fixed size.
type Optional struct {
	ID    Identity
	Valid bool
}

// Some wraps a set identity.
func Some(id Identity) Optional { return Optional{ID: id, Valid: true} }

// None is the unset optional.
func None() Optional { return Optional{} }

// Get returns the identity and whether it is set.
func (o Optional) Get() (Identity, bool) { return o.ID, o.Valid }

// Is reports whether o is set to id.
func (o Optional) Is(id Identity) bool { return o.Valid && o.ID == id }

// AppendBinary appends the tagged fixed-size encoding.
func (o Optional) AppendBinary(buf []byte) []byte {
	if !o.Valid {
		buf = append(buf, 0)
		return append(buf, Zero[:]...)
	}
	buf = append(buf, 1)
	return append(buf, o.ID[:]...)
}

// DecodeOptional reads OptionalSize bytes.
func DecodeOptional(b []byte) (Optional, error) {
	if len(b) < OptionalSize {
		return Optional{}, errors.New("short optional identity")
	}
	switch b[0] {
	case 0:
		return None(), nil
	case 1:
		var id Identity
		copy(id[:], b[1:OptionalSize])
		return Some(id), nil
	default:
		return Optional{}, fmt.Errorf("invalid optional tag: %d", b[0])
	}
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return []byte(`"` + o.ID.String() + `"`), nil
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*o = None()
		return nil
	}
	raw = strings.Trim(raw, `"`)
	id, err := Parse(raw)
	if err != nil {
		return err
	}
	*o = Some(id)
	return nil
}

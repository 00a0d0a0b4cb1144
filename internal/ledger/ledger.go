package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/blake2b"

	"github.com/hardstakes/arena/internal/domain/identity"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

const addressDomain = "hardstakes/address/v1"

// DeriveAddress deterministically derives an account address from seeds.
// Seeds are length-prefixed so distinct seed lists never collide by concatenation.
func DeriveAddress(seeds ...[]byte) identity.Identity {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write([]byte(addressDomain))
	var lenBuf [8]byte
	for _, seed := range seeds {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(seed)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(seed)
	}
	var out identity.Identity
	copy(out[:], h.Sum(nil))
	return out
}

// Ledger holds account balances. It is not safe for concurrent use; callers
// serialize access (the arena machine applies one tx at a time).
type Ledger struct {
	balances map[identity.Identity]uint64
}

func New() *Ledger {
	return &Ledger{balances: map[identity.Identity]uint64{}}
}

// Balance returns the committed balance of an account.
func (l *Ledger) Balance(id identity.Identity) uint64 {
	return l.balances[id]
}

// Begin starts an all-or-nothing batch of transfers.
func (l *Ledger) Begin() *Batch {
	return &Batch{parent: l, staged: map[identity.Identity]uint64{}}
}

// Balances returns a copy of all non-zero balances.
func (l *Ledger) Balances() map[identity.Identity]uint64 {
	out := make(map[identity.Identity]uint64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}

// Restore replaces all balances.
func (l *Ledger) Restore(balances map[identity.Identity]uint64) {
	l.balances = make(map[identity.Identity]uint64, len(balances))
	for k, v := range balances {
		if v > 0 {
			l.balances[k] = v
		}
	}
}

// Total sums all balances; used for conservation checks.
func (l *Ledger) Total() (uint64, error) {
	var total uint64
	for _, bal := range l.balances {
		sum, carry := bits.Add64(total, bal, 0)
		if carry != 0 {
			return 0, ErrBalanceOverflow
		}
		total = sum
	}
	return total, nil
}

// Batch stages balance changes against a ledger. Nothing is visible on the
// ledger until Commit; a discarded batch leaves the ledger untouched.
type Batch struct {
	parent *Ledger
	staged map[identity.Identity]uint64
	done   bool
}

func (b *Batch) Balance(id identity.Identity) uint64 {
	if v, ok := b.staged[id]; ok {
		return v
	}
	return b.parent.Balance(id)
}

// Transfer moves amount from one account to another.
func (b *Batch) Transfer(from, to identity.Identity, amount uint64) error {
	fromBal := b.Balance(from)
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	if from == to || amount == 0 {
		return nil
	}
	toBal, carry := bits.Add64(b.Balance(to), amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	b.staged[from] = fromBal - amount
	b.staged[to] = toBal
	return nil
}

// Credit mints amount into an account.
func (b *Batch) Credit(to identity.Identity, amount uint64) error {
	bal, carry := bits.Add64(b.Balance(to), amount, 0)
	if carry != 0 {
		return ErrBalanceOverflow
	}
	b.staged[to] = bal
	return nil
}

// Commit applies the staged balances to the ledger. A batch commits once.
func (b *Batch) Commit() {
	if b.done {
		return
	}
	b.done = true
	for id, bal := range b.staged {
		if bal == 0 {
			delete(b.parent.balances, id)
			continue
		}
		b.parent.balances[id] = bal
	}
}

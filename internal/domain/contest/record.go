package contest

import (
	"encoding/binary"
	"fmt"

	"github.com/hardstakes/arena/internal/domain/identity"
)

// RecordSize is the fixed encoded size of a GameState.
const RecordSize = 8 + 1 + identity.Size + identity.OptionalSize + 16 + 16 + 8 + 8 + 8 + 8 + 1 + identity.OptionalSize

// MarshalBinary encodes the fixed-size record. Integers are little-endian.
func (g GameState) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, RecordSize)
	buf = binary.LittleEndian.AppendUint64(buf, g.MatchID)
	buf = append(buf, byte(g.Kind))
	buf = append(buf, g.P1[:]...)
	buf = g.P2.AppendBinary(buf)
	buf = appendVec(buf, g.P1Pos)
	buf = appendVec(buf, g.P2Pos)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(g.P1Rot))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(g.P2Rot))
	buf = binary.LittleEndian.AppendUint64(buf, g.MapRadius)
	buf = binary.LittleEndian.AppendUint64(buf, g.FrameCount)
	buf = append(buf, byte(g.Status))
	buf = g.Winner.AppendBinary(buf)
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (g *GameState) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("game record: want %d bytes, got %d", RecordSize, len(data))
	}
	r := reader{buf: data}
	var out GameState
	out.MatchID = r.u64()
	out.Kind = Kind(r.u8())
	if !out.Kind.Valid() {
		return fmt.Errorf("game record: %w: %d", ErrInvalidKind, out.Kind)
	}
	copy(out.P1[:], r.next(identity.Size))
	var err error
	if out.P2, err = identity.DecodeOptional(r.next(identity.OptionalSize)); err != nil {
		return fmt.Errorf("game record: %w", err)
	}
	out.P1Pos = Vec{X: int64(r.u64()), Y: int64(r.u64())}
	out.P2Pos = Vec{X: int64(r.u64()), Y: int64(r.u64())}
	out.P1Rot = int64(r.u64())
	out.P2Rot = int64(r.u64())
	out.MapRadius = r.u64()
	out.FrameCount = r.u64()
	out.Status = Status(r.u8())
	if out.Status > StatusFinished {
		return fmt.Errorf("game record: invalid status %d", out.Status)
	}
	if out.Winner, err = identity.DecodeOptional(r.next(identity.OptionalSize)); err != nil {
		return fmt.Errorf("game record: %w", err)
	}
	*g = out
	return nil
}

func appendVec(buf []byte, v Vec) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.X))
	return binary.LittleEndian.AppendUint64(buf, uint64(v.Y))
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 { return r.next(1)[0] }

func (r *reader) u64() uint64 { return binary.LittleEndian.Uint64(r.next(8)) }

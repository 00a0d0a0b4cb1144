package contest

import (
	"fmt"
	"strings"
)

// Kind selects how inputs move a side. It is fixed when the contest is created.
type Kind uint8

const (
	// KindSumo moves directly by (dx, dy).
	KindSumo Kind = iota
	// KindTanks turns by dx, then drives dy along the new heading.
	KindTanks
)

// Movement constants.
const (
	Speed     int64 = 10
	FullTurn  int64 = 36000 // centi-degrees
	HalfTurn  int64 = FullTurn / 2
	TurnStep  int64 = FullTurn / headings
	UnitScale int64 = 1024
	headings        = 16
)

// unit vectors for the 16 headings, scaled by UnitScale.
var (
	headingCos = [headings]int64{1024, 946, 724, 392, 0, -392, -724, -946, -1024, -946, -724, -392, 0, 392, 724, 946}
	headingSin = [headings]int64{0, 392, 724, 946, 1024, 946, 724, 392, 0, -392, -724, -946, -1024, -946, -724, -392}
)

func (k Kind) Valid() bool { return k == KindSumo || k == KindTanks }

func (k Kind) String() string {
	switch k {
	case KindSumo:
		return "SUMO"
	case KindTanks:
		return "TANKS"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts the text form; empty means sumo.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "SUMO":
		return KindSumo, nil
	case "TANKS", "TANK":
		return KindTanks, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Pose is the movable part of one side.
type Pose struct {
	Pos Vec
	Rot int64
}

// Advance applies one input to a pose. It is total: unknown kinds leave the
// pose unchanged and out-of-range movement saturates instead of wrapping.
func Advance(kind Kind, p Pose, in Input) Pose {
	switch kind {
	case KindSumo:
		return advanceSumo(p, in)
	case KindTanks:
		return advanceTanks(p, in)
	default:
		return p
	}
}

func advanceSumo(p Pose, in Input) Pose {
	p.Pos.X = saturatingAdd(p.Pos.X, int64(in.DX)*Speed)
	p.Pos.Y = saturatingAdd(p.Pos.Y, int64(in.DY)*Speed)
	return p
}

func advanceTanks(p Pose, in Input) Pose {
	p.Rot = normalizeRotation(p.Rot + int64(in.DX)*TurnStep)
	h := p.Rot / TurnStep
	drive := int64(in.DY) * Speed
	p.Pos.X = saturatingAdd(p.Pos.X, drive*headingCos[h]/UnitScale)
	p.Pos.Y = saturatingAdd(p.Pos.Y, drive*headingSin[h]/UnitScale)
	return p
}

func normalizeRotation(rot int64) int64 {
	rot %= FullTurn
	if rot < 0 {
		rot += FullTurn
	}
	return rot
}

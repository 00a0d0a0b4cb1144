package settlement

import (
	"errors"
	"math/bits"
)

// Fee is FeeNumerator/FeeDenominator of the pot (2.00%).
const (
	FeeNumerator   uint64 = 200
	FeeDenominator uint64 = 10000
)

var ErrOverflow = errors.New("settlement arithmetic overflow")

// Split is the outcome of settling one match.
type Split struct {
	Total  uint64 `json:"total"`
	Payout uint64 `json:"payout"`
	Fee    uint64 `json:"fee"`
}

// Compute splits the pot of a two-sided stake into winner payout and house fee.
// The fee multiplies before dividing; every step is overflow-checked.
func Compute(stake uint64) (Split, error) {
	total, err := checkedMul(stake, 2)
	if err != nil {
		return Split{}, err
	}
	scaled, err := checkedMul(total, FeeNumerator)
	if err != nil {
		return Split{}, err
	}
	fee := scaled / FeeDenominator
	payout, borrow := bits.Sub64(total, fee, 0)
	if borrow != 0 {
		return Split{}, ErrOverflow
	}
	return Split{Total: total, Payout: payout, Fee: fee}, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

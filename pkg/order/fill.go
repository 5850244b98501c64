package order

import (
	"bytes"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Partial-fill accounting. Every function here is pure: it reads an Order
// snapshot and returns a value, never mutating shared state.

// RemainingCapacity returns MakerAmount - FilledAmount. An order that was
// overfilled through an unchecked ApplyFill reports zero.
func RemainingCapacity(o Order) uint64 {
	if o.FilledAmount >= o.MakerAmount {
		return 0
	}
	return o.MakerAmount - o.FilledAmount
}

// IsOrderComplete reports whether the order has been filled in full.
func IsOrderComplete(o Order) bool {
	return o.FilledAmount >= o.MakerAmount
}

// IsOrderExpired reports whether now is at or past the order's expiry.
func IsOrderExpired(o Order, now int64) bool {
	return now >= o.Expiry
}

// CanPartialFill reports whether a fill of requested maker units is allowed.
func CanPartialFill(o Order, requested uint64) bool {
	remaining := RemainingCapacity(o)
	return requested >= o.MinFillAmount &&
		requested <= remaining &&
		remaining > 0
}

// FillAmounts is the maker/taker pair for a single fill.
type FillAmounts struct {
	Maker uint64
	Taker uint64
}

// CalculateFillAmounts returns the taker amount owed for requestedMaker maker
// units: floor(requestedMaker * TakerAmount / MakerAmount). The maker absorbs
// the rounding loss. The product is computed in 256 bits; a quotient that does
// not fit in uint64 (only possible when requestedMaker > MakerAmount)
// saturates. An order with MakerAmount == 0 yields a zero taker amount.
func CalculateFillAmounts(o Order, requestedMaker uint64) FillAmounts {
	out := FillAmounts{Maker: requestedMaker}
	if o.MakerAmount == 0 {
		return out
	}

	num := new(uint256.Int).SetUint64(requestedMaker)
	num.Mul(num, uint256.NewInt(o.TakerAmount))
	num.Div(num, uint256.NewInt(o.MakerAmount))

	if !num.IsUint64() {
		out.Taker = math.MaxUint64
		return out
	}
	out.Taker = num.Uint64()
	return out
}

// ValidateFillErr checks a fill against an order snapshot and returns an
// ErrInvalidFill describing the first failed condition.
func ValidateFillErr(o Order, f Fill) error {
	if !bytes.Equal(f.OrderID, o.OrderID) {
		return fmt.Errorf("%w: fill references order %x, not %x", ErrInvalidFill, f.OrderID, o.OrderID)
	}
	if f.FilledMakerAmount == 0 || f.FilledTakerAmount == 0 {
		return fmt.Errorf("%w: fill amounts must be positive (maker=%d, taker=%d)",
			ErrInvalidFill, f.FilledMakerAmount, f.FilledTakerAmount)
	}
	// filled + amount <= maker, written to avoid uint64 wraparound
	if o.FilledAmount > o.MakerAmount || f.FilledMakerAmount > o.MakerAmount-o.FilledAmount {
		return fmt.Errorf("%w: overfill (filled=%d + fill=%d > maker=%d)",
			ErrInvalidFill, o.FilledAmount, f.FilledMakerAmount, o.MakerAmount)
	}
	if f.FilledMakerAmount < o.MinFillAmount {
		return fmt.Errorf("%w: fill %d below minimum %d", ErrInvalidFill, f.FilledMakerAmount, o.MinFillAmount)
	}
	return nil
}

// ValidateFill is the boolean form of ValidateFillErr.
func ValidateFill(o Order, f Fill) bool {
	return ValidateFillErr(o, f) == nil
}

// ApplyFill returns a copy of o with FilledAmount increased by the fill.
//
// Precondition: ValidateFill(o, f) is true. ApplyFill does not check it and
// will produce an overfilled order if called on an invalid pair. Use
// ApplyFillChecked when the caller cannot guarantee the check.
func ApplyFill(o Order, f Fill) Order {
	next := o.Clone()
	next.FilledAmount = o.FilledAmount + f.FilledMakerAmount
	return next
}

// ApplyFillChecked validates and applies in one step.
func ApplyFillChecked(o Order, f Fill) (Order, error) {
	if err := ValidateFillErr(o, f); err != nil {
		return o, err
	}
	return ApplyFill(o, f), nil
}

// BuildFill prepares a fill of requested maker units for taker, pricing the
// taker side with CalculateFillAmounts. The fill is marked partial unless it
// exhausts the order's remaining capacity.
func BuildFill(o Order, taker []byte, requested uint64, timestamp int64) (Fill, error) {
	if !CanPartialFill(o, requested) {
		return Fill{}, fmt.Errorf("%w: requested %d, remaining %d, minimum %d",
			ErrIncompleteCapacity, requested, RemainingCapacity(o), o.MinFillAmount)
	}
	amounts := CalculateFillAmounts(o, requested)
	return Fill{
		OrderID:           cloneBytes(o.OrderID),
		FillID:            NewFillID(),
		Taker:             cloneBytes(taker),
		FilledMakerAmount: amounts.Maker,
		FilledTakerAmount: amounts.Taker,
		Timestamp:         timestamp,
		Partial:           requested < RemainingCapacity(o),
	}, nil
}

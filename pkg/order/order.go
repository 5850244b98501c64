package order

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
)

// Order is a maker's standing offer to swap MakerAmount of MakerAsset for
// TakerAmount of TakerAsset. Values are immutable snapshots: accounting
// functions return a new Order instead of mutating the receiver.
//
// Invariants: FilledAmount <= MakerAmount, MinFillAmount <= MakerAmount.
type Order struct {
	OrderID       []byte
	Maker         []byte // key hash or address fragment
	MakerAsset    []byte
	TakerAsset    []byte
	MakerAmount   uint64
	TakerAmount   uint64
	FilledAmount  uint64 // cumulative maker-side amount filled so far
	MinFillAmount uint64 // smallest maker amount a single fill may take
	Expiry        int64  // order is void once current time >= Expiry
	Salt          []byte
}

// Fill is one execution against an order. Fills are immutable and are
// consumed exactly once.
type Fill struct {
	OrderID           []byte
	FillID            []byte
	Taker             []byte
	FilledMakerAmount uint64
	FilledTakerAmount uint64
	Timestamp         int64
	Partial           bool // false only when the fill exhausts remaining capacity
}

// Params mirrors the fields a maker supplies when creating an order.
// OrderID and Salt are generated when left empty.
type Params struct {
	OrderID       []byte
	Maker         []byte
	MakerAsset    []byte
	TakerAsset    []byte
	MakerAmount   uint64
	TakerAmount   uint64
	FilledAmount  uint64
	MinFillAmount uint64
	Expiry        int64
	Salt          []byte
}

// NewOrder builds an Order and checks its invariants.
func NewOrder(p Params) (Order, error) {
	o := Order{
		OrderID:       cloneBytes(p.OrderID),
		Maker:         cloneBytes(p.Maker),
		MakerAsset:    cloneBytes(p.MakerAsset),
		TakerAsset:    cloneBytes(p.TakerAsset),
		MakerAmount:   p.MakerAmount,
		TakerAmount:   p.TakerAmount,
		FilledAmount:  p.FilledAmount,
		MinFillAmount: p.MinFillAmount,
		Expiry:        p.Expiry,
		Salt:          cloneBytes(p.Salt),
	}
	if len(o.OrderID) == 0 {
		o.OrderID = newID()
	}
	if len(o.Salt) == 0 {
		o.Salt = newID()
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks the structural invariants of an order.
func (o Order) Validate() error {
	if len(o.OrderID) == 0 {
		return fmt.Errorf("%w: order_id is empty", ErrMalformedField)
	}
	if len(o.Maker) == 0 {
		return fmt.Errorf("%w: maker is empty", ErrMalformedField)
	}
	if o.MakerAmount == 0 {
		return fmt.Errorf("%w: maker_amount must be positive", ErrInvalidOrder)
	}
	if o.MinFillAmount > o.MakerAmount {
		return fmt.Errorf("%w: min_fill_amount (%d) exceeds maker_amount (%d)",
			ErrInvalidOrder, o.MinFillAmount, o.MakerAmount)
	}
	if o.FilledAmount > o.MakerAmount {
		return fmt.Errorf("%w: filled_amount (%d) exceeds maker_amount (%d)",
			ErrInvalidOrder, o.FilledAmount, o.MakerAmount)
	}
	return nil
}

// Clone returns a deep copy so callers never share byte slices.
func (o Order) Clone() Order {
	c := o
	c.OrderID = cloneBytes(o.OrderID)
	c.Maker = cloneBytes(o.Maker)
	c.MakerAsset = cloneBytes(o.MakerAsset)
	c.TakerAsset = cloneBytes(o.TakerAsset)
	c.Salt = cloneBytes(o.Salt)
	return c
}

// Rate returns the exchange ratio TakerAmount / MakerAmount for display.
// Accounting never uses it; fill amounts come from integer floor division.
func (o Order) Rate() decimal.Decimal {
	if o.MakerAmount == 0 {
		return decimal.Zero
	}
	taker := decimal.NewFromBigInt(new(big.Int).SetUint64(o.TakerAmount), 0)
	maker := decimal.NewFromBigInt(new(big.Int).SetUint64(o.MakerAmount), 0)
	return taker.DivRound(maker, 18)
}

// Serialize is order_id || maker || maker_asset || taker_asset || salt with
// no delimiters or length prefixes. It is the only input to OrderHash.
func (o Order) Serialize() []byte {
	var buf bytes.Buffer
	buf.Grow(len(o.OrderID) + len(o.Maker) + len(o.MakerAsset) + len(o.TakerAsset) + len(o.Salt))
	buf.Write(o.OrderID)
	buf.Write(o.Maker)
	buf.Write(o.MakerAsset)
	buf.Write(o.TakerAsset)
	buf.Write(o.Salt)
	return buf.Bytes()
}

// Serialize is order_id || fill_id || taker.
func (f Fill) Serialize() []byte {
	var buf bytes.Buffer
	buf.Grow(len(f.OrderID) + len(f.FillID) + len(f.Taker))
	buf.Write(f.OrderID)
	buf.Write(f.FillID)
	buf.Write(f.Taker)
	return buf.Bytes()
}

// OrderHash is the order's identity digest.
func OrderHash(o Order) hashing.Digest {
	return hashing.Orders.Sum(o.Serialize())
}

// FillHash is the fill's identity digest.
func FillHash(f Fill) hashing.Digest {
	return hashing.Orders.Sum(f.Serialize())
}

// Hash is shorthand for OrderHash(o).
func (o Order) Hash() hashing.Digest { return OrderHash(o) }

// Hash is shorthand for FillHash(f).
func (f Fill) Hash() hashing.Digest { return FillHash(f) }

func newID() []byte {
	id := uuid.New()
	return id[:]
}

// FillParams mirrors the fields of a fill record. FillID is generated when
// left empty.
type FillParams struct {
	OrderID           []byte
	FillID            []byte
	Taker             []byte
	FilledMakerAmount uint64
	FilledTakerAmount uint64
	Timestamp         int64
	Partial           bool
}

// NewFill builds a Fill record. It does not check the fill against any
// order; ValidateFill does that.
func NewFill(p FillParams) (Fill, error) {
	f := Fill{
		OrderID:           cloneBytes(p.OrderID),
		FillID:            cloneBytes(p.FillID),
		Taker:             cloneBytes(p.Taker),
		FilledMakerAmount: p.FilledMakerAmount,
		FilledTakerAmount: p.FilledTakerAmount,
		Timestamp:         p.Timestamp,
		Partial:           p.Partial,
	}
	if len(f.OrderID) == 0 {
		return Fill{}, fmt.Errorf("%w: order_id is empty", ErrMalformedField)
	}
	if len(f.Taker) == 0 {
		return Fill{}, fmt.Errorf("%w: taker is empty", ErrMalformedField)
	}
	if len(f.FillID) == 0 {
		f.FillID = newID()
	}
	return f, nil
}

// NewFillID returns a fresh random fill identifier.
func NewFillID() []byte { return newID() }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package order

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func scenarioOrder() Order {
	return Order{
		OrderID:       []byte{0x01},
		Maker:         []byte{0xaa},
		MakerAmount:   100,
		TakerAmount:   200,
		MinFillAmount: 10,
		Expiry:        500,
	}
}

func fillOf(o Order, maker uint64) Fill {
	return Fill{
		OrderID:           o.OrderID,
		FillID:            NewFillID(),
		Taker:             []byte{0xbb},
		FilledMakerAmount: maker,
		FilledTakerAmount: CalculateFillAmounts(o, maker).Taker,
	}
}

func TestPartialFillScenario(t *testing.T) {
	o := scenarioOrder()

	first := fillOf(o, 30)
	if !ValidateFill(o, first) {
		t.Fatalf("first fill rejected: %v", ValidateFillErr(o, first))
	}
	o2 := ApplyFill(o, first)
	if o2.FilledAmount != 30 {
		t.Fatalf("filled_amount = %d, want 30", o2.FilledAmount)
	}
	if o.FilledAmount != 0 {
		t.Error("ApplyFill mutated its input snapshot")
	}

	second := fillOf(o2, 80)
	if ValidateFill(o2, second) {
		t.Error("30 + 80 > 100 should be rejected")
	}
	if err := ValidateFillErr(o2, second); !errors.Is(err, ErrInvalidFill) {
		t.Errorf("err = %v, want ErrInvalidFill", err)
	}
}

func TestCalculateFillAmountsFloors(t *testing.T) {
	tests := []struct {
		name      string
		maker     uint64
		taker     uint64
		requested uint64
		want      uint64
	}{
		{"floor 10/3", 3, 10, 1, 3},
		{"exact", 100, 200, 30, 60},
		{"rounds toward zero", 7, 2, 3, 0},
		{"full order", 3, 10, 3, 10},
		{"zero maker amount", 0, 10, 5, 0},
		{"no intermediate overflow", math.MaxUint64, math.MaxUint64 - 1, math.MaxUint64, math.MaxUint64 - 1},
		{"saturates", 1, math.MaxUint64, 2, math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{MakerAmount: tt.maker, TakerAmount: tt.taker}
			got := CalculateFillAmounts(o, tt.requested)
			if got.Maker != tt.requested {
				t.Errorf("maker = %d, want %d", got.Maker, tt.requested)
			}
			if got.Taker != tt.want {
				t.Errorf("taker = %d, want %d", got.Taker, tt.want)
			}
		})
	}
}

func TestCanPartialFill(t *testing.T) {
	o := scenarioOrder()
	o.FilledAmount = 60

	tests := []struct {
		name      string
		order     Order
		requested uint64
		want      bool
	}{
		{"below minimum", o, 9, false},
		{"at minimum", o, 10, true},
		{"exactly remaining", o, 40, true},
		{"above remaining", o, 41, false},
		{"complete order", func() Order { c := o; c.FilledAmount = 100; return c }(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanPartialFill(tt.order, tt.requested); got != tt.want {
				t.Errorf("CanPartialFill(%d) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestValidateFillConditions(t *testing.T) {
	o := scenarioOrder()
	o.FilledAmount = 50

	tests := []struct {
		name  string
		fill  Fill
		valid bool
	}{
		{"valid", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 20, FilledTakerAmount: 40}, true},
		{"exhausts remaining", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 50, FilledTakerAmount: 100}, true},
		{"wrong order", Fill{OrderID: []byte{0x02}, FilledMakerAmount: 20, FilledTakerAmount: 40}, false},
		{"zero maker amount", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 0, FilledTakerAmount: 40}, false},
		{"zero taker amount", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 20, FilledTakerAmount: 0}, false},
		{"overfill", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 51, FilledTakerAmount: 102}, false},
		{"below minimum", Fill{OrderID: []byte{0x01}, FilledMakerAmount: 9, FilledTakerAmount: 18}, false},
		{"wraparound", Fill{OrderID: []byte{0x01}, FilledMakerAmount: math.MaxUint64, FilledTakerAmount: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateFill(o, tt.fill); got != tt.valid {
				t.Errorf("ValidateFill = %v, want %v (%v)", got, tt.valid, ValidateFillErr(o, tt.fill))
			}
		})
	}
}

func TestValidateFillRejectsBeyondRemainingCapacity(t *testing.T) {
	o := scenarioOrder()
	o.FilledAmount = 95
	f := Fill{OrderID: o.OrderID, FilledMakerAmount: RemainingCapacity(o) + 1, FilledTakerAmount: 1}
	o.MinFillAmount = 0
	if ValidateFill(o, f) {
		t.Error("fill larger than remaining capacity accepted")
	}
}

// ApplyFill trusts its caller. The checked variant is the safe path.
func TestApplyFillPrecondition(t *testing.T) {
	o := scenarioOrder()
	bad := Fill{OrderID: o.OrderID, FilledMakerAmount: 150, FilledTakerAmount: 1}

	if ValidateFill(o, bad) {
		t.Fatal("overfill should not validate")
	}
	unchecked := ApplyFill(o, bad)
	if unchecked.FilledAmount != 150 {
		t.Errorf("unchecked ApplyFill filled_amount = %d, want 150", unchecked.FilledAmount)
	}
	if RemainingCapacity(unchecked) != 0 {
		t.Errorf("RemainingCapacity of overfilled order = %d, want 0", RemainingCapacity(unchecked))
	}

	checked, err := ApplyFillChecked(o, bad)
	if !errors.Is(err, ErrInvalidFill) {
		t.Fatalf("ApplyFillChecked err = %v, want ErrInvalidFill", err)
	}
	if checked.FilledAmount != 0 {
		t.Errorf("ApplyFillChecked changed the order on failure")
	}
}

func TestCompleteAndExpired(t *testing.T) {
	o := scenarioOrder()
	if IsOrderComplete(o) {
		t.Error("fresh order reported complete")
	}
	o = ApplyFill(o, fillOf(o, 100))
	if !IsOrderComplete(o) {
		t.Error("fully filled order not complete")
	}
	if RemainingCapacity(o) != 0 {
		t.Errorf("remaining = %d, want 0", RemainingCapacity(o))
	}

	if IsOrderExpired(o, 499) {
		t.Error("expired before expiry")
	}
	if !IsOrderExpired(o, 500) {
		t.Error("not expired at expiry")
	}
}

func TestBuildFill(t *testing.T) {
	o := scenarioOrder()

	f, err := BuildFill(o, []byte{0xbb}, 30, 7)
	if err != nil {
		t.Fatalf("BuildFill: %v", err)
	}
	if !f.Partial || f.FilledTakerAmount != 60 || f.Timestamp != 7 {
		t.Errorf("unexpected fill %+v", f)
	}
	if !ValidateFill(o, f) {
		t.Errorf("built fill does not validate: %v", ValidateFillErr(o, f))
	}

	last, err := BuildFill(o, []byte{0xbb}, 100, 8)
	if err != nil {
		t.Fatalf("BuildFill(full): %v", err)
	}
	if last.Partial {
		t.Error("fill exhausting capacity marked partial")
	}

	if _, err := BuildFill(o, []byte{0xbb}, 5, 9); !errors.Is(err, ErrIncompleteCapacity) {
		t.Errorf("err = %v, want ErrIncompleteCapacity", err)
	}
}

// After any sequence of validated fills, 0 <= filled_amount <= maker_amount.
func TestFilledAmountInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		o := Order{
			OrderID:       []byte{byte(round)},
			MakerAmount:   uint64(rng.Intn(1000) + 1),
			TakerAmount:   uint64(rng.Intn(1000) + 1),
			MinFillAmount: uint64(rng.Intn(20)),
		}
		if o.MinFillAmount > o.MakerAmount {
			o.MinFillAmount = o.MakerAmount
		}
		for i := 0; i < 50; i++ {
			f := Fill{
				OrderID:           o.OrderID,
				FilledMakerAmount: uint64(rng.Intn(int(o.MakerAmount) + 10)),
				FilledTakerAmount: uint64(rng.Intn(5)),
			}
			if ValidateFill(o, f) {
				o = ApplyFill(o, f)
			}
			if o.FilledAmount > o.MakerAmount {
				t.Fatalf("round %d: filled %d exceeds maker %d", round, o.FilledAmount, o.MakerAmount)
			}
		}
	}
}

package merkle

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

// ErrRootMismatch means a published root does not match its orders.
var ErrRootMismatch = errors.New("merkle root mismatch")

// Batch is the published form of a commitment: the root plus the ordered
// orders it covers. Any verifier can recompute Root from Orders.
type Batch struct {
	Root      hashing.Digest `json:"root"`
	Orders    []order.Order  `json:"orders"`
	CreatedAt int64          `json:"createdAt,omitempty"`
}

// NewBatch commits to orders in the given order.
func NewBatch(orders []order.Order, createdAt int64) Batch {
	cp := make([]order.Order, len(orders))
	for i, o := range orders {
		cp[i] = o.Clone()
	}
	return Batch{Root: Root(cp), Orders: cp, CreatedAt: createdAt}
}

// Verify recomputes the root and compares it with the published one.
func (b Batch) Verify() error {
	got := Root(b.Orders)
	if got != b.Root {
		return fmt.Errorf("%w: published %s, recomputed %s", ErrRootMismatch, b.Root, got)
	}
	return nil
}

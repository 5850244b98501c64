// Package merkle commits to an ordered sequence of orders with a binary
// Merkle tree. The root is position-sensitive: the same orders in a
// different order produce a different root. Nothing is sorted or deduplicated.
package merkle

import (
	"fmt"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

// Kind tags the three node variants.
type Kind uint8

const (
	Empty  Kind = iota // no orders
	Leaf               // one order
	Branch             // two children
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case Leaf:
		return "Leaf"
	case Branch:
		return "Node"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Node is one arena slot. Left and Right index into the owning Tree and are
// -1 for Empty and Leaf nodes. Order is set only on leaves.
type Node struct {
	Kind  Kind
	Hash  hashing.Digest
	Order order.Order
	Left  int
	Right int

	lo, hi int // half-open span of input positions covered
}

// Tree is an immutable arena of nodes. Children always sit at higher
// indices than their parent; the root is index 0.
type Tree struct {
	nodes []Node
	size  int
}

// Build folds orders into a tree. Ranges split at floor(len/2): the left
// child takes the first half, the right child the remainder. Interior
// hashes are Combine(left.Hash, right.Hash); leaf hashes are OrderHash.
//
// Construction is iterative: a top-down pass allocates nodes with an
// explicit stack, then a reverse sweep hashes children before parents.
func Build(orders []order.Order) *Tree {
	t := &Tree{size: len(orders)}
	if len(orders) == 0 {
		t.nodes = []Node{{Kind: Empty, Hash: hashing.Empty, Left: -1, Right: -1}}
		return t
	}

	t.nodes = make([]Node, 0, 2*len(orders)-1)
	t.nodes = append(t.nodes, Node{lo: 0, hi: len(orders), Left: -1, Right: -1})

	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		lo, hi := t.nodes[idx].lo, t.nodes[idx].hi
		if hi-lo == 1 {
			t.nodes[idx].Kind = Leaf
			t.nodes[idx].Order = orders[lo].Clone()
			continue
		}

		mid := lo + (hi-lo)/2
		left := len(t.nodes)
		t.nodes = append(t.nodes, Node{lo: lo, hi: mid, Left: -1, Right: -1})
		right := len(t.nodes)
		t.nodes = append(t.nodes, Node{lo: mid, hi: hi, Left: -1, Right: -1})

		t.nodes[idx].Kind = Branch
		t.nodes[idx].Left = left
		t.nodes[idx].Right = right
		stack = append(stack, right, left)
	}

	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := &t.nodes[i]
		switch n.Kind {
		case Leaf:
			n.Hash = order.OrderHash(n.Order)
		case Branch:
			n.Hash = hashing.Combine(t.nodes[n.Left].Hash, t.nodes[n.Right].Hash)
		}
	}
	return t
}

// Root computes only the root digest of orders.
func Root(orders []order.Order) hashing.Digest {
	return Build(orders).Hash()
}

// Hash returns the root digest. An empty tree hashes to hashing.Empty.
func (t *Tree) Hash() hashing.Digest { return t.nodes[0].Hash }

// Root returns the root node.
func (t *Tree) Root() Node { return t.nodes[0] }

// Node returns the node at arena index i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// Len is the number of orders committed to.
func (t *Tree) Len() int { return t.size }

// NodeCount is the number of arena slots (2n-1 for n > 0 orders).
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Leaves returns the committed orders in input order.
func (t *Tree) Leaves() []order.Order {
	out := make([]order.Order, t.size)
	for _, n := range t.nodes {
		if n.Kind == Leaf {
			out[n.lo] = n.Order
		}
	}
	return out
}

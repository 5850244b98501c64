package merkle

import (
	"fmt"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

// ProofStep is one sibling on the path from a leaf to the root.
// SiblingLeft means the sibling hash goes on the left when combining.
type ProofStep struct {
	Sibling     hashing.Digest `json:"sibling"`
	SiblingLeft bool           `json:"siblingLeft"`
}

// Proof lists siblings from the leaf upward.
type Proof []ProofStep

// Proof builds the inclusion proof for the order at position i.
func (t *Tree) Proof(i int) (Proof, error) {
	if i < 0 || i >= t.size {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", i, t.size)
	}

	var path Proof
	idx := 0
	for t.nodes[idx].Kind == Branch {
		n := t.nodes[idx]
		left, right := t.nodes[n.Left], t.nodes[n.Right]
		if i < left.hi {
			path = append(path, ProofStep{Sibling: right.Hash, SiblingLeft: false})
			idx = n.Left
		} else {
			path = append(path, ProofStep{Sibling: left.Hash, SiblingLeft: true})
			idx = n.Right
		}
	}

	// collected root-down; verification walks leaf-up
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path, nil
}

// VerifyProof reports whether o is committed to by root through proof.
func VerifyProof(root hashing.Digest, o order.Order, proof Proof) bool {
	h := order.OrderHash(o)
	for _, step := range proof {
		if step.SiblingLeft {
			h = hashing.Combine(step.Sibling, h)
		} else {
			h = hashing.Combine(h, step.Sibling)
		}
	}
	return h == root
}

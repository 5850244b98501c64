package merkle

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

func makeOrders(n int) []order.Order {
	out := make([]order.Order, n)
	for i := range out {
		out[i] = order.Order{
			OrderID:     []byte{byte(i >> 8), byte(i)},
			Maker:       []byte{0xaa},
			MakerAsset:  []byte{0x01},
			TakerAsset:  []byte{0x02},
			MakerAmount: 100,
			TakerAmount: 100,
			Salt:        []byte{byte(i * 7)},
		}
	}
	return out
}

// recursiveRoot is the textbook recursive definition used as an oracle.
func recursiveRoot(orders []order.Order) hashing.Digest {
	switch len(orders) {
	case 0:
		return hashing.Empty
	case 1:
		return order.OrderHash(orders[0])
	}
	cut := len(orders) / 2
	return hashing.Combine(recursiveRoot(orders[:cut]), recursiveRoot(orders[cut:]))
}

func TestBuildEmpty(t *testing.T) {
	tree := Build(nil)
	if tree.Root().Kind != Empty {
		t.Errorf("root kind = %v, want Empty", tree.Root().Kind)
	}
	if tree.Hash() != hashing.Empty {
		t.Errorf("empty root = %s, want sentinel", tree.Hash())
	}
	if tree.Len() != 0 || len(tree.Leaves()) != 0 {
		t.Error("empty tree reports leaves")
	}
}

func TestBuildSingle(t *testing.T) {
	orders := makeOrders(1)
	tree := Build(orders)
	root := tree.Root()
	if root.Kind != Leaf {
		t.Fatalf("root kind = %v, want Leaf", root.Kind)
	}
	if root.Hash != order.OrderHash(orders[0]) {
		t.Error("leaf hash != order hash")
	}
	if root.Left != -1 || root.Right != -1 {
		t.Error("leaf has children")
	}
}

func TestBuildMatchesRecursiveDefinition(t *testing.T) {
	for n := 0; n <= 33; n++ {
		orders := makeOrders(n)
		if got, want := Root(orders), recursiveRoot(orders); got != want {
			t.Errorf("n=%d: root %s, want %s", n, got, want)
		}
	}
}

func TestSplitShape(t *testing.T) {
	// 3 orders: left takes floor(3/2)=1, right takes 2
	tree := Build(makeOrders(3))
	root := tree.Root()
	if root.Kind != Branch {
		t.Fatalf("root kind = %v, want Node", root.Kind)
	}
	if tree.Node(root.Left).Kind != Leaf {
		t.Errorf("left child kind = %v, want Leaf", tree.Node(root.Left).Kind)
	}
	if tree.Node(root.Right).Kind != Branch {
		t.Errorf("right child kind = %v, want Node", tree.Node(root.Right).Kind)
	}
	if tree.NodeCount() != 5 {
		t.Errorf("node count = %d, want 5", tree.NodeCount())
	}
}

func TestBuildDeterministic(t *testing.T) {
	orders := makeOrders(10)
	a, b := Build(orders), Build(orders)
	if a.Hash() != b.Hash() {
		t.Fatal("rebuilding produced a different root")
	}
	for i := 0; i < a.NodeCount(); i++ {
		if a.Node(i).Kind != b.Node(i).Kind || a.Node(i).Hash != b.Node(i).Hash {
			t.Fatalf("node %d differs between builds", i)
		}
	}
}

func TestRootIsPositionSensitive(t *testing.T) {
	orders := makeOrders(4)
	base := Root(orders)

	swapped := append([]order.Order{}, orders...)
	swapped[0], swapped[3] = swapped[3], swapped[0]
	if Root(swapped) == base {
		t.Error("permuting orders did not change the root")
	}

	changed := append([]order.Order{}, orders...)
	changed[2].Salt = []byte{0xff}
	if Root(changed) == base {
		t.Error("changing one order did not change the root")
	}
}

func TestLeavesPreserveOrder(t *testing.T) {
	orders := makeOrders(7)
	leaves := Build(orders).Leaves()
	for i := range orders {
		if order.OrderHash(leaves[i]) != order.OrderHash(orders[i]) {
			t.Errorf("leaf %d out of position", i)
		}
	}
}

func TestProofs(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		orders := makeOrders(n)
		tree := Build(orders)
		for i := range orders {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("n=%d i=%d: %v", n, i, err)
			}
			if !VerifyProof(tree.Hash(), orders[i], proof) {
				t.Errorf("n=%d i=%d: proof does not verify", n, i)
			}
			other := orders[(i+1)%n]
			if n > 1 && VerifyProof(tree.Hash(), other, proof) {
				t.Errorf("n=%d i=%d: proof verifies a different order", n, i)
			}
		}
	}

	if _, err := Build(makeOrders(2)).Proof(2); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestBatchVerify(t *testing.T) {
	batch := NewBatch(makeOrders(6), 1700000000)
	if err := batch.Verify(); err != nil {
		t.Fatalf("fresh batch: %v", err)
	}

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Batch
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := decoded.Verify(); err != nil {
		t.Errorf("decoded batch: %v", err)
	}

	decoded.Orders[0], decoded.Orders[1] = decoded.Orders[1], decoded.Orders[0]
	if err := decoded.Verify(); !errors.Is(err, ErrRootMismatch) {
		t.Errorf("reordered batch err = %v, want ErrRootMismatch", err)
	}
}

package storage

import (
	"fmt"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
)

// Key schema:
//
//	ord:<orderID hex>                    → OrderRecord (JSON)
//	fill:<orderID hex>:<version>         → Fill (JSON), version zero-padded
//	fid:<fillID hex>                     → orderID, dedupe index
//	batch:<root hex>                     → Batch (JSON)
//	lock:<txhash hex>#<index>            → LockRecord (gob)
const (
	prefixOrder  = "ord:"
	prefixFill   = "fill:"
	prefixFillID = "fid:"
	prefixBatch  = "batch:"
	prefixLock   = "lock:"
)

func orderKey(orderID []byte) []byte {
	return []byte(fmt.Sprintf("%s%x", prefixOrder, orderID))
}

// fillKey sorts fills of one order by the version they produced.
func fillKey(orderID []byte, version uint64) []byte {
	return []byte(fmt.Sprintf("%s%x:%020d", prefixFill, orderID, version))
}

func fillPrefix(orderID []byte) []byte {
	return []byte(fmt.Sprintf("%s%x:", prefixFill, orderID))
}

func fillIDKey(fillID []byte) []byte {
	return []byte(fmt.Sprintf("%s%x", prefixFillID, fillID))
}

func batchKey(root hashing.Digest) []byte {
	return []byte(fmt.Sprintf("%s%x", prefixBatch, root[:]))
}

func lockKey(ref settlement.OutRef) []byte {
	return []byte(fmt.Sprintf("%s%x#%d", prefixLock, ref.TxHash[:], ref.Index))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

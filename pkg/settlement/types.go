package settlement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderExists    = errors.New("order already exists")
	ErrDuplicateFill  = errors.New("fill already applied")
	ErrStaleSnapshot  = errors.New("stale order snapshot")
	ErrBatchNotFound  = errors.New("batch not found")
	ErrLockNotFound   = errors.New("locked output not found")
	ErrLockExists     = errors.New("locked output already registered")
	ErrBadMakerSig    = errors.New("maker signature invalid")
	ErrRetryExhausted = errors.New("fill retries exhausted")
)

// OrderRecord is a stored order snapshot. Version increases by one with
// every applied fill and guards compare-and-swap updates.
type OrderRecord struct {
	Order   order.Order `json:"order"`
	Version uint64      `json:"version"`
}

// OutRef identifies a locked output: funding transaction hash and index.
type OutRef struct {
	TxHash hashing.Digest
	Index  uint32
}

func (r OutRef) String() string { return fmt.Sprintf("%s#%d", r.TxHash, r.Index) }

// ParseOutRef parses "txhash#index".
func ParseOutRef(s string) (OutRef, error) {
	hashPart, idxPart, ok := strings.Cut(s, "#")
	if !ok {
		return OutRef{}, fmt.Errorf("%w: out ref %q missing '#'", htlc.ErrMalformedInput, s)
	}
	h, err := hashing.DigestFromHex(hashPart)
	if err != nil {
		return OutRef{}, fmt.Errorf("%w: out ref: %v", htlc.ErrMalformedInput, err)
	}
	idx, err := strconv.ParseUint(idxPart, 10, 32)
	if err != nil {
		return OutRef{}, fmt.Errorf("%w: out ref index: %v", htlc.ErrMalformedInput, err)
	}
	return OutRef{TxHash: h, Index: uint32(idx)}, nil
}

// LockRecord tracks one locked output from Lock until its single spend.
type LockRecord struct {
	Ref      OutRef
	Datum    htlc.Datum
	Locker   []byte // signer of the funding transaction's first input
	Status   htlc.Status
	LockedAt uint64
	SpentAt  uint64
	Action   htlc.ActionKind
}

// SpendRequest is an attempt to spend a locked output. Witnesses are
// secp256k1 signatures over SpendMessage(Ref, Redeemer).
type SpendRequest struct {
	Ref       OutRef
	Redeemer  htlc.Redeemer
	Witnesses [][]byte
}

// SpendMessage is the byte string every witness signs: the RLP list
// (txhash, index, secret).
func SpendMessage(ref OutRef, r htlc.Redeemer) []byte {
	msg, err := rlp.EncodeToBytes([]interface{}{ref.TxHash[:], ref.Index, r.Secret})
	if err != nil {
		// byte slices and uints always encode
		panic(fmt.Errorf("encode spend message: %w", err))
	}
	return msg
}

// MakerMessage is the byte string a maker signs when submitting an order:
// the RLP list (order_hash, maker_amount, taker_amount, min_fill_amount,
// expiry). OrderHash alone leaves the amounts and expiry unsigned.
func MakerMessage(o order.Order) []byte {
	h := o.Hash()
	msg, err := rlp.EncodeToBytes([]interface{}{h[:], o.MakerAmount, o.TakerAmount, o.MinFillAmount, uint64(o.Expiry)})
	if err != nil {
		// byte slices and uints always encode
		panic(fmt.Errorf("encode maker message: %w", err))
	}
	return msg
}

// Store persists coordinator state. Implementations live in pkg/storage.
type Store interface {
	CreateOrder(rec OrderRecord) error
	GetOrder(orderID []byte) (OrderRecord, error)
	ListOrders() ([]OrderRecord, error)
	// CommitFill atomically replaces the order at prevVersion with next and
	// records f. It fails with ErrStaleSnapshot if the stored version moved
	// and ErrDuplicateFill if f.FillID was already recorded.
	CommitFill(prevVersion uint64, next OrderRecord, f order.Fill) error
	ListFills(orderID []byte) ([]order.Fill, error)

	SaveBatch(b merkle.Batch) error
	GetBatch(root hashing.Digest) (merkle.Batch, error)

	CreateLock(rec LockRecord) error
	GetLock(ref OutRef) (LockRecord, error)
	// SpendLock replaces a LOCKED record with rec. It fails with
	// htlc.ErrAlreadySpent if the output already left LOCKED.
	SpendLock(rec LockRecord) error
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
)

// PebbleStore persists coordinator state in a Pebble database. Writes that
// check current state first hold mu, and multi-key writes go through one
// batch so an order snapshot and its fill land together.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// get copies the value at key into a fresh slice. ok is false when the key
// is absent.
func (s *PebbleStore) get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

func (s *PebbleStore) CreateOrder(rec settlement.OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(rec.Order.OrderID)
	_, exists, err := s.get(key)
	if err != nil {
		return fmt.Errorf("failed to get order: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %x", settlement.ErrOrderExists, rec.Order.OrderID)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetOrder(orderID []byte) (settlement.OrderRecord, error) {
	data, ok, err := s.get(orderKey(orderID))
	if err != nil {
		return settlement.OrderRecord{}, fmt.Errorf("failed to get order: %w", err)
	}
	if !ok {
		return settlement.OrderRecord{}, fmt.Errorf("%w: %x", settlement.ErrOrderNotFound, orderID)
	}
	var rec settlement.OrderRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return settlement.OrderRecord{}, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return rec, nil
}

// ListOrders returns all orders sorted by order ID.
func (s *PebbleStore) ListOrders() ([]settlement.OrderRecord, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []settlement.OrderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec settlement.OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order %s: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

func (s *PebbleStore) CommitFill(prevVersion uint64, next settlement.OrderRecord, f order.Fill) error {
	orderData, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	fillData, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fill: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.GetOrder(next.Order.OrderID)
	if err != nil {
		return err
	}
	_, dup, err := s.get(fillIDKey(f.FillID))
	if err != nil {
		return fmt.Errorf("failed to get fill id: %w", err)
	}
	if dup {
		return fmt.Errorf("%w: %x", settlement.ErrDuplicateFill, f.FillID)
	}
	if cur.Version != prevVersion {
		return fmt.Errorf("%w: have v%d, want v%d", settlement.ErrStaleSnapshot, cur.Version, prevVersion)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(orderKey(next.Order.OrderID), orderData, nil); err != nil {
		return err
	}
	if err := b.Set(fillKey(f.OrderID, next.Version), fillData, nil); err != nil {
		return err
	}
	if err := b.Set(fillIDKey(f.FillID), f.OrderID, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit fill: %w", err)
	}
	return nil
}

// ListFills returns fills in commit order.
func (s *PebbleStore) ListFills(orderID []byte) ([]order.Fill, error) {
	if _, err := s.GetOrder(orderID); err != nil {
		return nil, err
	}
	prefix := fillPrefix(orderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	fills := []order.Fill{}
	for iter.First(); iter.Valid(); iter.Next() {
		var f order.Fill
		if err := json.Unmarshal(iter.Value(), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fill %s: %w", iter.Key(), err)
		}
		fills = append(fills, f)
	}
	return fills, iter.Error()
}

func (s *PebbleStore) SaveBatch(b merkle.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := s.db.Set(batchKey(b.Root), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetBatch(root hashing.Digest) (merkle.Batch, error) {
	data, ok, err := s.get(batchKey(root))
	if err != nil {
		return merkle.Batch{}, fmt.Errorf("failed to get batch: %w", err)
	}
	if !ok {
		return merkle.Batch{}, fmt.Errorf("%w: %s", settlement.ErrBatchNotFound, root)
	}
	var b merkle.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return merkle.Batch{}, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	return b, nil
}

func (s *PebbleStore) CreateLock(rec settlement.LockRecord) error {
	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := lockKey(rec.Ref)
	_, exists, err := s.get(key)
	if err != nil {
		return fmt.Errorf("failed to get lock: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", settlement.ErrLockExists, rec.Ref)
	}
	return s.db.Set(key, val, pebble.Sync)
}

func (s *PebbleStore) GetLock(ref settlement.OutRef) (settlement.LockRecord, error) {
	val, ok, err := s.get(lockKey(ref))
	if err != nil {
		return settlement.LockRecord{}, fmt.Errorf("failed to get lock: %w", err)
	}
	if !ok {
		return settlement.LockRecord{}, fmt.Errorf("%w: %s", settlement.ErrLockNotFound, ref)
	}
	var rec settlement.LockRecord
	if err := decodeGob(val, &rec); err != nil {
		return settlement.LockRecord{}, fmt.Errorf("decode lock: %w", err)
	}
	return rec, nil
}

func (s *PebbleStore) SpendLock(rec settlement.LockRecord) error {
	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.GetLock(rec.Ref)
	if err != nil {
		return err
	}
	if cur.Status != htlc.StatusLocked {
		return fmt.Errorf("%w: %s is %s", htlc.ErrAlreadySpent, rec.Ref, cur.Status)
	}
	return s.db.Set(lockKey(rec.Ref), val, pebble.Sync)
}

var _ settlement.Store = (*PebbleStore)(nil)

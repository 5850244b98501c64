package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/settlement"
)

// MemoryStore keeps all state in process memory. One mutex covers every
// map so check-and-set updates are atomic.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[string]settlement.OrderRecord
	fills   map[string][]order.Fill
	fillIDs map[string]struct{}
	batches map[hashing.Digest]merkle.Batch
	locks   map[settlement.OutRef]settlement.LockRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]settlement.OrderRecord),
		fills:   make(map[string][]order.Fill),
		fillIDs: make(map[string]struct{}),
		batches: make(map[hashing.Digest]merkle.Batch),
		locks:   make(map[settlement.OutRef]settlement.LockRecord),
	}
}

func (s *MemoryStore) CreateOrder(rec settlement.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(rec.Order.OrderID)
	if _, ok := s.orders[k]; ok {
		return fmt.Errorf("%w: %x", settlement.ErrOrderExists, rec.Order.OrderID)
	}
	rec.Order = rec.Order.Clone()
	s.orders[k] = rec
	return nil
}

func (s *MemoryStore) GetOrder(orderID []byte) (settlement.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[string(orderID)]
	if !ok {
		return settlement.OrderRecord{}, fmt.Errorf("%w: %x", settlement.ErrOrderNotFound, orderID)
	}
	rec.Order = rec.Order.Clone()
	return rec, nil
}

// ListOrders returns all orders sorted by order ID.
func (s *MemoryStore) ListOrders() ([]settlement.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.orders))
	for k := range s.orders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]settlement.OrderRecord, 0, len(keys))
	for _, k := range keys {
		rec := s.orders[k]
		rec.Order = rec.Order.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) CommitFill(prevVersion uint64, next settlement.OrderRecord, f order.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(next.Order.OrderID)
	cur, ok := s.orders[k]
	if !ok {
		return fmt.Errorf("%w: %x", settlement.ErrOrderNotFound, next.Order.OrderID)
	}
	if _, dup := s.fillIDs[string(f.FillID)]; dup {
		return fmt.Errorf("%w: %x", settlement.ErrDuplicateFill, f.FillID)
	}
	if cur.Version != prevVersion {
		return fmt.Errorf("%w: have v%d, want v%d", settlement.ErrStaleSnapshot, cur.Version, prevVersion)
	}
	next.Order = next.Order.Clone()
	s.orders[k] = next
	s.fills[k] = append(s.fills[k], f)
	s.fillIDs[string(f.FillID)] = struct{}{}
	return nil
}

// ListFills returns fills in commit order.
func (s *MemoryStore) ListFills(orderID []byte) ([]order.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[string(orderID)]; !ok {
		return nil, fmt.Errorf("%w: %x", settlement.ErrOrderNotFound, orderID)
	}
	fills := s.fills[string(orderID)]
	out := make([]order.Fill, len(fills))
	copy(out, fills)
	return out, nil
}

func (s *MemoryStore) SaveBatch(b merkle.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.Root] = b
	return nil
}

func (s *MemoryStore) GetBatch(root hashing.Digest) (merkle.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[root]
	if !ok {
		return merkle.Batch{}, fmt.Errorf("%w: %s", settlement.ErrBatchNotFound, root)
	}
	return b, nil
}

func (s *MemoryStore) CreateLock(rec settlement.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[rec.Ref]; ok {
		return fmt.Errorf("%w: %s", settlement.ErrLockExists, rec.Ref)
	}
	s.locks[rec.Ref] = rec
	return nil
}

func (s *MemoryStore) GetLock(ref settlement.OutRef) (settlement.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.locks[ref]
	if !ok {
		return settlement.LockRecord{}, fmt.Errorf("%w: %s", settlement.ErrLockNotFound, ref)
	}
	return rec, nil
}

func (s *MemoryStore) SpendLock(rec settlement.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[rec.Ref]
	if !ok {
		return fmt.Errorf("%w: %s", settlement.ErrLockNotFound, rec.Ref)
	}
	if cur.Status != htlc.StatusLocked {
		return fmt.Errorf("%w: %s is %s", htlc.ErrAlreadySpent, rec.Ref, cur.Status)
	}
	s.locks[rec.Ref] = rec
	return nil
}

var _ settlement.Store = (*MemoryStore)(nil)

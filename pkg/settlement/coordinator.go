package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapsettle/pkg/crypto"
	"github.com/uhyunpark/swapsettle/pkg/hashing"
	"github.com/uhyunpark/swapsettle/pkg/htlc"
	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
	"github.com/uhyunpark/swapsettle/pkg/util"
)

// Options tunes a Coordinator.
type Options struct {
	// FillRetries bounds how often a fill is re-validated against a fresh
	// snapshot after losing a compare-and-swap race.
	FillRetries int
	// RequireMakerSig rejects orders without a maker signature over
	// MakerMessage.
	RequireMakerSig bool
}

func DefaultOptions() Options {
	return Options{FillRetries: 3}
}

// Coordinator serializes state changes around the pure accounting and
// validator functions: fills are applied with optimistic check-and-set,
// and each locked output is spent at most once.
type Coordinator struct {
	store   Store
	clock   util.Clock
	logger  *zap.SugaredLogger
	journal Journal
	opts    Options
}

// Journal receives one line per state change, in commit order.
type Journal interface {
	Append(line string)
}

type nopJournal struct{}

func (nopJournal) Append(string) {}

func NewCoordinator(store Store, clock util.Clock, logger *zap.SugaredLogger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.FillRetries < 1 {
		opts.FillRetries = 1
	}
	return &Coordinator{store: store, clock: clock, logger: logger, journal: nopJournal{}, opts: opts}
}

// SetJournal routes state-change lines to j.
func (c *Coordinator) SetJournal(j Journal) {
	if j == nil {
		j = nopJournal{}
	}
	c.journal = j
}

func (c *Coordinator) now() uint64 { return util.Slot(c.clock) }

// SubmitOrder stores a new order at version 0. When makerSig is present (or
// required) it must be a signature over MakerMessage by the key whose
// address equals the order's Maker field.
func (c *Coordinator) SubmitOrder(ctx context.Context, o order.Order, makerSig []byte) (OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return OrderRecord{}, err
	}
	if err := o.Validate(); err != nil {
		return OrderRecord{}, err
	}
	if len(makerSig) > 0 || c.opts.RequireMakerSig {
		if err := verifyMaker(o, makerSig); err != nil {
			c.logger.Warnw("order_rejected", "order_id", fmt.Sprintf("%x", o.OrderID), "err", err)
			return OrderRecord{}, err
		}
	}

	rec := OrderRecord{Order: o.Clone()}
	if err := c.store.CreateOrder(rec); err != nil {
		return OrderRecord{}, err
	}
	c.journal.Append(fmt.Sprintf("ORDER %x %s", o.OrderID, o.Hash()))
	c.logger.Infow("order_submitted",
		"order_id", fmt.Sprintf("%x", o.OrderID),
		"order_hash", o.Hash().String(),
		"maker_amount", o.MakerAmount,
		"taker_amount", o.TakerAmount,
		"min_fill", o.MinFillAmount,
		"expiry", o.Expiry)
	return rec, nil
}

func verifyMaker(o order.Order, sig []byte) error {
	if len(o.Maker) != common.AddressLength {
		return fmt.Errorf("%w: maker is not a %d-byte key hash", ErrBadMakerSig, common.AddressLength)
	}
	if !crypto.VerifySignature(common.BytesToAddress(o.Maker), crypto.MessageHash(MakerMessage(o)), sig) {
		return ErrBadMakerSig
	}
	return nil
}

// Order returns the latest snapshot.
func (c *Coordinator) Order(ctx context.Context, orderID []byte) (OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return OrderRecord{}, err
	}
	return c.store.GetOrder(orderID)
}

// Fills returns the fills applied to an order.
func (c *Coordinator) Fills(ctx context.Context, orderID []byte) ([]order.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.ListFills(orderID)
}

// ApplyFill validates f against the latest snapshot and commits it. A lost
// race re-reads the snapshot and validates again; validation is never
// skipped before a commit.
func (c *Coordinator) ApplyFill(ctx context.Context, f order.Fill) (OrderRecord, error) {
	for attempt := 0; attempt < c.opts.FillRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return OrderRecord{}, err
		}

		rec, err := c.store.GetOrder(f.OrderID)
		if err != nil {
			return OrderRecord{}, err
		}
		if order.IsOrderExpired(rec.Order, int64(c.now())) {
			return rec, fmt.Errorf("%w: expiry %d", order.ErrExpiredOrder, rec.Order.Expiry)
		}
		if err := order.ValidateFillErr(rec.Order, f); err != nil {
			c.logger.Warnw("fill_rejected",
				"order_id", fmt.Sprintf("%x", f.OrderID),
				"fill_id", fmt.Sprintf("%x", f.FillID),
				"err", err)
			return rec, err
		}
		// fills arrive pre-built, so the taker side must meet the order's price
		if floor := order.CalculateFillAmounts(rec.Order, f.FilledMakerAmount).Taker; f.FilledTakerAmount < floor {
			err := fmt.Errorf("%w: taker amount %d below price floor %d", order.ErrInvalidFill, f.FilledTakerAmount, floor)
			c.logger.Warnw("fill_rejected",
				"order_id", fmt.Sprintf("%x", f.OrderID),
				"fill_id", fmt.Sprintf("%x", f.FillID),
				"err", err)
			return rec, err
		}

		next := OrderRecord{Order: order.ApplyFill(rec.Order, f), Version: rec.Version + 1}
		err = c.store.CommitFill(rec.Version, next, f)
		switch {
		case err == nil:
			c.journal.Append(fmt.Sprintf("FILL %x %x %d %d v%d", f.OrderID, f.FillID, f.FilledMakerAmount, f.FilledTakerAmount, next.Version))
			c.logger.Infow("fill_applied",
				"order_id", fmt.Sprintf("%x", f.OrderID),
				"fill_id", fmt.Sprintf("%x", f.FillID),
				"fill_hash", f.Hash().String(),
				"maker_amount", f.FilledMakerAmount,
				"taker_amount", f.FilledTakerAmount,
				"filled", next.Order.FilledAmount,
				"remaining", order.RemainingCapacity(next.Order),
				"complete", order.IsOrderComplete(next.Order))
			return next, nil
		case errors.Is(err, ErrStaleSnapshot):
			c.logger.Debugw("fill_retry", "fill_id", fmt.Sprintf("%x", f.FillID), "attempt", attempt+1)
			continue
		default:
			return rec, err
		}
	}
	return OrderRecord{}, fmt.Errorf("%w after %d attempts", ErrRetryExhausted, c.opts.FillRetries)
}

// RequestFill prices a fill of requested maker units for taker and applies it.
func (c *Coordinator) RequestFill(ctx context.Context, orderID, taker []byte, requested uint64) (order.Fill, OrderRecord, error) {
	rec, err := c.Order(ctx, orderID)
	if err != nil {
		return order.Fill{}, OrderRecord{}, err
	}
	f, err := order.BuildFill(rec.Order, taker, requested, int64(c.now()))
	if err != nil {
		return order.Fill{}, rec, err
	}
	next, err := c.ApplyFill(ctx, f)
	return f, next, err
}

// Candidates lists orders that are unexpired and could take a fill of
// requested maker units.
func (c *Coordinator) Candidates(ctx context.Context, requested uint64) ([]OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := c.store.ListOrders()
	if err != nil {
		return nil, err
	}
	now := int64(c.now())
	out := make([]OrderRecord, 0, len(all))
	for _, rec := range all {
		if order.IsOrderExpired(rec.Order, now) || !order.CanPartialFill(rec.Order, requested) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CommitBatch commits to the current snapshots of orderIDs, in the order
// given, and stores the batch under its root.
func (c *Coordinator) CommitBatch(ctx context.Context, orderIDs [][]byte) (merkle.Batch, error) {
	orders := make([]order.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			return merkle.Batch{}, err
		}
		rec, err := c.store.GetOrder(id)
		if err != nil {
			return merkle.Batch{}, fmt.Errorf("batch order %x: %w", id, err)
		}
		orders = append(orders, rec.Order)
	}

	batch := merkle.NewBatch(orders, int64(c.now()))
	if err := c.store.SaveBatch(batch); err != nil {
		return merkle.Batch{}, err
	}
	c.journal.Append(fmt.Sprintf("BATCH %s %d", batch.Root, len(orders)))
	c.logger.Infow("batch_committed", "root", batch.Root.String(), "orders", len(orders))
	return batch, nil
}

// Batch loads a committed batch.
func (c *Coordinator) Batch(ctx context.Context, root hashing.Digest) (merkle.Batch, error) {
	if err := ctx.Err(); err != nil {
		return merkle.Batch{}, err
	}
	return c.store.GetBatch(root)
}

// Lock registers a locked output. locker is the signer of the funding
// transaction's first input and is the only party that can refund.
func (c *Coordinator) Lock(ctx context.Context, ref OutRef, d htlc.Datum, locker []byte) (LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return LockRecord{}, err
	}
	if len(d.Receiver) == 0 {
		return LockRecord{}, fmt.Errorf("%w: datum receiver is empty", htlc.ErrMalformedInput)
	}
	if len(locker) == 0 {
		return LockRecord{}, fmt.Errorf("%w: locker is empty", htlc.ErrMalformedInput)
	}
	rec := LockRecord{
		Ref:      ref,
		Datum:    d,
		Locker:   append([]byte(nil), locker...),
		Status:   htlc.StatusLocked,
		LockedAt: c.now(),
	}
	if err := c.store.CreateLock(rec); err != nil {
		return LockRecord{}, err
	}
	c.journal.Append(fmt.Sprintf("LOCK %s %s %d %t", ref, d.Hash, d.Timelock, d.IsDeposit))
	c.logger.Infow("output_locked",
		"out_ref", ref.String(),
		"hash_lock", d.Hash.String(),
		"timelock", d.Timelock,
		"deposit", d.IsDeposit)
	return rec, nil
}

// LockState returns the tracked state of a locked output.
func (c *Coordinator) LockState(ctx context.Context, ref OutRef) (LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return LockRecord{}, err
	}
	return c.store.GetLock(ref)
}

// Spend evaluates a spend attempt and, if authorized, moves the output to
// its terminal status. Only the first authorized spend wins.
func (c *Coordinator) Spend(ctx context.Context, req SpendRequest) (LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return LockRecord{}, err
	}
	rec, err := c.store.GetLock(req.Ref)
	if err != nil {
		return LockRecord{}, err
	}
	if rec.Status != htlc.StatusLocked {
		return rec, fmt.Errorf("%w: %s is %s", htlc.ErrAlreadySpent, req.Ref, rec.Status)
	}

	signers, err := crypto.RecoverSigners(SpendMessage(req.Ref, req.Redeemer), req.Witnesses)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", htlc.ErrMalformedInput, err)
	}

	now := c.now()
	if err := htlc.Check(rec.Datum, req.Redeemer, signers, now, rec.Locker); err != nil {
		c.logger.Warnw("spend_rejected", "out_ref", req.Ref.String(), "now", now, "err", err)
		return rec, err
	}

	action := htlc.ActionFor(rec.Datum, req.Redeemer)
	status, err := htlc.Transition(rec.Status, action)
	if err != nil {
		return rec, err
	}

	next := rec
	next.Status = status
	next.SpentAt = now
	next.Action = action.Kind()
	if err := c.store.SpendLock(next); err != nil {
		return rec, err
	}
	c.journal.Append(fmt.Sprintf("SPEND %s %s %d", req.Ref, status, now))
	c.logger.Infow("output_spent", "out_ref", req.Ref.String(), "action", action.Kind(), "status", status)
	return next, nil
}

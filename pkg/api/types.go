package api

import (
	"encoding/json"

	"github.com/uhyunpark/swapsettle/pkg/merkle"
	"github.com/uhyunpark/swapsettle/pkg/order"
)

// API request and response types. Byte strings travel as 0x-hex.

// ==============================
// Orders and fills
// ==============================

// SubmitOrderRequest carries an order in its wire form plus an optional
// maker signature over the order hash.
type SubmitOrderRequest struct {
	Order    json.RawMessage `json:"order"`
	MakerSig string          `json:"makerSig,omitempty"`
}

// OrderInfo is an order snapshot with derived state.
type OrderInfo struct {
	Order     order.Order `json:"order"`
	Version   uint64      `json:"version"`
	Hash      string      `json:"hash"`
	Rate      string      `json:"rate"`      // taker units per maker unit
	Remaining uint64      `json:"remaining"` // maker units still fillable
	Complete  bool        `json:"complete"`
	Expired   bool        `json:"expired"`
}

// FillRequest asks the coordinator to price and apply a fill of Amount
// maker units for Taker.
type FillRequest struct {
	Taker  string `json:"taker"`
	Amount uint64 `json:"amount"`
}

// FillResult is an applied fill and the order it produced.
type FillResult struct {
	Fill     order.Fill `json:"fill"`
	FillHash string     `json:"fillHash"`
	Order    OrderInfo  `json:"order"`
}

// ==============================
// Batches
// ==============================

type CommitBatchRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type ProofResponse struct {
	Root  string       `json:"root"`
	Index int          `json:"index"`
	Leaf  string       `json:"leaf"`
	Path  merkle.Proof `json:"path"`
}

type VerifyBatchResponse struct {
	Valid      bool   `json:"valid"`
	Root       string `json:"root"`
	Recomputed string `json:"recomputed"`
}

// BatchInfo wraps a committed batch.
type BatchInfo struct {
	merkle.Batch
	Count int `json:"count"`
}

// ==============================
// HTLC
// ==============================

// AuthorizeRequest evaluates a spend without touching coordinator state.
// Datum and Redeemer are the RLP wire encodings.
type AuthorizeRequest struct {
	Datum            string   `json:"datum"`
	Redeemer         string   `json:"redeemer"`
	Signers          []string `json:"signers"`
	Now              uint64   `json:"now"`
	FirstInputSigner string   `json:"firstInputSigner"`
}

type AuthorizeResponse struct {
	Authorized bool   `json:"authorized"`
	Action     string `json:"action"`
	Reason     string `json:"reason,omitempty"`
}

// LockRequest registers a locked output under Ref ("txhash#index").
type LockRequest struct {
	Ref    string `json:"ref"`
	Datum  string `json:"datum"`
	Locker string `json:"locker"`
}

type SpendRequest struct {
	Redeemer  string   `json:"redeemer"`
	Witnesses []string `json:"witnesses"`
}

// LockInfo is the tracked state of a locked output.
type LockInfo struct {
	Ref       string `json:"ref"`
	HashLock  string `json:"hashLock"`
	Receiver  string `json:"receiver"`
	Timelock  uint64 `json:"timelock"`
	IsDeposit bool   `json:"isDeposit"`
	Locker    string `json:"locker"`
	Status    string `json:"status"`
	LockedAt  uint64 `json:"lockedAt"`
	SpentAt   uint64 `json:"spentAt,omitempty"`
	Action    string `json:"action,omitempty"`
}

// ==============================
// Script
// ==============================

type ScriptRequest struct {
	CompiledCode string `json:"compiledCode"`
	Version      string `json:"version,omitempty"`
	Network      string `json:"network,omitempty"`
}

type ScriptInfo struct {
	Hash    string `json:"hash"`
	Address string `json:"address"`
	Version string `json:"version"`
	Network string `json:"network"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

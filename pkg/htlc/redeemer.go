package htlc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Redeemer is the wire shape of a spend input: a single byte string.
// Non-empty means reveal; empty means refund or deposit claim, and only the
// datum's IsDeposit flag tells those two apart.
type Redeemer struct {
	Secret []byte
}

// HasSecret reports whether the redeemer carries a preimage.
func (r Redeemer) HasSecret() bool { return len(r.Secret) > 0 }

// EncodeRedeemer serializes r as an RLP byte string.
func EncodeRedeemer(r Redeemer) ([]byte, error) {
	return rlp.EncodeToBytes(r.Secret)
}

// DecodeRedeemer parses an RLP byte string.
func DecodeRedeemer(b []byte) (Redeemer, error) {
	var secret []byte
	if err := rlp.DecodeBytes(b, &secret); err != nil {
		return Redeemer{}, fmt.Errorf("%w: redeemer: %v", ErrMalformedInput, err)
	}
	return Redeemer{Secret: secret}, nil
}

// ActionKind names the three ways a locked output can be spent.
type ActionKind string

const (
	ActionReveal       ActionKind = "REVEAL"
	ActionRefund       ActionKind = "REFUND"
	ActionClaimDeposit ActionKind = "CLAIM_DEPOSIT"
)

// Action is the application-level view of a redeemer. The wire format
// conflates refund and deposit claim; Action keeps them distinct.
type Action interface {
	Kind() ActionKind
	// Redeemer converts the action back to its wire shape.
	Redeemer() Redeemer
	isAction()
}

// Reveal claims the main output by revealing the secret.
type Reveal struct{ Secret []byte }

// Refund reclaims the main output after the timelock.
type Refund struct{}

// ClaimDeposit claims a safety-deposit output.
type ClaimDeposit struct{}

func (Reveal) Kind() ActionKind       { return ActionReveal }
func (Refund) Kind() ActionKind       { return ActionRefund }
func (ClaimDeposit) Kind() ActionKind { return ActionClaimDeposit }

func (a Reveal) Redeemer() Redeemer     { return Redeemer{Secret: a.Secret} }
func (Refund) Redeemer() Redeemer       { return Redeemer{} }
func (ClaimDeposit) Redeemer() Redeemer { return Redeemer{} }

func (Reveal) isAction()       {}
func (Refund) isAction()       {}
func (ClaimDeposit) isAction() {}

// ActionFor interprets a wire redeemer against its datum. On a deposit
// output any redeemer is a deposit claim: the secret plays no role there.
func ActionFor(d Datum, r Redeemer) Action {
	switch {
	case d.IsDeposit:
		return ClaimDeposit{}
	case r.HasSecret():
		return Reveal{Secret: r.Secret}
	default:
		return Refund{}
	}
}

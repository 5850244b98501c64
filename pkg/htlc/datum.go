package htlc

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
)

var (
	// ErrMalformedInput means a datum or redeemer failed to decode.
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnauthorized means a spend attempt does not satisfy any path.
	ErrUnauthorized = errors.New("unauthorized")
)

// SecretSize is the length of secrets generated by NewSecret.
const SecretSize = 32

// Datum holds the lock parameters attached to a locked output.
type Datum struct {
	Hash      hashing.Digest // Keccak-256 of the secret
	Receiver  []byte         // party entitled to claim with the secret or deposit
	Timelock  uint64         // slot after which the locker may refund
	IsDeposit bool           // safety-deposit output rather than the main value
}

// datumWire is the positional tuple (hash, receiver, timelock, isDeposit).
// RLP encodes struct fields as an ordered list with no field names.
type datumWire struct {
	Hash      []byte
	Receiver  []byte
	Timelock  uint64
	IsDeposit bool
}

// NewDatum commits to secret for receiver.
func NewDatum(secret, receiver []byte, timelock uint64, isDeposit bool) Datum {
	r := make([]byte, len(receiver))
	copy(r, receiver)
	return Datum{
		Hash:      HashSecret(secret),
		Receiver:  r,
		Timelock:  timelock,
		IsDeposit: isDeposit,
	}
}

// HashSecret is the commitment scheme for HTLC secrets.
func HashSecret(secret []byte) hashing.Digest {
	return hashing.Secrets.Sum(secret)
}

// NewSecret returns a random preimage.
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

// EncodeDatum serializes d as an RLP list.
func EncodeDatum(d Datum) ([]byte, error) {
	return rlp.EncodeToBytes(datumWire{
		Hash:      d.Hash[:],
		Receiver:  d.Receiver,
		Timelock:  d.Timelock,
		IsDeposit: d.IsDeposit,
	})
}

// DecodeDatum parses an RLP datum and checks field shapes.
func DecodeDatum(b []byte) (Datum, error) {
	var w datumWire
	if err := rlp.DecodeBytes(b, &w); err != nil {
		return Datum{}, fmt.Errorf("%w: datum: %v", ErrMalformedInput, err)
	}
	hash, err := hashing.DigestFromBytes(w.Hash)
	if err != nil {
		return Datum{}, fmt.Errorf("%w: datum hash: %v", ErrMalformedInput, err)
	}
	if len(w.Receiver) == 0 {
		return Datum{}, fmt.Errorf("%w: datum receiver is empty", ErrMalformedInput)
	}
	return Datum{
		Hash:      hash,
		Receiver:  w.Receiver,
		Timelock:  w.Timelock,
		IsDeposit: w.IsDeposit,
	}, nil
}

// Package hashing holds the digest types and the hash functions each layer
// commits to: SHA3-256 for orders and Merkle nodes, Keccak-256 for HTLC
// secrets, and truncated BLAKE2b-256 for script identity.
package hashing

import (
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Digest is a 256-bit content hash.
type Digest [32]byte

// ScriptHash is the 224-bit identity of a compiled script.
type ScriptHash [28]byte

// Empty is the sentinel digest of an empty commitment.
var Empty Digest

func (d Digest) String() string { return hex.EncodeToString(d[:]) }
func (d Digest) Bytes() []byte  { return d[:] }
func (d Digest) IsEmpty() bool  { return d == Empty }

func (h ScriptHash) String() string { return hex.EncodeToString(h[:]) }
func (h ScriptHash) Bytes() []byte  { return h[:] }

// DigestFromBytes copies b into a Digest. b must be exactly 32 bytes.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromHex parses a 64-char hex digest (with or without 0x prefix).
func DigestFromHex(s string) (Digest, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid digest hex: %w", err)
	}
	return DigestFromBytes(b)
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := DigestFromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Hasher produces a 256-bit digest. Implementations are not interchangeable:
// each layer of the system commits to one specific algorithm.
type Hasher interface {
	Sum(data []byte) Digest
	Name() string
}

// SHA3 is FIPS-202 SHA3-256. Order identity and Merkle combination commit to it.
type SHA3 struct{}

func (SHA3) Name() string { return "sha3-256" }

func (SHA3) Sum(data []byte) Digest {
	return Digest(sha3.Sum256(data))
}

// Keccak is the pre-standard Keccak-256 (Ethereum variant, 0x01 padding).
// HTLC secret commitments use it.
type Keccak struct{}

func (Keccak) Name() string { return "keccak-256" }

func (Keccak) Sum(data []byte) Digest {
	var d Digest
	copy(d[:], ethcrypto.Keccak256(data))
	return d
}

var (
	_ Hasher = SHA3{}
	_ Hasher = Keccak{}
)

// Orders is the hasher used for order/fill identity and Merkle nodes.
var Orders Hasher = SHA3{}

// Secrets is the hasher used for HTLC secret commitments.
var Secrets Hasher = Keccak{}

// Combine hashes left || right with the order hasher.
func Combine(left, right Digest) Digest {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return Orders.Sum(buf[:])
}

// TruncatedBlake2b256 returns the first 28 bytes of BLAKE2b-256(data). This
// is not BLAKE2b-224: the digest length is part of the BLAKE2b parameter
// block, so the two differ.
func TruncatedBlake2b256(data []byte) ScriptHash {
	sum := blake2b.Sum256(data)
	var out ScriptHash
	copy(out[:], sum[:len(out)])
	return out
}

// Blake2b224 returns the first 28 bytes of BLAKE2b-256(tag || payload).
func Blake2b224(tag byte, payload []byte) ScriptHash {
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, tag)
	buf = append(buf, payload...)
	return TruncatedBlake2b256(buf)
}

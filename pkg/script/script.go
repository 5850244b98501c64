// Package script derives the identity and address of a compiled validator.
package script

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/uhyunpark/swapsettle/pkg/hashing"
)

// Version is the one-byte language tag prepended before hashing.
type Version byte

const (
	PlutusV1 Version = 0x01
	PlutusV2 Version = 0x02
	PlutusV3 Version = 0x03
)

func (v Version) String() string { return fmt.Sprintf("PlutusV%d", byte(v)) }

// ParseVersion accepts "v1".."v3" or "PlutusV1".."PlutusV3".
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "plutus") {
	case "v1":
		return PlutusV1, nil
	case "v2":
		return PlutusV2, nil
	case "v3":
		return PlutusV3, nil
	default:
		return 0, fmt.Errorf("unknown script version %q", s)
	}
}

// Network selects the address header and human-readable prefix.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(s)) {
	case Testnet:
		return Testnet, nil
	case Mainnet:
		return Mainnet, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// Hash is the 28-byte script identity: BLAKE2b-256(version || compiled)[:28].
func Hash(v Version, compiled []byte) hashing.ScriptHash {
	return hashing.Blake2b224(byte(v), compiled)
}

// HashHex hashes hex-encoded compiled code as found in blueprint files.
func HashHex(v Version, compiledHex string) (hashing.ScriptHash, error) {
	compiled, err := hex.DecodeString(compiledHex)
	if err != nil {
		return hashing.ScriptHash{}, fmt.Errorf("invalid compiled code hex: %w", err)
	}
	return Hash(v, compiled), nil
}

// enterprise address headers: type 0b0111 (script payment, no stake part)
const (
	headerTestnet = 0x70
	headerMainnet = 0x71
)

// Address encodes an enterprise script address for h on network.
func Address(h hashing.ScriptHash, network Network) (string, error) {
	var (
		header byte
		hrp    string
	)
	switch network {
	case Testnet:
		header, hrp = headerTestnet, "addr_test"
	case Mainnet:
		header, hrp = headerMainnet, "addr"
	default:
		return "", fmt.Errorf("unknown network %q", network)
	}

	payload := make([]byte, 0, 1+len(h))
	payload = append(payload, header)
	payload = append(payload, h[:]...)

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	return bech32.Encode(hrp, conv)
}

// ParseAddress decodes an enterprise script address back to its hash.
func ParseAddress(addr string) (hashing.ScriptHash, Network, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return hashing.ScriptHash{}, "", fmt.Errorf("invalid address: %w", err)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return hashing.ScriptHash{}, "", fmt.Errorf("invalid address payload: %w", err)
	}

	var h hashing.ScriptHash
	if len(payload) != 1+len(h) {
		return h, "", fmt.Errorf("address payload is %d bytes, want %d", len(payload), 1+len(h))
	}

	var network Network
	switch {
	case hrp == "addr_test" && payload[0] == headerTestnet:
		network = Testnet
	case hrp == "addr" && payload[0] == headerMainnet:
		network = Mainnet
	default:
		return h, "", fmt.Errorf("not a script address (hrp=%s header=%#x)", hrp, payload[0])
	}
	copy(h[:], payload[1:])
	return h, network, nil
}

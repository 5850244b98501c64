package htlc

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := rlp.EncodeToBytes(v)
	if err != nil {
		t.Fatalf("rlp encode: %v", err)
	}
	return b
}

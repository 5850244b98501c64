package htlc

import (
	"bytes"
	"fmt"
)

// Check decides whether a spend of a locked output is authorized and, if
// not, why. It is a pure function of its inputs; the caller supplies the
// signer set of the spending transaction, the current slot, and the signer
// of the funding transaction's first input (the locker).
//
//   - Deposit output: the receiver must sign. Secret and timelock are ignored.
//   - Main output, secret present: Keccak(secret) == datum.Hash and the
//     receiver signs. This path is not bounded by the timelock.
//   - Main output, no secret: now > datum.Timelock and the locker signs.
//
// Anything else is rejected with ErrUnauthorized.
func Check(d Datum, r Redeemer, signers [][]byte, now uint64, firstInputSigner []byte) error {
	signedByReceiver := signedBy(signers, d.Receiver)

	if d.IsDeposit {
		if !signedByReceiver {
			return fmt.Errorf("%w: deposit claim requires receiver signature", ErrUnauthorized)
		}
		return nil
	}

	if r.HasSecret() {
		if HashSecret(r.Secret) != d.Hash {
			return fmt.Errorf("%w: secret does not match hash lock", ErrUnauthorized)
		}
		if !signedByReceiver {
			return fmt.Errorf("%w: reveal requires receiver signature", ErrUnauthorized)
		}
		return nil
	}

	if now <= d.Timelock {
		return fmt.Errorf("%w: timelock not expired (now=%d, timelock=%d)", ErrUnauthorized, now, d.Timelock)
	}
	if !signedBy(signers, firstInputSigner) {
		return fmt.Errorf("%w: refund requires sender signature", ErrUnauthorized)
	}
	return nil
}

// Authorize is the boolean form of Check.
func Authorize(d Datum, r Redeemer, signers [][]byte, now uint64, firstInputSigner []byte) bool {
	return Check(d, r, signers, now, firstInputSigner) == nil
}

// signedBy fails closed on an empty identity.
func signedBy(signers [][]byte, who []byte) bool {
	if len(who) == 0 {
		return false
	}
	for _, s := range signers {
		if bytes.Equal(s, who) {
			return true
		}
	}
	return false
}

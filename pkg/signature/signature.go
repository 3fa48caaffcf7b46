// Package signature implements recoverable secp256k1 ECDSA signatures and
// their two wire encodings: the 65-byte compact signature and the 73-byte
// versioned identity signature record.
package signature

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	DigestSize            = 32
	CompactSize           = 65
	IdentitySignatureSize = 73

	// compactMagicOffset is the header base of the compact encoding; compressed
	// keys add compactCompressedFlag on top.
	compactMagicOffset    byte = 27
	compactCompressedFlag byte = 4
)

var (
	// ErrRecoveryIDNotFound means none of the four candidate recovery ids
	// reproduced the signer's public key.
	ErrRecoveryIDNotFound = errors.New("recovery id not found")

	// ErrMalformedSignature is returned when signature bytes cannot be parsed.
	ErrMalformedSignature = errors.New("malformed signature")
)

// RecoverableSignature is an ECDSA (r, s) pair together with the recovery id
// that lets a verifier reconstruct the signing public key.
type RecoverableSignature struct {
	R          [32]byte
	S          [32]byte
	RecoveryID byte
}

// Sign produces a deterministic (RFC6979) low-S signature of digest.
func Sign(digest [DigestSize]byte, key *secp256k1.PrivateKey) (*RecoverableSignature, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	sig := ecdsa.Sign(key, digest[:])

	r, s := sig.R(), sig.S()
	out := &RecoverableSignature{R: r.Bytes(), S: s.Bytes()}

	recoveryID, err := FindRecoveryID(digest, out.R, out.S, key.PubKey())
	if err != nil {
		return nil, err
	}
	out.RecoveryID = recoveryID
	return out, nil
}

// FindRecoveryID tries recovery ids 0 through 3 and returns the first whose
// recovered public key equals pub.
func FindRecoveryID(digest [DigestSize]byte, r, s [32]byte, pub *secp256k1.PublicKey) (byte, error) {
	if pub == nil {
		return 0, fmt.Errorf("public key is required")
	}
	var candidate [CompactSize]byte
	copy(candidate[1:33], r[:])
	copy(candidate[33:65], s[:])

	for recoveryID := byte(0); recoveryID < 4; recoveryID++ {
		candidate[0] = compactMagicOffset + compactCompressedFlag + recoveryID

		recovered, _, err := ecdsa.RecoverCompact(candidate[:], digest[:])
		if err != nil {
			continue
		}
		if recovered.IsEqual(pub) {
			return recoveryID, nil
		}
	}
	return 0, ErrRecoveryIDNotFound
}

// NormalizeLowS replaces s with N - s when s is in the upper half of the
// group order. Both values verify; remote verifiers only accept the low form.
func NormalizeLowS(s [32]byte) ([32]byte, error) {
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetBytes(&s); overflow != 0 {
		return s, fmt.Errorf("%w: s is not below the curve order", ErrMalformedSignature)
	}
	if scalar.IsOverHalfOrder() {
		scalar.Negate()
	}
	return scalar.Bytes(), nil
}

// FromDER parses an ASN.1 DER (r, s) signature, as returned by hardware and
// cloud signers, and normalizes s to the low half of the order.
func FromDER(der []byte) (r, s [32]byte, err error) {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return r, s, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	rScalar, sScalar := sig.R(), sig.S()
	s, err = NormalizeLowS(sScalar.Bytes())
	if err != nil {
		return r, s, err
	}
	return rScalar.Bytes(), s, nil
}

// ToCompact encodes the signature as header || r || s where header is
// 27 + recoveryID, plus 4 when the signer's public key is compressed.
func (sig *RecoverableSignature) ToCompact(compressed bool) CompactSignature {
	var out CompactSignature
	out[0] = compactMagicOffset + sig.RecoveryID
	if compressed {
		out[0] += compactCompressedFlag
	}
	copy(out[1:33], sig.R[:])
	copy(out[33:65], sig.S[:])
	return out
}

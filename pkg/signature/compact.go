package signature

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// CompactSignature is the 65-byte header || r || s encoding.
type CompactSignature [CompactSize]byte

// ParseCompact validates the length and header byte of b.
func ParseCompact(b []byte) (CompactSignature, error) {
	var out CompactSignature
	if len(b) != CompactSize {
		return out, fmt.Errorf("%w: compact signature is %d bytes, expected %d", ErrMalformedSignature, len(b), CompactSize)
	}
	header := b[0]
	if header < compactMagicOffset || header > compactMagicOffset+compactCompressedFlag+3 {
		return out, fmt.Errorf("%w: compact header %d out of range", ErrMalformedSignature, header)
	}
	copy(out[:], b)
	return out, nil
}

func (c CompactSignature) RecoveryID() byte {
	return (c[0] - compactMagicOffset) & 3
}

// Compressed reports whether the header marks a compressed public key.
func (c CompactSignature) Compressed() bool {
	return (c[0]-compactMagicOffset)&compactCompressedFlag != 0
}

func (c CompactSignature) Recoverable() *RecoverableSignature {
	sig := &RecoverableSignature{RecoveryID: c.RecoveryID()}
	copy(sig.R[:], c[1:33])
	copy(sig.S[:], c[33:65])
	return sig
}

func (c CompactSignature) Bytes() []byte {
	out := make([]byte, CompactSize)
	copy(out, c[:])
	return out
}

// RecoverPublicKey reconstructs the signing public key from a compact
// signature over digest. The returned flag mirrors the header's compression bit.
func RecoverPublicKey(digest [DigestSize]byte, sig CompactSignature) (*secp256k1.PublicKey, bool, error) {
	pub, compressed, err := ecdsa.RecoverCompact(sig[:], digest[:])
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return pub, compressed, nil
}

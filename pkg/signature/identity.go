package signature

import (
	"encoding/binary"
	"fmt"
)

// Identity signature record header values.
const (
	IdentitySignatureVersion byte = 2
	HashType_SHA256          byte = 5

	identityHeaderSize = 8
)

// IdentitySignature is the serialized on-chain identity signature record:
//
//	version(1) = 2 | hashType(1) = 5 | blockHeight(4, LE) | count(1) = 1 | len(1) = 65 | compact(65)
type IdentitySignature [IdentitySignatureSize]byte

// ToIdentitySignature wraps a compact signature in a record bound to no
// particular block height.
func ToIdentitySignature(compact CompactSignature) IdentitySignature {
	var out IdentitySignature
	out[0] = IdentitySignatureVersion
	out[1] = HashType_SHA256
	binary.LittleEndian.PutUint32(out[2:6], 0)
	out[6] = 1
	out[7] = CompactSize
	copy(out[identityHeaderSize:], compact[:])
	return out
}

// ParseIdentitySignature validates the fixed header of b and returns the
// record. Only single-signature SHA-256 records are accepted.
func ParseIdentitySignature(b []byte) (IdentitySignature, error) {
	var out IdentitySignature
	if len(b) != IdentitySignatureSize {
		return out, fmt.Errorf("%w: identity signature is %d bytes, expected %d", ErrMalformedSignature, len(b), IdentitySignatureSize)
	}
	switch {
	case b[0] != IdentitySignatureVersion:
		return out, fmt.Errorf("%w: unsupported identity signature version %d", ErrMalformedSignature, b[0])
	case b[1] != HashType_SHA256:
		return out, fmt.Errorf("%w: unsupported hash type %d", ErrMalformedSignature, b[1])
	case b[6] != 1:
		return out, fmt.Errorf("%w: expected 1 signature, found %d", ErrMalformedSignature, b[6])
	case b[7] != CompactSize:
		return out, fmt.Errorf("%w: signature length %d, expected %d", ErrMalformedSignature, b[7], CompactSize)
	}
	if _, err := ParseCompact(b[identityHeaderSize:]); err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (s IdentitySignature) Version() byte {
	return s[0]
}

func (s IdentitySignature) HashType() byte {
	return s[1]
}

func (s IdentitySignature) BlockHeight() uint32 {
	return binary.LittleEndian.Uint32(s[2:6])
}

// Compact returns the embedded compact signature.
func (s IdentitySignature) Compact() CompactSignature {
	var out CompactSignature
	copy(out[:], s[identityHeaderSize:])
	return out
}

func (s IdentitySignature) Bytes() []byte {
	out := make([]byte, IdentitySignatureSize)
	copy(out, s[:])
	return out
}

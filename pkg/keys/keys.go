// Package keys implements the address and key codec: secp256k1 scalar to
// compressed public key, P2PKH-style base58check addresses, WIF encoding and
// the identity-address (i-address) form used for on-chain identities.
package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD160 is part of the address format

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
)

const (
	ScalarSize           = 32
	CompressedPubKeySize = 33

	wifCompressedMarker byte = 0x01
)

var (
	// ErrMalformedKey is returned when a key decodes to an invalid shape or an
	// out-of-range scalar.
	ErrMalformedKey = errors.New("malformed key")

	// ErrChecksumMismatch is returned when a base58check string fails to decode
	// or its checksum does not verify.
	ErrChecksumMismatch = errors.New("base58check checksum mismatch")

	// ErrMalformedIdentity is returned when an i-address decodes but carries the
	// wrong version byte or payload length.
	ErrMalformedIdentity = errors.New("malformed identity address")
)

// ValidateScalar checks that scalar is a usable secp256k1 private key, i.e. in [1, N-1].
func ValidateScalar(scalar [ScalarSize]byte) error {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(scalar[:]); overflow {
		return fmt.Errorf("%w: scalar is not below the curve order", ErrMalformedKey)
	}
	if s.IsZero() {
		return fmt.Errorf("%w: scalar is zero", ErrMalformedKey)
	}
	return nil
}

// DerivePublicKey returns the 33-byte compressed public key for scalar.
func DerivePublicKey(scalar [ScalarSize]byte) ([CompressedPubKeySize]byte, error) {
	var out [CompressedPubKeySize]byte
	if err := ValidateScalar(scalar); err != nil {
		return out, err
	}
	priv := secp256k1.PrivKeyFromBytes(scalar[:])
	defer priv.Zero()

	copy(out[:], priv.PubKey().SerializeCompressed())
	return out, nil
}

// Hash160 computes RIPEMD160(SHA256(b)).
func Hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	_, _ = h.Write(sha[:])

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveAddress returns base58check(addressVersion || RIPEMD160(SHA256(pubKey))).
func DeriveAddress(pubKey [CompressedPubKeySize]byte, params *config.NetworkParameters) string {
	h := Hash160(pubKey[:])
	return base58.CheckEncode(h[:], params.AddressVersion)
}

// DecodeAddress returns the 20-byte key hash of a transparent address.
func DecodeAddress(address string, params *config.NetworkParameters) ([20]byte, error) {
	var out [20]byte
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return out, fmt.Errorf("%w: address %q: %v", ErrChecksumMismatch, address, err)
	}
	if version != params.AddressVersion {
		return out, fmt.Errorf("%w: address version %d, expected %d", ErrMalformedKey, version, params.AddressVersion)
	}
	if len(payload) != len(out) {
		return out, fmt.Errorf("%w: address payload is %d bytes, expected %d", ErrMalformedKey, len(payload), len(out))
	}
	copy(out[:], payload)
	return out, nil
}

// EncodeWIF returns base58check(wifVersion || scalar || 0x01). The trailing
// marker tells importers to derive the compressed public key.
func EncodeWIF(scalar [ScalarSize]byte, params *config.NetworkParameters) string {
	payload := make([]byte, 0, ScalarSize+1)
	payload = append(payload, scalar[:]...)
	payload = append(payload, wifCompressedMarker)
	return base58.CheckEncode(payload, params.WIFVersion)
}

// DecodedWIF is the result of decoding a WIF string.
type DecodedWIF struct {
	Scalar     [ScalarSize]byte
	Version    byte
	Compressed bool
}

// DecodeWIF decodes a WIF string. The payload after the version byte must be
// either the bare 32-byte scalar or the scalar followed by the 0x01
// compression marker.
func DecodeWIF(wif string) (*DecodedWIF, error) {
	payload, version, err := base58.CheckDecode(wif)
	if err != nil {
		return nil, fmt.Errorf("%w: wif: %v", ErrChecksumMismatch, err)
	}

	decoded := &DecodedWIF{Version: version}
	switch len(payload) {
	case ScalarSize:
		decoded.Compressed = false
	case ScalarSize + 1:
		if payload[ScalarSize] != wifCompressedMarker {
			return nil, fmt.Errorf("%w: wif compression marker is 0x%02x", ErrMalformedKey, payload[ScalarSize])
		}
		decoded.Compressed = true
	default:
		return nil, fmt.Errorf("%w: wif payload is %d bytes, expected %d or %d", ErrMalformedKey, len(payload), ScalarSize, ScalarSize+1)
	}
	copy(decoded.Scalar[:], payload[:ScalarSize])

	if err := ValidateScalar(decoded.Scalar); err != nil {
		return nil, err
	}
	return decoded, nil
}

// EncodeIdentityAddress returns the i-address for a 20-byte identity hash.
func EncodeIdentityAddress(identityHash [20]byte, params *config.NetworkParameters) string {
	return base58.CheckEncode(identityHash[:], params.IdentityVersion)
}

// DecodeIdentityAddress returns the 20-byte identity hash of an i-address.
func DecodeIdentityAddress(identity string, params *config.NetworkParameters) ([20]byte, error) {
	var out [20]byte
	payload, version, err := base58.CheckDecode(identity)
	if err != nil {
		return out, fmt.Errorf("%w: identity %q: %v", ErrChecksumMismatch, identity, err)
	}
	if version != params.IdentityVersion {
		return out, fmt.Errorf("%w: version %d, expected %d", ErrMalformedIdentity, version, params.IdentityVersion)
	}
	if len(payload) != len(out) {
		return out, fmt.Errorf("%w: payload is %d bytes, expected %d", ErrMalformedIdentity, len(payload), len(out))
	}
	copy(out[:], payload)
	return out, nil
}

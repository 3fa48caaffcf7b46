package keys

import (
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip39"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
)

// KeyMaterial is a private scalar together with everything derived from it
// for one network. It is immutable: every accessor returns a copy.
type KeyMaterial struct {
	scalar  [ScalarSize]byte
	pubKey  [CompressedPubKeySize]byte
	address string
	wif     string
	params  config.NetworkParameters
}

// FromScalar derives KeyMaterial from a raw 32-byte scalar.
func FromScalar(scalar [ScalarSize]byte, params *config.NetworkParameters) (*KeyMaterial, error) {
	if params == nil {
		return nil, fmt.Errorf("network parameters are required")
	}
	pubKey, err := DerivePublicKey(scalar)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{
		scalar:  scalar,
		pubKey:  pubKey,
		address: DeriveAddress(pubKey, params),
		wif:     EncodeWIF(scalar, params),
		params:  *params,
	}, nil
}

// FromWIF decodes a WIF and derives KeyMaterial. The WIF version byte must
// match params; main and test share a version, so this rejects foreign
// chains but cannot tell those two apart. The derived key material always uses the compressed
// public key.
func FromWIF(wif string, params *config.NetworkParameters) (*KeyMaterial, error) {
	if params == nil {
		return nil, fmt.Errorf("network parameters are required")
	}
	decoded, err := DecodeWIF(wif)
	if err != nil {
		return nil, err
	}
	if decoded.Version != params.WIFVersion {
		return nil, fmt.Errorf("%w: wif version %d does not match %s (%d)",
			ErrMalformedKey, decoded.Version, params.ChainName, params.WIFVersion)
	}
	return FromScalar(decoded.Scalar, params)
}

// Generate draws a fresh scalar from crypto/rand.
func Generate(params *config.NetworkParameters) (*KeyMaterial, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return fromPrivateKey(priv, params)
}

// GenerateFromRand draws a fresh scalar from rand, which must be a
// cryptographically secure source.
func GenerateFromRand(rand io.Reader, params *config.NetworkParameters) (*KeyMaterial, error) {
	priv, err := secp256k1.GeneratePrivateKeyFromRand(rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return fromPrivateKey(priv, params)
}

func fromPrivateKey(priv *secp256k1.PrivateKey, params *config.NetworkParameters) (*KeyMaterial, error) {
	defer priv.Zero()

	var scalar [ScalarSize]byte
	copy(scalar[:], priv.Serialize())
	return FromScalar(scalar, params)
}

// FromMnemonic restores KeyMaterial from a 24-word BIP-39 backup produced by
// ExportMnemonic. The mnemonic entropy is the raw scalar.
func FromMnemonic(mnemonic string, params *config.NetworkParameters) (*KeyMaterial, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: mnemonic: %v", ErrMalformedKey, err)
	}
	if len(entropy) != ScalarSize {
		return nil, fmt.Errorf("%w: mnemonic encodes %d bytes, expected %d", ErrMalformedKey, len(entropy), ScalarSize)
	}
	var scalar [ScalarSize]byte
	copy(scalar[:], entropy)
	return FromScalar(scalar, params)
}

// ExportMnemonic returns the 24-word BIP-39 encoding of the scalar.
func (k *KeyMaterial) ExportMnemonic() (string, error) {
	return bip39.NewMnemonic(k.scalar[:])
}

func (k *KeyMaterial) Scalar() [ScalarSize]byte {
	return k.scalar
}

func (k *KeyMaterial) PublicKey() [CompressedPubKeySize]byte {
	return k.pubKey
}

func (k *KeyMaterial) Address() string {
	return k.address
}

func (k *KeyMaterial) WIF() string {
	return k.wif
}

// NetworkParameters returns a copy of the parameters the material was derived for.
func (k *KeyMaterial) NetworkParameters() *config.NetworkParameters {
	params := k.params
	return &params
}

// PrivateKey returns a fresh secp256k1 private key for the scalar. Callers
// should Zero it when done.
func (k *KeyMaterial) PrivateKey() *secp256k1.PrivateKey {
	return secp256k1.PrivKeyFromBytes(k.scalar[:])
}

// SecpPublicKey returns the parsed public key.
func (k *KeyMaterial) SecpPublicKey() *secp256k1.PublicKey {
	pub, err := secp256k1.ParsePubKey(k.pubKey[:])
	if err != nil {
		// pubKey is always derived from a validated scalar
		panic(fmt.Sprintf("derived public key failed to parse: %v", err))
	}
	return pub
}

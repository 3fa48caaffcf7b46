package keyGenerator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signature"
)

// GeneratedKey describes a signing key held by a key generator backend. The
// private half never leaves the backend.
type GeneratedKey struct {
	KeyId     string
	PublicKey [keys.CompressedPubKeySize]byte
	Address   string
}

func (gk *GeneratedKey) GetPublicKeyBytes() []byte {
	out := make([]byte, len(gk.PublicKey))
	copy(out, gk.PublicKey[:])
	return out
}

// GetPublicKeyHex returns the 0x-prefixed compressed public key.
func (gk *GeneratedKey) GetPublicKeyHex() string {
	return hexutil.Encode(gk.PublicKey[:])
}

type IKeyGenerator interface {
	GenerateKey(ctx context.Context, keyName string, aliasName string) (*GeneratedKey, error)
	GetKeyById(ctx context.Context, keyId string) (*GeneratedKey, error)
	SignDigest(ctx context.Context, keyId string, digest [32]byte) (*signature.RecoverableSignature, error)
}

// DigestSigner exposes one key of an IKeyGenerator as a digest signer.
type DigestSigner struct {
	generator IKeyGenerator
	key       *GeneratedKey
}

// NewDigestSigner looks up keyId and binds it for signing.
func NewDigestSigner(ctx context.Context, generator IKeyGenerator, keyId string) (*DigestSigner, error) {
	key, err := generator.GetKeyById(ctx, keyId)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", keyId, err)
	}
	return &DigestSigner{generator: generator, key: key}, nil
}

func (d *DigestSigner) KeyId() string {
	return d.key.KeyId
}

func (d *DigestSigner) PublicKey() [keys.CompressedPubKeySize]byte {
	return d.key.PublicKey
}

func (d *DigestSigner) SignDigest(ctx context.Context, digest [32]byte) (*signature.RecoverableSignature, error) {
	return d.generator.SignDigest(ctx, d.key.KeyId, digest)
}

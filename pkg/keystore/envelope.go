package keystore

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

const saltSize = 16

// KDFParams are the argon2id cost parameters for new envelopes.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams follows the argon2id recommendation from RFC 9106 for
// memory-constrained environments.
var DefaultKDFParams = KDFParams{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

func (p KDFParams) validate() error {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return fmt.Errorf("invalid kdf params: time=%d memory=%d threads=%d", p.Time, p.MemoryKiB, p.Threads)
	}
	return nil
}

func deriveKey(passphrase []byte, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKiB, p.Threads, chacha20poly1305.KeySize)
}

// seal encrypts plaintext under passphrase. aad binds the envelope to the
// record it is stored in.
func seal(plaintext, passphrase, aad []byte, p KDFParams) (*persistence.Envelope, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	key := deriveKey(passphrase, salt, p)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &persistence.Envelope{
		KDF:        persistence.KDF_Argon2id,
		Time:       p.Time,
		MemoryKiB:  p.MemoryKiB,
		Threads:    p.Threads,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// open decrypts env. Any authentication failure, including a wrong
// passphrase or a tampered record, yields ErrAuthFailed.
func open(env *persistence.Envelope, passphrase, aad []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope is nil")
	}
	if env.KDF != persistence.KDF_Argon2id {
		return nil, fmt.Errorf("unsupported kdf %q", env.KDF)
	}
	p := KDFParams{Time: env.Time, MemoryKiB: env.MemoryKiB, Threads: env.Threads}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("invalid nonce length %d", len(env.Nonce))
	}

	key := deriveKey(passphrase, env.Salt, p)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package signer

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/msghash"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signature"
)

// IDigestSigner signs 32-byte digests with a secp256k1 key it never exposes.
type IDigestSigner interface {
	// PublicKey returns the compressed public key of the signing key.
	PublicKey() [keys.CompressedPubKeySize]byte
	SignDigest(ctx context.Context, digest [32]byte) (*signature.RecoverableSignature, error)
}

// AuthenticatedChallenge is the body an agent posts to answer a login or
// onboarding challenge.
type AuthenticatedChallenge struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
	Identity    string `json:"identity"`
	Address     string `json:"address"`
	PublicKey   string `json:"publicKey"`
	Signature   string `json:"signature"`
}

// Signer binds an IDigestSigner to one network.
type Signer struct {
	logger       *zap.Logger
	digestSigner IDigestSigner
	params       *config.NetworkParameters
	address      string
}

func NewSigner(digestSigner IDigestSigner, params *config.NetworkParameters, logger *zap.Logger) (*Signer, error) {
	if digestSigner == nil {
		return nil, fmt.Errorf("digest signer is required")
	}
	if params == nil {
		return nil, fmt.Errorf("network parameters are required")
	}
	p := *params
	return &Signer{
		logger:       logger,
		digestSigner: digestSigner,
		params:       &p,
		address:      keys.DeriveAddress(digestSigner.PublicKey(), &p),
	}, nil
}

func (s *Signer) Address() string {
	return s.address
}

func (s *Signer) PublicKeyHex() string {
	pub := s.digestSigner.PublicKey()
	return hex.EncodeToString(pub[:])
}

func (s *Signer) NetworkParameters() *config.NetworkParameters {
	p := *s.params
	return &p
}

// SignMessage returns the base64 compact signature of message.
func (s *Signer) SignMessage(ctx context.Context, message string) (string, error) {
	digest := msghash.HashLegacyMessage(message, s.params)
	compact, err := s.signCompact(ctx, digest)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(compact[:]), nil
}

// SignChallenge returns the base64 identity signature record of challenge
// for subject.
func (s *Signer) SignChallenge(ctx context.Context, challenge, subject string) (string, error) {
	resolved, err := msghash.ResolveSubject(subject, s.params)
	if err != nil {
		return "", err
	}
	if !resolved.FromIdentity {
		s.logger.Sugar().Debugw("Signing challenge with chain identity placeholder",
			"subject", subject,
			"chain", s.params.ChainName,
		)
	}

	digest := msghash.HashIdentityChallenge(challenge, resolved, s.params)
	compact, err := s.signCompact(ctx, digest)
	if err != nil {
		return "", err
	}
	record := signature.ToIdentitySignature(compact)
	return base64.StdEncoding.EncodeToString(record[:]), nil
}

// CreateAuthenticatedChallenge signs challenge and packages it with the
// signer's address and public key.
func (s *Signer) CreateAuthenticatedChallenge(ctx context.Context, challengeID, challenge, identity string) (*AuthenticatedChallenge, error) {
	sig, err := s.SignChallenge(ctx, challenge, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge %s: %w", challengeID, err)
	}
	return &AuthenticatedChallenge{
		ChallengeID: challengeID,
		Challenge:   challenge,
		Identity:    identity,
		Address:     s.address,
		PublicKey:   s.PublicKeyHex(),
		Signature:   sig,
	}, nil
}

func (s *Signer) signCompact(ctx context.Context, digest [32]byte) (signature.CompactSignature, error) {
	sig, err := s.digestSigner.SignDigest(ctx, digest)
	if err != nil {
		return signature.CompactSignature{}, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig.ToCompact(true), nil
}

// InMemoryDigestSigner signs with a key held in process memory.
type InMemoryDigestSigner struct {
	key *keys.KeyMaterial
}

func NewInMemoryDigestSigner(key *keys.KeyMaterial) *InMemoryDigestSigner {
	return &InMemoryDigestSigner{key: key}
}

func (i *InMemoryDigestSigner) PublicKey() [keys.CompressedPubKeySize]byte {
	return i.key.PublicKey()
}

func (i *InMemoryDigestSigner) SignDigest(_ context.Context, digest [32]byte) (*signature.RecoverableSignature, error) {
	priv := i.key.PrivateKey()
	defer priv.Zero()
	return signature.Sign(digest, priv)
}

// NewInMemorySigner is shorthand for a Signer over an in-memory key.
func NewInMemorySigner(key *keys.KeyMaterial, logger *zap.Logger) (*Signer, error) {
	return NewSigner(NewInMemoryDigestSigner(key), key.NetworkParameters(), logger)
}

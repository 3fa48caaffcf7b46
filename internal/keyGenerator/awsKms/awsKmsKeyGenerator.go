package awsKms

import (
	"context"
	"encoding/asn1"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/internal/keyGenerator"
	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signature"
)

// kmsAPI is the subset of *kms.Client the generator uses.
type kmsAPI interface {
	CreateKey(ctx context.Context, params *kms.CreateKeyInput, optFns ...func(*kms.Options)) (*kms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *kms.CreateAliasInput, optFns ...func(*kms.Options)) (*kms.CreateAliasOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSKMSKeyGenerator keeps agent signing keys in AWS KMS as
// ECC_SECG_P256K1 keys and turns KMS DER signatures into recoverable ones.
type AWSKMSKeyGenerator struct {
	logger    *zap.Logger
	kmsClient kmsAPI
	awsRegion string
	params    *config.NetworkParameters

	mu         sync.RWMutex
	publicKeys map[string]*secp256k1.PublicKey
}

func NewAWSKMSKeyGenerator(awsCfg aws.Config, awsRegion string, params *config.NetworkParameters, logger *zap.Logger) *AWSKMSKeyGenerator {
	return newAWSKMSKeyGenerator(kms.NewFromConfig(awsCfg), awsRegion, params, logger)
}

func newAWSKMSKeyGenerator(client kmsAPI, awsRegion string, params *config.NetworkParameters, logger *zap.Logger) *AWSKMSKeyGenerator {
	return &AWSKMSKeyGenerator{
		logger:     logger,
		kmsClient:  client,
		awsRegion:  awsRegion,
		params:     params,
		publicKeys: make(map[string]*secp256k1.PublicKey),
	}
}

func (a *AWSKMSKeyGenerator) GenerateKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedKey, error) {
	keyRes, err := a.createSigningKey(ctx, keyName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create key %s in region %s", keyName, a.awsRegion)
	}
	keyId := aws.ToString(keyRes.KeyMetadata.KeyId)

	if aliasName != "" {
		if err := a.createKeyAlias(ctx, keyId, aliasName); err != nil {
			return nil, errors.Wrapf(err, "failed to create alias %s for key %s in region %s", aliasName, keyId, a.awsRegion)
		}
	}

	return a.GetKeyById(ctx, keyId)
}

func (a *AWSKMSKeyGenerator) GetKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedKey, error) {
	pub, err := a.publicKey(ctx, keyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s in region %s", keyId, a.awsRegion)
	}

	var compressed [keys.CompressedPubKeySize]byte
	copy(compressed[:], pub.SerializeCompressed())

	return &keyGenerator.GeneratedKey{
		KeyId:     keyId,
		PublicKey: compressed,
		Address:   keys.DeriveAddress(compressed, a.params),
	}, nil
}

// SignDigest asks KMS to sign digest, normalizes s to the low half of the
// order and brute-forces the recovery id against the key's public key.
func (a *AWSKMSKeyGenerator) SignDigest(ctx context.Context, keyId string, digest [32]byte) (*signature.RecoverableSignature, error) {
	pub, err := a.publicKey(ctx, keyId)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get public key for key %s", keyId)
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(keyId),
		Message:          digest[:],
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "kms sign failed for key %s", keyId)
	}

	r, s, err := signature.FromDER(signOutput.Signature)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse kms signature for key %s", keyId)
	}

	recoveryId, err := signature.FindRecoveryID(digest, r, s, pub)
	if err != nil {
		a.logger.Sugar().Warnw("No recovery id reproduces the KMS public key",
			"keyId", keyId,
			"region", a.awsRegion,
		)
		return nil, err
	}

	return &signature.RecoverableSignature{R: r, S: s, RecoveryID: recoveryId}, nil
}

func (a *AWSKMSKeyGenerator) createSigningKey(ctx context.Context, keyName string) (*kms.CreateKeyOutput, error) {
	input := &kms.CreateKeyInput{
		KeyUsage:    types.KeyUsageTypeSignVerify,
		KeySpec:     types.KeySpecEccSecgP256k1,
		Description: aws.String(fmt.Sprintf("Agent identity signing key - %s", keyName)),
		Tags: []types.Tag{
			{
				TagKey:   aws.String("Name"),
				TagValue: aws.String(keyName),
			},
			{
				TagKey:   aws.String("Chain"),
				TagValue: aws.String(string(a.params.ChainName)),
			},
			{
				TagKey:   aws.String("Purpose"),
				TagValue: aws.String("agent-identity"),
			},
			{
				TagKey:   aws.String("Curve"),
				TagValue: aws.String("secp256k1"),
			},
		},
	}

	result, err := a.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS key: %w", err)
	}
	return result, nil
}

func (a *AWSKMSKeyGenerator) createKeyAlias(ctx context.Context, keyId, aliasName string) error {
	_, err := a.kmsClient.CreateAlias(ctx, &kms.CreateAliasInput{
		AliasName:   aws.String(fmt.Sprintf("alias/%s", aliasName)),
		TargetKeyId: aws.String(keyId),
	})
	if err != nil {
		return fmt.Errorf("failed to create key alias: %w", err)
	}

	a.logger.Sugar().Infow("Created KMS key alias",
		"alias", fmt.Sprintf("alias/%s", aliasName),
		"keyId", keyId,
	)
	return nil
}

// publicKey returns the cached public key for keyId, fetching it on first use.
func (a *AWSKMSKeyGenerator) publicKey(ctx context.Context, keyId string) (*secp256k1.PublicKey, error) {
	a.mu.RLock()
	pub, ok := a.publicKeys[keyId]
	a.mu.RUnlock()
	if ok {
		return pub, nil
	}

	out, err := a.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	if out.KeySpec != "" && out.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, fmt.Errorf("key %s has spec %s, expected %s", keyId, out.KeySpec, types.KeySpecEccSecgP256k1)
	}

	pub, err = parsePublicKey(out.PublicKey)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.publicKeys[keyId] = pub
	a.mu.Unlock()
	return pub, nil
}

// parsePublicKey parses the DER SubjectPublicKeyInfo returned by KMS.
func parsePublicKey(derBytes []byte) (*secp256k1.PublicKey, error) {
	var spki asn1EcPublicKey
	if _, err := asn1.Unmarshal(derBytes, &spki); err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	if !spki.EcPublicKeyInfo.Algorithm.Equal(oidEcPublicKey) {
		return nil, fmt.Errorf("public key algorithm %s is not id-ecPublicKey", spki.EcPublicKeyInfo.Algorithm)
	}
	if !spki.EcPublicKeyInfo.Parameters.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("public key curve %s is not secp256k1", spki.EcPublicKeyInfo.Parameters)
	}
	pub, err := secp256k1.ParsePubKey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secp256k1 point: %w", err)
	}
	return pub, nil
}

var (
	oidEcPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

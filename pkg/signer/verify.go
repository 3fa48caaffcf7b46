package signer

import (
	"encoding/base64"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/msghash"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signature"
)

// VerifyMessage reports whether sigB64 is a compact signature of message by
// the key behind address. Malformed inputs are errors; a well-formed
// signature from a different key is (false, nil).
func VerifyMessage(address, message, sigB64 string, network config.Network) (bool, error) {
	params, err := config.GetNetworkParameters(network)
	if err != nil {
		return false, err
	}
	keyHash, err := keys.DecodeAddress(address, params)
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", signature.ErrMalformedSignature, err)
	}
	compact, err := signature.ParseCompact(raw)
	if err != nil {
		return false, err
	}

	digest := msghash.HashLegacyMessage(message, params)
	return recoveredMatches(digest, compact, keyHash)
}

// VerifyChallenge reports whether sigB64 is an identity signature record for
// challenge and subject made by the key behind address.
func VerifyChallenge(address, challenge, subject, sigB64 string, network config.Network) (bool, error) {
	params, err := config.GetNetworkParameters(network)
	if err != nil {
		return false, err
	}
	keyHash, err := keys.DecodeAddress(address, params)
	if err != nil {
		return false, err
	}
	resolved, err := msghash.ResolveSubject(subject, params)
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, fmt.Errorf("%w: %v", signature.ErrMalformedSignature, err)
	}
	record, err := signature.ParseIdentitySignature(raw)
	if err != nil {
		return false, err
	}

	digest := msghash.HashIdentityChallenge(challenge, resolved, params)
	return recoveredMatches(digest, record.Compact(), keyHash)
}

func recoveredMatches(digest [32]byte, compact signature.CompactSignature, keyHash [20]byte) (bool, error) {
	pub, compressed, err := signature.RecoverPublicKey(digest, compact)
	if err != nil {
		return false, err
	}
	return keys.Hash160(serializePubKey(pub, compressed)) == keyHash, nil
}

func serializePubKey(pub *secp256k1.PublicKey, compressed bool) []byte {
	if compressed {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}

// Package msghash builds the exact byte sequences that are hashed before
// signing. Two message classes exist: legacy messages (double SHA-256 over a
// prefixed, length-framed message) and identity-scoped challenges, which bind
// the chain, a block height and the signing identity into the digest.
package msghash

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
)

// DigestSize is the size of every digest produced by this package.
const DigestSize = 32

// IdentityPrefix is the leading character of an i-address.
const IdentityPrefix = "i"

// Subject is the 20-byte identity a challenge is signed for.
type Subject struct {
	Hash [20]byte

	// FromIdentity is false when Hash is the chain identifier hash used as an
	// onboarding placeholder.
	FromIdentity bool
}

// ResolveSubject maps a caller-supplied identifier to a Subject.
//
// An identifier starting with "i" is decoded as an i-address; a bad checksum,
// wrong version byte or wrong payload length is an error. Every other
// identifier, including the empty string, resolves to the chain identifier
// hash of params.
func ResolveSubject(identifier string, params *config.NetworkParameters) (Subject, error) {
	if strings.HasPrefix(identifier, IdentityPrefix) {
		h, err := keys.DecodeIdentityAddress(identifier, params)
		if err != nil {
			return Subject{}, err
		}
		return Subject{Hash: h, FromIdentity: true}, nil
	}
	return ChainSubject(params), nil
}

// ChainSubject returns the placeholder subject for a signer that has no
// on-chain identity yet.
func ChainSubject(params *config.NetworkParameters) Subject {
	return Subject{Hash: params.ChainIdentifierHash}
}

// HashLegacyMessage returns SHA256(SHA256(varint(len(prefix)) || prefix || varint(len(message)) || message)).
func HashLegacyMessage(message string, params *config.NetworkParameters) [DigestSize]byte {
	var buf bytes.Buffer
	writeVarString(&buf, params.MessagePrefix)
	writeVarString(&buf, message)
	return chainhash.DoubleHashH(buf.Bytes())
}

// HashIdentityChallenge returns the digest an identity signs for challenge.
//
//	SHA256( varint(len(prefix)) || prefix
//	     || chainIdentifierHash
//	     || LE32(blockHeight = 0)
//	     || subject.Hash
//	     || SHA256(varint(len(lower(challenge))) || lower(challenge)) )
//
// The challenge is lowercased before hashing; remote verifiers do the same.
func HashIdentityChallenge(challenge string, subject Subject, params *config.NetworkParameters) [DigestSize]byte {
	return hashIdentityChallengeAtHeight(challenge, subject, params, 0)
}

// Offline signatures always commit to height 0; other heights are only used
// to check that the height is part of the digest.
func hashIdentityChallengeAtHeight(challenge string, subject Subject, params *config.NetworkParameters, blockHeight uint32) [DigestSize]byte {
	var inner bytes.Buffer
	writeVarString(&inner, strings.ToLower(challenge))
	innerDigest := sha256.Sum256(inner.Bytes())

	var buf bytes.Buffer
	writeVarString(&buf, params.MessagePrefix)
	buf.Write(params.ChainIdentifierHash[:])

	var height [4]byte
	binary.LittleEndian.PutUint32(height[:], blockHeight)
	buf.Write(height[:])

	buf.Write(subject.Hash[:])
	buf.Write(innerDigest[:])

	return sha256.Sum256(buf.Bytes())
}

// writeVarString writes varint(len(s)) || s. Writes to a bytes.Buffer cannot fail.
func writeVarString(buf *bytes.Buffer, s string) {
	_ = wire.WriteVarInt(buf, 0, uint64(len(s)))
	buf.WriteString(s)
}

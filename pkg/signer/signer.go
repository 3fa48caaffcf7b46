// Package signer is the signing facade: it decodes keys, selects network
// parameters, hashes the message and encodes the resulting signature as the
// base64 string callers attach to marketplace requests.
package signer

import (
	"context"

	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
)

// SignMessage signs a plain message with the key in wif and returns the
// base64 encoding of the 65-byte compact signature.
func SignMessage(wif, message string, network config.Network) (string, error) {
	s, err := newWIFSigner(wif, network)
	if err != nil {
		return "", err
	}
	return s.SignMessage(context.Background(), message)
}

// SignChallenge signs challenge on behalf of subject and returns the base64
// encoding of the 73-byte identity signature record. A subject that is not an
// i-address signs with the chain identifier as placeholder identity.
func SignChallenge(wif, challenge, subject string, network config.Network) (string, error) {
	s, err := newWIFSigner(wif, network)
	if err != nil {
		return "", err
	}
	return s.SignChallenge(context.Background(), challenge, subject)
}

func newWIFSigner(wif string, network config.Network) (*Signer, error) {
	params, err := config.GetNetworkParameters(network)
	if err != nil {
		return nil, err
	}
	km, err := keys.FromWIF(wif, params)
	if err != nil {
		return nil, err
	}
	return NewInMemorySigner(km, zap.NewNop())
}

package bridge

import "github.com/vrsc-agents/agent-sdk-go/pkg/signer"

type IdentityResponse struct {
	Network       string `json:"network"`
	ChainName     string `json:"chainName"`
	Address       string `json:"address"`
	PublicKey     string `json:"publicKey"`
	Identity      string `json:"identity,omitempty"`
	ChainIdentity string `json:"chainIdentity"`
}

type SignMessageRequest struct {
	Message string `json:"message"`
}

type SignMessageResponse struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// SignChallengeRequest asks for an identity signature over Challenge. An empty
// Subject signs as the bridge's configured identity.
type SignChallengeRequest struct {
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge"`
	Subject     string `json:"subject,omitempty"`
}

type SignChallengeResponse = signer.AuthenticatedChallenge

type VerifyMessageRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type VerifyChallengeRequest struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	Subject   string `json:"subject"`
	Signature string `json:"signature"`
}

type VerifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

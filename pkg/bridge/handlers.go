package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIdentity returns the key and identity the bridge signs with.
func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, IdentityResponse{
		Network:       s.params.Network.String(),
		ChainName:     string(s.params.ChainName),
		Address:       s.signer.Address(),
		PublicKey:     s.signer.PublicKeyHex(),
		Identity:      s.identity,
		ChainIdentity: s.params.ChainIdentityAddress,
	})
}

func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	var req SignMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	sig, err := s.signer.SignMessage(r.Context(), req.Message)
	if err != nil {
		s.logger.Sugar().Errorw("Failed to sign message", "error", err)
		writeError(w, http.StatusInternalServerError, "signing failed")
		return
	}

	s.logger.Sugar().Debugw("Signed message", "bytes", len(req.Message))
	writeJSON(w, http.StatusOK, SignMessageResponse{Address: s.signer.Address(), Signature: sig})
}

func (s *Server) handleSignChallenge(w http.ResponseWriter, r *http.Request) {
	var req SignChallengeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Challenge == "" {
		writeError(w, http.StatusBadRequest, "challenge is required")
		return
	}
	subject := req.Subject
	if subject == "" {
		subject = s.identity
	}

	auth, err := s.signer.CreateAuthenticatedChallenge(r.Context(), req.ChallengeID, req.Challenge, subject)
	if errors.Is(err, keys.ErrMalformedIdentity) || errors.Is(err, keys.ErrChecksumMismatch) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Sugar().Errorw("Failed to sign challenge", "challengeId", req.ChallengeID, "error", err)
		writeError(w, http.StatusInternalServerError, "signing failed")
		return
	}

	s.logger.Sugar().Infow("Signed challenge", "challengeId", req.ChallengeID, "subject", subject)
	writeJSON(w, http.StatusOK, auth)
}

// handleVerifyMessage reports malformed input as valid=false with a reason
// rather than as an HTTP error.
func (s *Server) handleVerifyMessage(w http.ResponseWriter, r *http.Request) {
	var req VerifyMessageRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Address == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "address and signature are required")
		return
	}

	valid, err := signer.VerifyMessage(req.Address, req.Message, req.Signature, s.params.Network)
	writeJSON(w, http.StatusOK, verifyResponse(valid, err))
}

func (s *Server) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req VerifyChallengeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Address == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "address and signature are required")
		return
	}

	valid, err := signer.VerifyChallenge(req.Address, req.Challenge, req.Subject, req.Signature, s.params.Network)
	writeJSON(w, http.StatusOK, verifyResponse(valid, err))
}

func verifyResponse(valid bool, err error) VerifyResponse {
	if err != nil {
		return VerifyResponse{Valid: false, Error: err.Error()}
	}
	return VerifyResponse{Valid: valid}
}

// decodeRequest reads exactly one JSON object from the body.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse request: %v", err))
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "request body must contain a single JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

const (
	fixtureWIF             = "Up3VgAKQio8guDjySfZTAnh8RbBZmdLt42AbuvVMB7SRabip7y9r"
	fixtureAddress         = "RLNcgZpJgK6Uh3zXgkm2z7As5nJJVt6HXr"
	fixturePublicKey       = "031b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f"
	fixtureIdentity        = "iEZx38LQVtZH3FrAiNkRMNbuWy7vKrGX8x"
	goldenMessageSig       = "H1IwthdUmoTz97HtTlXfZtmu13DKHRVk3kGxU9upHI1uJu2biVODzvBsrXBoorJxvs1EQkbVsogZaMkDu8dDqkw="
	goldenChallengeSigTest = "AgUAAAAAAUEfGWaVtP6ObclDSz01/pDLwjppjLVfF0Om/66vtf+FzC9GEo6I56s+xX3KcRpWGtlxs3c/AW/8CHwYpt73BNBPHg=="
	goldenIdentitySig      = "AgUAAAAAAUEgSRYmVB8pNQNUnBkOpsQMo90lnk8A1YPt9h1mx5oRqQtpValBQdmN7wsCrysHXOe9l7A5T+y8igHu8p35t8z1Fg=="
)

func newTestServer(t *testing.T, identity, token string) (*Server, *prometheus.Registry) {
	t.Helper()

	params, err := config.GetNetworkParameters(config.Network_Test)
	require.NoError(t, err)
	km, err := keys.FromWIF(fixtureWIF, params)
	require.NoError(t, err)
	s, err := signer.NewInMemorySigner(km, zaptest.NewLogger(t))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	server, err := NewServer(&ServerConfig{
		Signer:    s,
		Identity:  identity,
		AuthToken: token,
		Registry:  registry,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return server, registry
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestIdentity(t *testing.T) {
	server, _ := newTestServer(t, fixtureIdentity, "")

	w := doJSON(t, server.GetHandler(), http.MethodGet, "/identity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode[IdentityResponse](t, w)
	assert.Equal(t, IdentityResponse{
		Network:       "test",
		ChainName:     "VRSCTEST",
		Address:       fixtureAddress,
		PublicKey:     fixturePublicKey,
		Identity:      fixtureIdentity,
		ChainIdentity: "iJhCezBExJHvtyH3fGhNnt2NhU4Ztkf2yq",
	}, resp)

	w = doJSON(t, server.GetHandler(), http.MethodPost, "/identity", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
}

func TestSignMessage(t *testing.T) {
	server, registry := newTestServer(t, "", "")
	h := server.GetHandler()

	t.Run("Should return the golden signature", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/sign/message", SignMessageRequest{Message: "hello world"})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[SignMessageResponse](t, w)
		assert.Equal(t, fixtureAddress, resp.Address)
		assert.Equal(t, goldenMessageSig, resp.Signature)
	})

	t.Run("Should sign the empty message", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/sign/message", SignMessageRequest{})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[SignMessageResponse](t, w)
		valid, err := signer.VerifyMessage(fixtureAddress, "", resp.Signature, config.Network_Test)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("Should reject bad bodies", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			code int
		}{
			{name: "invalid json", body: "invalid json", code: http.StatusBadRequest},
			{name: "unknown field", body: `{"msg":"x"}`, code: http.StatusBadRequest},
			{name: "trailing object", body: `{"message":"a"}{"message":"b"}`, code: http.StatusBadRequest},
			{name: "too large", body: fmt.Sprintf(`{"message":%q}`, strings.Repeat("a", maxRequestBytes)), code: http.StatusRequestEntityTooLarge},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := doJSON(t, h, http.MethodPost, "/sign/message", tt.body)
				assert.Equal(t, tt.code, w.Code)
				assert.NotEmpty(t, decode[errorResponse](t, w).Error)
			})
		}
	})

	t.Run("Should count requests", func(t *testing.T) {
		assert.Equal(t, float64(2), testutil.ToFloat64(server.requests.WithLabelValues("sign.message", "200")))
		assert.Equal(t, float64(3), testutil.ToFloat64(server.requests.WithLabelValues("sign.message", "400")))

		w := doJSON(t, h, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `agent_sdk_bridge_requests_total{code="200",route="sign.message"} 2`)

		families, err := registry.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})
}

func TestSignChallenge(t *testing.T) {
	t.Run("Should fall back to the chain subject", func(t *testing.T) {
		server, _ := newTestServer(t, "", "")

		w := doJSON(t, server.GetHandler(), http.MethodPost, "/sign/challenge", SignChallengeRequest{
			ChallengeID: "ch-1",
			Challenge:   "test-challenge-123",
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[SignChallengeResponse](t, w)
		assert.Equal(t, "ch-1", resp.ChallengeID)
		assert.Equal(t, fixtureAddress, resp.Address)
		assert.Equal(t, fixturePublicKey, resp.PublicKey)
		assert.Equal(t, goldenChallengeSigTest, resp.Signature)
	})

	t.Run("Should sign as the configured identity", func(t *testing.T) {
		server, _ := newTestServer(t, fixtureIdentity, "")

		w := doJSON(t, server.GetHandler(), http.MethodPost, "/sign/challenge", SignChallengeRequest{
			Challenge: "Login-Challenge-XYZ",
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[SignChallengeResponse](t, w)
		assert.Equal(t, fixtureIdentity, resp.Identity)
		assert.Equal(t, goldenIdentitySig, resp.Signature)
	})

	t.Run("Should prefer the request subject", func(t *testing.T) {
		server, _ := newTestServer(t, fixtureIdentity, "")

		w := doJSON(t, server.GetHandler(), http.MethodPost, "/sign/challenge", SignChallengeRequest{
			Challenge: "test-challenge-123",
			Subject:   "myagent@",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, goldenChallengeSigTest, decode[SignChallengeResponse](t, w).Signature)
	})

	t.Run("Should reject bad input", func(t *testing.T) {
		server, _ := newTestServer(t, "", "")
		h := server.GetHandler()

		w := doJSON(t, h, http.MethodPost, "/sign/challenge", SignChallengeRequest{ChallengeID: "ch-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doJSON(t, h, http.MethodPost, "/sign/challenge", SignChallengeRequest{Challenge: "x", Subject: "inotanidentity"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doJSON(t, h, http.MethodGet, "/sign/challenge", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestVerify(t *testing.T) {
	server, _ := newTestServer(t, "", "")
	h := server.GetHandler()

	tests := []struct {
		name      string
		path      string
		body      any
		code      int
		valid     bool
		wantError bool
	}{
		{
			name:  "message valid",
			path:  "/verify/message",
			body:  VerifyMessageRequest{Address: fixtureAddress, Message: "hello world", Signature: goldenMessageSig},
			code:  http.StatusOK,
			valid: true,
		},
		{
			name:  "message altered",
			path:  "/verify/message",
			body:  VerifyMessageRequest{Address: fixtureAddress, Message: "hello world!", Signature: goldenMessageSig},
			code:  http.StatusOK,
			valid: false,
		},
		{
			name:      "message malformed signature",
			path:      "/verify/message",
			body:      VerifyMessageRequest{Address: fixtureAddress, Message: "hello world", Signature: "%%%"},
			code:      http.StatusOK,
			wantError: true,
		},
		{
			name:      "message bad address",
			path:      "/verify/message",
			body:      VerifyMessageRequest{Address: fixtureIdentity, Message: "hello world", Signature: goldenMessageSig},
			code:      http.StatusOK,
			wantError: true,
		},
		{
			name: "message missing fields",
			path: "/verify/message",
			body: VerifyMessageRequest{Message: "hello world"},
			code: http.StatusBadRequest,
		},
		{
			name:  "challenge valid",
			path:  "/verify/challenge",
			body:  VerifyChallengeRequest{Address: fixtureAddress, Challenge: "test-challenge-123", Signature: goldenChallengeSigTest},
			code:  http.StatusOK,
			valid: true,
		},
		{
			name:  "challenge wrong subject",
			path:  "/verify/challenge",
			body:  VerifyChallengeRequest{Address: fixtureAddress, Challenge: "test-challenge-123", Subject: fixtureIdentity, Signature: goldenChallengeSigTest},
			code:  http.StatusOK,
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				return
			}
			resp := decode[VerifyResponse](t, w)
			assert.Equal(t, tt.valid, resp.Valid)
			assert.Equal(t, tt.wantError, resp.Error != "")
		})
	}
}

func TestAuthToken(t *testing.T) {
	server, _ := newTestServer(t, "", "s3cret")
	h := server.GetHandler()

	tests := []struct {
		name   string
		header []string
		code   int
	}{
		{name: "missing", code: http.StatusUnauthorized},
		{name: "wrong token", header: []string{"Authorization", "Bearer nope"}, code: http.StatusUnauthorized},
		{name: "wrong scheme", header: []string{"Authorization", "Basic s3cret"}, code: http.StatusUnauthorized},
		{name: "valid", header: []string{"Authorization", "Bearer s3cret"}, code: http.StatusOK},
		{name: "case-insensitive scheme", header: []string{"Authorization", "bearer s3cret"}, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodGet, "/identity", nil, tt.header...)
			assert.Equal(t, tt.code, w.Code)

			w = doJSON(t, h, http.MethodGet, "/metrics", nil, tt.header...)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerLifecycle(t *testing.T) {
	server, _ := newTestServer(t, "", "")
	server.httpServer.Addr = "127.0.0.1:0"

	require.NoError(t, server.Start())
	assert.Error(t, server.Start())

	addr := server.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr)

	resp, err := http.Get("http://" + addr + "/identity")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
}

func TestNewServer_Validation(t *testing.T) {
	params, err := config.GetNetworkParameters(config.Network_Test)
	require.NoError(t, err)
	km, err := keys.FromWIF(fixtureWIF, params)
	require.NoError(t, err)
	s, err := signer.NewInMemorySigner(km, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = NewServer(nil)
	assert.Error(t, err)
	_, err = NewServer(&ServerConfig{Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
	_, err = NewServer(&ServerConfig{Signer: s})
	assert.Error(t, err)
	_, err = NewServer(&ServerConfig{Signer: s, Port: 70000, Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)

	server, err := NewServer(&ServerConfig{Signer: s, Port: 7420, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7420", server.Addr())
}

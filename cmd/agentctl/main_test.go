package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsc-agents/agent-sdk-go/pkg/utxo"
)

const (
	fixtureWIF             = "Up3VgAKQio8guDjySfZTAnh8RbBZmdLt42AbuvVMB7SRabip7y9r"
	fixtureAddress         = "RLNcgZpJgK6Uh3zXgkm2z7As5nJJVt6HXr"
	fixturePublicKey       = "0x031b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f"
	goldenMessageSig       = "H1IwthdUmoTz97HtTlXfZtmu13DKHRVk3kGxU9upHI1uJu2biVODzvBsrXBoorJxvs1EQkbVsogZaMkDu8dDqkw="
	goldenChallengeSigTest = "AgUAAAAAAUEfGWaVtP6ObclDSz01/pDLwjppjLVfF0Om/66vtf+FzC9GEo6I56s+xX3KcRpWGtlxs3c/AW/8CHwYpt73BNBPHg=="
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"agentctl"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func field(t *testing.T, out, name string) string {
	t.Helper()
	m := regexp.MustCompile(`(?m)^` + name + `: (.+)$`).FindStringSubmatch(out)
	require.Len(t, m, 2, "no %s in output:\n%s", name, out)
	return m[1]
}

func Test_Keys(t *testing.T) {
	t.Run("address", func(t *testing.T) {
		out, err := run(t, "address", "--wif", fixtureWIF)
		require.NoError(t, err)
		assert.Equal(t, fixtureAddress, field(t, out, "address"))
		assert.Equal(t, fixturePublicKey, field(t, out, "publicKey"))
	})

	t.Run("keygen", func(t *testing.T) {
		out, err := run(t, "keygen", "--mnemonic")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(field(t, out, "address"), "R"))
		assert.Len(t, strings.Fields(field(t, out, "mnemonic")), 24)

		wif := field(t, out, "wif")
		out2, err := run(t, "address", "--wif", wif)
		require.NoError(t, err)
		assert.Equal(t, field(t, out, "address"), field(t, out2, "address"))
	})

	t.Run("mnemonic round trip", func(t *testing.T) {
		out, err := run(t, "export-mnemonic", "--wif", fixtureWIF)
		require.NoError(t, err)
		phrase := strings.TrimSpace(out)
		require.Len(t, strings.Fields(phrase), 24)

		out, err = run(t, "import-mnemonic", "--mnemonic", phrase)
		require.NoError(t, err)
		assert.Equal(t, fixtureWIF, field(t, out, "wif"))
		assert.Equal(t, fixtureAddress, field(t, out, "address"))
	})

	t.Run("no key source", func(t *testing.T) {
		_, err := run(t, "address")
		assert.ErrorContains(t, err, "no signing key")
	})
}

func Test_SignAndVerify(t *testing.T) {
	out, err := run(t, "sign-message", "--wif", fixtureWIF, "-m", "hello world")
	require.NoError(t, err)
	assert.Equal(t, goldenMessageSig, strings.TrimSpace(out))

	out, err = run(t, "verify-message", "--address", fixtureAddress, "-m", "hello world", "--signature", goldenMessageSig)
	require.NoError(t, err)
	assert.Equal(t, "valid", strings.TrimSpace(out))

	_, err = run(t, "verify-message", "--address", fixtureAddress, "-m", "hello world!", "--signature", goldenMessageSig)
	assert.ErrorContains(t, err, "does not match")

	_, err = run(t, "verify-message", "--address", fixtureAddress, "-m", "hello world", "--signature", "%%%")
	assert.ErrorContains(t, err, "invalid signature")

	out, err = run(t, "sign-challenge", "--wif", fixtureWIF, "--challenge", "test-challenge-123")
	require.NoError(t, err)
	assert.Equal(t, goldenChallengeSigTest, strings.TrimSpace(out))

	out, err = run(t, "sign-challenge", "--wif", fixtureWIF, "--challenge", "test-challenge-123", "--challenge-id", "ch-9", "--json")
	require.NoError(t, err)
	var auth struct {
		ChallengeID string `json:"challengeId"`
		Address     string `json:"address"`
		Signature   string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &auth))
	assert.Equal(t, "ch-9", auth.ChallengeID)
	assert.Equal(t, fixtureAddress, auth.Address)
	assert.Equal(t, goldenChallengeSigTest, auth.Signature)

	out, err = run(t, "verify-challenge", "--address", fixtureAddress, "--challenge", "test-challenge-123", "--signature", goldenChallengeSigTest)
	require.NoError(t, err)
	assert.Equal(t, "valid", strings.TrimSpace(out))
}

func Test_Keystore(t *testing.T) {
	cfgPath := writeConfig(t, fmt.Sprintf("network: test\nkeystore:\n  type: badger\n  path: %s\n", t.TempDir()))
	t.Setenv(EnvAgentPassphrase, "hunter2")

	out, err := run(t, "--config", cfgPath, "keystore", "save", "--wif", fixtureWIF, "--label", "primary")
	require.NoError(t, err)
	id := field(t, out, "id")
	assert.True(t, strings.HasPrefix(id, "agent-key-"))
	assert.Equal(t, fixtureAddress, field(t, out, "address"))

	out, err = run(t, "--config", cfgPath, "keystore", "load", "--id", id, "--show-wif")
	require.NoError(t, err)
	assert.Equal(t, fixtureWIF, field(t, out, "wif"))

	_, err = run(t, "--config", cfgPath, "keystore", "load", "--id", id, "--passphrase", "wrong")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "keystore", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "primary")

	out, err = run(t, "--config", cfgPath, "sign-message", "--key-id", id, "-m", "hello world")
	require.NoError(t, err)
	assert.Equal(t, goldenMessageSig, strings.TrimSpace(out))

	out, err = run(t, "--config", cfgPath, "keystore", "delete", "--id", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted: "+id)

	_, err = run(t, "--config", cfgPath, "keystore", "delete", "--id", id)
	assert.Error(t, err)
}

func Test_Pricing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/pricing", r.URL.Path)
		_, _ = w.Write([]byte(`[{"service":"summarize","amount":"0.25","currency":"VRSCTEST","unit":"request"}]`))
	}))
	defer server.Close()

	cfgPath := writeConfig(t, "network: test\nmarketplace:\n  url: "+server.URL+"\n")
	out, err := run(t, "--config", cfgPath, "pricing")
	require.NoError(t, err)
	assert.Contains(t, out, "summarize")
	assert.Contains(t, out, "0.25 VRSCTEST")

	_, err = run(t, "pricing")
	assert.ErrorContains(t, err, "marketplace URL is not configured")
}

func Test_Login_RequiresIdentity(t *testing.T) {
	cfgPath := writeConfig(t, "network: test\nmarketplace:\n  url: http://127.0.0.1:1\n")
	_, err := run(t, "--config", cfgPath, "login", "--wif", fixtureWIF)
	assert.ErrorContains(t, err, "no identity")
}

func Test_SelectUTXOs(t *testing.T) {
	utxos := []utxo.UTXO{
		{TxID: strings.Repeat("a", 64), Vout: 0, Amount: mustDecimal(t, "1.5")},
		{TxID: strings.Repeat("b", 64), Vout: 1, Amount: mustDecimal(t, "0.75")},
	}
	data, err := json.Marshal(utxos)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "utxos.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	out, err := run(t, "select-utxos", "--file", path, "--target", "2", "--fee-per-input", "0.001")
	require.NoError(t, err)
	assert.Contains(t, out, "input: "+strings.Repeat("a", 64)+":0 1.50000000")
	assert.Equal(t, "0.00200000", field(t, out, "fee"))
	assert.Equal(t, "0.24800000", field(t, out, "change"))

	_, err = run(t, "select-utxos", "--file", path, "--target", "5")
	assert.ErrorIs(t, err, utxo.ErrInsufficientFunds)
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

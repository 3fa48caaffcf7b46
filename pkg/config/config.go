package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Environment variable names for agent configuration
const (
	EnvAgentNetwork        = "AGENT_NETWORK"
	EnvAgentMarketplaceURL = "AGENT_MARKETPLACE_URL"
	EnvAgentIdentity       = "AGENT_IDENTITY"
	EnvAgentKeystoreType   = "AGENT_KEYSTORE_TYPE"
	EnvAgentKeystorePath   = "AGENT_KEYSTORE_PATH"
	EnvAgentRedisAddress   = "AGENT_REDIS_ADDRESS"
	EnvAgentKMSKeyID       = "AGENT_KMS_KEY_ID"
	EnvAgentKMSRegion      = "AGENT_KMS_REGION"
	EnvAgentBridgePort     = "AGENT_BRIDGE_PORT"
	EnvAgentDebug          = "AGENT_DEBUG"
)

// ErrUnknownNetwork is returned when a network selector is neither "main" nor "test".
var ErrUnknownNetwork = errors.New("unknown network")

type Network string

func (n Network) String() string {
	return string(n)
}

const (
	Network_Main Network = "main"
	Network_Test Network = "test"
)

type ChainName string

const (
	ChainName_Main ChainName = "VRSC"
	ChainName_Test ChainName = "VRSCTEST"
)

var NetworkToChainName = map[Network]ChainName{
	Network_Main: ChainName_Main,
	Network_Test: ChainName_Test,
}

// MessagePrefix is the magic string framed into every signed message digest.
const MessagePrefix = "Verus signed data:\n"

// Base58 version bytes shared by both networks
const (
	AddressVersion_PubKeyHash byte = 60
	AddressVersion_WIF        byte = 188
	AddressVersion_Identity   byte = 102
)

// NetworkParameters is the fixed per-chain record the codecs and hashers are
// parameterized with. Values are handed out by copy; there is no package-level
// mutable state.
type NetworkParameters struct {
	Network   Network
	ChainName ChainName

	AddressVersion  byte
	WIFVersion      byte
	IdentityVersion byte

	MessagePrefix string

	// ChainIdentifierHash is the 20-byte identity hash of the chain itself.
	ChainIdentifierHash [20]byte
	// ChainIdentityAddress is the base58check form of ChainIdentifierHash.
	ChainIdentityAddress string
}

var networkParameters = map[Network]NetworkParameters{
	Network_Main: {
		Network:              Network_Main,
		ChainName:            ChainName_Main,
		AddressVersion:       AddressVersion_PubKeyHash,
		WIFVersion:           AddressVersion_WIF,
		IdentityVersion:      AddressVersion_Identity,
		MessagePrefix:        MessagePrefix,
		ChainIdentifierHash:  mustHash20("1af5b8015c64d39ab44c60ead8317f9f5a9b6c4c"),
		ChainIdentityAddress: "i5w5MuNik5NtLcYmNzcvaoixooEebB6MGV",
	},
	Network_Test: {
		Network:              Network_Test,
		ChainName:            ChainName_Test,
		AddressVersion:       AddressVersion_PubKeyHash,
		WIFVersion:           AddressVersion_WIF,
		IdentityVersion:      AddressVersion_Identity,
		MessagePrefix:        MessagePrefix,
		ChainIdentifierHash:  mustHash20("a6ef9ea235635e328124ff3429db9f9e91b64e2d"),
		ChainIdentityAddress: "iJhCezBExJHvtyH3fGhNnt2NhU4Ztkf2yq",
	},
}

// GetNetworkParameters returns a copy of the parameters for the given network.
func GetNetworkParameters(network Network) (*NetworkParameters, error) {
	params, ok := networkParameters[network]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownNetwork, network, GetSupportedNetworksString())
	}
	return &params, nil
}

// ParseNetwork converts user input into a Network. Matching is case-insensitive
// and accepts the chain names as aliases.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "main", "mainnet", strings.ToLower(string(ChainName_Main)):
		return Network_Main, nil
	case "test", "testnet", strings.ToLower(string(ChainName_Test)):
		return Network_Test, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnknownNetwork, s, GetSupportedNetworksString())
	}
}

// GetSupportedNetworks returns all supported networks
func GetSupportedNetworks() []Network {
	return []Network{
		Network_Main,
		Network_Test,
	}
}

// GetSupportedNetworksString returns supported networks for CLI help
func GetSupportedNetworksString() string {
	return fmt.Sprintf("%s (%s), %s (%s)",
		Network_Main, ChainName_Main, Network_Test, ChainName_Test)
}

func mustHash20(s string) [20]byte {
	var out [20]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(out) {
		panic(fmt.Sprintf("invalid 20-byte hash constant %q", s))
	}
	copy(out[:], b)
	return out
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

type KeystoreType string

const (
	KeystoreType_Memory KeystoreType = "memory"
	KeystoreType_Badger KeystoreType = "badger"
	KeystoreType_Redis  KeystoreType = "redis"
)

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type KeystoreConfig struct {
	Type  KeystoreType `json:"type" yaml:"type"`
	Path  string       `json:"path" yaml:"path"`
	Redis RedisConfig  `json:"redis" yaml:"redis"`
}

type KMSConfig struct {
	KeyID  string `json:"keyId" yaml:"keyId"`
	Region string `json:"region" yaml:"region"`
}

type MarketplaceConfig struct {
	URL            string  `json:"url" yaml:"url"`
	JWKSURL        string  `json:"jwksUrl" yaml:"jwksUrl"`
	RequestsPerSec float64 `json:"requestsPerSec" yaml:"requestsPerSec"`
	TimeoutSeconds int     `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// AgentConfig is the configuration consumed by the agent CLI and bridge.
type AgentConfig struct {
	Network Network `json:"network" yaml:"network"`

	// Identity is the i-address or name the agent signs challenges as.
	// Empty means the agent has not been registered on chain yet.
	Identity string `json:"identity" yaml:"identity"`

	Marketplace MarketplaceConfig `json:"marketplace" yaml:"marketplace"`
	Keystore    KeystoreConfig    `json:"keystore" yaml:"keystore"`
	KMS         KMSConfig         `json:"kms" yaml:"kms"`

	BridgePort int  `json:"bridgePort" yaml:"bridgePort"`
	Debug      bool `json:"debug" yaml:"debug"`
}

// DefaultAgentConfig returns a config pointing at the test network with an
// in-memory keystore.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Network: Network_Test,
		Marketplace: MarketplaceConfig{
			RequestsPerSec: 5,
			TimeoutSeconds: 30,
		},
		Keystore: KeystoreConfig{
			Type: KeystoreType_Memory,
		},
		BridgePort: 7420,
	}
}

// LoadAgentConfig reads a YAML file (if path is non-empty) over the defaults and
// then applies AGENT_* environment overrides.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AgentConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAgentNetwork); ok {
		c.Network = Network(v)
	}
	if v, ok := lookup(EnvAgentMarketplaceURL); ok {
		c.Marketplace.URL = v
	}
	if v, ok := lookup(EnvAgentIdentity); ok {
		c.Identity = v
	}
	if v, ok := lookup(EnvAgentKeystoreType); ok {
		c.Keystore.Type = KeystoreType(v)
	}
	if v, ok := lookup(EnvAgentKeystorePath); ok {
		c.Keystore.Path = v
	}
	if v, ok := lookup(EnvAgentRedisAddress); ok {
		c.Keystore.Redis.Address = v
	}
	if v, ok := lookup(EnvAgentKMSKeyID); ok {
		c.KMS.KeyID = v
	}
	if v, ok := lookup(EnvAgentKMSRegion); ok {
		c.KMS.Region = v
	}
	if v, ok := lookup(EnvAgentBridgePort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAgentBridgePort, v, err)
		}
		c.BridgePort = port
	}
	if v, ok := lookup(EnvAgentDebug); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAgentDebug, v, err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate validates the agent configuration
func (c *AgentConfig) Validate() error {
	var allErrors field.ErrorList

	network, err := ParseNetwork(string(c.Network))
	if err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("network"), c.Network, []string{string(Network_Main), string(Network_Test)}))
	} else {
		c.Network = network
	}

	if c.Marketplace.URL != "" {
		if u, err := url.Parse(c.Marketplace.URL); err != nil || u.Scheme == "" || u.Host == "" {
			allErrors = append(allErrors, field.Invalid(field.NewPath("marketplace", "url"), c.Marketplace.URL, "must be an absolute URL"))
		}
	}
	if c.Marketplace.RequestsPerSec < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("marketplace", "requestsPerSec"), c.Marketplace.RequestsPerSec, "must not be negative"))
	}

	switch c.Keystore.Type {
	case KeystoreType_Memory:
	case KeystoreType_Badger:
		if c.Keystore.Path == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("keystore", "path"), "path is required for the badger keystore"))
		}
	case KeystoreType_Redis:
		if c.Keystore.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("keystore", "redis", "address"), "address is required for the redis keystore"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("keystore", "type"), c.Keystore.Type,
			[]string{string(KeystoreType_Memory), string(KeystoreType_Badger), string(KeystoreType_Redis)}))
	}

	if c.BridgePort < 1 || c.BridgePort > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("bridgePort"), c.BridgePort, "must be between 1-65535"))
	}

	if strings.HasPrefix(c.Identity, " ") || strings.HasSuffix(c.Identity, " ") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("identity"), c.Identity, "must not have surrounding whitespace"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// NetworkParameters returns the parameters for the configured network.
func (c *AgentConfig) NetworkParameters() (*NetworkParameters, error) {
	return GetNetworkParameters(c.Network)
}

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/internal/agentEnv"
	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/logger"
)

const (
	EnvAgentConfig     = "AGENT_CONFIG"
	EnvAgentWIF        = "AGENT_WIF"
	EnvAgentKeyID      = "AGENT_KEY_ID"
	EnvAgentPassphrase = "AGENT_PASSPHRASE"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "agentctl",
		Usage: "Manage agent keys, sign and verify messages, and talk to the marketplace",
		Description: `agentctl operates on a single agent signing key.

The key comes from one of:
- --wif: a WIF private key
- --key-id: a key in the configured keystore, unlocked with --passphrase
- --kms: the AWS KMS key named in the config

Message signatures are base64 compact signatures. Challenge signatures are
base64 identity signature records bound to a subject identity.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the agent YAML config",
				EnvVars: []string{EnvAgentConfig},
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "Network override: main or test",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvAgentDebug},
			},
		},
		Commands: []*cli.Command{
			keygenCommand(),
			addressCommand(),
			signMessageCommand(),
			signChallengeCommand(),
			verifyMessageCommand(),
			verifyChallengeCommand(),
			exportMnemonicCommand(),
			importMnemonicCommand(),
			keystoreCommand(),
			loginCommand(),
			onboardCommand(),
			jobsCommand(),
			pricingCommand(),
			selectUTXOsCommand(),
		},
	}
}

// env is what every command needs after flag parsing.
type env struct {
	cfg    *config.AgentConfig
	params *config.NetworkParameters
	logger *zap.Logger
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, params, err := agentEnv.LoadConfig(c.String("config"), c.String("network"))
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose") || cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &env{cfg: cfg, params: params, logger: l}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
}

func printf(c *cli.Context, format string, args ...any) {
	_, _ = fmt.Fprintf(c.App.Writer, format, args...)
}

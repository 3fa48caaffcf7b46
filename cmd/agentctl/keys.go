package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/vrsc-agents/agent-sdk-go/internal/agentEnv"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

func signerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "wif",
			Usage:   "WIF private key to sign with",
			EnvVars: []string{EnvAgentWIF},
		},
		&cli.StringFlag{
			Name:    "key-id",
			Usage:   "Keystore key id to sign with",
			EnvVars: []string{EnvAgentKeyID},
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "Passphrase for --key-id (prompted when omitted on a terminal)",
			EnvVars: []string{EnvAgentPassphrase},
		},
		&cli.BoolFlag{
			Name:  "kms",
			Usage: "Sign with the configured AWS KMS key",
		},
	}
}

// withSigner resolves the signing key selected by signerFlags.
func withSigner(c *cli.Context, e *env) (*signer.Signer, error) {
	opts := agentEnv.SignerOptions{
		WIF:    c.String("wif"),
		KeyID:  c.String("key-id"),
		UseKMS: c.Bool("kms"),
	}
	if opts.KeyID != "" {
		pass, err := passphrase(c, "Passphrase: ")
		if err != nil {
			return nil, err
		}
		opts.Passphrase = pass
	}
	return agentEnv.ResolveSigner(c.Context, e.cfg, e.params, opts, e.logger)
}

// withKeyMaterial loads a local private key from --wif or --key-id.
func withKeyMaterial(c *cli.Context, e *env) (*keys.KeyMaterial, error) {
	if c.Bool("kms") {
		return nil, fmt.Errorf("KMS keys cannot be exported")
	}
	if wif := c.String("wif"); wif != "" {
		return keys.FromWIF(wif, e.params)
	}
	id := c.String("key-id")
	if id == "" {
		return nil, fmt.Errorf("provide --wif or --key-id")
	}
	pass, err := passphrase(c, "Passphrase: ")
	if err != nil {
		return nil, err
	}
	ks, closeStore, err := agentEnv.OpenKeyStore(e.cfg, e.params, e.logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeStore() }()
	return ks.Unlock(id, pass)
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new agent key",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "mnemonic",
				Usage: "Also print the key as a BIP-39 mnemonic",
			},
			&cli.BoolFlag{
				Name:  "kms",
				Usage: "Create the key in AWS KMS instead of locally",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "KMS key description",
				Value: "agent-signing-key",
			},
			&cli.StringFlag{
				Name:  "alias",
				Usage: "KMS alias to attach (without the alias/ prefix)",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			if c.Bool("kms") {
				generator, err := agentEnv.NewKMSKeyGenerator(c.Context, &e.cfg.KMS, e.params, e.logger)
				if err != nil {
					return err
				}
				key, err := generator.GenerateKey(c.Context, c.String("name"), c.String("alias"))
				if err != nil {
					return fmt.Errorf("failed to generate KMS key: %w", err)
				}
				printf(c, "keyId: %s\n", key.KeyId)
				printf(c, "address: %s\n", key.Address)
				printf(c, "publicKey: %s\n", key.GetPublicKeyHex())
				return nil
			}

			km, err := keys.Generate(e.params)
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			printKeyMaterial(c, km)
			if c.Bool("mnemonic") {
				phrase, err := km.ExportMnemonic()
				if err != nil {
					return err
				}
				printf(c, "mnemonic: %s\n", phrase)
			}
			return nil
		},
	}
}

func addressCommand() *cli.Command {
	return &cli.Command{
		Name:  "address",
		Usage: "Print the address and public key of the signing key",
		Flags: signerFlags(),
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			s, err := withSigner(c, e)
			if err != nil {
				return err
			}
			printf(c, "address: %s\n", s.Address())
			printf(c, "publicKey: 0x%s\n", s.PublicKeyHex())
			return nil
		},
	}
}

func exportMnemonicCommand() *cli.Command {
	return &cli.Command{
		Name:  "export-mnemonic",
		Usage: "Print a local key as a 24-word BIP-39 mnemonic",
		Flags: signerFlags(),
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			km, err := withKeyMaterial(c, e)
			if err != nil {
				return err
			}
			phrase, err := km.ExportMnemonic()
			if err != nil {
				return err
			}
			printf(c, "%s\n", phrase)
			return nil
		},
	}
}

func importMnemonicCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-mnemonic",
		Usage: "Recover a key from its mnemonic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mnemonic",
				Usage:    "24-word BIP-39 mnemonic",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Store the key in the configured keystore instead of printing the WIF",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Keystore label (with --save)",
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Keystore passphrase (with --save)",
				EnvVars: []string{EnvAgentPassphrase},
			},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			km, err := keys.FromMnemonic(c.String("mnemonic"), e.params)
			if err != nil {
				return err
			}
			if !c.Bool("save") {
				printKeyMaterial(c, km)
				return nil
			}

			pass, err := passphrase(c, "New passphrase: ")
			if err != nil {
				return err
			}
			ks, closeStore, err := agentEnv.OpenKeyStore(e.cfg, e.params, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			stored, err := ks.Save(km, c.String("label"), pass)
			if err != nil {
				return err
			}
			printStoredKey(c, stored)
			return nil
		},
	}
}

func printKeyMaterial(c *cli.Context, km *keys.KeyMaterial) {
	pub := km.PublicKey()
	printf(c, "address: %s\n", km.Address())
	printf(c, "publicKey: %s\n", hexutil.Encode(pub[:]))
	printf(c, "wif: %s\n", km.WIF())
}

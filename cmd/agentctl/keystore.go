package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/vrsc-agents/agent-sdk-go/internal/agentEnv"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keystore"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

// passphrase returns --passphrase, or prompts for one when stdin is a terminal.
func passphrase(c *cli.Context, prompt string) (string, error) {
	if p := c.String("passphrase"); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("passphrase is required (use --passphrase or %s)", EnvAgentPassphrase)
	}
	_, _ = fmt.Fprint(c.App.ErrWriter, prompt)
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(c.App.ErrWriter)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}

func keystoreCommand() *cli.Command {
	passphraseFlag := &cli.StringFlag{
		Name:    "passphrase",
		Usage:   "Key passphrase (prompted when omitted on a terminal)",
		EnvVars: []string{EnvAgentPassphrase},
	}
	idFlag := &cli.StringFlag{
		Name:     "id",
		Usage:    "Key id",
		Required: true,
	}
	labelFlag := &cli.StringFlag{
		Name:  "label",
		Usage: "Human readable label",
	}

	return &cli.Command{
		Name:  "keystore",
		Usage: "Manage encrypted keys in the configured keystore",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Generate and store a new key",
				Flags: []cli.Flag{labelFlag, passphraseFlag},
				Action: withKeyStore(func(c *cli.Context, ks *keystore.KeyStore) error {
					pass, err := passphrase(c, "New passphrase: ")
					if err != nil {
						return err
					}
					stored, err := ks.Create(c.String("label"), pass)
					if err != nil {
						return err
					}
					printStoredKey(c, stored)
					return nil
				}),
			},
			{
				Name:  "save",
				Usage: "Encrypt and store an existing WIF",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "wif", Usage: "WIF private key", EnvVars: []string{EnvAgentWIF}, Required: true},
					labelFlag,
					passphraseFlag,
				},
				Action: withKeyStore(func(c *cli.Context, ks *keystore.KeyStore) error {
					pass, err := passphrase(c, "New passphrase: ")
					if err != nil {
						return err
					}
					stored, err := ks.Import(c.String("wif"), c.String("label"), pass)
					if err != nil {
						return err
					}
					printStoredKey(c, stored)
					return nil
				}),
			},
			{
				Name:  "load",
				Usage: "Unlock a stored key and print its address",
				Flags: []cli.Flag{
					idFlag,
					passphraseFlag,
					&cli.BoolFlag{Name: "show-wif", Usage: "Also print the decrypted WIF"},
				},
				Action: withKeyStore(func(c *cli.Context, ks *keystore.KeyStore) error {
					pass, err := passphrase(c, "Passphrase: ")
					if err != nil {
						return err
					}
					km, err := ks.Unlock(c.String("id"), pass)
					if err != nil {
						return err
					}
					printf(c, "id: %s\n", c.String("id"))
					printf(c, "address: %s\n", km.Address())
					if c.Bool("show-wif") {
						printf(c, "wif: %s\n", km.WIF())
					}
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List stored keys",
				Action: withKeyStore(func(c *cli.Context, ks *keystore.KeyStore) error {
					stored, err := ks.List()
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "ID\tLABEL\tADDRESS\tCREATED")
					for _, sk := range stored {
						created := time.Unix(sk.CreatedAt, 0).UTC().Format(time.RFC3339)
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sk.ID, sk.Label, sk.Address, created)
					}
					return tw.Flush()
				}),
			},
			{
				Name:  "delete",
				Usage: "Delete a stored key",
				Flags: []cli.Flag{idFlag},
				Action: withKeyStore(func(c *cli.Context, ks *keystore.KeyStore) error {
					if err := ks.Delete(c.String("id")); err != nil {
						return err
					}
					printf(c, "deleted: %s\n", c.String("id"))
					return nil
				}),
			},
		},
	}
}

func withKeyStore(action func(c *cli.Context, ks *keystore.KeyStore) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := loadEnv(c)
		if err != nil {
			return err
		}
		defer e.close()

		ks, closeStore, err := agentEnv.OpenKeyStore(e.cfg, e.params, e.logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		return action(c, ks)
	}
}

func printStoredKey(c *cli.Context, sk *persistence.StoredKey) {
	printf(c, "id: %s\n", sk.ID)
	printf(c, "label: %s\n", sk.Label)
	printf(c, "address: %s\n", sk.Address)
	printf(c, "publicKey: 0x%s\n", sk.PublicKey)
}

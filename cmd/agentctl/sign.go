package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

func signMessageCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign-message",
		Usage: "Sign a message with the legacy message scheme",
		Flags: append(signerFlags(),
			&cli.StringFlag{
				Name:     "message",
				Aliases:  []string{"m"},
				Usage:    "Message to sign",
				Required: true,
			},
		),
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
			sig, err := s.SignMessage(c.Context, c.String("message"))
			if err != nil {
				return fmt.Errorf("failed to sign message: %w", err)
			}
			printf(c, "%s\n", sig)
			return nil
		},
	}
}

func signChallengeCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign-challenge",
		Usage: "Produce an identity signature over a login challenge",
		Flags: append(signerFlags(),
			&cli.StringFlag{
				Name:     "challenge",
				Usage:    "Challenge text issued by the verifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Identity to sign as (defaults to the configured identity)",
			},
			&cli.StringFlag{
				Name:  "challenge-id",
				Usage: "Challenge id to echo in --json output",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full authenticated challenge as JSON",
			},
		),
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
			subject := c.String("subject")
			if !c.IsSet("subject") {
				subject = e.cfg.Identity
			}

			auth, err := s.CreateAuthenticatedChallenge(c.Context, c.String("challenge-id"), c.String("challenge"), subject)
			if err != nil {
				return fmt.Errorf("failed to sign challenge: %w", err)
			}
			if !c.Bool("json") {
				printf(c, "%s\n", auth.Signature)
				return nil
			}
			out, err := json.MarshalIndent(auth, "", "  ")
			if err != nil {
				return err
			}
			printf(c, "%s\n", out)
			return nil
		},
	}
}

func verifyMessageCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify-message",
		Usage: "Check a message signature against an address",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Usage: "Signer address", Required: true},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Signed message", Required: true},
			&cli.StringFlag{Name: "signature", Usage: "Base64 signature", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			valid, err := signer.VerifyMessage(c.String("address"), c.String("message"), c.String("signature"), e.params.Network)
			return reportVerification(c, valid, err)
		},
	}
}

func verifyChallengeCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify-challenge",
		Usage: "Check an identity signature over a challenge",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Usage: "Signer address", Required: true},
			&cli.StringFlag{Name: "challenge", Usage: "Challenge text", Required: true},
			&cli.StringFlag{Name: "subject", Usage: "Identity the challenge was signed as"},
			&cli.StringFlag{Name: "signature", Usage: "Base64 identity signature", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			valid, err := signer.VerifyChallenge(c.String("address"), c.String("challenge"), c.String("subject"), c.String("signature"), e.params.Network)
			return reportVerification(c, valid, err)
		},
	}
}

func reportVerification(c *cli.Context, valid bool, err error) error {
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if !valid {
		printf(c, "invalid\n")
		return fmt.Errorf("signature does not match %s", c.String("address"))
	}
	printf(c, "valid\n")
	return nil
}

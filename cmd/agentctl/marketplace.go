package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/marketplace"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

func newMarketplaceClient(c *cli.Context, e *env) (*marketplace.Client, error) {
	if e.cfg.Marketplace.URL == "" {
		return nil, fmt.Errorf("marketplace URL is not configured (set %s)", config.EnvAgentMarketplaceURL)
	}
	return marketplace.NewClient(c.Context, &marketplace.ClientConfig{
		BaseURL:        e.cfg.Marketplace.URL,
		JWKSURL:        e.cfg.Marketplace.JWKSURL,
		RequestsPerSec: e.cfg.Marketplace.RequestsPerSec,
		Burst:          1,
		Timeout:        time.Duration(e.cfg.Marketplace.TimeoutSeconds) * time.Second,
		Logger:         e.logger,
	})
}

// login signs in as the configured identity, or --identity when given.
func login(c *cli.Context, e *env, client *marketplace.Client, s *signer.Signer) (*marketplace.Session, error) {
	identity := e.cfg.Identity
	if c.IsSet("identity") {
		identity = c.String("identity")
	}
	if identity == "" {
		return nil, fmt.Errorf("no identity to log in as: set identity in the config or pass --identity")
	}
	return client.Login(c.Context, s, identity)
}

func identityFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "identity",
		Usage: "Identity to log in as (defaults to the configured identity)",
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in to the marketplace with an identity signature",
		Flags: append(signerFlags(), identityFlag()),
		Action: withMarketplace(true, func(c *cli.Context, e *env, client *marketplace.Client, s *signer.Signer) error {
			session, err := login(c, e, client, s)
			if err != nil {
				return err
			}
			printf(c, "subject: %s\n", session.Subject)
			if !session.ExpiresAt.IsZero() {
				printf(c, "expiresAt: %s\n", session.ExpiresAt.UTC().Format(time.RFC3339))
			}
			printf(c, "token: %s\n", session.Token)
			return nil
		}),
	}
}

func onboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "onboard",
		Usage: "Register the signing key as a new marketplace agent",
		Flags: append(signerFlags(), &cli.StringFlag{
			Name:     "name",
			Usage:    "Agent display name",
			Required: true,
		}),
		Action: withMarketplace(true, func(c *cli.Context, e *env, client *marketplace.Client, s *signer.Signer) error {
			resp, err := client.Onboard(c.Context, s, c.String("name"))
			if err != nil {
				return err
			}
			printf(c, "agentId: %s\n", resp.AgentID)
			printf(c, "status: %s\n", resp.Status)
			return nil
		}),
	}
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Log in and list marketplace jobs",
		Flags: append(signerFlags(), identityFlag(), &cli.StringFlag{
			Name:  "status",
			Usage: "Job status filter; empty lists all",
			Value: string(marketplace.JobStatus_Open),
		}),
		Action: withMarketplace(true, func(c *cli.Context, e *env, client *marketplace.Client, s *signer.Signer) error {
			if _, err := login(c, e, client, s); err != nil {
				return err
			}
			jobs, err := client.ListJobs(c.Context, marketplace.JobStatus(c.String("status")))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tBUDGET\tTITLE")
			for _, job := range jobs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\n", job.ID, job.Status, job.Budget.String(), job.Currency, job.Title)
			}
			return tw.Flush()
		}),
	}
}

func pricingCommand() *cli.Command {
	return &cli.Command{
		Name:  "pricing",
		Usage: "Show the marketplace price list",
		Action: withMarketplace(false, func(c *cli.Context, e *env, client *marketplace.Client, _ *signer.Signer) error {
			quotes, err := client.GetPricing(c.Context)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "SERVICE\tAMOUNT\tUNIT")
			for _, q := range quotes {
				_, _ = fmt.Fprintf(tw, "%s\t%s %s\t%s\n", q.Service, q.Amount.String(), q.Currency, q.Unit)
			}
			return tw.Flush()
		}),
	}
}

func withMarketplace(needsSigner bool, action func(c *cli.Context, e *env, client *marketplace.Client, s *signer.Signer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := loadEnv(c)
		if err != nil {
			return err
		}
		defer e.close()

		var s *signer.Signer
		if needsSigner {
			if s, err = withSigner(c, e); err != nil {
				return err
			}
		}
		client, err := newMarketplaceClient(c, e)
		if err != nil {
			return err
		}
		return action(c, e, client, s)
	}
}

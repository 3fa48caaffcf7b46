package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/internal/agentEnv"
	"github.com/vrsc-agents/agent-sdk-go/pkg/bridge"
	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/logger"
	"github.com/vrsc-agents/agent-sdk-go/pkg/marketplace"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

const (
	EnvAgentConfig      = "AGENT_CONFIG"
	EnvAgentWIF         = "AGENT_WIF"
	EnvAgentKeyID       = "AGENT_KEY_ID"
	EnvAgentPassphrase  = "AGENT_PASSPHRASE"
	EnvAgentBridgeToken = "AGENT_BRIDGE_TOKEN"
)

func main() {
	app := &cli.App{
		Name:  "agent-bridge",
		Usage: "Local signing bridge for agent runtimes",
		Description: `Serves one agent key over loopback HTTP so agent runtimes written in
other languages can sign without holding the private key.

Endpoints:
- GET  /identity
- POST /sign/message
- POST /sign/challenge
- POST /verify/message
- POST /verify/challenge
- GET  /health, GET /metrics

With --watch-jobs the bridge also logs in to the marketplace and logs newly
posted jobs.`,
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
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host",
				Value: bridge.DefaultHost,
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (defaults to bridgePort from the config)",
				EnvVars: []string{config.EnvAgentBridgePort},
			},
			&cli.StringFlag{
				Name:    "auth-token",
				Usage:   "Bearer token clients must present",
				EnvVars: []string{EnvAgentBridgeToken},
			},
			&cli.StringFlag{
				Name:    "wif",
				Usage:   "WIF private key to serve",
				EnvVars: []string{EnvAgentWIF},
			},
			&cli.StringFlag{
				Name:    "key-id",
				Usage:   "Keystore key id to serve",
				EnvVars: []string{EnvAgentKeyID},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Passphrase for --key-id",
				EnvVars: []string{EnvAgentPassphrase},
			},
			&cli.BoolFlag{
				Name:  "kms",
				Usage: "Serve the configured AWS KMS key",
			},
			&cli.BoolFlag{
				Name:  "watch-jobs",
				Usage: "Poll the marketplace for open jobs and log them",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Job polling interval",
				Value: 30 * time.Second,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvAgentDebug},
			},
		},
		Action: runBridge,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runBridge(c *cli.Context) error {
	cfg, params, err := agentEnv.LoadConfig(c.String("config"), c.String("network"))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose") || cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := agentEnv.ResolveSigner(ctx, cfg, params, agentEnv.SignerOptions{
		WIF:        c.String("wif"),
		KeyID:      c.String("key-id"),
		Passphrase: c.String("passphrase"),
		UseKMS:     c.Bool("kms"),
	}, l)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	port := cfg.BridgePort
	if c.IsSet("port") {
		port = c.Int("port")
	}

	registry := prometheus.NewRegistry()
	server, err := bridge.NewServer(&bridge.ServerConfig{
		Signer:    s,
		Identity:  cfg.Identity,
		Host:      c.String("host"),
		Port:      port,
		AuthToken: c.String("auth-token"),
		Registry:  registry,
		Logger:    l,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	l.Sugar().Infow("Agent bridge running",
		"network", params.Network,
		"address", s.Address(),
		"identity", cfg.Identity,
		"listen", server.Addr(),
		"auth", c.String("auth-token") != "",
	)

	if c.Bool("watch-jobs") {
		go func() {
			if err := watchJobs(ctx, cfg, s, registry, c.Duration("poll-interval"), l); err != nil && ctx.Err() == nil {
				l.Sugar().Errorw("Job watcher stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	l.Sugar().Infow("Shutting down agent bridge")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// watchJobs logs in once and logs every newly posted open job. The session is
// renewed when the marketplace reports it expired.
func watchJobs(ctx context.Context, cfg *config.AgentConfig, s *signer.Signer, reg prometheus.Registerer, interval time.Duration, l *zap.Logger) error {
	if cfg.Marketplace.URL == "" {
		return fmt.Errorf("marketplace URL is not configured (set %s)", config.EnvAgentMarketplaceURL)
	}
	if cfg.Identity == "" {
		return fmt.Errorf("identity is not configured (set %s)", config.EnvAgentIdentity)
	}

	client, err := marketplace.NewClient(ctx, &marketplace.ClientConfig{
		BaseURL:        cfg.Marketplace.URL,
		JWKSURL:        cfg.Marketplace.JWKSURL,
		RequestsPerSec: cfg.Marketplace.RequestsPerSec,
		Burst:          1,
		Timeout:        time.Duration(cfg.Marketplace.TimeoutSeconds) * time.Second,
		Registerer:     reg,
		Logger:         l,
	})
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx, s, cfg.Identity); err != nil {
		return err
	}

	poller, err := marketplace.NewJobPoller(&marketplace.JobPollerConfig{
		Client:   &relogClient{client: client, signer: s, identity: cfg.Identity},
		Interval: interval,
		Logger:   l,
		Handler: func(_ context.Context, job marketplace.Job) error {
			l.Sugar().Infow("New job",
				"jobId", job.ID,
				"title", job.Title,
				"budget", job.Budget.String(),
				"currency", job.Currency,
				"postedBy", job.PostedBy,
			)
			return nil
		},
	})
	if err != nil {
		return err
	}
	return poller.Run(ctx)
}

// relogClient logs in again when the session has expired.
type relogClient struct {
	client   *marketplace.Client
	signer   *signer.Signer
	identity string
}

func (r *relogClient) ListJobs(ctx context.Context, status marketplace.JobStatus) ([]marketplace.Job, error) {
	jobs, err := r.client.ListJobs(ctx, status)
	if !errors.Is(err, marketplace.ErrSessionExpired) {
		return jobs, err
	}
	if _, err := r.client.Login(ctx, r.signer, r.identity); err != nil {
		return nil, err
	}
	return r.client.ListJobs(ctx, status)
}

package marketplace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobHandler is called once per newly seen job. A returned error leaves the
// job unseen so it is offered again on the next poll.
type JobHandler func(ctx context.Context, job Job) error

type jobLister interface {
	ListJobs(ctx context.Context, status JobStatus) ([]Job, error)
}

type JobPollerConfig struct {
	Client   jobLister
	Handler  JobHandler
	Status   JobStatus
	Interval time.Duration
	Logger   *zap.Logger
}

// JobPoller lists jobs on an interval and hands new ones to a handler.
type JobPoller struct {
	client   jobLister
	handler  JobHandler
	status   JobStatus
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewJobPoller(config *JobPollerConfig) (*JobPoller, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	interval := config.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	status := config.Status
	if status == "" {
		status = JobStatus_Open
	}
	return &JobPoller{
		client:   config.Client,
		handler:  config.Handler,
		status:   status,
		interval: interval,
		logger:   config.Logger,
		seen:     make(map[string]struct{}),
	}, nil
}

// Run polls immediately and then every interval until ctx is cancelled.
// Poll failures are logged and do not stop the loop.
func (p *JobPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Sugar().Infow("Starting job poller", "status", p.status, "interval", p.interval)
	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Sugar().Warnw("Job poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Sugar().Infow("Job poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce lists jobs once and returns how many were handled successfully.
func (p *JobPoller) PollOnce(ctx context.Context) (int, error) {
	jobs, err := p.client.ListJobs(ctx, p.status)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		if p.markSeen(job.ID) {
			continue
		}
		if err := p.handler(ctx, job); err != nil {
			p.forget(job.ID)
			p.logger.Sugar().Warnw("Job handler failed", "jobId", job.ID, "error", err)
			continue
		}
		handled++
	}
	return handled, nil
}

// markSeen records id and reports whether it had been seen before.
func (p *JobPoller) markSeen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[id]; ok {
		return true
	}
	p.seen[id] = struct{}{}
	return false
}

func (p *JobPoller) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, id)
}

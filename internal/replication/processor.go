// Package replication runs the background work of a member node: pulling
// queued replicas from their source peers and auditing that the
// coordinating registry knows every local object.
package replication

import (
	"context"
	"fmt"
	"io"
	"sync"

	"mn-go/internal/fault"
	"mn-go/internal/mn"
	"mn-go/internal/worker"
)

// Source retrieves replicas and reports their outcome.
type Source interface {
	GetSystemMetadata(ctx context.Context, pid string) (*mn.Descriptor, error)
	GetReplica(ctx context.Context, peerBaseURL, pid string) (io.ReadCloser, error)
	SetReplicationStatus(ctx context.Context, pid string, status mn.ReplicationStatus, cause error) error
}

// Processor drains the replication queue.
type Processor struct {
	svc     *mn.Service
	source  Source
	peers   map[string]string // node id -> base url
	logger  mn.Logger
	workers int
	metrics *worker.Metrics
}

// NewProcessor creates a processor pulling from the peers named in peers
// with at most workers replicas in flight. metrics may be nil.
func NewProcessor(svc *mn.Service, source Source, peers map[string]string, logger mn.Logger, workers int, metrics *worker.Metrics) *Processor {
	return &Processor{svc: svc, source: source, peers: peers, logger: logger, workers: workers, metrics: metrics}
}

// ProcessReport summarizes one pass over the queue.
type ProcessReport struct {
	Completed int
	Requeued  int
	Failed    int
	// Skipped counts records that could not be claimed, usually because
	// their status changed since they were queued.
	Skipped int
}

// Run processes every record queued when it starts. Records left in
// requested by an earlier pass that never finished are queued again first.
func (p *Processor) Run(ctx context.Context) (*ProcessReport, error) {
	if _, err := p.svc.RequeueAbandoned(ctx); err != nil {
		return nil, fmt.Errorf("requeueing abandoned replications: %w", err)
	}
	recs, err := p.svc.QueuedReplications(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing queued replications: %w", err)
	}

	var (
		mu     sync.Mutex
		report ProcessReport
	)
	count := func(status mn.ReplicationStatus) {
		mu.Lock()
		defer mu.Unlock()
		switch status {
		case mn.StatusCompleted:
			report.Completed++
		case mn.StatusQueued:
			report.Requeued++
		case mn.StatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	var opts []worker.Option[*mn.ReplicationRecord]
	if p.metrics != nil {
		opts = append(opts, worker.WithMetrics[*mn.ReplicationRecord](p.metrics))
	}
	pool := worker.NewPool(p.workers, func(ctx context.Context, rec *mn.ReplicationRecord) error {
		status, err := p.process(ctx, rec)
		count(status)
		return err
	}, opts...)
	stats := pool.Run(ctx, recs)
	report.Skipped += int(stats.Skipped)

	p.logger.Info("replication pass finished",
		"queued", len(recs), "completed", report.Completed, "requeued", report.Requeued,
		"failed", report.Failed, "skipped", report.Skipped)
	return &report, ctx.Err()
}

// process moves one record through requested to completed or failed and
// returns its resulting status.
func (p *Processor) process(ctx context.Context, rec *mn.ReplicationRecord) (mn.ReplicationStatus, error) {
	if err := p.svc.BeginReplica(ctx, rec.PID, rec.PeerNode); err != nil {
		p.logger.Warn("unable to claim replication record", "pid", rec.PID, "peer", rec.PeerNode, "error", err)
		return "", err
	}

	cause := p.fetch(ctx, rec)

	// Bookkeeping must commit even when the pass is being cancelled.
	bg := context.WithoutCancel(ctx)
	if cause == nil {
		p.notify(bg, rec.PID, mn.StatusCompleted, nil)
		return mn.StatusCompleted, nil
	}
	if ctx.Err() != nil {
		if err := p.svc.RequeueReplica(bg, rec.PID, rec.PeerNode); err != nil {
			p.logger.Error("unable to requeue interrupted replica", "pid", rec.PID, "peer", rec.PeerNode, "error", err)
			return "", err
		}
		return mn.StatusQueued, cause
	}

	status, err := p.svc.ReplicaFailed(bg, rec.PID, rec.PeerNode, cause)
	if err != nil {
		p.logger.Error("unable to record replica failure", "pid", rec.PID, "peer", rec.PeerNode, "error", err)
		return "", err
	}
	if status == mn.StatusFailed {
		p.notify(bg, rec.PID, mn.StatusFailed, cause)
	}
	return status, cause
}

func (p *Processor) fetch(ctx context.Context, rec *mn.ReplicationRecord) error {
	baseURL, ok := p.peers[rec.PeerNode]
	if !ok {
		return fault.NewInvalidRequest("no base url configured for replica source. peer=%q", rec.PeerNode)
	}
	desc, err := p.source.GetSystemMetadata(ctx, rec.PID)
	if err != nil {
		return err
	}
	if desc.PID != rec.PID {
		return fault.NewInvalidSystemMetadata("registry descriptor names another object. pid=%q, descriptor=%q",
			rec.PID, desc.PID).WithIdentifier(rec.PID)
	}
	body, err := p.source.GetReplica(ctx, baseURL, rec.PID)
	if err != nil {
		return err
	}
	defer body.Close()
	return p.svc.CompleteReplica(ctx, rec.PeerNode, desc, body)
}

// notify reports a final status to the registry. Failures are logged; the
// local record stays authoritative.
func (p *Processor) notify(ctx context.Context, pid string, status mn.ReplicationStatus, cause error) {
	if err := p.source.SetReplicationStatus(ctx, pid, status, cause); err != nil {
		p.logger.Warn("unable to notify registry of replica status", "pid", pid, "status", string(status), "error", err)
	}
}

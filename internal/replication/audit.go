package replication

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"mn-go/internal/mn"
	"mn-go/internal/worker"
)

// Registry answers whether the coordinating registry knows an object.
type Registry interface {
	Describe(ctx context.Context, pid string) (int, error)
	Synchronize(ctx context.Context, pid string) (int, error)
}

// Auditor checks that the registry knows every local original and asks it
// to synchronize the ones it does not.
type Auditor struct {
	svc      *mn.Service
	registry Registry
	logger   mn.Logger
	workers  int
	noSync   bool
}

// NewAuditor creates an auditor checking at most workers objects at once.
// With noSync set, missing objects are only reported.
func NewAuditor(svc *mn.Service, registry Registry, logger mn.Logger, workers int, noSync bool) *Auditor {
	return &Auditor{svc: svc, registry: registry, logger: logger, workers: workers, noSync: noSync}
}

// AuditReport summarizes one audit.
type AuditReport struct {
	Checked       int
	Synced        int
	SyncRequested int
	// Missing lists the objects the registry did not know, sorted.
	Missing []string
	// Errors lists the objects that could not be checked or synchronized, sorted.
	Errors []string
}

// Run audits every local original.
func (a *Auditor) Run(ctx context.Context) (*AuditReport, error) {
	pids, err := a.svc.ListLocalPIDs(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing local objects: %w", err)
	}

	var (
		mu     sync.Mutex
		report AuditReport
	)
	pool := worker.NewPool(a.workers, func(ctx context.Context, pid string) error {
		synced, missing, err := a.check(ctx, pid)
		mu.Lock()
		defer mu.Unlock()
		report.Checked++
		switch {
		case err != nil:
			report.Errors = append(report.Errors, pid)
		case synced:
			report.Synced++
		}
		if missing {
			report.Missing = append(report.Missing, pid)
			if err == nil && !a.noSync {
				report.SyncRequested++
			}
		}
		return err
	})
	pool.Run(ctx, pids)

	sort.Strings(report.Missing)
	sort.Strings(report.Errors)
	a.logger.Info("sync audit finished", "checked", report.Checked, "synced", report.Synced,
		"missing", len(report.Missing), "sync_requested", report.SyncRequested, "errors", len(report.Errors))
	return &report, ctx.Err()
}

// check describes pid at the registry. A 404 triggers one synchronize
// request; any status other than 404 counts as synced.
func (a *Auditor) check(ctx context.Context, pid string) (synced, missing bool, err error) {
	status, err := a.registry.Describe(ctx, pid)
	if err != nil {
		a.logger.Warn("unable to describe object at registry", "pid", pid, "error", err)
		return false, false, err
	}
	switch status {
	case http.StatusOK:
		return true, false, nil
	case http.StatusNotFound:
	default:
		a.logger.Warn("unexpected registry status, counting object as synced", "pid", pid, "status", status)
		return true, false, nil
	}

	if a.noSync {
		a.logger.Info("object unknown to registry", "pid", pid)
		return false, true, nil
	}
	status, err = a.registry.Synchronize(ctx, pid)
	if err != nil {
		a.logger.Warn("unable to request synchronization", "pid", pid, "error", err)
		return false, true, err
	}
	if status < 200 || status >= 300 {
		a.logger.Warn("registry refused synchronization", "pid", pid, "status", status)
		return false, true, fmt.Errorf("synchronize %s: registry returned %d", pid, status)
	}
	a.logger.Info("synchronization requested", "pid", pid)
	return false, true, nil
}

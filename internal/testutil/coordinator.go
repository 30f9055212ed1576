package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"mn-go/internal/fault"
	"mn-go/internal/mn"
)

// Notification is one replica status report received by FakeCoordinator.
type Notification struct {
	PID    string
	Status mn.ReplicationStatus
	Cause  error
}

// FakeCoordinator is an in-memory coordinating registry and peer.
// Safe for concurrent use.
type FakeCoordinator struct {
	mu sync.Mutex

	descriptors map[string]*mn.Descriptor
	replicas    map[string][]byte
	statuses    map[string]int   // pid -> Describe status, default 200
	failures    map[string]error // pid -> GetReplica error

	Notifications []Notification
	SyncRequests  []string
}

func NewFakeCoordinator() *FakeCoordinator {
	return &FakeCoordinator{
		descriptors: make(map[string]*mn.Descriptor),
		replicas:    make(map[string][]byte),
		statuses:    make(map[string]int),
		failures:    make(map[string]error),
	}
}

// AddReplica makes desc and content available from every peer.
func (c *FakeCoordinator) AddReplica(desc *mn.Descriptor, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[desc.PID] = desc
	c.replicas[desc.PID] = content
}

// FailReplica makes GetReplica of pid return err.
func (c *FakeCoordinator) FailReplica(pid string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[pid] = err
}

// SetDescribeStatus makes Describe of pid return status.
func (c *FakeCoordinator) SetDescribeStatus(pid string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[pid] = status
}

func (c *FakeCoordinator) GetSystemMetadata(ctx context.Context, pid string) (*mn.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.descriptors[pid]
	if !ok {
		return nil, fault.NewNotFound("no descriptor. pid=%q", pid)
	}
	cp := *d
	return &cp, nil
}

func (c *FakeCoordinator) GetReplica(ctx context.Context, peerBaseURL, pid string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failures[pid]; err != nil {
		return nil, err
	}
	b, ok := c.replicas[pid]
	if !ok {
		return nil, fault.NewNotFound("no replica. pid=%q", pid)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (c *FakeCoordinator) SetReplicationStatus(ctx context.Context, pid string, status mn.ReplicationStatus, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications = append(c.Notifications, Notification{PID: pid, Status: status, Cause: cause})
	return nil
}

func (c *FakeCoordinator) Describe(ctx context.Context, pid string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, ok := c.statuses[pid]; ok {
		return status, nil
	}
	return http.StatusOK, nil
}

func (c *FakeCoordinator) Synchronize(ctx context.Context, pid string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SyncRequests = append(c.SyncRequests, pid)
	return http.StatusOK, nil
}

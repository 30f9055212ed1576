package mn

import (
	"time"

	"mn-go/internal/config"
	"mn-go/internal/fault"
)

// ReplicationStatus is the state of one (object, peer) replication record.
type ReplicationStatus string

const (
	StatusQueued      ReplicationStatus = "queued"
	StatusRequested   ReplicationStatus = "requested"
	StatusCompleted   ReplicationStatus = "completed"
	StatusInvalidated ReplicationStatus = "invalidated"
	// StatusFailed is terminal: the record exhausted its attempts or hit a
	// non-retryable failure and has left the active queue.
	StatusFailed ReplicationStatus = "failed"
)

// ParseReplicationStatus validates a status name.
func ParseReplicationStatus(s string) (ReplicationStatus, error) {
	switch st := ReplicationStatus(s); st {
	case StatusQueued, StatusRequested, StatusCompleted, StatusInvalidated, StatusFailed:
		return st, nil
	default:
		return "", fault.NewInvalidRequest("unknown replication status. status=%q", s)
	}
}

// CanTransition reports whether the state machine allows moving from s to next.
//
//	queued -> requested -> completed
//	requested -> queued       (retryable failure)
//	queued|requested -> failed
//	any -> invalidated
func (s ReplicationStatus) CanTransition(next ReplicationStatus) bool {
	if next == StatusInvalidated {
		return s != StatusInvalidated
	}
	switch s {
	case StatusQueued:
		return next == StatusRequested || next == StatusFailed
	case StatusRequested:
		return next == StatusCompleted || next == StatusQueued || next == StatusFailed
	default:
		return false
	}
}

// Active reports whether the record still counts against the replica allocation.
func (s ReplicationStatus) Active() bool {
	return s == StatusQueued || s == StatusRequested || s == StatusCompleted
}

// ReplicationRecord tracks one replica of an object held on, or fetched
// from, a peer node.
type ReplicationRecord struct {
	PID            string
	PeerNode       string
	Status         ReplicationStatus
	Size           int64
	FormatID       string
	Verified       time.Time
	FailedAttempts int
	Created        time.Time
}

// ReplicaOffer is an inbound request to hold a replica.
type ReplicaOffer struct {
	PID        string
	Size       int64
	FormatID   string
	SourceNode string
	// PublicRead reports whether the offered access policy grants public read.
	PublicRead bool
}

// AssertAcceptable checks an offer against the node's replication policy.
// used is the storage already committed to queued, requested and completed
// replicas. Checks run in a fixed order and the first failure is returned.
func AssertAcceptable(p config.ReplicationPolicy, offer ReplicaOffer, used int64) error {
	if !p.Accept {
		return fault.NewInvalidRequest("this node does not currently accept replicas. pid=%q", offer.PID).
			WithIdentifier(offer.PID)
	}
	if p.MaxObjectSize >= 0 && offer.Size > p.MaxObjectSize {
		return fault.NewInvalidRequest("object exceeds the maximum replica size. size=%d, max_object_size=%d",
			offer.Size, p.MaxObjectSize).WithIdentifier(offer.PID)
	}
	if p.SpaceAllocated >= 0 && used+offer.Size > p.SpaceAllocated {
		return fault.NewInvalidRequest("replica would exceed the space allocated to replicas. size=%d, used=%d, space_allocated=%d",
			offer.Size, used, p.SpaceAllocated).WithIdentifier(offer.PID)
	}
	if !p.NodeAllowed(offer.SourceNode) {
		return fault.NewInvalidRequest("replicas are not accepted from this node. source_node=%q", offer.SourceNode).
			WithIdentifier(offer.PID)
	}
	if !p.FormatAllowed(offer.FormatID) {
		return fault.NewInvalidRequest("replicas of this format are not accepted. format_id=%q", offer.FormatID).
			WithIdentifier(offer.PID)
	}
	if p.AllowOnlyPublic && !offer.PublicRead {
		return fault.NewInvalidRequest("only replicas of publicly readable objects are accepted. pid=%q", offer.PID).
			WithIdentifier(offer.PID)
	}
	return nil
}

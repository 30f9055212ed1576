package mn

import (
	"time"

	"mn-go/internal/access"
)

// Checksum is a digest of an object's bytes.
type Checksum struct {
	Algorithm string
	Value     string
}

// ScienceObject is one immutable stored object version.
type ScienceObject struct {
	ID                int64 // store row id, second sort key for listings
	PID               string
	FormatID          string
	Size              int64
	Checksum          Checksum
	Submitter         string
	RightsHolder      string
	OriginNode        string
	AuthoritativeNode string
	DateUploaded      time.Time
	Modified          time.Time
	SerialVersion     int64
	Archived          bool
	Obsoletes         string // predecessor in the chain, "" for the head
	ObsoletedBy       string // successor in the chain, "" for the tail
	URL               string // byte-store url, or remote url for proxy objects
	Proxy             bool
	Replica           bool
}

// Chain is a revision chain. Every object belongs to exactly one chain;
// a standalone object is a single-member chain.
type Chain struct {
	ID      int64
	SID     string // "" when the chain has no series identifier
	TailPID string
}

// ReplicaInfo describes one replica listed in a descriptor.
type ReplicaInfo struct {
	NodeID   string
	Status   ReplicationStatus
	Verified time.Time
}

// ReplicationPolicy is the per-object replication policy set by the owner.
type ReplicationPolicy struct {
	Allowed        bool
	NumberReplicas int
	PreferredNodes []string
	BlockedNodes   []string
}

// Descriptor is the canonical decoded system metadata of an object. Codecs
// convert every supported wire version into this one shape.
type Descriptor struct {
	PID               string
	SID               string
	FormatID          string
	Size              int64
	Checksum          Checksum
	Submitter         string
	RightsHolder      string
	OriginNode        string
	AuthoritativeNode string
	DateUploaded      time.Time
	Modified          time.Time
	SerialVersion     int64
	Archived          bool
	Obsoletes         string
	ObsoletedBy       string
	AccessPolicy      []access.Rule
	ReplicationPolicy *ReplicationPolicy
	Replicas          []ReplicaInfo
}

// ObjectFilter restricts an object listing.
type ObjectFilter struct {
	FormatID string
	FromDate time.Time // inclusive, zero means unbounded
	ToDate   time.Time // exclusive, zero means unbounded
	// Replicas selects replicas (true), local originals (false) or both (nil).
	Replicas *bool
	// ReadableBy limits the listing to objects readable by any of the
	// subjects. Nil lists everything.
	ReadableBy []string
}

// ObjectInfo is one row of an object listing.
type ObjectInfo struct {
	ID       int64
	PID      string
	FormatID string
	Checksum Checksum
	Size     int64
	Modified time.Time
	Archived bool
}

// ObjectList is one page of an object listing.
type ObjectList struct {
	Start   int
	Count   int
	Total   int
	Objects []ObjectInfo
}

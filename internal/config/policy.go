package config

import (
	"fmt"
	"slices"
	"time"
)

const (
	DefaultSpaceAllocated    int64 = 10 << 30
	DefaultMaxAttempts             = 24
	DefaultConcurrency             = 16
	DefaultSliceCount              = 1000
	DefaultMaxSliceCount           = 5000
	DefaultSliceCacheTTL           = 10 * time.Minute
	DefaultResourceMapFormat       = "http://www.openarchives.org/ore/terms"
)

// Resource map create modes.
const (
	ResourceMapBlock   = "block"
	ResourceMapOpen    = "open"
	ResourceMapReserve = "reserve"
)

// ReplicationPolicy governs which replication offers this node accepts.
type ReplicationPolicy struct {
	Accept          bool
	MaxObjectSize   int64 // negative means no limit
	SpaceAllocated  int64 // negative means no limit
	AllowedNodes    []string
	AllowedFormats  []string
	AllowOnlyPublic bool
	MaxAttempts     int
}

// NodeAllowed reports whether replicas may be accepted from node.
// An empty allow-list admits every node.
func (p ReplicationPolicy) NodeAllowed(node string) bool {
	return len(p.AllowedNodes) == 0 || slices.Contains(p.AllowedNodes, node)
}

// FormatAllowed reports whether replicas of formatID may be accepted.
// An empty allow-list admits every format.
func (p ReplicationPolicy) FormatAllowed(formatID string) bool {
	return len(p.AllowedFormats) == 0 || slices.Contains(p.AllowedFormats, formatID)
}

// Policy is the immutable set of node policies handed to each component at
// construction. Build it with Config.Policy or directly in tests; the slices
// it holds are never modified after construction.
type Policy struct {
	NodeID             string
	TrustedSubjects    []string
	Replication        ReplicationPolicy
	ResourceMapMode    string
	ResourceMapFormats []string
	SliceDefaultCount  int
	SliceMaxCount      int
	SliceCacheTTL      time.Duration
}

// IsResourceMapFormat reports whether objects of formatID are aggregations.
func (p Policy) IsResourceMapFormat(formatID string) bool {
	return slices.Contains(p.ResourceMapFormats, formatID)
}

// DefaultPolicy returns the policy of a freshly initialized node.
func DefaultPolicy(nodeID string) Policy {
	p, _ := NewConfig(nodeID, "").Policy()
	return p
}

// Policy derives the immutable policy value from the configuration.
func (c *Config) Policy() (Policy, error) {
	mode := c.ResourceMap.CreateMode
	if mode == "" {
		mode = ResourceMapBlock
	}
	switch mode {
	case ResourceMapBlock, ResourceMapOpen, ResourceMapReserve:
	default:
		return Policy{}, fmt.Errorf("unknown resource map create mode: %s", mode)
	}

	ttl := DefaultSliceCacheTTL
	if c.Slice.CacheTTL != "" {
		d, err := time.ParseDuration(c.Slice.CacheTTL)
		if err != nil {
			return Policy{}, fmt.Errorf("parsing slice cache_ttl: %w", err)
		}
		ttl = d
	}

	p := Policy{
		NodeID:          c.Node.Identifier,
		TrustedSubjects: slices.Clone(c.Node.TrustedSubjects),
		Replication: ReplicationPolicy{
			Accept:          c.Replication.Accept,
			MaxObjectSize:   c.Replication.MaxObjectSize,
			SpaceAllocated:  c.Replication.SpaceAllocated,
			AllowedNodes:    slices.Clone(c.Replication.AllowedNodes),
			AllowedFormats:  slices.Clone(c.Replication.AllowedFormats),
			AllowOnlyPublic: c.Replication.AllowOnlyPublic,
			MaxAttempts:     positiveOr(c.Replication.MaxAttempts, DefaultMaxAttempts),
		},
		ResourceMapMode:    mode,
		ResourceMapFormats: slices.Clone(c.ResourceMap.Formats),
		SliceDefaultCount:  positiveOr(c.Slice.DefaultCount, DefaultSliceCount),
		SliceMaxCount:      positiveOr(c.Slice.MaxCount, DefaultMaxSliceCount),
		SliceCacheTTL:      ttl,
	}
	// A page is never larger than the cap.
	p.SliceDefaultCount = min(p.SliceDefaultCount, p.SliceMaxCount)
	if len(p.ResourceMapFormats) == 0 {
		p.ResourceMapFormats = []string{DefaultResourceMapFormat}
	}
	return p, nil
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

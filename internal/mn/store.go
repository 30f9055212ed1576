package mn

import (
	"context"

	"mn-go/internal/access"
	"mn-go/internal/slice"
)

// Store is the persistent repository state. Every mutation runs inside
// Update; fn's changes commit together when it returns nil and roll back
// otherwise.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// IdentifierFacts is everything the store knows about one DID.
type IdentifierFacts struct {
	DID string
	// Known reports that the DID has been recorded in the identifier namespace.
	Known bool
	// SeriesOf is the chain the DID names when it is used as a SID.
	SeriesOf *Chain
	// Object is the stored object the DID names, if any.
	Object *ScienceObject
	// ReplicaStatus is the status of a replication record for the DID
	// that has no stored object yet.
	ReplicaStatus ReplicationStatus
	// ChainReference reports that a replica referenced the DID as a
	// predecessor or successor.
	ChainReference bool
	// ResourceMap reports that the DID names an aggregation with members.
	ResourceMap bool
	// MapMember reports that some aggregation lists the DID as a member.
	MapMember bool
}

// Tx is one store transaction. Lookups that find nothing return a nil
// pointer and a nil error.
type Tx interface {
	access.RuleReader

	// Identifiers

	IdentifierFacts(ctx context.Context, did string) (IdentifierFacts, error)
	// RecordDID adds did to the identifier namespace; it is a no-op if present.
	RecordDID(ctx context.Context, did string) error

	// Objects

	GetObject(ctx context.Context, pid string) (*ScienceObject, error)
	// InsertObject stores obj and sets obj.ID.
	InsertObject(ctx context.Context, obj *ScienceObject) error
	UpdateObject(ctx context.Context, obj *ScienceObject) error
	ListLocalPIDs(ctx context.Context, replicas bool) ([]string, error)

	// Revision chains

	ChainOf(ctx context.Context, pid string) (*Chain, error)
	ChainBySID(ctx context.Context, sid string) (*Chain, error)
	// InsertChain stores c and sets c.ID.
	InsertChain(ctx context.Context, c *Chain) error
	UpdateChain(ctx context.Context, c *Chain) error
	// SetChainMember assigns pid to chain id, moving it if it already belongs to another.
	SetChainMember(ctx context.Context, pid string, chainID int64) error
	ChainMembers(ctx context.Context, chainID int64) ([]*ScienceObject, error)

	// Access rules

	ReplacePermissions(ctx context.Context, pid string, rules []access.Rule) error
	Permissions(ctx context.Context, pid string) ([]access.Rule, error)
	AddWhitelist(ctx context.Context, subject string) error

	// Replication

	GetReplicationRecord(ctx context.Context, pid, peer string) (*ReplicationRecord, error)
	InsertReplicationRecord(ctx context.Context, r *ReplicationRecord) error
	UpdateReplicationRecord(ctx context.Context, r *ReplicationRecord) error
	ReplicationRecords(ctx context.Context, pid string) ([]*ReplicationRecord, error)
	QueuedReplications(ctx context.Context, limit int) ([]*ReplicationRecord, error)
	// RequeueRequested returns every requested record to queued and
	// reports how many moved.
	RequeueRequested(ctx context.Context) (int, error)
	// ReplicaStorageUsed sums the sizes of queued, requested and completed replicas.
	ReplicaStorageUsed(ctx context.Context) (int64, error)
	AddChainReference(ctx context.Context, pid string) error
	SetReplicationPolicy(ctx context.Context, pid string, p *ReplicationPolicy) error
	GetReplicationPolicy(ctx context.Context, pid string) (*ReplicationPolicy, error)

	// Resource maps

	// ReplaceResourceMap deletes every member of mapPID and inserts members.
	ReplaceResourceMap(ctx context.Context, mapPID string, members []string) error
	MapMembers(ctx context.Context, mapPID string) ([]string, error)
	MapsContaining(ctx context.Context, did string) ([]string, error)

	// Listings ordered by (modified desc, id desc)

	CountObjects(ctx context.Context, f ObjectFilter) (int, error)
	// ListObjects returns up to limit rows. When after is set the rows
	// strictly follow it in listing order and offset is ignored.
	ListObjects(ctx context.Context, f ObjectFilter, after *slice.Cursor, offset, limit int) ([]ObjectInfo, error)
}

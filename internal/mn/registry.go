package mn

import (
	"context"
	"fmt"

	"mn-go/internal/fault"
)

// Class is the role a DID plays on this node.
type Class int

const (
	Unused Class = iota
	SID
	ExistingObject
	ReplicaPlaceholder
	ChainReserved
	AggregatedOnly
	Unknown
)

func (c Class) String() string {
	switch c {
	case Unused:
		return "unused"
	case SID:
		return "sid"
	case ExistingObject:
		return "existing object"
	case ReplicaPlaceholder:
		return "replica placeholder"
	case ChainReserved:
		return "chain reference"
	case AggregatedOnly:
		return "aggregation member"
	default:
		return "unknown"
	}
}

// Classification is the result of classifying one DID.
type Classification struct {
	DID   string
	Class Class
	Facts IdentifierFacts
}

// Describe explains the classification for use in failure messages.
func (c Classification) Describe() string {
	switch c.Class {
	case Unused:
		return fmt.Sprintf("identifier is unused. id=%q", c.DID)
	case SID:
		return fmt.Sprintf("identifier is in use as a SID. id=%q, chain_tail=%q", c.DID, c.Facts.SeriesOf.TailPID)
	case ExistingObject:
		obj := c.Facts.Object
		var s string
		switch {
		case c.Facts.ResourceMap:
			s = fmt.Sprintf("identifier is a PID for a resource map. id=%q", c.DID)
		case obj.Replica:
			s = fmt.Sprintf("identifier is a PID for a local replica. id=%q", c.DID)
		default:
			s = fmt.Sprintf("identifier is a PID for a local object. id=%q", c.DID)
		}
		if obj.Archived {
			s += ", archived=true"
		}
		if obj.ObsoletedBy != "" {
			s += fmt.Sprintf(", obsoleted_by=%q", obj.ObsoletedBy)
		}
		return s
	case ReplicaPlaceholder:
		return fmt.Sprintf("identifier is reserved for a replica that is being retrieved. id=%q, status=%q",
			c.DID, c.Facts.ReplicaStatus)
	case ChainReserved:
		return fmt.Sprintf("identifier is reserved as a revision of a replica that has not been retrieved. id=%q", c.DID)
	case AggregatedOnly:
		return fmt.Sprintf("identifier is a member of a resource map but no local object exists. id=%q", c.DID)
	default:
		return fmt.Sprintf("identifier is in use but its type is unknown. id=%q", c.DID)
	}
}

// Registry classifies identifiers. It only reads state.
type Registry struct{}

func NewRegistry() *Registry { return &Registry{} }

// Classify determines the role of did within tx.
func (r *Registry) Classify(ctx context.Context, tx Tx, did string) (Classification, error) {
	facts, err := tx.IdentifierFacts(ctx, did)
	if err != nil {
		return Classification{}, fmt.Errorf("reading identifier facts: %w", err)
	}
	return Classification{DID: did, Class: classOf(facts), Facts: facts}, nil
}

func classOf(f IdentifierFacts) Class {
	switch {
	case f.SeriesOf != nil:
		return SID
	case f.Object != nil:
		return ExistingObject
	case f.ReplicaStatus != "":
		return ReplicaPlaceholder
	case f.ChainReference:
		return ChainReserved
	case f.MapMember:
		return AggregatedOnly
	case f.Known:
		return Unknown
	default:
		return Unused
	}
}

// IsValidForCreate reports whether did may name a new object. A DID that
// is only listed as a member of some resource map is a forward reference
// and may still be created.
func (r *Registry) IsValidForCreate(ctx context.Context, tx Tx, did string) (bool, error) {
	c, err := r.Classify(ctx, tx, did)
	if err != nil {
		return false, err
	}
	return c.Class == Unused || c.Class == AggregatedOnly, nil
}

// AssertValidForCreate fails with IdentifierNotUnique unless did may name
// a new object.
func (r *Registry) AssertValidForCreate(ctx context.Context, tx Tx, did string) error {
	c, err := r.Classify(ctx, tx, did)
	if err != nil {
		return err
	}
	if c.Class != Unused && c.Class != AggregatedOnly {
		return fault.NewIdentifierNotUnique("identifier is already in use. %s", c.Describe()).WithIdentifier(did)
	}
	return nil
}

// IsUnused reports whether did is unknown to this node in every role.
func (r *Registry) IsUnused(ctx context.Context, tx Tx, did string) (bool, error) {
	c, err := r.Classify(ctx, tx, did)
	if err != nil {
		return false, err
	}
	return c.Class == Unused, nil
}

// AssertUnused fails with IdentifierNotUnique unless did is unused.
func (r *Registry) AssertUnused(ctx context.Context, tx Tx, did string) error {
	c, err := r.Classify(ctx, tx, did)
	if err != nil {
		return err
	}
	if c.Class != Unused {
		return fault.NewIdentifierNotUnique("identifier is already in use. %s", c.Describe()).WithIdentifier(did)
	}
	return nil
}

// IsValidAsUpdateTarget reports whether did names an object that may be
// obsoleted by a new version. When it may not, the returned error explains
// why; the error is nil only for valid targets.
func (r *Registry) IsValidAsUpdateTarget(ctx context.Context, tx Tx, did string) (*ScienceObject, error) {
	c, err := r.Classify(ctx, tx, did)
	if err != nil {
		return nil, err
	}
	if c.Class != ExistingObject {
		return nil, fault.NewInvalidRequest("the object to be updated must be an existing local object. %s",
			c.Describe()).WithIdentifier(did)
	}
	obj := c.Facts.Object
	if obj.Replica || obj.Archived || obj.ObsoletedBy != "" {
		return nil, fault.NewInvalidRequest("the object to be updated must be a non-archived, non-obsoleted local original. %s",
			c.Describe()).WithIdentifier(did)
	}
	return obj, nil
}

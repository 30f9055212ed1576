package mn

import (
	"context"
	"fmt"
	"slices"

	"mn-go/internal/config"
	"mn-go/internal/fault"
)

// ResourceMaps maintains aggregation membership.
type ResourceMaps struct {
	registry *Registry
	mode     string
}

// NewResourceMaps creates a manager validating new maps with mode, one of
// the config.ResourceMap* modes. The reserve mode has no defined semantics
// yet and is validated like open.
func NewResourceMaps(registry *Registry, mode string) *ResourceMaps {
	return &ResourceMaps{registry: registry, mode: mode}
}

// CreateOrUpdate replaces the membership of mapPID with members.
func (m *ResourceMaps) CreateOrUpdate(ctx context.Context, tx Tx, mapPID string, members []string) error {
	members = dedupe(members)
	if slices.Contains(members, mapPID) {
		return fault.NewInvalidRequest("resource map cannot aggregate itself. pid=%q", mapPID).WithIdentifier(mapPID)
	}
	if m.mode == config.ResourceMapBlock {
		if err := m.assertMembersExist(ctx, tx, members); err != nil {
			return err
		}
	}
	if err := tx.ReplaceResourceMap(ctx, mapPID, members); err != nil {
		return fmt.Errorf("replacing resource map members: %w", err)
	}
	for _, did := range members {
		if err := tx.RecordDID(ctx, did); err != nil {
			return fmt.Errorf("recording member: %w", err)
		}
	}
	return nil
}

func (m *ResourceMaps) assertMembersExist(ctx context.Context, tx Tx, members []string) error {
	var missing []string
	for _, did := range members {
		c, err := m.registry.Classify(ctx, tx, did)
		if err != nil {
			return err
		}
		if c.Class != ExistingObject && c.Class != SID {
			missing = append(missing, did)
		}
	}
	if len(missing) > 0 {
		return fault.NewInvalidRequest("resource map references objects that do not exist on this node. missing=%q", missing)
	}
	return nil
}

// MembersOf returns the membership of the map named by did, or of every map
// that aggregates did. The result is sorted and duplicate free.
func (m *ResourceMaps) MembersOf(ctx context.Context, tx Tx, did string) ([]string, error) {
	members, err := tx.MapMembers(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("reading map members: %w", err)
	}
	if len(members) > 0 {
		return dedupe(members), nil
	}
	maps, err := tx.MapsContaining(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("reading maps containing %s: %w", did, err)
	}
	return dedupe(maps), nil
}

func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

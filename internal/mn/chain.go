package mn

import (
	"context"
	"fmt"
	"time"

	"mn-go/internal/fault"
)

// ChainManager maintains revision chains and their series identifiers.
// Every method runs inside the caller's transaction and rechecks the chain
// invariants before returning, so a violation rolls the transaction back.
type ChainManager struct {
	registry *Registry
	clock    Clock
}

func NewChainManager(registry *Registry, clock Clock) *ChainManager {
	return &ChainManager{registry: registry, clock: clock}
}

// CreateStandalone places the stored object pid in a chain of its own,
// optionally named by sid.
func (m *ChainManager) CreateStandalone(ctx context.Context, tx Tx, pid, sid string) error {
	if sid != "" {
		if err := m.assertSIDAvailable(ctx, tx, pid, sid); err != nil {
			return err
		}
		if err := tx.RecordDID(ctx, sid); err != nil {
			return fmt.Errorf("recording sid: %w", err)
		}
	}
	chain := &Chain{SID: sid, TailPID: pid}
	if err := tx.InsertChain(ctx, chain); err != nil {
		return fmt.Errorf("inserting chain: %w", err)
	}
	if err := tx.SetChainMember(ctx, pid, chain.ID); err != nil {
		return fmt.Errorf("adding chain member: %w", err)
	}
	return m.CheckInvariants(ctx, tx, chain)
}

func (m *ChainManager) assertSIDAvailable(ctx context.Context, tx Tx, pid, sid string) error {
	if sid == pid {
		return fault.NewIdentifierNotUnique("the SID and PID cannot be the same. id=%q", sid).WithIdentifier(sid)
	}
	c, err := m.registry.Classify(ctx, tx, sid)
	if err != nil {
		return err
	}
	if c.Class != Unused {
		return fault.NewIdentifierNotUnique("SID is already in use. %s", c.Describe()).WithIdentifier(sid)
	}
	return nil
}

// Extend appends the stored object newPID to the chain whose tail is oldPID.
// If the chain has a SID, sid must be empty or equal to it; otherwise a
// non-empty sid becomes the chain's SID.
func (m *ChainManager) Extend(ctx context.Context, tx Tx, oldPID, newPID, sid string) error {
	old, err := tx.GetObject(ctx, oldPID)
	if err != nil {
		return fmt.Errorf("reading object %s: %w", oldPID, err)
	}
	if old == nil {
		return fault.NewNotFound("object to be obsoleted does not exist. pid=%q", oldPID).WithIdentifier(oldPID)
	}
	if old.ObsoletedBy != "" || old.Archived {
		return fault.NewInvalidRequest("only the non-archived tail of a chain can be obsoleted. pid=%q, obsoleted_by=%q, archived=%t",
			oldPID, old.ObsoletedBy, old.Archived).WithIdentifier(oldPID)
	}
	next, err := tx.GetObject(ctx, newPID)
	if err != nil {
		return fmt.Errorf("reading object %s: %w", newPID, err)
	}
	if next == nil {
		return fault.NewServiceFailure("mn.ChainManager.Extend", nil, "new object is not stored. pid=%q", newPID)
	}

	chain, err := tx.ChainOf(ctx, oldPID)
	if err != nil {
		return fmt.Errorf("reading chain of %s: %w", oldPID, err)
	}
	if chain == nil || chain.TailPID != oldPID {
		return fault.NewServiceFailure("mn.ChainManager.Extend", nil,
			"chain tail does not match unobsoleted object. pid=%q", oldPID)
	}

	switch {
	case sid == "" || sid == chain.SID:
	case chain.SID != "":
		return fault.NewIdentifierNotUnique("SID does not match the SID of the chain being extended. sid=%q, chain_sid=%q",
			sid, chain.SID).WithIdentifier(sid)
	default:
		if err := m.assertSIDAvailable(ctx, tx, newPID, sid); err != nil {
			return err
		}
		if err := tx.RecordDID(ctx, sid); err != nil {
			return fmt.Errorf("recording sid: %w", err)
		}
		chain.SID = sid
	}

	now := m.clock.Now()
	old.ObsoletedBy = newPID
	touch(old, now)
	if err := tx.UpdateObject(ctx, old); err != nil {
		return fmt.Errorf("updating object %s: %w", oldPID, err)
	}
	next.Obsoletes = oldPID
	touch(next, now)
	if err := tx.UpdateObject(ctx, next); err != nil {
		return fmt.Errorf("updating object %s: %w", newPID, err)
	}

	if err := tx.SetChainMember(ctx, newPID, chain.ID); err != nil {
		return fmt.Errorf("adding chain member: %w", err)
	}
	chain.TailPID = newPID
	if err := tx.UpdateChain(ctx, chain); err != nil {
		return fmt.Errorf("updating chain: %w", err)
	}
	return m.CheckInvariants(ctx, tx, chain)
}

// Cut removes pid from its chain, splicing its predecessor and successor
// together. If pid was the tail, its predecessor becomes the tail and the
// SID follows it. pid is left as a standalone object without a SID.
// Cutting a standalone object is a no-op.
func (m *ChainManager) Cut(ctx context.Context, tx Tx, pid string) error {
	obj, err := tx.GetObject(ctx, pid)
	if err != nil {
		return fmt.Errorf("reading object %s: %w", pid, err)
	}
	if obj == nil {
		return fault.NewNotFound("object does not exist. pid=%q", pid).WithIdentifier(pid)
	}
	if obj.Obsoletes == "" && obj.ObsoletedBy == "" {
		return nil
	}
	chain, err := tx.ChainOf(ctx, pid)
	if err != nil {
		return fmt.Errorf("reading chain of %s: %w", pid, err)
	}
	if chain == nil {
		return fault.NewServiceFailure("mn.ChainManager.Cut", nil, "object has no chain. pid=%q", pid)
	}

	now := m.clock.Now()
	prev, next := obj.Obsoletes, obj.ObsoletedBy
	if prev != "" {
		if err := m.relink(ctx, tx, prev, func(o *ScienceObject) { o.ObsoletedBy = next }, now); err != nil {
			return err
		}
	}
	if next != "" {
		if err := m.relink(ctx, tx, next, func(o *ScienceObject) { o.Obsoletes = prev }, now); err != nil {
			return err
		}
	}
	if chain.TailPID == pid {
		chain.TailPID = prev
		if err := tx.UpdateChain(ctx, chain); err != nil {
			return fmt.Errorf("updating chain: %w", err)
		}
	}

	standalone := &Chain{TailPID: pid}
	if err := tx.InsertChain(ctx, standalone); err != nil {
		return fmt.Errorf("inserting chain: %w", err)
	}
	if err := tx.SetChainMember(ctx, pid, standalone.ID); err != nil {
		return fmt.Errorf("moving chain member: %w", err)
	}
	obj.Obsoletes, obj.ObsoletedBy = "", ""
	touch(obj, now)
	if err := tx.UpdateObject(ctx, obj); err != nil {
		return fmt.Errorf("updating object %s: %w", pid, err)
	}

	if err := m.CheckInvariants(ctx, tx, chain); err != nil {
		return err
	}
	return m.CheckInvariants(ctx, tx, standalone)
}

func (m *ChainManager) relink(ctx context.Context, tx Tx, pid string, edit func(*ScienceObject), now time.Time) error {
	o, err := tx.GetObject(ctx, pid)
	if err != nil {
		return fmt.Errorf("reading object %s: %w", pid, err)
	}
	if o == nil {
		return fault.NewServiceFailure("mn.ChainManager.Cut", nil, "chain references missing object. pid=%q", pid)
	}
	edit(o)
	touch(o, now)
	if err := tx.UpdateObject(ctx, o); err != nil {
		return fmt.Errorf("updating object %s: %w", pid, err)
	}
	return nil
}

// ResolveSID returns the PID of the tail of the chain named by sid.
func (m *ChainManager) ResolveSID(ctx context.Context, tx Tx, sid string) (string, error) {
	chain, err := tx.ChainBySID(ctx, sid)
	if err != nil {
		return "", fmt.Errorf("reading chain for sid: %w", err)
	}
	if chain == nil {
		return "", fault.NewNotFound("unknown SID. sid=%q", sid).WithIdentifier(sid)
	}
	return chain.TailPID, nil
}

// SIDOf returns the SID of pid's chain, or "" if it has none.
func (m *ChainManager) SIDOf(ctx context.Context, tx Tx, pid string) (string, error) {
	chain, err := tx.ChainOf(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("reading chain of %s: %w", pid, err)
	}
	if chain == nil {
		return "", nil
	}
	return chain.SID, nil
}

// Members returns the objects of pid's chain ordered from head to tail.
func (m *ChainManager) Members(ctx context.Context, tx Tx, pid string) ([]*ScienceObject, error) {
	chain, err := tx.ChainOf(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("reading chain of %s: %w", pid, err)
	}
	if chain == nil {
		return nil, fault.NewNotFound("object does not exist. pid=%q", pid).WithIdentifier(pid)
	}
	ordered, err := m.walk(ctx, tx, chain)
	if err != nil {
		return nil, err
	}
	return ordered, nil
}

// CheckInvariants verifies that chain is one linear, acyclic sequence with
// exactly one head and one tail, that back-references agree with forward
// references and that the recorded tail is the real tail.
func (m *ChainManager) CheckInvariants(ctx context.Context, tx Tx, chain *Chain) error {
	_, err := m.walk(ctx, tx, chain)
	return err
}

func (m *ChainManager) walk(ctx context.Context, tx Tx, chain *Chain) ([]*ScienceObject, error) {
	const op = "mn.ChainManager.CheckInvariants"
	members, err := tx.ChainMembers(ctx, chain.ID)
	if err != nil {
		return nil, fmt.Errorf("reading chain members: %w", err)
	}
	if len(members) == 0 {
		return nil, fault.NewServiceFailure(op, nil, "chain has no members. chain=%d", chain.ID)
	}

	byPID := make(map[string]*ScienceObject, len(members))
	var head *ScienceObject
	heads, tails := 0, 0
	for _, o := range members {
		byPID[o.PID] = o
		if o.Obsoletes == "" {
			heads++
			head = o
		}
		if o.ObsoletedBy == "" {
			tails++
		}
	}
	if heads != 1 || tails != 1 {
		return nil, fault.NewServiceFailure(op, nil, "chain must have exactly one head and one tail. chain=%d, heads=%d, tails=%d",
			chain.ID, heads, tails)
	}

	ordered := make([]*ScienceObject, 0, len(members))
	for cur := head; cur != nil; {
		ordered = append(ordered, cur)
		if len(ordered) > len(members) {
			return nil, fault.NewServiceFailure(op, nil, "chain contains a cycle. chain=%d", chain.ID)
		}
		if cur.ObsoletedBy == "" {
			if cur.PID != chain.TailPID {
				return nil, fault.NewServiceFailure(op, nil, "recorded tail is not the chain tail. chain=%d, recorded=%q, actual=%q",
					chain.ID, chain.TailPID, cur.PID)
			}
			break
		}
		next := byPID[cur.ObsoletedBy]
		if next == nil || next.Obsoletes != cur.PID {
			return nil, fault.NewServiceFailure(op, nil, "broken chain link. chain=%d, pid=%q, obsoleted_by=%q",
				chain.ID, cur.PID, cur.ObsoletedBy)
		}
		cur = next
	}
	if len(ordered) != len(members) {
		return nil, fault.NewServiceFailure(op, nil, "chain members are not linearly linked. chain=%d, linked=%d, members=%d",
			chain.ID, len(ordered), len(members))
	}
	return ordered, nil
}

// touch records a mutation of o at now.
func touch(o *ScienceObject, now time.Time) {
	o.Modified = now
	o.SerialVersion++
}

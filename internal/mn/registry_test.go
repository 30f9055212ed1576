package mn_test

import (
	"context"
	"strings"
	"testing"

	"mn-go/internal/config"
	"mn-go/internal/fault"
	"mn-go/internal/mn"
	"mn-go/internal/testutil"
)

// newClassifiedEnv stores one identifier of every class:
//
//	obj.1     local object, chain named by series.1
//	map.1     resource map aggregating obj.1 and fwd.1 (not stored)
//	queued.1  replica offer waiting to be fetched
//	rep.1     stored replica whose predecessor prev.1 is not held here
//	lost.1    recorded in the namespace without any other role
func newClassifiedEnv(t *testing.T) *testutil.Env {
	t.Helper()
	ctx := context.Background()
	policy := testutil.TestPolicy()
	policy.ResourceMapMode = config.ResourceMapOpen
	env := testutil.NewTestEnv(t, policy)

	desc := testutil.Descriptor("obj.1", []byte("object"))
	desc.SID = "series.1"
	createDesc(t, env, desc, "object")

	m, body := resourceMap("map.1", "obj.1", "fwd.1")
	createDesc(t, env, m, body)

	if err := env.Service.Replicate(ctx, testutil.CN(), testutil.Descriptor("queued.1", []byte("q")), peer); err != nil {
		t.Fatalf("Replicate() error = %v", err)
	}

	rep := testutil.Descriptor("rep.1", []byte("replica"))
	rep.Obsoletes = "prev.1"
	replicate(t, env, rep)
	completeReplica(t, env, rep, "replica")

	err := env.Store.Update(ctx, func(tx mn.Tx) error { return tx.RecordDID(ctx, "lost.1") })
	if err != nil {
		t.Fatalf("RecordDID() error = %v", err)
	}
	return env
}

func TestRegistry_Classify(t *testing.T) {
	env := newClassifiedEnv(t)

	tests := []struct {
		did  string
		want mn.Class
	}{
		{did: "obj.1", want: mn.ExistingObject},
		{did: "series.1", want: mn.SID},
		{did: "map.1", want: mn.ExistingObject},
		{did: "fwd.1", want: mn.AggregatedOnly},
		{did: "queued.1", want: mn.ReplicaPlaceholder},
		{did: "rep.1", want: mn.ExistingObject},
		{did: "prev.1", want: mn.ChainReserved},
		{did: "lost.1", want: mn.Unknown},
		{did: "never.1", want: mn.Unused},
	}
	for _, tt := range tests {
		t.Run(tt.did, func(t *testing.T) {
			c, err := env.Service.Classify(context.Background(), tt.did)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if c.Class != tt.want {
				t.Errorf("Classify() = %s, want %s", c.Class, tt.want)
			}
			if !strings.Contains(c.Describe(), tt.did) {
				t.Errorf("Describe() = %q, want it to name %q", c.Describe(), tt.did)
			}
		})
	}
}

func TestRegistry_Describe(t *testing.T) {
	env := newClassifiedEnv(t)
	ctx := context.Background()

	tests := []struct {
		did  string
		want string
	}{
		{did: "series.1", want: `chain_tail="obj.1"`},
		{did: "map.1", want: "resource map"},
		{did: "rep.1", want: "local replica"},
		{did: "queued.1", want: `status="queued"`},
	}
	for _, tt := range tests {
		c, err := env.Service.Classify(ctx, tt.did)
		if err != nil {
			t.Fatalf("Classify(%s) error = %v", tt.did, err)
		}
		if got := c.Describe(); !strings.Contains(got, tt.want) {
			t.Errorf("Describe(%s) = %q, want it to contain %q", tt.did, got, tt.want)
		}
	}
}

func TestRegistry_Validity(t *testing.T) {
	env := newClassifiedEnv(t)
	ctx := context.Background()
	reg := mn.NewRegistry()

	tests := []struct {
		did             string
		validForCreate  bool
		unused          bool
		validUpdateHead bool
	}{
		{did: "obj.1", validUpdateHead: true},
		{did: "series.1"},
		{did: "map.1", validUpdateHead: true},
		{did: "fwd.1", validForCreate: true},
		{did: "queued.1"},
		{did: "rep.1"},
		{did: "prev.1"},
		{did: "lost.1"},
		{did: "never.1", validForCreate: true, unused: true},
	}
	for _, tt := range tests {
		t.Run(tt.did, func(t *testing.T) {
			err := env.Store.View(ctx, func(tx mn.Tx) error {
				ok, err := reg.IsValidForCreate(ctx, tx, tt.did)
				if err != nil {
					return err
				}
				if ok != tt.validForCreate {
					t.Errorf("IsValidForCreate() = %t, want %t", ok, tt.validForCreate)
				}
				if err := reg.AssertValidForCreate(ctx, tx, tt.did); (err == nil) != tt.validForCreate {
					t.Errorf("AssertValidForCreate() error = %v", err)
				} else if err != nil && !fault.Is(err, fault.IdentifierNotUnique) {
					t.Errorf("AssertValidForCreate() error = %v, want IdentifierNotUnique", err)
				}

				ok, err = reg.IsUnused(ctx, tx, tt.did)
				if err != nil {
					return err
				}
				if ok != tt.unused {
					t.Errorf("IsUnused() = %t, want %t", ok, tt.unused)
				}
				if err := reg.AssertUnused(ctx, tx, tt.did); (err == nil) != tt.unused {
					t.Errorf("AssertUnused() error = %v", err)
				}

				obj, err := reg.IsValidAsUpdateTarget(ctx, tx, tt.did)
				if (err == nil) != tt.validUpdateHead {
					t.Errorf("IsValidAsUpdateTarget() error = %v, want valid %t", err, tt.validUpdateHead)
				}
				if err != nil && !fault.Is(err, fault.InvalidRequest) {
					t.Errorf("IsValidAsUpdateTarget() error = %v, want InvalidRequest", err)
				}
				if err == nil && obj.PID != tt.did {
					t.Errorf("IsValidAsUpdateTarget() PID = %q, want %q", obj.PID, tt.did)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("View() error = %v", err)
			}
		})
	}
}

func TestRegistry_UpdateTargetStates(t *testing.T) {
	env := testutil.NewTestEnv(t, testutil.TestPolicy())
	ctx := context.Background()
	reg := mn.NewRegistry()

	create(t, env, "a.1", "a")
	update(t, env, "a.1", "a.2", "")
	create(t, env, "b.1", "b")
	if _, err := env.Service.Archive(ctx, testutil.CN(), "b.1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	tests := []struct {
		did  string
		want string
	}{
		{did: "a.1", want: `obsoleted_by="a.2"`},
		{did: "b.1", want: "archived=true"},
	}
	for _, tt := range tests {
		err := env.Store.View(ctx, func(tx mn.Tx) error {
			_, err := reg.IsValidAsUpdateTarget(ctx, tx, tt.did)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("IsValidAsUpdateTarget(%s) error = %v, want it to contain %q", tt.did, err, tt.want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View() error = %v", err)
		}
	}
}

func TestService_CreateClaimsAggregatedOnly(t *testing.T) {
	policy := testutil.TestPolicy()
	policy.ResourceMapMode = config.ResourceMapOpen
	env := testutil.NewTestEnv(t, policy)

	m, body := resourceMap("map.1", "later.1")
	createDesc(t, env, m, body)
	if got := classify(t, env, "later.1"); got != mn.AggregatedOnly {
		t.Fatalf("Classify(later.1) = %s, want %s", got, mn.AggregatedOnly)
	}

	create(t, env, "later.1", "arrived")
	if got := classify(t, env, "later.1"); got != mn.ExistingObject {
		t.Errorf("Classify(later.1) = %s, want %s", got, mn.ExistingObject)
	}
}

func TestService_SIDMustBeUnused(t *testing.T) {
	policy := testutil.TestPolicy()
	policy.ResourceMapMode = config.ResourceMapOpen
	env := testutil.NewTestEnv(t, policy)
	ctx := context.Background()

	m, body := resourceMap("map.1", "member.1")
	createDesc(t, env, m, body)
	create(t, env, "obj.1", "o")

	for _, sid := range []string{"member.1", "obj.1", "map.1", "new.1"} {
		desc := testutil.Descriptor("new.1", []byte("n"))
		desc.SID = sid
		_, err := env.Service.Create(ctx, testutil.CN(), "new.1", mn.Content{Body: strings.NewReader("n")}, desc)
		wantKind(t, err, fault.IdentifierNotUnique)
	}
	if env.Bytes.Len() != 2 {
		t.Errorf("byte store holds %d items, want rejected bytes removed", env.Bytes.Len())
	}
}

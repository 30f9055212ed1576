package mn_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"mn-go/internal/access"
	"mn-go/internal/config"
	"mn-go/internal/fault"
	"mn-go/internal/mn"
	"mn-go/internal/testutil"
)

const peer = "urn:node:PEER"

// create stores pid with content as the trusted registry and fails the test on error.
func create(t *testing.T, env *testutil.Env, pid, content string) *mn.Descriptor {
	t.Helper()
	return createDesc(t, env, testutil.Descriptor(pid, []byte(content)), content)
}

func createDesc(t *testing.T, env *testutil.Env, desc *mn.Descriptor, content string) *mn.Descriptor {
	t.Helper()
	out, err := env.Service.Create(context.Background(), testutil.CN(), desc.PID,
		mn.Content{Body: strings.NewReader(content)}, desc)
	if err != nil {
		t.Fatalf("Create(%s) error = %v", desc.PID, err)
	}
	return out
}

// update stores newPID as the successor of oldPID, carrying sid.
func update(t *testing.T, env *testutil.Env, oldPID, newPID, sid string) *mn.Descriptor {
	t.Helper()
	content := "content of " + newPID
	desc := testutil.Descriptor(newPID, []byte(content))
	desc.SID = sid
	out, err := env.Service.Update(context.Background(), testutil.CN(), oldPID, newPID,
		mn.Content{Body: strings.NewReader(content)}, desc)
	if err != nil {
		t.Fatalf("Update(%s -> %s) error = %v", oldPID, newPID, err)
	}
	return out
}

// resourceMap returns a descriptor and body for an aggregation of members.
func resourceMap(pid string, members ...string) (*mn.Descriptor, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "identifier: %s\naggregates:\n", pid)
	for _, m := range members {
		fmt.Fprintf(&b, "  - %s\n", m)
	}
	body := b.String()
	desc := testutil.Descriptor(pid, []byte(body))
	desc.FormatID = config.DefaultResourceMapFormat
	return desc, body
}

func describe(t *testing.T, env *testutil.Env, did string) *mn.Descriptor {
	t.Helper()
	d, err := env.Service.Describe(context.Background(), testutil.CN(), did)
	if err != nil {
		t.Fatalf("Describe(%s) error = %v", did, err)
	}
	return d
}

func chainOf(t *testing.T, env *testutil.Env, did string) []string {
	t.Helper()
	pids, err := env.Service.ChainOf(context.Background(), testutil.CN(), did)
	if err != nil {
		t.Fatalf("ChainOf(%s) error = %v", did, err)
	}
	return pids
}

func classify(t *testing.T, env *testutil.Env, did string) mn.Class {
	t.Helper()
	c, err := env.Service.Classify(context.Background(), did)
	if err != nil {
		t.Fatalf("Classify(%s) error = %v", did, err)
	}
	return c.Class
}

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	return string(b)
}

func wantKind(t *testing.T, err error, kind fault.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want %s", kind)
	}
	if !fault.Is(err, kind) {
		t.Fatalf("error = %v, want %s", err, kind)
	}
}

// replicate offers desc from peer and moves the record to requested.
func replicate(t *testing.T, env *testutil.Env, desc *mn.Descriptor) {
	t.Helper()
	ctx := context.Background()
	if err := env.Service.Replicate(ctx, testutil.CN(), desc, peer); err != nil {
		t.Fatalf("Replicate(%s) error = %v", desc.PID, err)
	}
	if err := env.Service.BeginReplica(ctx, desc.PID, peer); err != nil {
		t.Fatalf("BeginReplica(%s) error = %v", desc.PID, err)
	}
}

// completeReplica stores content as the replica of desc.
func completeReplica(t *testing.T, env *testutil.Env, desc *mn.Descriptor, content string) {
	t.Helper()
	if err := env.Service.CompleteReplica(context.Background(), peer, desc, bytes.NewReader([]byte(content))); err != nil {
		t.Fatalf("CompleteReplica(%s) error = %v", desc.PID, err)
	}
}

// privateDescriptor returns a descriptor without access rules.
func privateDescriptor(pid, content string) *mn.Descriptor {
	d := testutil.Descriptor(pid, []byte(content))
	d.AccessPolicy = nil
	return d
}

func grant(level access.Level, subjects ...string) []access.Rule {
	return []access.Rule{{Subjects: subjects, Level: level}}
}

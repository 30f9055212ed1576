package testutil

import (
	"testing"

	"mn-go/internal/access"
	"mn-go/internal/bytestore"
	"mn-go/internal/codec"
	"mn-go/internal/config"
	"mn-go/internal/database"
	"mn-go/internal/mn"
)

const (
	// NodeID is the identifier of the node under test.
	NodeID = "urn:node:TEST"
	// CNSubject is the trusted subject of the coordinating registry.
	CNSubject = "CN=urn:node:CN"
)

// TestPolicy returns the policy used by NewTestEnv: block mode, replicas
// accepted from any node, and the registry as the only trusted subject.
func TestPolicy() config.Policy {
	p := config.DefaultPolicy(NodeID)
	p.TrustedSubjects = []string{CNSubject}
	p.Replication.Accept = true
	p.Replication.MaxAttempts = 3
	return p
}

// Env bundles a Service with the collaborators it was built from.
type Env struct {
	Store   *database.SQLiteStore
	Bytes   *bytestore.MemoryStore
	Clock   *StubClock
	IDs     *StubIDGenerator
	Service *mn.Service
}

// NewTestEnv creates a Service over an in-memory store and byte store.
func NewTestEnv(t *testing.T, policy config.Policy, opts ...mn.Option) *Env {
	t.Helper()
	env := &Env{
		Store: NewTestStore(t),
		Bytes: bytestore.NewMemoryStore(),
		Clock: FixedClock(),
		IDs:   NewStubIDGenerator(),
	}
	env.Service = mn.NewService(env.Store, env.Bytes, codec.CBOR{}, policy, mn.NewNopLogger(), env.Clock, env.IDs, opts...)
	return env
}

// Cred returns a credential for subject with no claims.
func Cred(subject string) *access.Credential {
	return &access.Credential{Subject: subject}
}

// CN returns the credential of the coordinating registry.
func CN() *access.Credential {
	return Cred(CNSubject)
}

// Descriptor returns a descriptor for pid matching content, readable by
// the public.
func Descriptor(pid string, content []byte) *mn.Descriptor {
	return &mn.Descriptor{
		PID:          pid,
		FormatID:     "text/plain",
		Size:         int64(len(content)),
		Checksum:     Checksum(content),
		RightsHolder: "CN=owner",
		AccessPolicy: []access.Rule{{Subjects: []string{access.SubjectPublic}, Level: access.Read}},
	}
}

package codec

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"mn-go/internal/access"
	"mn-go/internal/mn"
)

func testDescriptor() *mn.Descriptor {
	uploaded := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	return &mn.Descriptor{
		PID:               "doi:10.5063/AA/obj.2",
		SID:               "series.1",
		FormatID:          "text/csv",
		Size:              42,
		Checksum:          mn.Checksum{Algorithm: "SHA-256", Value: "abc123"},
		Submitter:         "CN=alice",
		RightsHolder:      "CN=alice",
		OriginNode:        "urn:node:TEST",
		AuthoritativeNode: "urn:node:TEST",
		DateUploaded:      uploaded,
		Modified:          uploaded.Add(time.Hour),
		SerialVersion:     3,
		Obsoletes:         "doi:10.5063/AA/obj.1",
		AccessPolicy: []access.Rule{
			{Subjects: []string{access.SubjectPublic}, Level: access.Read},
			{Subjects: []string{"CN=bob", "CN=carol"}, Level: access.Write},
		},
		ReplicationPolicy: &mn.ReplicationPolicy{
			Allowed:        true,
			NumberReplicas: 2,
			PreferredNodes: []string{"urn:node:A"},
			BlockedNodes:   []string{"urn:node:B"},
		},
		Replicas: []mn.ReplicaInfo{
			{NodeID: "urn:node:A", Status: mn.StatusCompleted, Verified: uploaded},
		},
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	for name, c := range map[string]mn.DescriptorCodec{"cbor": CBOR{}, "yaml": YAML{}} {
		t.Run(name, func(t *testing.T) {
			want := testDescriptor()
			b, err := c.Encode(want)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if !got.DateUploaded.Equal(want.DateUploaded) || !got.Modified.Equal(want.Modified) {
				t.Errorf("times = %v, %v, want %v, %v", got.DateUploaded, got.Modified, want.DateUploaded, want.Modified)
			}
			if !got.Replicas[0].Verified.Equal(want.Replicas[0].Verified) {
				t.Errorf("replica verified = %v, want %v", got.Replicas[0].Verified, want.Replicas[0].Verified)
			}
			// Times compared above; location pointers may differ.
			got.DateUploaded, got.Modified, got.Replicas[0].Verified = want.DateUploaded, want.Modified, want.Replicas[0].Verified
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Decode(Encode()) = %+v, want %+v", got, want)
			}
		})
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	a, err := CBOR{}.Encode(testDescriptor())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	b, err := CBOR{}.Encode(testDescriptor())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(a) != string(b) {
		t.Error("encoding the same descriptor twice produced different bytes")
	}
}

func TestCodecs_ZeroTimes(t *testing.T) {
	for name, c := range map[string]mn.DescriptorCodec{"cbor": CBOR{}, "yaml": YAML{}} {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(&mn.Descriptor{PID: "p1", FormatID: "text/plain"})
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !got.DateUploaded.IsZero() || !got.Modified.IsZero() {
				t.Errorf("times = %v, %v, want zero", got.DateUploaded, got.Modified)
			}
			if got.ReplicationPolicy != nil || got.AccessPolicy != nil {
				t.Errorf("empty sections decoded as %+v, %+v", got.ReplicationPolicy, got.AccessPolicy)
			}
		})
	}
}

func TestYAML_Decode(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		check   func(t *testing.T, d *mn.Descriptor)
		wantErr bool
	}{
		{
			name: "version omitted reads as current",
			doc: `
identifier: p1
series_id: s1
format_id: text/plain
size: 3
checksum: {algorithm: MD5, value: abc}
rights_holder: CN=alice
archived: true
access_policy:
  - subjects: [public]
    permission: read
`,
			check: func(t *testing.T, d *mn.Descriptor) {
				if d.SID != "s1" || !d.Archived {
					t.Errorf("SID, Archived = %q, %v", d.SID, d.Archived)
				}
				if len(d.AccessPolicy) != 1 || d.AccessPolicy[0].Level != access.Read {
					t.Errorf("AccessPolicy = %+v", d.AccessPolicy)
				}
			},
		},
		{
			name: "version 1 ignores later fields",
			doc: `
version: 1
identifier: p1
series_id: s1
serial_version: 9
archived: true
`,
			check: func(t *testing.T, d *mn.Descriptor) {
				if d.SID != "" || d.SerialVersion != 0 || d.Archived {
					t.Errorf("version 1 fields leaked: %+v", d)
				}
			},
		},
		{name: "future version", doc: "version: 7\nidentifier: p1\n", wantErr: true},
		{name: "missing identifier", doc: "format_id: text/plain\n", wantErr: true},
		{name: "unknown permission", doc: "identifier: p1\naccess_policy:\n  - subjects: [x]\n    permission: own\n", wantErr: true},
		{name: "unknown replica status", doc: "identifier: p1\nreplicas:\n  - node: n\n    status: lost\n", wantErr: true},
		{name: "not yaml", doc: "identifier: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := YAML{}.Decode([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestParseResourceMap(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    []string
		wantErr bool
	}{
		{
			name: "yaml",
			doc:  "identifier: map.1\naggregates:\n  - data.1\n  - meta.1\n",
			want: []string{"data.1", "meta.1"},
		},
		{
			name: "json",
			doc:  `{"identifier": "map.1", "aggregates": ["data.1"]}`,
			want: []string{"data.1"},
		},
		{
			name: "no members",
			doc:  "identifier: map.1\n",
		},
		{name: "empty document", doc: "", wantErr: true},
		{name: "empty member", doc: "aggregates: [a, '']\n", wantErr: true},
		{name: "wrong shape", doc: "aggregates: {a: b}\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResourceMap(strings.NewReader(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResourceMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseResourceMap() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "cbor", "yaml"} {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q) error = %v", name, err)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Error("New(\"xml\") should fail")
	}
}

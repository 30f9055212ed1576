package codec

import (
	"fmt"
	"time"

	"mn-go/internal/access"
	"mn-go/internal/mn"
)

const (
	// CurrentVersion is the schema version written by Encode.
	CurrentVersion = 2
	// Version 1 predates series identifiers, archiving and serial versions.
	version1 = 1
)

type wireChecksum struct {
	Algorithm string `cbor:"algorithm" yaml:"algorithm"`
	Value     string `cbor:"value" yaml:"value"`
}

type wireRule struct {
	Subjects   []string `cbor:"subjects" yaml:"subjects"`
	Permission string   `cbor:"permission" yaml:"permission"`
}

type wireReplicationPolicy struct {
	Allowed        bool     `cbor:"allowed" yaml:"allowed"`
	NumberReplicas int      `cbor:"number_replicas" yaml:"number_replicas"`
	PreferredNodes []string `cbor:"preferred_nodes,omitempty" yaml:"preferred_nodes,omitempty"`
	BlockedNodes   []string `cbor:"blocked_nodes,omitempty" yaml:"blocked_nodes,omitempty"`
}

type wireReplica struct {
	NodeID   string    `cbor:"node" yaml:"node"`
	Status   string    `cbor:"status" yaml:"status"`
	Verified time.Time `cbor:"verified" yaml:"verified"`
}

// wireDescriptor is the encoded form of a descriptor. Fields added after
// version 1 are ignored when decoding older versions.
type wireDescriptor struct {
	Version           int                    `cbor:"version" yaml:"version"`
	Identifier        string                 `cbor:"identifier" yaml:"identifier"`
	SeriesID          string                 `cbor:"series_id,omitempty" yaml:"series_id,omitempty"`
	FormatID          string                 `cbor:"format_id" yaml:"format_id"`
	Size              int64                  `cbor:"size" yaml:"size"`
	Checksum          wireChecksum           `cbor:"checksum" yaml:"checksum"`
	Submitter         string                 `cbor:"submitter,omitempty" yaml:"submitter,omitempty"`
	RightsHolder      string                 `cbor:"rights_holder" yaml:"rights_holder"`
	OriginNode        string                 `cbor:"origin_node,omitempty" yaml:"origin_node,omitempty"`
	AuthoritativeNode string                 `cbor:"authoritative_node,omitempty" yaml:"authoritative_node,omitempty"`
	DateUploaded      time.Time              `cbor:"date_uploaded" yaml:"date_uploaded"`
	DateModified      time.Time              `cbor:"date_modified" yaml:"date_modified"`
	SerialVersion     int64                  `cbor:"serial_version,omitempty" yaml:"serial_version,omitempty"`
	Archived          bool                   `cbor:"archived,omitempty" yaml:"archived,omitempty"`
	Obsoletes         string                 `cbor:"obsoletes,omitempty" yaml:"obsoletes,omitempty"`
	ObsoletedBy       string                 `cbor:"obsoleted_by,omitempty" yaml:"obsoleted_by,omitempty"`
	AccessPolicy      []wireRule             `cbor:"access_policy,omitempty" yaml:"access_policy,omitempty"`
	ReplicationPolicy *wireReplicationPolicy `cbor:"replication_policy,omitempty" yaml:"replication_policy,omitempty"`
	Replicas          []wireReplica          `cbor:"replicas,omitempty" yaml:"replicas,omitempty"`
}

func toWire(d *mn.Descriptor) *wireDescriptor {
	w := &wireDescriptor{
		Version:           CurrentVersion,
		Identifier:        d.PID,
		SeriesID:          d.SID,
		FormatID:          d.FormatID,
		Size:              d.Size,
		Checksum:          wireChecksum{Algorithm: d.Checksum.Algorithm, Value: d.Checksum.Value},
		Submitter:         d.Submitter,
		RightsHolder:      d.RightsHolder,
		OriginNode:        d.OriginNode,
		AuthoritativeNode: d.AuthoritativeNode,
		DateUploaded:      d.DateUploaded.UTC(),
		DateModified:      d.Modified.UTC(),
		SerialVersion:     d.SerialVersion,
		Archived:          d.Archived,
		Obsoletes:         d.Obsoletes,
		ObsoletedBy:       d.ObsoletedBy,
	}
	for _, r := range d.AccessPolicy {
		w.AccessPolicy = append(w.AccessPolicy, wireRule{Subjects: r.Subjects, Permission: r.Level.String()})
	}
	if p := d.ReplicationPolicy; p != nil {
		w.ReplicationPolicy = &wireReplicationPolicy{
			Allowed:        p.Allowed,
			NumberReplicas: p.NumberReplicas,
			PreferredNodes: p.PreferredNodes,
			BlockedNodes:   p.BlockedNodes,
		}
	}
	for _, r := range d.Replicas {
		w.Replicas = append(w.Replicas, wireReplica{NodeID: r.NodeID, Status: string(r.Status), Verified: r.Verified.UTC()})
	}
	return w
}

func fromWire(w *wireDescriptor) (*mn.Descriptor, error) {
	switch w.Version {
	case 0, version1, CurrentVersion:
	default:
		return nil, fmt.Errorf("unsupported descriptor version %d", w.Version)
	}
	if w.Identifier == "" {
		return nil, fmt.Errorf("descriptor has no identifier")
	}

	d := &mn.Descriptor{
		PID:               w.Identifier,
		FormatID:          w.FormatID,
		Size:              w.Size,
		Checksum:          mn.Checksum{Algorithm: w.Checksum.Algorithm, Value: w.Checksum.Value},
		Submitter:         w.Submitter,
		RightsHolder:      w.RightsHolder,
		OriginNode:        w.OriginNode,
		AuthoritativeNode: w.AuthoritativeNode,
		DateUploaded:      w.DateUploaded,
		Modified:          w.DateModified,
		Obsoletes:         w.Obsoletes,
		ObsoletedBy:       w.ObsoletedBy,
	}
	if w.Version != version1 {
		d.SID = w.SeriesID
		d.SerialVersion = w.SerialVersion
		d.Archived = w.Archived
	}

	for i, r := range w.AccessPolicy {
		level, err := access.ParseLevel(r.Permission)
		if err != nil {
			return nil, fmt.Errorf("access rule %d: unknown permission %q", i, r.Permission)
		}
		d.AccessPolicy = append(d.AccessPolicy, access.Rule{Subjects: r.Subjects, Level: level})
	}
	if p := w.ReplicationPolicy; p != nil {
		d.ReplicationPolicy = &mn.ReplicationPolicy{
			Allowed:        p.Allowed,
			NumberReplicas: p.NumberReplicas,
			PreferredNodes: p.PreferredNodes,
			BlockedNodes:   p.BlockedNodes,
		}
	}
	for i, r := range w.Replicas {
		status, err := mn.ParseReplicationStatus(r.Status)
		if err != nil {
			return nil, fmt.Errorf("replica %d: %w", i, err)
		}
		d.Replicas = append(d.Replicas, mn.ReplicaInfo{NodeID: r.NodeID, Status: status, Verified: r.Verified})
	}
	return d, nil
}

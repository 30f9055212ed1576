package mn

import (
	"context"
	"fmt"
	"io"
	"strings"

	"mn-go/internal/access"
	"mn-go/internal/fault"
)

// Content is the body of a new object. Either Body holds the bytes, or
// ProxyURL names a remote location that keeps serving them.
type Content struct {
	Body     io.Reader
	ProxyURL string
}

// stored is the outcome of writing and verifying the bytes of a new object.
type stored struct {
	url   string
	proxy bool
}

// Create stores a new standalone object. A SID in desc names the new chain.
func (s *Service) Create(ctx context.Context, cred *access.Credential, pid string, content Content, desc *Descriptor) (_ *Descriptor, err error) {
	const op = "mn.Service.Create"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	if err := assertCreateDescriptor(pid, desc); err != nil {
		return nil, err
	}
	precheck := func(tx Tx) error {
		if err := s.auth.AssertCreatePermission(ctx, tx, subjects); err != nil {
			return err
		}
		if err := s.registry.AssertValidForCreate(ctx, tx, pid); err != nil {
			return err
		}
		if desc.SID != "" {
			return s.registry.AssertUnused(ctx, tx, desc.SID)
		}
		return nil
	}
	if err := s.store.View(ctx, precheck); err != nil {
		return nil, err
	}

	st, err := s.storeContent(ctx, pid, content, desc)
	if err != nil {
		return nil, err
	}

	var out *Descriptor
	err = s.store.Update(ctx, func(tx Tx) error {
		if err := precheck(tx); err != nil {
			return err
		}
		obj, err := s.insertObject(ctx, tx, subjects, desc, st, false)
		if err != nil {
			return err
		}
		if err := s.chains.CreateStandalone(ctx, tx, pid, desc.SID); err != nil {
			return err
		}
		if err := s.aggregate(ctx, tx, obj); err != nil {
			return err
		}
		out, err = s.describe(ctx, tx, obj)
		return err
	})
	if err != nil {
		s.discard(ctx, st)
		return nil, err
	}
	s.logger.Info("object created", "pid", pid, "sid", desc.SID, "format", desc.FormatID, "size", desc.Size)
	return out, nil
}

// Update stores newPID as the successor of oldPID. oldPID must be the
// non-archived tail of its chain and the caller needs write access to it.
func (s *Service) Update(ctx context.Context, cred *access.Credential, oldPID, newPID string, content Content, desc *Descriptor) (_ *Descriptor, err error) {
	const op = "mn.Service.Update"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	if err := assertUpdateDescriptor(oldPID, newPID, desc); err != nil {
		return nil, err
	}
	precheck := func(tx Tx) error {
		if err := s.auth.AssertAllowed(ctx, tx, subjects, access.Write, oldPID); err != nil {
			return err
		}
		if err := s.auth.AssertCreatePermission(ctx, tx, subjects); err != nil {
			return err
		}
		if _, err := s.registry.IsValidAsUpdateTarget(ctx, tx, oldPID); err != nil {
			return err
		}
		return s.registry.AssertValidForCreate(ctx, tx, newPID)
	}
	if err := s.store.View(ctx, precheck); err != nil {
		return nil, err
	}

	st, err := s.storeContent(ctx, newPID, content, desc)
	if err != nil {
		return nil, err
	}

	var out *Descriptor
	err = s.store.Update(ctx, func(tx Tx) error {
		if err := precheck(tx); err != nil {
			return err
		}
		obj, err := s.insertObject(ctx, tx, subjects, desc, st, false)
		if err != nil {
			return err
		}
		if err := s.chains.Extend(ctx, tx, oldPID, newPID, desc.SID); err != nil {
			return err
		}
		if err := s.aggregate(ctx, tx, obj); err != nil {
			return err
		}
		if obj, err = tx.GetObject(ctx, newPID); err != nil {
			return fmt.Errorf("reading object %s: %w", newPID, err)
		}
		out, err = s.describe(ctx, tx, obj)
		return err
	})
	if err != nil {
		s.discard(ctx, st)
		return nil, err
	}
	s.logger.Info("object updated", "old_pid", oldPID, "new_pid", newPID, "sid", out.SID)
	return out, nil
}

// Archive marks an object archived. It stays readable and listed but can
// no longer be updated or archived again. did may be a SID.
func (s *Service) Archive(ctx context.Context, cred *access.Credential, did string) (_ string, err error) {
	const op = "mn.Service.Archive"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var pid string
	err = s.store.Update(ctx, func(tx Tx) error {
		resolved, err := s.resolvePID(ctx, tx, did)
		if err != nil {
			return err
		}
		pid = resolved
		if err := s.auth.AssertAllowed(ctx, tx, subjects, access.Write, pid); err != nil {
			return err
		}
		obj, err := tx.GetObject(ctx, pid)
		if err != nil {
			return fmt.Errorf("reading object %s: %w", pid, err)
		}
		if obj.Replica {
			return fault.NewInvalidRequest("replicas cannot be archived. pid=%q", pid).WithIdentifier(pid)
		}
		if obj.Archived {
			return fault.NewInvalidRequest("object is already archived. pid=%q", pid).WithIdentifier(pid)
		}
		obj.Archived = true
		touch(obj, s.clock.Now())
		if err := tx.UpdateObject(ctx, obj); err != nil {
			return fmt.Errorf("updating object %s: %w", pid, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("object archived", "pid", pid)
	return pid, nil
}

// GenerateIdentifier returns a new UUID based identifier, prefixed with
// fragment, that is unused on this node. It does not reserve it.
func (s *Service) GenerateIdentifier(ctx context.Context, scheme, fragment string) (_ string, err error) {
	const op = "mn.Service.GenerateIdentifier"
	defer s.done(op, &err)

	if scheme != "UUID" {
		return "", fault.NewInvalidRequest("only the UUID scheme is supported. scheme=%q", scheme)
	}
	var pid string
	err = s.store.View(ctx, func(tx Tx) error {
		for {
			pid = fragment + strings.ReplaceAll(s.idgen.New(), "-", "")
			ok, err := s.registry.IsUnused(ctx, tx, pid)
			if err != nil || ok {
				return err
			}
		}
	})
	return pid, err
}

// insertObject records a new object, its identifier and its policies.
func (s *Service) insertObject(ctx context.Context, tx Tx, subjects access.SubjectSet, desc *Descriptor, st stored, replica bool) (*ScienceObject, error) {
	now := s.clock.Now()
	obj := &ScienceObject{
		PID:               desc.PID,
		FormatID:          desc.FormatID,
		Size:              desc.Size,
		Checksum:          desc.Checksum,
		Submitter:         desc.Submitter,
		RightsHolder:      desc.RightsHolder,
		OriginNode:        desc.OriginNode,
		AuthoritativeNode: desc.AuthoritativeNode,
		DateUploaded:      now,
		Modified:          now,
		SerialVersion:     1,
		URL:               st.url,
		Proxy:             st.proxy,
		Replica:           replica,
	}
	if replica {
		obj.DateUploaded = desc.DateUploaded
	} else {
		// Node controlled values.
		obj.Submitter = subjects.Primary()
		obj.OriginNode = s.policy.NodeID
		obj.AuthoritativeNode = s.policy.NodeID
	}
	if obj.RightsHolder == "" {
		obj.RightsHolder = obj.Submitter
	}
	if err := tx.RecordDID(ctx, obj.PID); err != nil {
		return nil, fmt.Errorf("recording pid: %w", err)
	}
	if err := tx.InsertObject(ctx, obj); err != nil {
		return nil, fmt.Errorf("inserting object: %w", err)
	}
	if err := tx.ReplacePermissions(ctx, obj.PID, normalizeRules(desc.AccessPolicy)); err != nil {
		return nil, fmt.Errorf("storing access policy: %w", err)
	}
	if desc.ReplicationPolicy != nil {
		if err := tx.SetReplicationPolicy(ctx, obj.PID, desc.ReplicationPolicy); err != nil {
			return nil, fmt.Errorf("storing replication policy: %w", err)
		}
	}
	return obj, nil
}

// aggregate records the members of obj when it is a resource map.
func (s *Service) aggregate(ctx context.Context, tx Tx, obj *ScienceObject) error {
	if !s.policy.IsResourceMapFormat(obj.FormatID) {
		return nil
	}
	r, err := s.open(ctx, obj)
	if err != nil {
		return err
	}
	defer r.Close()
	members, err := s.codec.ParseResourceMap(r)
	if err != nil {
		return fault.NewInvalidRequest("unable to parse resource map. pid=%q, error=%v", obj.PID, err).WithIdentifier(obj.PID)
	}
	return s.maps.CreateOrUpdate(ctx, tx, obj.PID, members)
}

// storeContent writes the bytes of a new object to the byte store, or reads
// them from the proxy location, and verifies size, checksum and science
// metadata against desc. The bytes are removed again if verification fails.
func (s *Service) storeContent(ctx context.Context, pid string, content Content, desc *Descriptor) (stored, error) {
	var st stored
	if content.ProxyURL != "" {
		if s.fetcher == nil {
			return st, fault.NewInvalidRequest("this node does not accept proxy objects. pid=%q", pid)
		}
		st = stored{url: content.ProxyURL, proxy: true}
	} else {
		if content.Body == nil {
			return st, fault.NewInvalidRequest("object content is missing. pid=%q", pid)
		}
		// Size and checksum are verified against the stored copy below.
		url, err := s.bytes.Put(ctx, pid+"."+s.idgen.New(), content.Body, -1)
		if err != nil {
			return st, fmt.Errorf("storing object bytes: %w", err)
		}
		st = stored{url: url}
	}
	if err := s.verifyContent(ctx, st, desc); err != nil {
		s.discard(ctx, st)
		return stored{}, err
	}
	return st, nil
}

func (s *Service) verifyContent(ctx context.Context, st stored, desc *Descriptor) error {
	obj := &ScienceObject{PID: desc.PID, URL: st.url, Proxy: st.proxy}
	r, err := s.open(ctx, obj)
	if err != nil {
		return err
	}
	sum, size, err := Digest(desc.Checksum.Algorithm, r)
	r.Close()
	if err != nil {
		return err
	}
	if size != desc.Size {
		return fault.NewInvalidSystemMetadata("size in descriptor does not match size of object bytes. descriptor=%d, actual=%d",
			desc.Size, size).WithIdentifier(desc.PID)
	}
	if !sum.Matches(desc.Checksum) {
		return fault.NewInvalidSystemMetadata("checksum in descriptor does not match checksum of object bytes. algorithm=%q, descriptor=%q, actual=%q",
			desc.Checksum.Algorithm, desc.Checksum.Value, sum.Value).WithIdentifier(desc.PID)
	}

	r, err = s.open(ctx, obj)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := s.validator.Validate(ctx, desc.FormatID, r); err != nil {
		return fault.NewInvalidRequest("invalid science metadata. format_id=%q, error=%v", desc.FormatID, err).
			WithIdentifier(desc.PID)
	}
	return nil
}

// discard removes bytes stored for an object that was not committed.
func (s *Service) discard(ctx context.Context, st stored) {
	if st.proxy || st.url == "" {
		return
	}
	if err := s.bytes.Delete(context.WithoutCancel(ctx), st.url); err != nil {
		s.logger.Warn("unable to remove orphaned object bytes", "url", st.url, "error", err)
	}
}

// open streams the bytes of obj.
func (s *Service) open(ctx context.Context, obj *ScienceObject) (io.ReadCloser, error) {
	if obj.Proxy {
		if s.fetcher == nil {
			return nil, fault.NewServiceFailure("mn.Service.open", nil, "proxy object without fetcher. pid=%q", obj.PID)
		}
		r, err := s.fetcher.Open(ctx, obj.URL)
		if err != nil {
			return nil, fault.NewInvalidRequest("unable to retrieve proxy object bytes. url=%q, error=%v", obj.URL, err).
				WithIdentifier(obj.PID)
		}
		return r, nil
	}
	r, err := s.bytes.Open(ctx, obj.URL)
	if err != nil {
		return nil, fmt.Errorf("opening object bytes: %w", err)
	}
	return r, nil
}

// assertCreateDescriptor checks the fields a create request may not set.
func assertCreateDescriptor(pid string, desc *Descriptor) error {
	if err := assertDescriptorSanity(pid, desc); err != nil {
		return err
	}
	if desc.Obsoletes != "" {
		return fault.NewInvalidSystemMetadata("obsoletes cannot be set on create. obsoletes=%q", desc.Obsoletes).
			WithIdentifier(pid)
	}
	return nil
}

// assertUpdateDescriptor checks the fields an update request may not set.
func assertUpdateDescriptor(oldPID, newPID string, desc *Descriptor) error {
	if err := assertDescriptorSanity(newPID, desc); err != nil {
		return err
	}
	if desc.Obsoletes != "" && desc.Obsoletes != oldPID {
		return fault.NewInvalidSystemMetadata("obsoletes must be the PID of the object being updated. obsoletes=%q, pid=%q",
			desc.Obsoletes, oldPID).WithIdentifier(newPID)
	}
	if oldPID == newPID {
		return fault.NewIdentifierNotUnique("new PID is the PID of the object being updated. pid=%q", newPID).
			WithIdentifier(newPID)
	}
	return nil
}

func assertDescriptorSanity(pid string, desc *Descriptor) error {
	switch {
	case desc == nil:
		return fault.NewInvalidSystemMetadata("descriptor is missing. pid=%q", pid).WithIdentifier(pid)
	case pid == "":
		return fault.NewInvalidRequest("identifier is empty")
	case desc.PID != pid:
		return fault.NewInvalidSystemMetadata("PID in descriptor does not match the PID of the request. descriptor=%q, request=%q",
			desc.PID, pid).WithIdentifier(pid)
	case len(desc.Replicas) > 0:
		return fault.NewInvalidSystemMetadata("a new object cannot list replicas. pid=%q", pid).WithIdentifier(pid)
	case desc.Archived:
		return fault.NewInvalidSystemMetadata("a new object cannot be archived. pid=%q", pid).WithIdentifier(pid)
	case desc.ObsoletedBy != "":
		return fault.NewInvalidSystemMetadata("obsoletedBy cannot be set on a new object. obsoleted_by=%q", desc.ObsoletedBy).
			WithIdentifier(pid)
	case desc.FormatID == "":
		return fault.NewInvalidSystemMetadata("format is missing. pid=%q", pid).WithIdentifier(pid)
	case desc.Checksum.Algorithm == "" || desc.Checksum.Value == "":
		return fault.NewInvalidSystemMetadata("checksum is missing. pid=%q", pid).WithIdentifier(pid)
	case desc.Size < 0:
		return fault.NewInvalidSystemMetadata("size is negative. size=%d", desc.Size).WithIdentifier(pid)
	}
	return nil
}

// normalizeRules drops empty rules and invalid levels and deduplicates subjects.
func normalizeRules(rules []access.Rule) []access.Rule {
	var out []access.Rule
	for _, r := range rules {
		if !r.Level.Valid() || len(r.Subjects) == 0 {
			continue
		}
		out = append(out, access.Rule{Subjects: dedupe(r.Subjects), Level: r.Level})
	}
	return out
}

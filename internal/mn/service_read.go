package mn

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"mn-go/internal/access"
	"mn-go/internal/fault"
	"mn-go/internal/slice"
)

// readable resolves did and asserts read access to the object it names.
func (s *Service) readable(ctx context.Context, tx Tx, subjects access.SubjectSet, did string) (*ScienceObject, error) {
	pid, err := s.resolvePID(ctx, tx, did)
	if err != nil {
		return nil, err
	}
	if err := s.auth.AssertAllowed(ctx, tx, subjects, access.Read, pid); err != nil {
		return nil, err
	}
	obj, err := tx.GetObject(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", pid, err)
	}
	return obj, nil
}

// Get opens the bytes of the object named by did, which may be a SID.
// The caller must close the returned reader.
func (s *Service) Get(ctx context.Context, cred *access.Credential, did string) (_ io.ReadCloser, _ *Descriptor, err error) {
	const op = "mn.Service.Get"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var (
		obj  *ScienceObject
		desc *Descriptor
	)
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		if obj, err = s.readable(ctx, tx, subjects, did); err != nil {
			return err
		}
		desc, err = s.describe(ctx, tx, obj)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	r, err := s.open(ctx, obj)
	if err != nil {
		return nil, nil, err
	}
	return r, desc, nil
}

// Describe returns the descriptor of the object named by did.
func (s *Service) Describe(ctx context.Context, cred *access.Credential, did string) (_ *Descriptor, err error) {
	const op = "mn.Service.Describe"
	defer s.done(op, &err)

	return s.describeDID(ctx, access.ResolveEffectiveSubjects(cred), did)
}

func (s *Service) describeDID(ctx context.Context, subjects access.SubjectSet, did string) (*Descriptor, error) {
	var desc *Descriptor
	err := s.store.View(ctx, func(tx Tx) error {
		obj, err := s.readable(ctx, tx, subjects, did)
		if err != nil {
			return err
		}
		desc, err = s.describe(ctx, tx, obj)
		return err
	})
	return desc, err
}

// GetSystemMetadata returns the encoded descriptor of the object named by did.
func (s *Service) GetSystemMetadata(ctx context.Context, cred *access.Credential, did string) (_ []byte, err error) {
	const op = "mn.Service.GetSystemMetadata"
	defer s.done(op, &err)

	desc, err := s.describeDID(ctx, access.ResolveEffectiveSubjects(cred), did)
	if err != nil {
		return nil, err
	}
	b, err := s.codec.Encode(desc)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return b, nil
}

// GetChecksum returns the checksum of the object named by did. The stored
// checksum is returned when algorithm is empty or matches it; otherwise the
// bytes are read and hashed.
func (s *Service) GetChecksum(ctx context.Context, cred *access.Credential, did, algorithm string) (_ Checksum, err error) {
	const op = "mn.Service.GetChecksum"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var obj *ScienceObject
	err = s.store.View(ctx, func(tx Tx) error {
		var err error
		obj, err = s.readable(ctx, tx, subjects, did)
		return err
	})
	if err != nil {
		return Checksum{}, err
	}
	if algorithm == "" || normalizeAlgorithm(algorithm) == normalizeAlgorithm(obj.Checksum.Algorithm) {
		return obj.Checksum, nil
	}
	if _, err := NewHasher(algorithm); err != nil {
		return Checksum{}, fault.NewInvalidRequest("unsupported checksum algorithm. algorithm=%q", algorithm)
	}
	r, err := s.open(ctx, obj)
	if err != nil {
		return Checksum{}, err
	}
	defer r.Close()
	sum, _, err := Digest(algorithm, r)
	return sum, err
}

// IsAuthorized reports nil if the caller may perform action on did.
func (s *Service) IsAuthorized(ctx context.Context, cred *access.Credential, did, action string) (err error) {
	const op = "mn.Service.IsAuthorized"
	defer s.done(op, &err)

	level, err := access.ParseLevel(action)
	if err != nil {
		return err
	}
	subjects := access.ResolveEffectiveSubjects(cred)
	return s.store.View(ctx, func(tx Tx) error {
		pid, err := s.resolvePID(ctx, tx, did)
		if err != nil {
			return err
		}
		return s.auth.AssertAllowed(ctx, tx, subjects, level, pid)
	})
}

// Resolve returns the PID that did currently names: the tail of the chain
// for a SID, or did itself for a PID.
func (s *Service) Resolve(ctx context.Context, cred *access.Credential, did string) (_ string, err error) {
	const op = "mn.Service.Resolve"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var pid string
	err = s.store.View(ctx, func(tx Tx) error {
		obj, err := s.readable(ctx, tx, subjects, did)
		if err != nil {
			return err
		}
		pid = obj.PID
		return nil
	})
	return pid, err
}

// ResolveSID returns the tail PID of the chain named by sid.
func (s *Service) ResolveSID(ctx context.Context, sid string) (_ string, err error) {
	const op = "mn.Service.ResolveSID"
	defer s.done(op, &err)

	var pid string
	err = s.store.View(ctx, func(tx Tx) error {
		pid, err = s.chains.ResolveSID(ctx, tx, sid)
		return err
	})
	return pid, err
}

// ChainOf returns the PIDs of the chain that did belongs to, head first.
func (s *Service) ChainOf(ctx context.Context, cred *access.Credential, did string) (_ []string, err error) {
	const op = "mn.Service.ChainOf"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var pids []string
	err = s.store.View(ctx, func(tx Tx) error {
		obj, err := s.readable(ctx, tx, subjects, did)
		if err != nil {
			return err
		}
		members, err := s.chains.Members(ctx, tx, obj.PID)
		if err != nil {
			return err
		}
		for _, m := range members {
			pids = append(pids, m.PID)
		}
		return nil
	})
	return pids, err
}

// Classify reports the role did plays on this node.
func (s *Service) Classify(ctx context.Context, did string) (_ Classification, err error) {
	const op = "mn.Service.Classify"
	defer s.done(op, &err)

	var c Classification
	err = s.store.View(ctx, func(tx Tx) error {
		c, err = s.registry.Classify(ctx, tx, did)
		return err
	})
	return c, err
}

// MembersOf returns the members of the resource map did, or the maps that
// aggregate did when it is a member.
func (s *Service) MembersOf(ctx context.Context, cred *access.Credential, did string) (_ []string, err error) {
	const op = "mn.Service.MembersOf"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	var members []string
	err = s.store.View(ctx, func(tx Tx) error {
		c, err := s.registry.Classify(ctx, tx, did)
		if err != nil {
			return err
		}
		if c.Class == ExistingObject {
			if err := s.auth.AssertAllowed(ctx, tx, subjects, access.Read, did); err != nil {
				return err
			}
		}
		members, err = s.maps.MembersOf(ctx, tx, did)
		return err
	})
	return members, err
}

// ListObjects serves one page of the objects readable by the caller,
// newest first.
func (s *Service) ListObjects(ctx context.Context, cred *access.Credential, filter ObjectFilter, params slice.Params) (_ *ObjectList, err error) {
	const op = "mn.Service.ListObjects"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	filter.ReadableBy = nil
	if !s.auth.IsTrusted(subjects) {
		filter.ReadableBy = subjects.Sorted()
	}

	var res slice.Result[ObjectInfo]
	err = s.store.View(ctx, func(tx Tx) error {
		src := objectSource{tx: tx, filter: filter}
		res, err = s.pager.Page(ctx, src, filter.key(), subjects.Sorted(), params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ObjectList{Start: res.Start, Count: len(res.Items), Total: res.Total, Objects: res.Items}, nil
}

// ListLocalPIDs returns the PIDs of stored originals, or of stored replicas.
func (s *Service) ListLocalPIDs(ctx context.Context, replicas bool) (_ []string, err error) {
	const op = "mn.Service.ListLocalPIDs"
	defer s.done(op, &err)

	var pids []string
	err = s.store.View(ctx, func(tx Tx) error {
		pids, err = tx.ListLocalPIDs(ctx, replicas)
		return err
	})
	return pids, err
}

type objectSource struct {
	tx     Tx
	filter ObjectFilter
}

func (o objectSource) Count(ctx context.Context) (int, error) {
	return o.tx.CountObjects(ctx, o.filter)
}

func (o objectSource) Fetch(ctx context.Context, after *slice.Cursor, offset, limit int) ([]ObjectInfo, error) {
	return o.tx.ListObjects(ctx, o.filter, after, offset, limit)
}

// key normalizes the filter for the listing cursor cache.
func (f ObjectFilter) key() map[string]string {
	k := map[string]string{"formatId": f.FormatID}
	if !f.FromDate.IsZero() {
		k["fromDate"] = f.FromDate.UTC().Format(time.RFC3339Nano)
	}
	if !f.ToDate.IsZero() {
		k["toDate"] = f.ToDate.UTC().Format(time.RFC3339Nano)
	}
	if f.Replicas != nil {
		k["replicaStatus"] = strconv.FormatBool(*f.Replicas)
	}
	return k
}

package mn

import (
	"context"
	"fmt"
	"io"

	"mn-go/internal/access"
	"mn-go/internal/fault"
)

// Replicate accepts an offer to hold a replica of desc from sourcePeer.
// The queued replication record reserves the PID while it is active; the
// bytes are fetched later by the replication processor. A PID whose
// earlier record failed or was invalidated may be offered again.
func (s *Service) Replicate(ctx context.Context, cred *access.Credential, desc *Descriptor, sourcePeer string) (err error) {
	const op = "mn.Service.Replicate"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	if err := s.auth.AssertTrusted(subjects); err != nil {
		return err
	}
	if desc == nil || desc.PID == "" {
		return fault.NewInvalidSystemMetadata("replication offer has no descriptor")
	}
	offer := ReplicaOffer{
		PID:        desc.PID,
		Size:       desc.Size,
		FormatID:   desc.FormatID,
		SourceNode: sourcePeer,
		PublicRead: grantsPublicRead(desc.AccessPolicy),
	}
	err = s.store.Update(ctx, func(tx Tx) error {
		if err := s.registry.AssertValidForCreate(ctx, tx, desc.PID); err != nil {
			return err
		}
		used, err := tx.ReplicaStorageUsed(ctx)
		if err != nil {
			return fmt.Errorf("reading replica storage: %w", err)
		}
		if err := AssertAcceptable(s.policy.Replication, offer, used); err != nil {
			return err
		}
		return tx.InsertReplicationRecord(ctx, &ReplicationRecord{
			PID:      desc.PID,
			PeerNode: sourcePeer,
			Status:   StatusQueued,
			Size:     desc.Size,
			FormatID: desc.FormatID,
			Created:  s.clock.Now(),
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("replica queued", "pid", desc.PID, "source", sourcePeer, "size", desc.Size)
	return nil
}

// SetReplicaStatus moves the replication record of (pid, peer) to status.
// Setting the current status again is a no-op.
func (s *Service) SetReplicaStatus(ctx context.Context, cred *access.Credential, pid, peer string, status ReplicationStatus) (err error) {
	const op = "mn.Service.SetReplicaStatus"
	defer s.done(op, &err)

	if err := s.auth.AssertTrusted(access.ResolveEffectiveSubjects(cred)); err != nil {
		return err
	}
	return s.transition(ctx, pid, peer, status)
}

// BeginReplica marks a queued record as requested from its peer.
func (s *Service) BeginReplica(ctx context.Context, pid, peer string) (err error) {
	const op = "mn.Service.BeginReplica"
	defer s.done(op, &err)

	return s.transition(ctx, pid, peer, StatusRequested)
}

func (s *Service) transition(ctx context.Context, pid, peer string, status ReplicationStatus) error {
	if _, err := ParseReplicationStatus(string(status)); err != nil {
		return err
	}
	return s.store.Update(ctx, func(tx Tx) error {
		rec, err := s.record(ctx, tx, pid, peer)
		if err != nil {
			return err
		}
		if rec.Status == status {
			return nil
		}
		if !rec.Status.CanTransition(status) {
			return fault.NewInvalidRequest("invalid replication status transition. pid=%q, peer=%q, from=%q, to=%q",
				pid, peer, rec.Status, status).WithIdentifier(pid)
		}
		rec.Status = status
		if status == StatusCompleted {
			rec.Verified = s.clock.Now()
		}
		return tx.UpdateReplicationRecord(ctx, rec)
	})
}

func (s *Service) record(ctx context.Context, tx Tx, pid, peer string) (*ReplicationRecord, error) {
	rec, err := tx.GetReplicationRecord(ctx, pid, peer)
	if err != nil {
		return nil, fmt.Errorf("reading replication record: %w", err)
	}
	if rec == nil {
		return nil, fault.NewNotFound("no replication record. pid=%q, peer=%q", pid, peer).WithIdentifier(pid)
	}
	return rec, nil
}

// RequeueReplica returns a requested record to the queue without
// consuming an attempt. It is used when retrieval was interrupted rather
// than refused.
func (s *Service) RequeueReplica(ctx context.Context, pid, peer string) (err error) {
	const op = "mn.Service.RequeueReplica"
	defer s.done(op, &err)

	return s.transition(ctx, pid, peer, StatusQueued)
}

// RequeueAbandoned returns every requested record to the queue. Only one
// processor runs at a time, so a requested record seen before a pass
// starts was left behind by an interrupted or crashed pass.
func (s *Service) RequeueAbandoned(ctx context.Context) (_ int, err error) {
	const op = "mn.Service.RequeueAbandoned"
	defer s.done(op, &err)

	var n int
	err = s.store.Update(ctx, func(tx Tx) error {
		n, err = tx.RequeueRequested(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("requeued abandoned replica requests", "count", n)
	}
	return n, nil
}

// QueuedReplications returns up to limit queued records, oldest first.
func (s *Service) QueuedReplications(ctx context.Context, limit int) (_ []*ReplicationRecord, err error) {
	const op = "mn.Service.QueuedReplications"
	defer s.done(op, &err)

	var recs []*ReplicationRecord
	err = s.store.View(ctx, func(tx Tx) error {
		recs, err = tx.QueuedReplications(ctx, limit)
		return err
	})
	return recs, err
}

// CompleteReplica stores the bytes and descriptor of a requested replica.
// Revision references to objects this node does not hold are reserved as
// placeholders; the replica itself is kept as a standalone object.
func (s *Service) CompleteReplica(ctx context.Context, peer string, desc *Descriptor, body io.Reader) (err error) {
	const op = "mn.Service.CompleteReplica"
	defer s.done(op, &err)

	if desc == nil || desc.PID == "" {
		return fault.NewInvalidSystemMetadata("replica has no descriptor")
	}
	pid := desc.PID
	err = s.store.View(ctx, func(tx Tx) error {
		rec, err := s.record(ctx, tx, pid, peer)
		if err != nil {
			return err
		}
		if rec.Status != StatusRequested {
			return fault.NewInvalidRequest("replica is not being requested. pid=%q, status=%q", pid, rec.Status).
				WithIdentifier(pid)
		}
		return nil
	})
	if err != nil {
		return err
	}

	st, err := s.storeContent(ctx, pid, Content{Body: body}, desc)
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, func(tx Tx) error {
		rec, err := s.record(ctx, tx, pid, peer)
		if err != nil {
			return err
		}
		if !rec.Status.CanTransition(StatusCompleted) {
			return fault.NewInvalidRequest("replica is not being requested. pid=%q, status=%q", pid, rec.Status).
				WithIdentifier(pid)
		}
		obj, err := s.insertObject(ctx, tx, access.SubjectSet{}, desc, st, true)
		if err != nil {
			return err
		}
		sid := desc.SID
		if sid != "" {
			if ok, err := s.registry.IsUnused(ctx, tx, sid); err != nil {
				return err
			} else if !ok {
				s.logger.Warn("replica SID already in use, storing replica without SID", "pid", pid, "sid", sid)
				sid = ""
			}
		}
		if err := s.chains.CreateStandalone(ctx, tx, obj.PID, sid); err != nil {
			return err
		}
		for _, ref := range []string{desc.Obsoletes, desc.ObsoletedBy} {
			if err := s.reserveReference(ctx, tx, ref); err != nil {
				return err
			}
		}
		rec.Status = StatusCompleted
		rec.Verified = s.clock.Now()
		return tx.UpdateReplicationRecord(ctx, rec)
	})
	if err != nil {
		s.discard(ctx, st)
		return err
	}
	s.logger.Info("replica stored", "pid", pid, "peer", peer, "size", desc.Size)
	return nil
}

func (s *Service) reserveReference(ctx context.Context, tx Tx, did string) error {
	if did == "" {
		return nil
	}
	ok, err := s.registry.IsValidForCreate(ctx, tx, did)
	if err != nil || !ok {
		return err
	}
	if err := tx.RecordDID(ctx, did); err != nil {
		return fmt.Errorf("recording revision reference: %w", err)
	}
	if err := tx.AddChainReference(ctx, did); err != nil {
		return fmt.Errorf("reserving revision reference: %w", err)
	}
	return nil
}

// ReplicaFailed records a failed attempt to retrieve (pid, peer). Retryable
// failures consume one attempt and requeue the record until the attempt
// budget is spent; any other failure marks it failed at once. It returns
// the resulting status.
func (s *Service) ReplicaFailed(ctx context.Context, pid, peer string, cause error) (_ ReplicationStatus, err error) {
	const op = "mn.Service.ReplicaFailed"
	defer s.done(op, &err)

	var status ReplicationStatus
	err = s.store.Update(ctx, func(tx Tx) error {
		rec, err := s.record(ctx, tx, pid, peer)
		if err != nil {
			return err
		}
		next := StatusFailed
		if fault.IsRetryable(cause) {
			rec.FailedAttempts++
			if rec.FailedAttempts < s.policy.Replication.MaxAttempts {
				next = StatusQueued
			}
		}
		if rec.Status != next && !rec.Status.CanTransition(next) {
			return fault.NewInvalidRequest("invalid replication status transition. pid=%q, peer=%q, from=%q, to=%q",
				pid, peer, rec.Status, next).WithIdentifier(pid)
		}
		rec.Status = next
		status = next
		return tx.UpdateReplicationRecord(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	s.logger.Warn("replica attempt failed", "pid", pid, "peer", peer, "status", string(status), "error", cause)
	return status, nil
}

func grantsPublicRead(rules []access.Rule) bool {
	for _, r := range rules {
		for _, subj := range r.Subjects {
			if subj == access.SubjectPublic && r.Level >= access.Read {
				return true
			}
		}
	}
	return false
}

package mn

import (
	"context"
	"fmt"

	"mn-go/internal/access"
	"mn-go/internal/fault"
)

// SetAccessPolicy replaces the access rules of pid. expectedVersion must
// equal the object's current serial version.
func (s *Service) SetAccessPolicy(ctx context.Context, cred *access.Credential, pid string, rules []access.Rule, expectedVersion int64) (err error) {
	const op = "mn.Service.SetAccessPolicy"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	err = s.store.Update(ctx, func(tx Tx) error {
		obj, err := s.changeable(ctx, tx, subjects, pid, expectedVersion)
		if err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, pid, normalizeRules(rules)); err != nil {
			return fmt.Errorf("storing access policy: %w", err)
		}
		touch(obj, s.clock.Now())
		return tx.UpdateObject(ctx, obj)
	})
	if err != nil {
		return err
	}
	s.logger.Info("access policy set", "pid", pid, "rules", len(rules))
	return nil
}

// SetReplicationPolicy replaces the replication policy of pid.
// expectedVersion must equal the object's current serial version.
func (s *Service) SetReplicationPolicy(ctx context.Context, cred *access.Credential, pid string, policy ReplicationPolicy, expectedVersion int64) (err error) {
	const op = "mn.Service.SetReplicationPolicy"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	err = s.store.Update(ctx, func(tx Tx) error {
		obj, err := s.changeable(ctx, tx, subjects, pid, expectedVersion)
		if err != nil {
			return err
		}
		if err := tx.SetReplicationPolicy(ctx, pid, &policy); err != nil {
			return fmt.Errorf("storing replication policy: %w", err)
		}
		touch(obj, s.clock.Now())
		return tx.UpdateObject(ctx, obj)
	})
	if err != nil {
		return err
	}
	s.logger.Info("replication policy set", "pid", pid, "allowed", policy.Allowed, "replicas", policy.NumberReplicas)
	return nil
}

// changeable asserts changePermission on pid and checks the serial version.
func (s *Service) changeable(ctx context.Context, tx Tx, subjects access.SubjectSet, pid string, expectedVersion int64) (*ScienceObject, error) {
	if err := s.auth.AssertAllowed(ctx, tx, subjects, access.ChangePermission, pid); err != nil {
		return nil, err
	}
	obj, err := tx.GetObject(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", pid, err)
	}
	if obj.SerialVersion != expectedVersion {
		return nil, fault.NewInvalidRequest("serial version does not match. pid=%q, expected=%d, current=%d",
			pid, expectedVersion, obj.SerialVersion).WithIdentifier(pid)
	}
	return obj, nil
}

// CutFromChain removes pid from its revision chain. Only trusted subjects
// may edit chains directly.
func (s *Service) CutFromChain(ctx context.Context, cred *access.Credential, pid string) (err error) {
	const op = "mn.Service.CutFromChain"
	defer s.done(op, &err)

	subjects := access.ResolveEffectiveSubjects(cred)
	if err := s.auth.AssertTrusted(subjects); err != nil {
		return err
	}
	err = s.store.Update(ctx, func(tx Tx) error {
		return s.chains.Cut(ctx, tx, pid)
	})
	if err != nil {
		return err
	}
	s.logger.Info("object cut from chain", "pid", pid)
	return nil
}

// AddWhitelist allows subject to create, update and archive objects.
func (s *Service) AddWhitelist(ctx context.Context, subject string) (err error) {
	const op = "mn.Service.AddWhitelist"
	defer s.done(op, &err)

	if subject == "" {
		return fault.NewInvalidRequest("subject is empty")
	}
	err = s.store.Update(ctx, func(tx Tx) error {
		return tx.AddWhitelist(ctx, subject)
	})
	if err != nil {
		return err
	}
	s.logger.Info("subject whitelisted", "subject", subject)
	return nil
}

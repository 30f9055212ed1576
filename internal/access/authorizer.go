package access

import (
	"context"
	"fmt"

	"mn-go/internal/fault"
)

// RuleReader exposes the stored access state the authorizer needs. It is
// implemented by the store transaction so that checks read the same state
// as the mutation they guard.
type RuleReader interface {
	// ObjectExists reports whether pid names an object stored on this node.
	ObjectExists(ctx context.Context, pid string) (bool, error)

	// MaxLevel returns the highest level any of subjects holds on pid.
	// found is false when no rule on pid names any of the subjects.
	MaxLevel(ctx context.Context, pid string, subjects []string) (level Level, found bool, err error)

	// IsWhitelisted reports whether any of subjects may create, update or
	// delete objects on this node.
	IsWhitelisted(ctx context.Context, subjects []string) (bool, error)
}

// Authorizer evaluates permission levels against stored access rules.
// Object owners and submitters get no implicit access: only explicit rules
// and the trusted infrastructure subjects grant anything.
type Authorizer struct {
	trusted []string
}

// NewAuthorizer creates an Authorizer that grants everything to callers
// holding any of the trusted subjects.
func NewAuthorizer(trusted []string) *Authorizer {
	return &Authorizer{trusted: append([]string(nil), trusted...)}
}

// IsTrusted reports whether subjects include a trusted infrastructure subject.
func (a *Authorizer) IsTrusted(subjects SubjectSet) bool {
	return subjects.Intersects(a.trusted)
}

// IsAllowed reports whether subjects hold at least level on pid.
// It does not check that pid exists.
func (a *Authorizer) IsAllowed(ctx context.Context, rules RuleReader, subjects SubjectSet, level Level, pid string) (bool, error) {
	if a.IsTrusted(subjects) {
		return true, nil
	}
	got, found, err := rules.MaxLevel(ctx, pid, subjects.Sorted())
	if err != nil {
		return false, fmt.Errorf("reading access rules: %w", err)
	}
	return found && got >= level, nil
}

// AssertAllowed fails with NotFound if pid does not exist and with
// NotAuthorized if subjects do not hold level on pid.
func (a *Authorizer) AssertAllowed(ctx context.Context, rules RuleReader, subjects SubjectSet, level Level, pid string) error {
	if !level.Valid() {
		return fault.NewInvalidRequest("unknown action level. level=%d", int(level))
	}
	exists, err := rules.ObjectExists(ctx, pid)
	if err != nil {
		return fmt.Errorf("checking object existence: %w", err)
	}
	if !exists {
		return fault.NewNotFound("attempted to perform operation on non-existing object. pid=%q", pid).
			WithIdentifier(pid)
	}
	ok, err := a.IsAllowed(ctx, rules, subjects, level, pid)
	if err != nil {
		return err
	}
	if !ok {
		return fault.NewNotAuthorized("operation is denied. level=%q, pid=%q, active_subjects=%q",
			level, pid, subjects.Format()).WithIdentifier(pid)
	}
	return nil
}

// AssertCreatePermission allows only whitelisted and trusted subjects to
// create, update or delete objects.
func (a *Authorizer) AssertCreatePermission(ctx context.Context, rules RuleReader, subjects SubjectSet) error {
	if a.IsTrusted(subjects) {
		return nil
	}
	ok, err := rules.IsWhitelisted(ctx, subjects.Sorted())
	if err != nil {
		return fmt.Errorf("reading create whitelist: %w", err)
	}
	if !ok {
		return fault.NewNotAuthorized("access allowed only for subjects with create/update/delete permission. active_subjects=%q",
			subjects.Format())
	}
	return nil
}

// AssertTrusted allows only trusted infrastructure subjects.
func (a *Authorizer) AssertTrusted(subjects SubjectSet) error {
	if !a.IsTrusted(subjects) {
		return fault.NewNotAuthorized("access allowed only for trusted infrastructure subjects. active_subjects=%q",
			subjects.Format())
	}
	return nil
}

package mn

import (
	"context"
	"fmt"

	"mn-go/internal/access"
	"mn-go/internal/config"
	"mn-go/internal/fault"
	"mn-go/internal/slice"
)

// Service is the inbound operation surface of a member node. Every
// mutating operation checks access first, then identifier validity, then
// applies the change, all inside one store transaction.
type Service struct {
	store     Store
	bytes     ByteStore
	fetcher   Fetcher
	codec     DescriptorCodec
	validator Validator
	policy    config.Policy
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	auth     *access.Authorizer
	registry *Registry
	chains   *ChainManager
	maps     *ResourceMaps
	pager    *slice.Pager[ObjectInfo]
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithFetcher sets the fetcher used to read proxy objects.
func WithFetcher(f Fetcher) Option { return func(s *Service) { s.fetcher = f } }

// WithValidator sets the science metadata validator.
func WithValidator(v Validator) Option { return func(s *Service) { s.validator = v } }

// WithSliceCache shares a listing cursor cache between services.
func WithSliceCache(c *slice.Cache) Option {
	return func(s *Service) {
		s.pager = slice.NewPager(c, s.policy.SliceMaxCount, objectCursor)
	}
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, bytes ByteStore, codec DescriptorCodec, policy config.Policy, logger Logger, clock Clock, idgen IDGenerator, opts ...Option) *Service {
	registry := NewRegistry()
	s := &Service{
		store:     store,
		bytes:     bytes,
		codec:     codec,
		validator: NopValidator{},
		policy:    policy,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		auth:      access.NewAuthorizer(policy.TrustedSubjects),
		registry:  registry,
		chains:    NewChainManager(registry, clock),
		maps:      NewResourceMaps(registry, policy.ResourceMapMode),
		pager:     slice.NewPager(slice.NewCache(policy.SliceCacheTTL), policy.SliceMaxCount, objectCursor),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the policy the service was built with.
func (s *Service) Policy() config.Policy { return s.policy }

// done converts err at an operation boundary and logs the outcome.
func (s *Service) done(op string, err *error) {
	if *err == nil {
		return
	}
	*err = fault.AtBoundary(op, *err)
	kind, _ := fault.KindOf(*err)
	if kind == fault.ServiceFailure {
		s.logger.Error("operation failed", "op", op, "error", *err)
		return
	}
	s.logger.Info("operation rejected", "op", op, "kind", kind.String(), "error", *err)
}

// resolvePID maps a PID or SID to the PID of a stored object.
func (s *Service) resolvePID(ctx context.Context, tx Tx, did string) (string, error) {
	c, err := s.registry.Classify(ctx, tx, did)
	if err != nil {
		return "", err
	}
	switch c.Class {
	case ExistingObject:
		return did, nil
	case SID:
		return c.Facts.SeriesOf.TailPID, nil
	default:
		return "", fault.NewNotFound("no object with this identifier exists on this node. %s", c.Describe()).
			WithIdentifier(did)
	}
}

// describe assembles the canonical descriptor of a stored object.
func (s *Service) describe(ctx context.Context, tx Tx, obj *ScienceObject) (*Descriptor, error) {
	sid, err := s.chains.SIDOf(ctx, tx, obj.PID)
	if err != nil {
		return nil, err
	}
	rules, err := tx.Permissions(ctx, obj.PID)
	if err != nil {
		return nil, fmt.Errorf("reading access policy: %w", err)
	}
	rp, err := tx.GetReplicationPolicy(ctx, obj.PID)
	if err != nil {
		return nil, fmt.Errorf("reading replication policy: %w", err)
	}
	records, err := tx.ReplicationRecords(ctx, obj.PID)
	if err != nil {
		return nil, fmt.Errorf("reading replication records: %w", err)
	}
	d := &Descriptor{
		PID:               obj.PID,
		SID:               sid,
		FormatID:          obj.FormatID,
		Size:              obj.Size,
		Checksum:          obj.Checksum,
		Submitter:         obj.Submitter,
		RightsHolder:      obj.RightsHolder,
		OriginNode:        obj.OriginNode,
		AuthoritativeNode: obj.AuthoritativeNode,
		DateUploaded:      obj.DateUploaded,
		Modified:          obj.Modified,
		SerialVersion:     obj.SerialVersion,
		Archived:          obj.Archived,
		Obsoletes:         obj.Obsoletes,
		ObsoletedBy:       obj.ObsoletedBy,
		AccessPolicy:      rules,
		ReplicationPolicy: rp,
	}
	for _, r := range records {
		d.Replicas = append(d.Replicas, ReplicaInfo{NodeID: r.PeerNode, Status: r.Status, Verified: r.Verified})
	}
	return d, nil
}

func objectCursor(o ObjectInfo) slice.Cursor {
	return slice.Cursor{Timestamp: o.Modified, ID: o.ID}
}

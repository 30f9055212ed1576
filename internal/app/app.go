package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"mn-go/internal/access"
	"mn-go/internal/bytestore"
	"mn-go/internal/codec"
	"mn-go/internal/config"
	"mn-go/internal/coordinator"
	"mn-go/internal/database"
	"mn-go/internal/encryption"
	"mn-go/internal/fs"
	"mn-go/internal/mn"
	"mn-go/internal/replication"
	"mn-go/internal/slice"
	"mn-go/internal/worker"
)

var _ mn.Logger = (*slog.Logger)(nil)

// MNApp is the application layer between the CLI and mn.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings and file paths, and releases resources on Close.
type MNApp struct {
	cfg     *config.Config
	policy  config.Policy
	store   *database.SQLiteStore
	bytes   mn.ByteStore
	codec   mn.DescriptorCodec
	client  *coordinator.Client // nil when no coordinator is configured
	service *mn.Service
	metrics *prometheus.Registry
	logger  *slog.Logger
	op      *Operation
	logFile *os.File
}

// Options tune how an MNApp is built.
type Options struct {
	// Verbose logs at debug level.
	Verbose bool
	// Passphrase reads the key passphrase of an encrypted store. If nil,
	// encryption.ReadPassphrase is used.
	Passphrase func(prompt string) (string, error)
}

// NewMNApp creates a fully wired MNApp from the given config.
// operation identifies the CLI command being run (e.g. "Create", "ProcessReplication").
// The caller must call Close when done.
func NewMNApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*MNApp, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("reading node policy: %w", err)
	}

	dc, err := codec.New(cfg.Node.DescriptorCodec)
	if err != nil {
		return nil, err
	}

	readPassphrase := opts.Passphrase
	if readPassphrase == nil {
		readPassphrase = encryption.ReadPassphrase
	}
	unlock := func(e encryption.Encryptor) bytestore.UnlockFunc {
		return func() (encryption.DecryptionContext, error) {
			u, err := encryption.UnlockWith(e, readPassphrase)
			if err != nil {
				return nil, err
			}
			return u.DecryptionContext, nil
		}
	}
	bytes, err := bytestore.NewStoreFromConfig(ctx, cfg.Store, unlock)
	if err != nil {
		return nil, fmt.Errorf("creating byte store: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.Node.Identifier)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	op := NewOperation(operation, "", mn.RealClock{}.Now())
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var svcOpts []mn.Option
	var client *coordinator.Client
	if cfg.Node.CoordinatorURL != "" {
		client, err = coordinator.New(coordinator.Config{
			BaseURL: cfg.Node.CoordinatorURL,
			NodeID:  cfg.Node.Identifier,
			Subject: cfg.Node.ClientSubject,
			Codec:   dc,
		})
		if err != nil {
			logFile.Close()
			store.Close()
			return nil, fmt.Errorf("creating coordinator client: %w", err)
		}
		svcOpts = append(svcOpts, mn.WithFetcher(client))
	}
	svcOpts = append(svcOpts, mn.WithSliceCache(slice.NewCache(policy.SliceCacheTTL)))

	svc := mn.NewService(store, bytes, dc, policy, logger, mn.RealClock{}, mn.UUIDGenerator{}, svcOpts...)
	logger.Debug("operation started", "op", operation, "node", cfg.Node.Identifier)

	return &MNApp{
		cfg:     cfg,
		policy:  policy,
		store:   store,
		bytes:   bytes,
		codec:   dc,
		client:  client,
		service: svc,
		metrics: prometheus.NewRegistry(),
		logger:  logger,
		op:      op,
		logFile: logFile,
	}, nil
}

// Service returns the wired service.
func (a *MNApp) Service() *mn.Service { return a.service }

// Credential returns the credential the CLI acts with. An empty subject
// acts as the first trusted subject of the node; "public" is anonymous.
func (a *MNApp) Credential(subject string) *access.Credential {
	switch subject {
	case access.SubjectPublic:
		return nil
	case "":
		if len(a.policy.TrustedSubjects) == 0 {
			return nil
		}
		subject = a.policy.TrustedSubjects[0]
	}
	return &access.Credential{Subject: subject}
}

// ObjectOptions describe a new object stored from a local file.
type ObjectOptions struct {
	FormatID     string
	SID          string
	RightsHolder string
	// Algorithm names the checksum algorithm. Empty uses SHA-256.
	Algorithm string
	// Public grants read access to everyone.
	Public bool
	// SysmetaPath names an encoded descriptor to use instead of one built
	// from the other options.
	SysmetaPath string
}

// Create stores the file at path as a new object.
func (a *MNApp) Create(ctx context.Context, subject, pid, path string, opts ObjectOptions) (*mn.Descriptor, error) {
	return a.storeFile(ctx, path, pid, opts, func(content mn.Content, desc *mn.Descriptor) (*mn.Descriptor, error) {
		return a.service.Create(ctx, a.Credential(subject), pid, content, desc)
	})
}

// Update stores the file at path as newPID, the successor of oldPID.
func (a *MNApp) Update(ctx context.Context, subject, oldPID, newPID, path string, opts ObjectOptions) (*mn.Descriptor, error) {
	return a.storeFile(ctx, path, newPID, opts, func(content mn.Content, desc *mn.Descriptor) (*mn.Descriptor, error) {
		if desc.Obsoletes == "" {
			desc.Obsoletes = oldPID
		}
		return a.service.Update(ctx, a.Credential(subject), oldPID, newPID, content, desc)
	})
}

// storeFile opens path, builds its descriptor and hands both to save.
func (a *MNApp) storeFile(ctx context.Context, path, pid string, opts ObjectOptions, save func(mn.Content, *mn.Descriptor) (*mn.Descriptor, error)) (*mn.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening content: %w", err)
	}
	defer f.Close()

	desc, err := a.descriptorFor(f, pid, opts)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding content: %w", err)
	}
	return save(mn.Content{Body: f}, desc)
}

func (a *MNApp) descriptorFor(f *os.File, pid string, opts ObjectOptions) (*mn.Descriptor, error) {
	if opts.SysmetaPath != "" {
		b, err := os.ReadFile(opts.SysmetaPath)
		if err != nil {
			return nil, fmt.Errorf("reading system metadata: %w", err)
		}
		return a.codec.Decode(b)
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = mn.DefaultChecksumAlgorithm
	}
	sum, size, err := mn.Digest(algorithm, f)
	if err != nil {
		return nil, err
	}
	desc := &mn.Descriptor{
		PID:          pid,
		SID:          opts.SID,
		FormatID:     opts.FormatID,
		Size:         size,
		Checksum:     sum,
		RightsHolder: opts.RightsHolder,
	}
	if opts.Public {
		desc.AccessPolicy = []access.Rule{{Subjects: []string{access.SubjectPublic}, Level: access.Read}}
	}
	return desc, nil
}

// ImportOptions control a bulk import of local files.
type ImportOptions struct {
	ObjectOptions
	// Prefix is prepended to the slash separated path of each file,
	// relative to the import root, to form its PID.
	Prefix    string
	Recursive bool
	Ignore    []string
	Workers   int
}

// ImportReport summarizes an import.
type ImportReport struct {
	Created int
	// Failed maps the relative path of each file that was not stored to the reason.
	Failed  map[string]error
	Skipped int
}

// Import stores every file found under root as a new standalone object.
// Files whose format is not given are typed by their extension.
func (a *MNApp) Import(ctx context.Context, subject, root string, opts ImportOptions) (*ImportReport, error) {
	files, err := fs.Scan(root, opts.Recursive, opts.Ignore)
	if err != nil {
		return nil, err
	}
	metrics, err := worker.NewMetrics(a.metrics, "mn_import")
	if err != nil {
		return nil, fmt.Errorf("registering import metrics: %w", err)
	}

	var mu sync.Mutex
	report := &ImportReport{Failed: make(map[string]error)}
	pool := worker.NewPool(opts.Workers, func(ctx context.Context, f fs.File) error {
		o := opts.ObjectOptions
		o.SID, o.SysmetaPath = "", ""
		if o.FormatID == "" {
			o.FormatID = formatOf(f.RelPath)
		}
		_, err := a.Create(ctx, subject, opts.Prefix+f.RelPath, f.Path, o)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed[f.RelPath] = err
			return err
		}
		report.Created++
		return nil
	}, worker.WithMetrics[fs.File](metrics))

	stats := pool.Run(ctx, files)
	report.Skipped = int(stats.Skipped)
	a.logger.Info("import finished", "root", root, "files", len(files), "created", report.Created,
		"failed", len(report.Failed), "skipped", report.Skipped)
	return report, ctx.Err()
}

// formatOf guesses a format identifier from the extension of name.
func formatOf(name string) string {
	t := mime.TypeByExtension(path.Ext(name))
	if t == "" {
		return "application/octet-stream"
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// Get copies the bytes of did to w.
func (a *MNApp) Get(ctx context.Context, subject, did string, w io.Writer) (*mn.Descriptor, error) {
	rc, desc, err := a.service.Get(ctx, a.Credential(subject), did)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return nil, fmt.Errorf("copying content of %s: %w", did, err)
	}
	return desc, nil
}

// Describe returns the descriptor of did.
func (a *MNApp) Describe(ctx context.Context, subject, did string) (*mn.Descriptor, error) {
	return a.service.Describe(ctx, a.Credential(subject), did)
}

// SystemMetadata returns the encoded descriptor of did.
func (a *MNApp) SystemMetadata(ctx context.Context, subject, did string) ([]byte, error) {
	return a.service.GetSystemMetadata(ctx, a.Credential(subject), did)
}

// Archive archives did and returns the archived PID.
func (a *MNApp) Archive(ctx context.Context, subject, did string) (string, error) {
	return a.service.Archive(ctx, a.Credential(subject), did)
}

// Resolve returns where did can be read.
func (a *MNApp) Resolve(ctx context.Context, subject, did string) (string, error) {
	return a.service.Resolve(ctx, a.Credential(subject), did)
}

// Chain returns the revision chain holding did, head first.
func (a *MNApp) Chain(ctx context.Context, subject, did string) ([]string, error) {
	return a.service.ChainOf(ctx, a.Credential(subject), did)
}

// Classify describes how did is used on this node.
func (a *MNApp) Classify(ctx context.Context, did string) (mn.Classification, error) {
	return a.service.Classify(ctx, did)
}

// Cut removes pid from its revision chain.
func (a *MNApp) Cut(ctx context.Context, subject, pid string) error {
	return a.service.CutFromChain(ctx, a.Credential(subject), pid)
}

// Members returns the members of a resource map, or the maps aggregating did.
func (a *MNApp) Members(ctx context.Context, subject, did string) ([]string, error) {
	return a.service.MembersOf(ctx, a.Credential(subject), did)
}

// GenerateIdentifier returns an unused identifier starting with fragment.
func (a *MNApp) GenerateIdentifier(ctx context.Context, fragment string) (string, error) {
	return a.service.GenerateIdentifier(ctx, "UUID", fragment)
}

// SetAccess replaces the access rules of pid. expectedVersion must match
// the current serial version of the object.
func (a *MNApp) SetAccess(ctx context.Context, subject, pid string, rules []access.Rule, expectedVersion int64) error {
	return a.service.SetAccessPolicy(ctx, a.Credential(subject), pid, rules, expectedVersion)
}

// IsAuthorized returns nil when subject may perform action on did.
func (a *MNApp) IsAuthorized(ctx context.Context, subject, did, action string) error {
	return a.service.IsAuthorized(ctx, a.Credential(subject), did, action)
}

// Queue returns the replication records waiting to be pulled, oldest first.
func (a *MNApp) Queue(ctx context.Context, limit int) ([]*mn.ReplicationRecord, error) {
	return a.service.QueuedReplications(ctx, limit)
}

// Whitelist allows subject to create objects.
func (a *MNApp) Whitelist(ctx context.Context, subject string) error {
	return a.service.AddWhitelist(ctx, subject)
}

// ListObjects returns one page of objects.
func (a *MNApp) ListObjects(ctx context.Context, subject string, filter mn.ObjectFilter, params slice.Params) (*mn.ObjectList, error) {
	return a.service.ListObjects(ctx, a.Credential(subject), filter, params)
}

// ListAll walks every page of a listing and calls fn for each object.
func (a *MNApp) ListAll(ctx context.Context, subject string, filter mn.ObjectFilter, fn func(mn.ObjectInfo) error) error {
	cred := a.Credential(subject)
	fetch := func(ctx context.Context, start, count int) ([]mn.ObjectInfo, int, error) {
		list, err := a.service.ListObjects(ctx, cred, filter, slice.Params{Start: start, Count: count})
		if err != nil {
			return nil, 0, err
		}
		return list.Objects, list.Total, nil
	}
	// Iterate stops on a short page, so pages must fit under the cap.
	pageSize := min(a.policy.SliceDefaultCount, a.policy.SliceMaxCount)
	it := slice.Iterate(ctx, fetch, slice.IterOptions{PageSize: pageSize})
	defer it.Stop()
	for {
		obj, ok := it.Next()
		if !ok {
			return it.Err()
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
}

// ProcessReplication pulls every queued replica from its source peer.
func (a *MNApp) ProcessReplication(ctx context.Context) (*replication.ProcessReport, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no coordinator_url configured")
	}
	metrics, err := worker.NewMetrics(a.metrics, "mn_replication")
	if err != nil {
		return nil, fmt.Errorf("registering replication metrics: %w", err)
	}
	p := replication.NewProcessor(a.service, a.client, a.cfg.Replication.Peers, a.logger, a.cfg.Replication.Concurrency, metrics)
	return p.Run(ctx)
}

// Audit checks that the coordinator knows every local original.
func (a *MNApp) Audit(ctx context.Context, noSync bool) (*replication.AuditReport, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no coordinator_url configured")
	}
	auditor := replication.NewAuditor(a.service, a.client, a.logger, a.cfg.Audit.Concurrency, noSync || a.cfg.Audit.NoSync)
	return auditor.Run(ctx)
}

// WriteMetrics writes the metrics gathered so far in the text exposition
// format to path.
func (a *MNApp) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, a.metrics); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// BackupDatabase writes a consistent copy of the database to path.
func (a *MNApp) BackupDatabase(path string) error {
	return a.store.BackupTo(path)
}

// Fail marks the operation as failed; Close logs the outcome.
func (a *MNApp) Fail(err error) {
	a.op.Fail(err)
}

// Close logs the outcome of the operation and releases all resources.
func (a *MNApp) Close() error {
	var firstErr error

	now := mn.RealClock{}.Now()
	a.logger.Debug("operation finished", "op", a.op.Name, "status", a.op.Status, "duration", a.op.Duration(now))

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

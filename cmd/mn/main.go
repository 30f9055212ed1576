package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mn-go/internal/access"
	"mn-go/internal/app"
	"mn-go/internal/config"
	"mn-go/internal/database"
	"mn-go/internal/database/migrations"
	"mn-go/internal/encryption"
	"mn-go/internal/fault"
	"mn-go/internal/mn"
	"mn-go/internal/slice"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the kind of a service error to a process exit status.
func exitCode(err error) int {
	kind, ok := fault.KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case fault.NotFound:
		return 3
	case fault.NotAuthorized:
		return 4
	case fault.InvalidRequest, fault.InvalidSystemMetadata, fault.IdentifierNotUnique:
		return 5
	default:
		return 1
	}
}

var (
	asSubject string
	verbose   bool
)

func readConfig() (*config.Config, string, error) {
	defaults, err := app.LoadDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults.ConfigPath, nil
}

// withApp reads the config, creates an MNApp and runs fn with it.
// operation identifies the CLI command being run (e.g. "Create", "Audit").
func withApp(cmd *cobra.Command, operation string, fn func(ctx context.Context, a *app.MNApp) error) error {
	cfg, _, err := readConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.NewMNApp(ctx, cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return fmt.Errorf("initializing app: %w", err)
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "mn",
	Short:        "Member node repository",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.LoadDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
			defaults.NodeID = nodeID
		}

		cfg := defaults.Config(uuid.NewString)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Node ID:  %s\n", cfg.Node.Identifier)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}
		p, err := cfg.Policy()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Node ID:         %s\n", cfg.Node.Identifier)
		fmt.Printf("Base Dir:        %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Coordinator:     %s\n", cfg.Node.CoordinatorURL)
		fmt.Printf("Trusted:         %s\n", strings.Join(p.TrustedSubjects, ", "))
		fmt.Printf("Store:           %s (encryption: %s)\n", cfg.Store.Type, cfg.Store.Encryption.Type)
		fmt.Printf("Resource maps:   %s\n", p.ResourceMapMode)
		fmt.Printf("Replicas:        accept=%t max_size=%d space=%d\n",
			p.Replication.Accept, p.Replication.MaxObjectSize, p.Replication.SpaceAllocated)
		fmt.Printf("Listing:         default=%d max=%d cache_ttl=%s\n", p.SliceDefaultCount, p.SliceMaxCount, p.SliceCacheTTL)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the metadata database",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		path := database.DBPath(cfg.Database, cfg.Node.Identifier)
		if path == "" {
			return fmt.Errorf("database type %q has no schema to inspect", cfg.Database.Type)
		}
		db, err := database.OpenConnection(path)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := migrations.ReadStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\n", path)
		fmt.Printf("Version:  %d (latest %d)\n", st.Version, st.Latest)
		if st.Dirty {
			fmt.Println("State:    dirty")
		} else if n := st.Pending(); n > 0 {
			fmt.Printf("Pending:  %d migration(s)\n", n)
		}
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		store, err := database.NewStoreFromConfig(cfg.Database, cfg.Node.Identifier)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Printf("Database %s is up to date\n", store.Path())
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "BackupDatabase", func(ctx context.Context, a *app.MNApp) error {
			if err := a.BackupDatabase(args[0]); err != nil {
				return err
			}
			fmt.Printf("Database written to %s\n", args[0])
			return nil
		})
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage store encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the store key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Store.Encryption)
		if err != nil {
			return err
		}
		if enc == nil {
			return fmt.Errorf("store encryption is disabled (set store.encryption.type = \"age\")")
		}
		if enc.IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		pass, err := encryption.ReadPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv(encryption.PassphraseEnv) == "" {
			confirm, err := encryption.ReadPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != pass {
				return fmt.Errorf("passphrases do not match")
			}
		}
		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Printf("Keys written to %s\n", cfg.Store.Encryption.PublicKeyPath)
		return nil
	},
}

func objectOptions(cmd *cobra.Command) app.ObjectOptions {
	var o app.ObjectOptions
	o.FormatID, _ = cmd.Flags().GetString("format")
	o.SID, _ = cmd.Flags().GetString("sid")
	o.RightsHolder, _ = cmd.Flags().GetString("rights-holder")
	o.Algorithm, _ = cmd.Flags().GetString("algorithm")
	o.Public, _ = cmd.Flags().GetBool("public")
	o.SysmetaPath, _ = cmd.Flags().GetString("sysmeta")
	return o
}

func addObjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "application/octet-stream", "Format identifier")
	cmd.Flags().String("sid", "", "Series identifier")
	cmd.Flags().String("rights-holder", "", "Rights holder (default: the submitter)")
	cmd.Flags().String("algorithm", mn.DefaultChecksumAlgorithm, "Checksum algorithm")
	cmd.Flags().Bool("public", false, "Grant read access to everyone")
	cmd.Flags().String("sysmeta", "", "Encoded system metadata to use instead of the flags")
}

func printDescriptor(d *mn.Descriptor) {
	fmt.Printf("PID:            %s\n", d.PID)
	if d.SID != "" {
		fmt.Printf("SID:            %s\n", d.SID)
	}
	fmt.Printf("Format:         %s\n", d.FormatID)
	fmt.Printf("Size:           %d\n", d.Size)
	fmt.Printf("Checksum:       %s:%s\n", d.Checksum.Algorithm, d.Checksum.Value)
	fmt.Printf("Rights holder:  %s\n", d.RightsHolder)
	fmt.Printf("Serial version: %d\n", d.SerialVersion)
	fmt.Printf("Modified:       %s\n", d.Modified.UTC().Format(time.RFC3339))
	if d.Obsoletes != "" {
		fmt.Printf("Obsoletes:      %s\n", d.Obsoletes)
	}
	if d.ObsoletedBy != "" {
		fmt.Printf("Obsoleted by:   %s\n", d.ObsoletedBy)
	}
	if d.Archived {
		fmt.Println("Archived:       yes")
	}
	for _, r := range d.AccessPolicy {
		fmt.Printf("Allow %-16s %s\n", r.Level.String()+":", strings.Join(r.Subjects, ", "))
	}
	for _, r := range d.Replicas {
		fmt.Printf("Replica:        %s %s\n", r.NodeID, r.Status)
	}
}

var createCmd = &cobra.Command{
	Use:   "create PID FILE",
	Short: "Store a new object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Create", func(ctx context.Context, a *app.MNApp) error {
			d, err := a.Create(ctx, asSubject, args[0], args[1], objectOptions(cmd))
			if err != nil {
				return err
			}
			printDescriptor(d)
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update OLD_PID NEW_PID FILE",
	Short: "Store a new revision of an object",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Update", func(ctx context.Context, a *app.MNApp) error {
			d, err := a.Update(ctx, asSubject, args[0], args[1], args[2], objectOptions(cmd))
			if err != nil {
				return err
			}
			printDescriptor(d)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Store every file under a directory as a new object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts app.ImportOptions
		opts.ObjectOptions = objectOptions(cmd)
		opts.Prefix, _ = cmd.Flags().GetString("prefix")
		opts.Recursive, _ = cmd.Flags().GetBool("recursive")
		opts.Ignore, _ = cmd.Flags().GetStringArray("ignore")
		opts.Workers, _ = cmd.Flags().GetInt("workers")
		if !cmd.Flags().Changed("format") {
			opts.FormatID = ""
		}
		return withApp(cmd, "Import", func(ctx context.Context, a *app.MNApp) error {
			report, err := a.Import(ctx, asSubject, args[0], opts)
			if err != nil {
				return err
			}
			for rel, err := range report.Failed {
				fmt.Printf("failed   %s: %v\n", rel, err)
			}
			fmt.Printf("Imported %d file(s), %d failed, %d skipped\n", report.Created, len(report.Failed), report.Skipped)
			return nil
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive ID",
	Short: "Hide an object from listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Archive", func(ctx context.Context, a *app.MNApp) error {
			pid, err := a.Archive(ctx, asSubject, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Archived %s\n", pid)
			return nil
		})
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe ID",
	Short: "Show the system metadata of an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		return withApp(cmd, "Describe", func(ctx context.Context, a *app.MNApp) error {
			if raw {
				b, err := a.SystemMetadata(ctx, asSubject, args[0])
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(b)
				return err
			}
			d, err := a.Describe(ctx, asSubject, args[0])
			if err != nil {
				return err
			}
			printDescriptor(d)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Write the bytes of an object to stdout or a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		return withApp(cmd, "Get", func(ctx context.Context, a *app.MNApp) error {
			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			_, err := a.Get(ctx, asSubject, args[0], w)
			return err
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Show where an object can be read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Resolve", func(ctx context.Context, a *app.MNApp) error {
			loc, err := a.Resolve(ctx, asSubject, args[0])
			if err != nil {
				return err
			}
			fmt.Println(loc)
			return nil
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify ID",
	Short: "Show how an identifier is used on this node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Classify", func(ctx context.Context, a *app.MNApp) error {
			c, err := a.Classify(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", c.Class, c.Describe())
			return nil
		})
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain ID",
	Short: "List the revision chain of an object, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Chain", func(ctx context.Context, a *app.MNApp) error {
			pids, err := a.Chain(ctx, asSubject, args[0])
			if err != nil {
				return err
			}
			for _, pid := range pids {
				fmt.Println(pid)
			}
			return nil
		})
	},
}

var cutCmd = &cobra.Command{
	Use:   "cut PID",
	Short: "Remove an object from its revision chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "CutFromChain", func(ctx context.Context, a *app.MNApp) error {
			if err := a.Cut(ctx, asSubject, args[0]); err != nil {
				return err
			}
			fmt.Printf("Cut %s from its chain\n", args[0])
			return nil
		})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members ID",
	Short: "List the members of a resource map, or the maps holding an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "MembersOf", func(ctx context.Context, a *app.MNApp) error {
			ids, err := a.Members(ctx, asSubject, args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an unused identifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		fragment, _ := cmd.Flags().GetString("fragment")
		return withApp(cmd, "GenerateIdentifier", func(ctx context.Context, a *app.MNApp) error {
			id, err := a.GenerateIdentifier(ctx, fragment)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want RFC 3339): %w", s, err)
	}
	return t, nil
}

func listFilter(cmd *cobra.Command) (mn.ObjectFilter, error) {
	var f mn.ObjectFilter
	var err error
	f.FormatID, _ = cmd.Flags().GetString("format")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	if f.FromDate, err = parseDate(from); err != nil {
		return f, err
	}
	if f.ToDate, err = parseDate(to); err != nil {
		return f, err
	}
	replicas, _ := cmd.Flags().GetBool("replicas")
	originals, _ := cmd.Flags().GetBool("originals")
	switch {
	case replicas && originals:
		return f, fmt.Errorf("--replicas and --originals are mutually exclusive")
	case replicas:
		f.Replicas = &replicas
	case originals:
		no := false
		f.Replicas = &no
	}
	return f, nil
}

func printObject(o mn.ObjectInfo) {
	archived := ""
	if o.Archived {
		archived = "  [archived]"
	}
	fmt.Printf("%s  %s  %d  %s%s\n", o.Modified.UTC().Format(time.RFC3339), o.FormatID, o.Size, o.PID, archived)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List objects, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := listFilter(cmd)
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		start, _ := cmd.Flags().GetString("start")
		count, _ := cmd.Flags().GetString("count")

		return withApp(cmd, "ListObjects", func(ctx context.Context, a *app.MNApp) error {
			if all {
				return a.ListAll(ctx, asSubject, filter, func(o mn.ObjectInfo) error {
					printObject(o)
					return nil
				})
			}
			params, err := slice.ParseParams(start, count, a.Service().Policy().SliceDefaultCount)
			if err != nil {
				return err
			}
			list, err := a.ListObjects(ctx, asSubject, filter, params)
			if err != nil {
				return err
			}
			for _, o := range list.Objects {
				printObject(o)
			}
			fmt.Printf("%d-%d of %d\n", list.Start, list.Start+list.Count, list.Total)
			return nil
		})
	},
}

// parseRule parses "level=subject,subject".
func parseRule(s string) (access.Rule, error) {
	action, subjects, ok := strings.Cut(s, "=")
	if !ok || subjects == "" {
		return access.Rule{}, fmt.Errorf("invalid rule %q (want level=subject[,subject])", s)
	}
	level, err := access.ParseLevel(action)
	if err != nil {
		return access.Rule{}, err
	}
	return access.Rule{Subjects: strings.Split(subjects, ","), Level: level}, nil
}

// access command
var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage access control",
}

var accessSetCmd = &cobra.Command{
	Use:   "set PID",
	Short: "Replace the access rules of an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetInt64("version")
		raw, _ := cmd.Flags().GetStringArray("rule")
		rules := make([]access.Rule, 0, len(raw))
		for _, s := range raw {
			r, err := parseRule(s)
			if err != nil {
				return err
			}
			rules = append(rules, r)
		}
		return withApp(cmd, "SetAccessPolicy", func(ctx context.Context, a *app.MNApp) error {
			if err := a.SetAccess(ctx, asSubject, args[0], rules, version); err != nil {
				return err
			}
			fmt.Printf("Access policy of %s replaced (%d rule(s))\n", args[0], len(rules))
			return nil
		})
	},
}

var accessCheckCmd = &cobra.Command{
	Use:   "check ID ACTION",
	Short: "Check whether the caller may read, write or change permissions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "IsAuthorized", func(ctx context.Context, a *app.MNApp) error {
			if err := a.IsAuthorized(ctx, asSubject, args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("authorized")
			return nil
		})
	},
}

var whitelistCmd = &cobra.Command{
	Use:   "whitelist SUBJECT",
	Short: "Allow a subject to create objects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AddWhitelist", func(ctx context.Context, a *app.MNApp) error {
			if err := a.Whitelist(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Whitelisted %s\n", args[0])
			return nil
		})
	},
}

// replication command
var replicationCmd = &cobra.Command{
	Use:   "replication",
	Short: "Manage inbound replicas",
}

var replicationQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List replicas waiting to be pulled",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, "QueuedReplications", func(ctx context.Context, a *app.MNApp) error {
			recs, err := a.Queue(ctx, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No queued replicas.")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s  %-10s  %s  attempts:%d  %s\n",
					r.Created.UTC().Format(time.RFC3339), r.Status, r.PeerNode, r.FailedAttempts, r.PID)
			}
			return nil
		})
	},
}

var replicationProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Pull every queued replica from its source node",
	RunE: func(cmd *cobra.Command, args []string) error {
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		return withApp(cmd, "ProcessReplication", func(ctx context.Context, a *app.MNApp) error {
			report, err := a.ProcessReplication(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Completed %d, requeued %d, failed %d, skipped %d\n",
				report.Completed, report.Requeued, report.Failed, report.Skipped)
			if metricsFile != "" {
				return a.WriteMetrics(metricsFile)
			}
			return nil
		})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that the coordinator knows every local object",
	RunE: func(cmd *cobra.Command, args []string) error {
		noSync, _ := cmd.Flags().GetBool("no-sync")
		return withApp(cmd, "Audit", func(ctx context.Context, a *app.MNApp) error {
			report, err := a.Audit(ctx, noSync)
			if err != nil {
				return err
			}
			fmt.Printf("Checked %d, synced %d, synchronization requested for %d\n",
				report.Checked, report.Synced, report.SyncRequested)
			for _, pid := range report.Missing {
				fmt.Printf("missing  %s\n", pid)
			}
			for _, pid := range report.Errors {
				fmt.Printf("error    %s\n", pid)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&asSubject, "as", "", "Subject to act as (default: the node's trusted subject; \"public\" for anonymous)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("node-id", "", "Node identifier (default: $MN_NODE_ID or a generated urn:node id)")

	// db subcommands
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbBackupCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// access subcommands
	accessCmd.AddCommand(accessSetCmd)
	accessCmd.AddCommand(accessCheckCmd)
	accessSetCmd.Flags().Int64("version", 0, "Expected serial version of the object")
	accessSetCmd.Flags().StringArray("rule", nil, "Access rule as level=subject[,subject] (repeatable)")
	_ = accessSetCmd.MarkFlagRequired("version")

	// replication subcommands
	replicationCmd.AddCommand(replicationQueueCmd)
	replicationCmd.AddCommand(replicationProcessCmd)
	replicationQueueCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
	replicationProcessCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file")

	// object commands
	addObjectFlags(createCmd)
	addObjectFlags(updateCmd)
	addObjectFlags(importCmd)
	importCmd.Flags().String("prefix", "", "Prefix of the PID formed from each relative path")
	importCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	importCmd.Flags().StringArray("ignore", nil, "Ignore pattern (repeatable)")
	importCmd.Flags().Int("workers", 4, "Files stored at once")
	describeCmd.Flags().Bool("raw", false, "Write the encoded system metadata")
	getCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	generateCmd.Flags().String("fragment", "urn:uuid:", "Identifier prefix")

	listCmd.Flags().String("format", "", "Only list objects of this format")
	listCmd.Flags().String("from", "", "Only list objects modified at or after this time (RFC 3339)")
	listCmd.Flags().String("to", "", "Only list objects modified before this time (RFC 3339)")
	listCmd.Flags().Bool("replicas", false, "Only list replicas")
	listCmd.Flags().Bool("originals", false, "Only list local originals")
	listCmd.Flags().Bool("all", false, "Walk every page")
	listCmd.Flags().String("start", "", "Index of the first object")
	listCmd.Flags().String("count", "", "Maximum number of objects")

	auditCmd.Flags().Bool("no-sync", false, "Only report objects the coordinator does not know")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(cutCmd)
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(whitelistCmd)
	rootCmd.AddCommand(replicationCmd)
	rootCmd.AddCommand(auditCmd)
}

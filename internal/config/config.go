package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for a member node.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Node        NodeConfig        `toml:"node"`
	Database    DatabaseConfig    `toml:"database"`
	Store       StoreConfig       `toml:"store"`
	Replication ReplicationConfig `toml:"replication"`
	ResourceMap ResourceMapConfig `toml:"resource_map"`
	Slice       SliceConfig       `toml:"slice"`
	Audit       AuditConfig       `toml:"audit"`
}

// NodeConfig identifies this node and the infrastructure it trusts.
type NodeConfig struct {
	Identifier      string   `toml:"identifier"`
	BaseURL         string   `toml:"base_url"`
	CoordinatorURL  string   `toml:"coordinator_url"`
	TrustedSubjects []string `toml:"trusted_subjects"`
	// ClientSubject is the subject this node presents to the coordinator and peers.
	ClientSubject string `toml:"client_subject,omitempty"`
	// DescriptorCodec is "cbor" (default) or "yaml".
	DescriptorCodec string `toml:"descriptor_codec,omitempty"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StoreConfig represents configuration for the object byte store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
	// S3Endpoint selects an S3-compatible service; path-style addressing is used when set.
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	Root     string `toml:"root,omitempty"`
	Compress bool   `toml:"compress,omitempty"` // zstd

	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt stored bytes.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// ReplicationConfig holds replica acceptance policy and queue settings.
type ReplicationConfig struct {
	Accept          bool              `toml:"accept"`
	MaxObjectSize   int64             `toml:"max_object_size"` // -1 for no limit
	SpaceAllocated  int64             `toml:"space_allocated"` // -1 for no limit
	AllowedNodes    []string          `toml:"allowed_nodes"`
	AllowedFormats  []string          `toml:"allowed_formats"`
	AllowOnlyPublic bool              `toml:"allow_only_public"`
	MaxAttempts     int               `toml:"max_attempts"`
	Concurrency     int               `toml:"concurrency"`
	Peers           map[string]string `toml:"peers"` // node id -> base url
}

// ResourceMapConfig controls how aggregation objects are validated.
type ResourceMapConfig struct {
	CreateMode string   `toml:"create_mode"` // "block", "open" or "reserve"
	Formats    []string `toml:"formats"`
}

// SliceConfig controls paged listings.
type SliceConfig struct {
	DefaultCount int    `toml:"default_count"`
	MaxCount     int    `toml:"max_count"`
	CacheTTL     string `toml:"cache_ttl"` // Go duration string
}

// AuditConfig controls the coordinator synchronization audit.
type AuditConfig struct {
	Concurrency int  `toml:"concurrency"`
	NoSync      bool `toml:"no_sync"` // only report unsynced objects
}

// NewConfig creates a new Config for nodeID with default settings rooted at baseDir.
func NewConfig(nodeID, baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Node: NodeConfig{
			Identifier: nodeID,
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Store: StoreConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "objects"),
			Encryption: EncryptionConfig{
				Type:           "none",
				PublicKeyPath:  filepath.Join(baseDir, "keys", "mn.pub"),
				PrivateKeyPath: filepath.Join(baseDir, "keys", "mn.key"),
			},
		},
		Replication: ReplicationConfig{
			Accept:         false,
			MaxObjectSize:  -1,
			SpaceAllocated: DefaultSpaceAllocated,
			MaxAttempts:    DefaultMaxAttempts,
			Concurrency:    DefaultConcurrency,
		},
		ResourceMap: ResourceMapConfig{
			CreateMode: ResourceMapBlock,
			Formats:    []string{DefaultResourceMapFormat},
		},
		Slice: SliceConfig{
			DefaultCount: DefaultSliceCount,
			MaxCount:     DefaultMaxSliceCount,
			CacheTTL:     DefaultSliceCacheTTL.String(),
		},
		Audit: AuditConfig{Concurrency: DefaultConcurrency},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

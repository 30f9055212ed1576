package config

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir: "/var/lib/mn",
		LogDir:  "/var/lib/mn/log",
		Node: NodeConfig{
			Identifier:      "urn:node:TEST",
			BaseURL:         "https://mn.example.org/mn",
			CoordinatorURL:  "https://cn.example.org/cn",
			TrustedSubjects: []string{"CN=urn:node:CN,DC=dataone,DC=org"},
			DescriptorCodec: "yaml",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/var/lib/mn/db"},
		Store: StoreConfig{
			Type:       "s3",
			S3Bucket:   "objects",
			S3Prefix:   "mn/",
			S3Region:   "us-west-2",
			S3Endpoint: "http://localhost:9000",
			Encryption: EncryptionConfig{Type: "age", PublicKeyPath: "/var/lib/mn/keys/mn.pub"},
		},
		Replication: ReplicationConfig{
			Accept:         true,
			MaxObjectSize:  1 << 20,
			SpaceAllocated: -1,
			AllowedNodes:   []string{"urn:node:PEER"},
			MaxAttempts:    3,
			Peers:          map[string]string{"urn:node:PEER": "https://peer.example.org/mn"},
		},
		ResourceMap: ResourceMapConfig{CreateMode: ResourceMapOpen, Formats: []string{"a", "b"}},
		Slice:       SliceConfig{DefaultCount: 50, MaxCount: 500, CacheTTL: "30s"},
		Audit:       AuditConfig{Concurrency: 4, NoSync: true},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Node.Identifier != "urn:node:TEST" {
		t.Errorf("Node.Identifier = %q, want %q", got.Node.Identifier, "urn:node:TEST")
	}
	if !slices.Equal(got.Node.TrustedSubjects, original.Node.TrustedSubjects) {
		t.Errorf("Node.TrustedSubjects = %v, want %v", got.Node.TrustedSubjects, original.Node.TrustedSubjects)
	}
	if got.Node.DescriptorCodec != "yaml" {
		t.Errorf("Node.DescriptorCodec = %q, want %q", got.Node.DescriptorCodec, "yaml")
	}
	if got.Store.Type != "s3" || got.Store.S3Bucket != "objects" || got.Store.S3Endpoint != "http://localhost:9000" {
		t.Errorf("Store = %+v", got.Store)
	}
	if got.Store.Encryption.Type != "age" {
		t.Errorf("Store.Encryption.Type = %q, want %q", got.Store.Encryption.Type, "age")
	}
	if !got.Replication.Accept || got.Replication.MaxObjectSize != 1<<20 || got.Replication.SpaceAllocated != -1 {
		t.Errorf("Replication = %+v", got.Replication)
	}
	if got.Replication.Peers["urn:node:PEER"] != "https://peer.example.org/mn" {
		t.Errorf("Replication.Peers = %v", got.Replication.Peers)
	}
	if got.ResourceMap.CreateMode != ResourceMapOpen || len(got.ResourceMap.Formats) != 2 {
		t.Errorf("ResourceMap = %+v", got.ResourceMap)
	}
	if got.Slice.CacheTTL != "30s" || got.Slice.MaxCount != 500 {
		t.Errorf("Slice = %+v", got.Slice)
	}
	if !got.Audit.NoSync || got.Audit.Concurrency != 4 {
		t.Errorf("Audit = %+v", got.Audit)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("urn:node:TEST", "/data/mn")

	if cfg.Node.Identifier != "urn:node:TEST" {
		t.Errorf("Node.Identifier = %q, want %q", cfg.Node.Identifier, "urn:node:TEST")
	}
	if cfg.LogDir != "/data/mn/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/mn/log")
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/mn/db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Store.Type != "filesystem" || cfg.Store.Root != "/data/mn/objects" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.Encryption.Type != "none" {
		t.Errorf("Store.Encryption.Type = %q, want %q", cfg.Store.Encryption.Type, "none")
	}
	if cfg.Store.Encryption.PrivateKeyPath != "/data/mn/keys/mn.key" {
		t.Errorf("Store.Encryption.PrivateKeyPath = %q, want %q", cfg.Store.Encryption.PrivateKeyPath, "/data/mn/keys/mn.key")
	}
	if cfg.Replication.Accept {
		t.Error("Replication.Accept = true, want replication off by default")
	}
	if cfg.Replication.MaxObjectSize != -1 {
		t.Errorf("Replication.MaxObjectSize = %d, want -1", cfg.Replication.MaxObjectSize)
	}
	if cfg.ResourceMap.CreateMode != ResourceMapBlock {
		t.Errorf("ResourceMap.CreateMode = %q, want %q", cfg.ResourceMap.CreateMode, ResourceMapBlock)
	}
}

func TestConfig_Policy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := DefaultPolicy("urn:node:TEST")

		if p.NodeID != "urn:node:TEST" {
			t.Errorf("NodeID = %q, want %q", p.NodeID, "urn:node:TEST")
		}
		if p.ResourceMapMode != ResourceMapBlock {
			t.Errorf("ResourceMapMode = %q, want %q", p.ResourceMapMode, ResourceMapBlock)
		}
		if !p.IsResourceMapFormat(DefaultResourceMapFormat) {
			t.Errorf("IsResourceMapFormat(%q) = false", DefaultResourceMapFormat)
		}
		if p.SliceCacheTTL != DefaultSliceCacheTTL {
			t.Errorf("SliceCacheTTL = %v, want %v", p.SliceCacheTTL, DefaultSliceCacheTTL)
		}
		if p.Replication.MaxAttempts != DefaultMaxAttempts {
			t.Errorf("Replication.MaxAttempts = %d, want %d", p.Replication.MaxAttempts, DefaultMaxAttempts)
		}
	})

	t.Run("zero values fall back to defaults", func(t *testing.T) {
		cfg := &Config{Node: NodeConfig{Identifier: "n"}}
		p, err := cfg.Policy()
		if err != nil {
			t.Fatalf("Policy() error = %v", err)
		}
		if p.ResourceMapMode != ResourceMapBlock {
			t.Errorf("ResourceMapMode = %q, want %q", p.ResourceMapMode, ResourceMapBlock)
		}
		if p.SliceDefaultCount != DefaultSliceCount || p.SliceMaxCount != DefaultMaxSliceCount {
			t.Errorf("slice counts = %d/%d, want defaults", p.SliceDefaultCount, p.SliceMaxCount)
		}
		if !slices.Equal(p.ResourceMapFormats, []string{DefaultResourceMapFormat}) {
			t.Errorf("ResourceMapFormats = %v", p.ResourceMapFormats)
		}
	})

	t.Run("configured values", func(t *testing.T) {
		cfg := NewConfig("n", "")
		cfg.ResourceMap.CreateMode = ResourceMapReserve
		cfg.Slice.CacheTTL = "90s"
		cfg.Slice.MaxCount = 10
		cfg.Node.TrustedSubjects = []string{"cn"}

		p, err := cfg.Policy()
		if err != nil {
			t.Fatalf("Policy() error = %v", err)
		}
		if p.ResourceMapMode != ResourceMapReserve || p.SliceCacheTTL != 90*time.Second || p.SliceMaxCount != 10 {
			t.Errorf("Policy() = %+v", p)
		}

		// The policy does not share backing arrays with the config.
		cfg.Node.TrustedSubjects[0] = "changed"
		if p.TrustedSubjects[0] != "cn" {
			t.Errorf("TrustedSubjects = %v after config change", p.TrustedSubjects)
		}
	})

	t.Run("default count is clamped to the max count", func(t *testing.T) {
		cfg := NewConfig("n", "")
		cfg.Slice.DefaultCount = 5
		cfg.Slice.MaxCount = 2

		p, err := cfg.Policy()
		if err != nil {
			t.Fatalf("Policy() error = %v", err)
		}
		if p.SliceDefaultCount != 2 || p.SliceMaxCount != 2 {
			t.Errorf("slice counts = %d/%d, want 2/2", p.SliceDefaultCount, p.SliceMaxCount)
		}
	})

	tests := []struct {
		name string
		edit func(*Config)
	}{
		{name: "unknown create mode", edit: func(c *Config) { c.ResourceMap.CreateMode = "permissive" }},
		{name: "bad cache ttl", edit: func(c *Config) { c.Slice.CacheTTL = "ten minutes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("n", "")
			tt.edit(cfg)
			if _, err := cfg.Policy(); err == nil {
				t.Error("Policy() expected error")
			}
		})
	}
}

func TestReplicationPolicy_Allowed(t *testing.T) {
	open := ReplicationPolicy{}
	if !open.NodeAllowed("urn:node:ANY") || !open.FormatAllowed("text/csv") {
		t.Error("empty allow-lists should admit everything")
	}

	p := ReplicationPolicy{AllowedNodes: []string{"urn:node:A"}, AllowedFormats: []string{"text/csv"}}
	if !p.NodeAllowed("urn:node:A") || p.NodeAllowed("urn:node:B") {
		t.Error("NodeAllowed() does not follow the allow-list")
	}
	if !p.FormatAllowed("text/csv") || p.FormatAllowed("image/png") {
		t.Error("FormatAllowed() does not follow the allow-list")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mn.toml")
		cfg := NewConfig("n1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mn.toml")
		cfg := NewConfig("n1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mn.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Node.Identifier != "read-test" {
			t.Errorf("Node.Identifier = %q, want %q", got.Node.Identifier, "read-test")
		}
		if _, err := got.Policy(); err != nil {
			t.Errorf("Policy() of a written default config error = %v", err)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/mn.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}

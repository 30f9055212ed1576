package app

import (
	"fmt"
	"os"
	"path/filepath"

	"mn-go/internal/config"
)

// Environment variables read by LoadDefaults.
const (
	EnvConfigPath  = "MN_CONFIG_PATH"
	EnvHome        = "MN_HOME"
	EnvNodeID      = "MN_NODE_ID"
	EnvCoordinator = "MN_COORDINATOR_URL"
)

// NodeIDPrefix starts every generated node identifier.
const NodeIDPrefix = "urn:node:"

// Defaults are the locations and identity a node starts from before a
// config file exists.
type Defaults struct {
	ConfigPath     string
	BaseDir        string
	NodeID         string // empty: generate one
	CoordinatorURL string
}

// LoadDefaults reads the defaults from the environment. Unset paths fall
// back to the XDG directories: $XDG_CONFIG_HOME/mn.toml (~/.config/mn.toml)
// and $XDG_DATA_HOME/mn (~/.local/share/mn).
func LoadDefaults() (Defaults, error) {
	d := Defaults{
		ConfigPath:     os.Getenv(EnvConfigPath),
		BaseDir:        os.Getenv(EnvHome),
		NodeID:         os.Getenv(EnvNodeID),
		CoordinatorURL: os.Getenv(EnvCoordinator),
	}
	if d.ConfigPath == "" {
		dir, err := xdgDir("XDG_CONFIG_HOME", ".config")
		if err != nil {
			return Defaults{}, err
		}
		d.ConfigPath = filepath.Join(dir, "mn.toml")
	}
	if d.BaseDir == "" {
		dir, err := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
		if err != nil {
			return Defaults{}, err
		}
		d.BaseDir = filepath.Join(dir, "mn")
	}
	return d, nil
}

func xdgDir(env, fallback string) (string, error) {
	if dir := os.Getenv(env); filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, fallback), nil
}

// Config returns a fresh configuration rooted at d.BaseDir. newID supplies
// the unique part of the node identifier when d.NodeID is empty.
func (d Defaults) Config(newID func() string) *config.Config {
	nodeID := d.NodeID
	if nodeID == "" {
		nodeID = NodeIDPrefix + newID()
	}
	cfg := config.NewConfig(nodeID, d.BaseDir)
	cfg.Node.CoordinatorURL = d.CoordinatorURL
	return cfg
}

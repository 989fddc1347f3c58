// Package config loads the per-vault vaultsync configuration from
// <vault>/.vaultsync/config.yaml — a small, frequently-read file parsed
// with yaml.Unmarshal directly — and applies VAULTSYNC_* environment
// overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// DirName is the per-vault config/state directory, sibling to the journal's
// own _embeddings/sync.db location.
const DirName = ".vaultsync"

// FileName is the config file within DirName.
const FileName = "config.yaml"

// JournalDirName and JournalFileName locate the journal database at
// <vault>/_embeddings/sync.db.
const (
	JournalDirName  = "_embeddings"
	JournalFileName = "sync.db"
)

// Config is the persisted subset of a device's vaultsync settings. The E2E
// passphrase is deliberately not a field here — it is never written to
// disk; see Passphrase below.
type Config struct {
	RelayURL         string   `yaml:"relay-url"`
	DeviceName       string   `yaml:"device-name"`
	DeviceToken      string   `yaml:"device-token,omitempty"`
	ConflictStrategy string   `yaml:"conflict-strategy"`
	ExtraIgnores     []string `yaml:"extra-ignores,omitempty"`
	ScanIntervalSec  int      `yaml:"scan-interval-seconds"`
	E2E              bool     `yaml:"e2e"`
	// Handlers persists operator-configured external event handlers, keyed
	// by eventbus.HandlerConfigPrefix + handler id, value a JSON-encoded
	// eventbus.ExternalHandlerConfig. Loaded by `vaultsync start` via
	// eventbus.LoadPersistedHandlers.
	Handlers map[string]string `yaml:"handlers,omitempty"`
}

// Default returns the configuration a freshly initialized vault starts
// with, before any config.yaml exists.
func Default() *Config {
	return &Config{
		RelayURL:         "ws://127.0.0.1:18800/ws",
		ConflictStrategy: string(model.StrategyNewerWins),
		ScanIntervalSec:  3600, // hourly safety-net scan
		E2E:              true,
	}
}

// Dir returns <vaultRoot>/.vaultsync.
func Dir(vaultRoot string) string {
	return filepath.Join(vaultRoot, DirName)
}

// Path returns <vaultRoot>/.vaultsync/config.yaml.
func Path(vaultRoot string) string {
	return filepath.Join(Dir(vaultRoot), FileName)
}

// JournalPath returns <vaultRoot>/_embeddings/sync.db, where the journal
// database lives.
func JournalPath(vaultRoot string) string {
	return filepath.Join(vaultRoot, JournalDirName, JournalFileName)
}

// Load reads config.yaml from vaultRoot, falling back to Default()'s values
// for any field config.yaml doesn't set, then applies VAULTSYNC_*
// environment overrides. A missing file is not an error: a freshly
// initialized vault has no config.yaml yet.
func Load(vaultRoot string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(vaultRoot)) // #nosec G304 -- vaultRoot is operator-supplied, not attacker input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", Path(vaultRoot), err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", Path(vaultRoot), err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies VAULTSYNC_* environment variables on top of
// whatever config.yaml says; the environment wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VAULTSYNC_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("VAULTSYNC_DEVICE_NAME"); v != "" {
		cfg.DeviceName = v
	}
	if v := os.Getenv("VAULTSYNC_CONFLICT_STRATEGY"); v != "" {
		cfg.ConflictStrategy = v
	}
	if v := os.Getenv("VAULTSYNC_SCAN_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanIntervalSec = n
		}
	}
	if v := os.Getenv("VAULTSYNC_EXTRA_IGNORES"); v != "" {
		cfg.ExtraIgnores = strings.Split(v, ",")
	}
	if v := os.Getenv("VAULTSYNC_E2E"); v != "" {
		cfg.E2E = v != "false" && v != "0"
	}
}

// Validate checks that ConflictStrategy is one of the three known values.
func (c *Config) Validate() error {
	switch model.ConflictStrategy(c.ConflictStrategy) {
	case model.StrategyNewerWins, model.StrategyMergeFrontmatter, model.StrategyManual:
		return nil
	default:
		return fmt.Errorf("config: unknown conflict-strategy %q", c.ConflictStrategy)
	}
}

// Save writes cfg to <vaultRoot>/.vaultsync/config.yaml, creating the
// directory if needed. Used by `vaultsync init`, and to persist a newly
// assigned device token after pairing or once `vaultsync start` stops.
func Save(vaultRoot string, cfg *Config) error {
	if err := os.MkdirAll(Dir(vaultRoot), 0o700); err != nil {
		return fmt.Errorf("config: create %s: %w", Dir(vaultRoot), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(Path(vaultRoot), data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", Path(vaultRoot), err)
	}
	return nil
}

// Passphrase reads the vault's E2E passphrase from VAULTSYNC_PASSPHRASE.
// It is never read from or written to config.yaml: persisting it on disk
// would defeat the point of deriving a key from something only the user
// knows.
func Passphrase() (string, bool) {
	v, ok := os.LookupEnv("VAULTSYNC_PASSPHRASE")
	return v, ok && v != ""
}

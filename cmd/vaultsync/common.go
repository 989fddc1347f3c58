package main

import (
	"context"
	"fmt"
	"os"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/journal"
)

// vaultContext bundles the identity and storage a subcommand needs once it
// has loaded config.yaml: the passphrase-derived key and vault id (hasKey
// reports whether E2E sealing is on), this device's id, and an open journal
// store. Callers must call Close when done.
type vaultContext struct {
	cfg      *config.Config
	store    *journal.Store
	key      crypto.Key
	hasKey   bool
	vaultID  string
	deviceID string
}

func (v *vaultContext) Close() error {
	if v.store == nil {
		return nil
	}
	return v.store.Close()
}

// openVaultContext loads config.yaml (or its defaults) for vaultRoot, derives
// the key and vault id from VAULTSYNC_PASSPHRASE (required even when E2E is
// off, and an error when unset), and opens the journal
// database. openStore controls whether the (possibly slow, lock-acquiring)
// journal open happens at all, since `status`/`doctor` want to read the
// journal read-only while `pair generate/confirm` don't need it open yet.
func openVaultContext(ctx context.Context, vaultRoot string, openStore bool) (*vaultContext, error) {
	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return nil, err
	}

	vc := &vaultContext{cfg: cfg}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	vc.deviceID = crypto.DeviceID(hostname, vaultRoot)

	// The vault id is always derived from the shared passphrase — that
	// derivation is what lets two devices with
	// the same passphrase land in the same relay room without exchanging
	// anything out of band. The config's E2E flag decides whether payload
	// bodies outside the plaintext whitelist are actually sealed with that
	// key, not whether a key exists.
	passphrase, ok := config.Passphrase()
	if !ok {
		return nil, fmt.Errorf("vaultsync: VAULTSYNC_PASSPHRASE is not set")
	}
	vc.key = crypto.DeriveKey(passphrase)
	vc.vaultID = crypto.VaultID(vc.key)
	vc.hasKey = cfg.E2E

	if openStore {
		store, err := journal.Open(ctx, config.JournalPath(vaultRoot))
		if err != nil {
			return nil, err
		}
		vc.store = store
	}

	return vc, nil
}

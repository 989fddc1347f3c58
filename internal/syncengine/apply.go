package syncengine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/conflict"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/detector"
	"github.com/CalvinMagezi/vaultsync/internal/journal"
	"github.com/CalvinMagezi/vaultsync/internal/model"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

// applier performs the actual filesystem mutations a remote apply needs,
// wrapping every write in the detector's suppress/release pair so the
// watcher doesn't re-ingest the engine's own write as a fresh local change.
type applier struct {
	vaultRoot string
	detector  *detector.Detector
}

func newApplier(vaultRoot string, det *detector.Detector) *applier {
	return &applier{vaultRoot: vaultRoot, detector: det}
}

func (a *applier) fullPath(path string) string {
	return filepath.Join(a.vaultRoot, filepath.FromSlash(path))
}

// Read returns a path's current on-disk content.
func (a *applier) Read(path string) ([]byte, error) {
	return os.ReadFile(a.fullPath(path))
}

// Write creates or overwrites path with content.
func (a *applier) Write(path string, content []byte) error {
	a.detector.Suppress(path)
	defer a.detector.Release(path)

	full := a.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("syncengine: create parent dir for %s: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("syncengine: write %s: %w", path, err)
	}
	return nil
}

// Delete removes path. A missing file is not an error: the desired end
// state (absence) already holds.
func (a *applier) Delete(path string) error {
	a.detector.Suppress(path)
	defer a.detector.Release(path)

	if err := os.Remove(a.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncengine: delete %s: %w", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath. A missing source is not an error: the
// file was never synced to this device, so there is nothing to move.
func (a *applier) Rename(oldPath, newPath string) error {
	a.detector.Suppress(oldPath)
	a.detector.Suppress(newPath)
	defer a.detector.Release(oldPath)
	defer a.detector.Release(newPath)

	oldFull, newFull := a.fullPath(oldPath), a.fullPath(newPath)
	if _, err := os.Stat(oldFull); os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		return fmt.Errorf("syncengine: create parent dir for %s: %w", newPath, err)
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return fmt.Errorf("syncengine: rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// fetchFunc requests targetDeviceId for content matching (path, hash) and
// waits for the response through the in-flight resolver table.
type fetchFunc func(ctx context.Context, path, contentHash, targetDeviceID string) ([]byte, error)

// inboundApplier applies a single delta-push or index-response entry to
// the local vault.
type inboundApplier struct {
	deviceID string
	ignore   *detector.IgnoreSet
	hashes   *hashCache
	files    *applier
	fetch    fetchFunc
	resolver *conflict.Resolver
	strategy model.ConflictStrategy
	store    *journal.Store
	logger   *log.Logger
}

// Apply applies one wire change, or silently drops it when it is our own
// echo or targets an ignored path.
func (ia *inboundApplier) Apply(ctx context.Context, wc protocol.WireChange) error {
	if wc.DeviceID == ia.deviceID {
		return nil
	}
	if ia.ignore.Ignored(wc.Path) {
		return nil
	}

	switch model.ChangeKind(wc.Kind) {
	case model.ChangeCreate, model.ChangeModify:
		return ia.applyWrite(ctx, wc)
	case model.ChangeDelete:
		return ia.applyDelete(ctx, wc)
	case model.ChangeRename:
		return ia.applyRename(ctx, wc)
	default:
		return fmt.Errorf("syncengine: unknown change kind %q", wc.Kind)
	}
}

func (ia *inboundApplier) applyWrite(ctx context.Context, wc protocol.WireChange) error {
	localHash, hasLocal := ia.hashes.Get(wc.Path)
	if hasLocal && localHash == wc.ContentHash {
		return nil
	}

	if !hasLocal {
		content, err := ia.fetch(ctx, wc.Path, wc.ContentHash, wc.DeviceID)
		if err != nil {
			return fmt.Errorf("syncengine: fetch content for %s: %w", wc.Path, err)
		}
		if err := ia.files.Write(wc.Path, content); err != nil {
			return err
		}
		ia.hashes.Set(wc.Path, wc.ContentHash)
		return ia.recordApplied(ctx, wc)
	}

	return ia.resolveDivergence(ctx, wc)
}

// resolveDivergence handles step 3's "otherwise invoke the Conflict
// Resolver" branch: both sides have differing content for the same path.
func (ia *inboundApplier) resolveDivergence(ctx context.Context, wc protocol.WireChange) error {
	localContent, err := ia.files.Read(wc.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncengine: read local %s: %w", wc.Path, err)
	}
	remoteContent, err := ia.fetch(ctx, wc.Path, wc.ContentHash, wc.DeviceID)
	if err != nil {
		return fmt.Errorf("syncengine: fetch content for %s: %w", wc.Path, err)
	}

	localMTime := ia.localMTime(ctx, wc.Path)
	remoteMTime := time.Now()
	if wc.MTime != nil {
		remoteMTime = time.UnixMilli(*wc.MTime)
	}

	localHash, _ := ia.hashes.Get(wc.Path)
	out, err := ia.resolver.Resolve(ctx, conflict.Input{
		Path:           wc.Path,
		LocalContent:   localContent,
		LocalHash:      localHash,
		LocalMTime:     localMTime,
		RemoteContent:  remoteContent,
		RemoteHash:     wc.ContentHash,
		RemoteMTime:    remoteMTime,
		RemoteDeviceID: wc.DeviceID,
		Strategy:       ia.strategy,
	})
	if err != nil {
		return fmt.Errorf("syncengine: resolve conflict for %s: %w", wc.Path, err)
	}

	if len(out.LoserContent) > 0 {
		if err := ia.files.Write(out.LoserPath, out.LoserContent); err != nil {
			return fmt.Errorf("syncengine: preserve conflict sibling %s: %w", out.LoserPath, err)
		}
	}
	if !out.WriteWinner {
		return nil
	}

	if err := ia.files.Write(wc.Path, out.WinnerContent); err != nil {
		return err
	}
	ia.hashes.Set(wc.Path, crypto.ContentHash(out.WinnerContent))
	return ia.recordApplied(ctx, wc)
}

func (ia *inboundApplier) localMTime(ctx context.Context, path string) time.Time {
	v, err := ia.store.CurrentVersion(ctx, path)
	if err != nil || v == nil {
		return time.Now()
	}
	return time.UnixMilli(v.MTime)
}

// applyDelete handles a remote delete. Delete changes never carry a
// content hash (model.ChangeEntry leaves it empty by design), so "the
// last-known remote hash sent" is read off this device's own hash cache
// entry for the path instead: if the file on disk still matches what we
// last synced, no local edit happened since, and the delete is safe to
// honor. If it no longer matches, a local edit raced the delete and local
// wins by skipping it. A file that is already gone, or a path with no
// cached hash, is deleted (a no-op on disk) and the delete is recorded.
func (ia *inboundApplier) applyDelete(ctx context.Context, wc protocol.WireChange) error {
	lastSynced, hasLast := ia.hashes.Get(wc.Path)
	if hasLast {
		current, err := ia.files.Read(wc.Path)
		if err == nil && crypto.ContentHash(current) != lastSynced {
			return nil
		}
	}

	if err := ia.files.Delete(wc.Path); err != nil {
		return err
	}
	ia.hashes.Delete(wc.Path)
	return ia.recordApplied(ctx, wc)
}

func (ia *inboundApplier) applyRename(ctx context.Context, wc protocol.WireChange) error {
	if err := ia.files.Rename(wc.OldPath, wc.Path); err != nil {
		return err
	}
	ia.hashes.Rename(wc.OldPath, wc.Path)
	return ia.recordApplied(ctx, wc)
}

// recordApplied journals the applied change with Source: remote and the
// originating device's id, so the outbound path's UnsyncedChanges query
// (scoped to this device's own id) never re-offers it back to the relay.
func (ia *inboundApplier) recordApplied(ctx context.Context, wc protocol.WireChange) error {
	entry := model.ChangeEntry{
		Path:        wc.Path,
		OldPath:     wc.OldPath,
		Kind:        model.ChangeKind(wc.Kind),
		ContentHash: wc.ContentHash,
		Size:        wc.Size,
		MTime:       wc.MTime,
		DetectedAt:  time.Now(),
		Source:      model.SourceRemote,
		DeviceID:    wc.DeviceID,
	}
	if _, err := ia.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("syncengine: record applied change: %w", err)
	}

	switch entry.Kind {
	case model.ChangeDelete:
		return ia.store.DeleteCurrentVersion(ctx, wc.Path)
	default:
		num, err := ia.store.NextVersion(ctx, wc.Path)
		if err != nil {
			return fmt.Errorf("syncengine: next version for %s: %w", wc.Path, err)
		}
		var size, mtime int64
		if wc.Size != nil {
			size = *wc.Size
		}
		if wc.MTime != nil {
			mtime = *wc.MTime
		}
		return ia.store.RecordVersion(ctx, model.Version{
			Path:        wc.Path,
			ContentHash: wc.ContentHash,
			Size:        size,
			MTime:       mtime,
			VersionNum:  num,
			RecordedAt:  time.Now(),
			DeviceID:    ia.deviceID,
		})
	}
}

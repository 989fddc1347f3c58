package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// watchDebounce is the per-path debounce window for filesystem events.
const watchDebounce = 300 * time.Millisecond

// renameCorrelationWindow is how long a removed path's last-known hash is
// kept around to be matched against a subsequently created path, to
// recognize editor/OS move operations as a rename rather than a
// delete+create pair.
const renameCorrelationWindow = 2 * time.Second

type removedFile struct {
	hash      string
	removedAt time.Time
}

func (d *Detector) runWatcher(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("detector: new watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := d.addTreeToWatcher(w, d.vaultRoot); err != nil {
		return fmt.Errorf("detector: watch vault: %w", err)
	}

	state := &watchState{
		detector: d,
		watcher:  w,
		timers:   make(map[string]*time.Timer),
		removed:  make(map[string]removedFile),
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			state.handle(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Printf("detector: watcher error: %v", err)
		}
	}
}

// addTreeToWatcher adds the vault root and every non-ignored subdirectory to
// w, so new directories created later must be added explicitly on Create
// events (handled in watchState.handle).
func (d *Detector) addTreeToWatcher(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr == nil && rel != "." && d.ignore.IgnoredDir(rel+"/") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

type watchState struct {
	detector *Detector
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	removed map[string]removedFile
}

func (s *watchState) handle(ev fsnotify.Event) {
	abs := ev.Name
	rel, err := filepath.Rel(s.detector.vaultRoot, abs)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if ev.Has(fsnotify.Create) {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			_ = s.detector.addTreeToWatcher(s.watcher, abs)
			return
		}
	}

	if s.detector.ignore.Ignored(rel) {
		return
	}
	if s.detector.suppress.IsSuppressed(rel) {
		return
	}

	op := ev.Op
	s.debounce(rel, func() {
		s.process(rel, abs, op)
	})
}

func (s *watchState) debounce(rel string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[rel]; ok {
		t.Stop()
	}
	s.timers[rel] = time.AfterFunc(watchDebounce, func() {
		s.mu.Lock()
		delete(s.timers, rel)
		s.mu.Unlock()
		fn()
	})
}

func (s *watchState) process(rel, abs string, op fsnotify.Op) {
	ctx := context.Background()

	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		s.processRemoval(ctx, rel)
		return
	}

	// Write or Create: read, hash, and persist a create/modify change.
	data, err := os.ReadFile(abs)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.detector.logger.Printf("detector: read %s: %v", rel, err)
		}
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		return
	}
	hash := contentHash(data)

	if oldPath, ok := s.matchRename(rel, hash); ok {
		s.appendChange(ctx, model.ChangeEntry{
			Path: rel, OldPath: oldPath, Kind: model.ChangeRename,
			ContentHash: hash, Source: model.SourceWatcher, DeviceID: s.detector.deviceID,
		}, &info)
		return
	}

	kind := model.ChangeModify
	if _, err := s.detector.store.CurrentVersion(ctx, rel); err != nil {
		kind = model.ChangeCreate
	}
	s.appendChange(ctx, model.ChangeEntry{
		Path: rel, Kind: kind, ContentHash: hash,
		Source: model.SourceWatcher, DeviceID: s.detector.deviceID,
	}, &info)
}

func (s *watchState) processRemoval(ctx context.Context, rel string) {
	cur, err := s.detector.store.CurrentVersion(ctx, rel)
	if err != nil {
		return // never recorded locally; nothing to delete
	}
	s.mu.Lock()
	s.removed[rel] = removedFile{hash: cur.ContentHash, removedAt: time.Now()}
	s.mu.Unlock()

	s.appendChange(ctx, model.ChangeEntry{
		Path: rel, Kind: model.ChangeDelete,
		Source: model.SourceWatcher, DeviceID: s.detector.deviceID,
	}, nil)
}

// matchRename looks for a recently removed path whose last-known content
// hash matches hash, within renameCorrelationWindow. On a match it removes
// the entry and returns the old path.
func (s *watchState) matchRename(newPath, hash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for oldPath, rf := range s.removed {
		if now.Sub(rf.removedAt) > renameCorrelationWindow {
			delete(s.removed, oldPath)
			continue
		}
		if rf.hash == hash && oldPath != newPath {
			delete(s.removed, oldPath)
			return oldPath, true
		}
	}
	return "", false
}

func (s *watchState) appendChange(ctx context.Context, c model.ChangeEntry, info *os.FileInfo) {
	c.DetectedAt = time.Now()
	if info != nil {
		size := (*info).Size()
		mtime := (*info).ModTime().UnixMilli()
		c.Size = &size
		c.MTime = &mtime
	}
	if _, err := s.detector.store.Append(ctx, c); err != nil {
		s.detector.logger.Printf("detector: append change for %s: %v", c.Path, err)
		return
	}
	if c.Kind == model.ChangeDelete {
		if err := s.detector.store.DeleteCurrentVersion(ctx, c.Path); err != nil {
			s.detector.logger.Printf("detector: clear version for %s: %v", c.Path, err)
		}
		return
	}
	next, err := s.detector.store.NextVersion(ctx, c.Path)
	if err != nil {
		s.detector.logger.Printf("detector: next version for %s: %v", c.Path, err)
		return
	}
	var size, mtime int64
	if c.Size != nil {
		size = *c.Size
	}
	if c.MTime != nil {
		mtime = *c.MTime
	}
	if err := s.detector.store.RecordVersion(ctx, model.Version{
		Path: c.Path, ContentHash: c.ContentHash, Size: size, MTime: mtime,
		VersionNum: next, RecordedAt: c.DetectedAt, DeviceID: s.detector.deviceID,
	}); err != nil {
		s.detector.logger.Printf("detector: record version for %s: %v", c.Path, err)
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

package detector

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// scanInterval is the full-scanner period, a safety net behind the watcher.
const scanInterval = time.Hour

func (d *Detector) runScanner(ctx context.Context) error {
	if err := d.scanOnce(ctx); err != nil {
		d.logger.Printf("detector: initial scan: %v", err)
	}

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.scanOnce(ctx); err != nil {
				d.logger.Printf("detector: scan: %v", err)
			}
		}
	}
}

// scanOnce walks the vault, pre-filters on mtime+size against the version
// store, hashes only files that look changed, and records a delete change
// for every version-store path missing from disk. The mtime/size pre-filter
// keeps an unchanged vault's hourly scan from rehashing every file.
func (d *Detector) scanOnce(ctx context.Context) error {
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(d.vaultRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, continue the walk
		}
		if entry.IsDir() {
			rel, relErr := filepath.Rel(d.vaultRoot, path)
			if relErr == nil && rel != "." && d.ignore.IgnoredDir(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(d.vaultRoot, path)
		if relErr != nil || d.ignore.Ignored(rel) {
			return nil
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true
		d.scanFile(ctx, path, rel, entry)
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	versions, err := d.store.AllCurrentVersions(ctx)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if seen[v.Path] {
			continue
		}
		if d.suppress.IsSuppressed(v.Path) {
			continue
		}
		if _, err := d.store.Append(ctx, model.ChangeEntry{
			Path: v.Path, Kind: model.ChangeDelete, Source: model.SourceScan,
			DeviceID: d.deviceID, DetectedAt: time.Now(),
		}); err != nil {
			d.logger.Printf("detector: scan delete change for %s: %v", v.Path, err)
			continue
		}
		if err := d.store.DeleteCurrentVersion(ctx, v.Path); err != nil {
			d.logger.Printf("detector: clear version for %s: %v", v.Path, err)
		}
	}
	return nil
}

func (d *Detector) scanFile(ctx context.Context, absPath, rel string, entry fs.DirEntry) {
	if d.suppress.IsSuppressed(rel) {
		return
	}
	info, err := entry.Info()
	if err != nil {
		return // vanished between walk and stat; skip this file
	}

	cur, err := d.store.CurrentVersion(ctx, rel)
	if err == nil && cur.Size == info.Size() && cur.MTime == info.ModTime().UnixMilli() {
		return // mtime+size unchanged: skip the hash
	}

	data, readErr := os.ReadFile(absPath)
	if readErr != nil {
		return // permission denied or file vanished; skip silently
	}
	hash := contentHash(data)
	if err == nil && cur.ContentHash == hash {
		return // content identical despite mtime/size drift (e.g. touch)
	}

	kind := model.ChangeModify
	if err != nil {
		kind = model.ChangeCreate
	}
	size := info.Size()
	mtime := info.ModTime().UnixMilli()
	now := time.Now()

	if _, err := d.store.Append(ctx, model.ChangeEntry{
		Path: rel, Kind: kind, ContentHash: hash, Size: &size, MTime: &mtime,
		Source: model.SourceScan, DeviceID: d.deviceID, DetectedAt: now,
	}); err != nil {
		d.logger.Printf("detector: scan append for %s: %v", rel, err)
		return
	}
	next, err := d.store.NextVersion(ctx, rel)
	if err != nil {
		d.logger.Printf("detector: scan next version for %s: %v", rel, err)
		return
	}
	if err := d.store.RecordVersion(ctx, model.Version{
		Path: rel, ContentHash: hash, Size: size, MTime: mtime,
		VersionNum: next, RecordedAt: now, DeviceID: d.deviceID,
	}); err != nil {
		d.logger.Printf("detector: scan record version for %s: %v", rel, err)
	}
}

// Package conflict decides which side of a divergent write wins and
// guarantees the loser is preserved as a sibling file before the winner is
// applied. Every conflict, resolved or not, is recorded in the journal's
// conflict table.
package conflict

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/journal"
	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// Input is everything the resolver needs to settle one divergence.
type Input struct {
	Path           string
	LocalContent   []byte
	LocalHash      string
	LocalMTime     time.Time
	RemoteContent  []byte
	RemoteHash     string
	RemoteMTime    time.Time
	RemoteDeviceID string
	Strategy       model.ConflictStrategy
}

// Outcome tells the caller what to write where. WriteWinner is false only
// for the manual strategy, which never overwrites the local copy; in that
// case LoserContent is the remote side, preserved for the operator to
// review, and the local file is left untouched.
type Outcome struct {
	Winner        model.ConflictWinner
	WriteWinner   bool
	WinnerContent []byte
	LoserContent  []byte
	LoserPath     string
	Resolved      bool
}

// Resolver detects divergence and applies the configured strategy,
// recording every conflict (and, once settled, its resolution) in the
// journal.
type Resolver struct {
	store     *journal.Store
	vaultRoot string
}

// New builds a Resolver backed by store, writing preserved loser copies
// under vaultRoot.
func New(store *journal.Store, vaultRoot string) *Resolver {
	return &Resolver{store: store, vaultRoot: vaultRoot}
}

// Resolve settles one divergence per in.Strategy and persists both the
// conflict record and (for automatic strategies) its resolution. The loser
// copy must be persisted locally before the winner is written; the caller
// honors that using the returned Outcome — write LoserContent to LoserPath
// first, then WinnerContent to the original path if WriteWinner is true.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Outcome, error) {
	now := time.Now()
	if err := r.store.RecordConflict(ctx, model.ConflictRecord{
		Path:           in.Path,
		LocalHash:      in.LocalHash,
		RemoteHash:     in.RemoteHash,
		RemoteDeviceID: in.RemoteDeviceID,
		DetectedAt:     now,
		Strategy:       in.Strategy,
	}); err != nil {
		return nil, fmt.Errorf("conflict: record: %w", err)
	}

	switch in.Strategy {
	case model.StrategyManual:
		return r.resolveManual(ctx, in)
	case model.StrategyNewerWins, model.StrategyMergeFrontmatter:
		// merge-frontmatter is reserved for future YAML-aware merging and
		// behaves identically to newer-wins today.
		return r.resolveNewerWins(ctx, in, now)
	default:
		return nil, fmt.Errorf("conflict: unknown strategy %q", in.Strategy)
	}
}

func (r *Resolver) resolveNewerWins(ctx context.Context, in Input, now time.Time) (*Outcome, error) {
	remoteWins := !in.RemoteMTime.Before(in.LocalMTime)

	var winner model.ConflictWinner
	var winnerContent, loserContent []byte
	var loserMTime time.Time
	if remoteWins {
		winner = model.WinnerRemote
		winnerContent, loserContent = in.RemoteContent, in.LocalContent
		loserMTime = in.LocalMTime
	} else {
		winner = model.WinnerLocal
		winnerContent, loserContent = in.LocalContent, in.RemoteContent
		loserMTime = in.RemoteMTime
	}

	loserPath := ConflictPath(in.Path, loserMTime, in.RemoteDeviceID)

	if err := r.store.ResolveConflict(ctx, in.Path, model.Resolution{
		Winner:     winner,
		LoserPath:  loserPath,
		ResolvedAt: now,
		ResolvedBy: model.ResolvedAuto,
	}); err != nil {
		return nil, fmt.Errorf("conflict: resolve: %w", err)
	}

	return &Outcome{
		Winner:        winner,
		WriteWinner:   true,
		WinnerContent: winnerContent,
		LoserContent:  loserContent,
		LoserPath:     loserPath,
		Resolved:      true,
	}, nil
}

// resolveManual never picks a winner: the remote content is preserved as a
// conflict sibling, the local file is left alone, and nothing is ever
// overwritten. The conflict record stays unresolved for an operator surface
// (journal.Store.UnresolvedConflicts) to present later.
func (r *Resolver) resolveManual(_ context.Context, in Input) (*Outcome, error) {
	loserPath := ConflictPath(in.Path, in.RemoteMTime, in.RemoteDeviceID)
	return &Outcome{
		WriteWinner:  false,
		LoserContent: in.RemoteContent,
		LoserPath:    loserPath,
		Resolved:     false,
	}, nil
}

// ConflictPath builds the deterministic sibling name for a preserved loser
// copy, relative to the vault root:
// <base>.sync-conflict-<YYYYMMDD-HHMMSS>-<deviceIdPrefix8><ext>.
func ConflictPath(path string, mtime time.Time, deviceID string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	prefix := strings.ToLower(deviceID)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	name := fmt.Sprintf("%s.sync-conflict-%s-%s%s", stem, mtime.UTC().Format("20060102-150405"), prefix, ext)
	if dir == "." {
		return name
	}
	return filepath.ToSlash(filepath.Join(dir, name))
}

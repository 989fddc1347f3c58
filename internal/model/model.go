// Package model defines the data types shared by the journal, detector,
// protocol, relay, sync engine, and conflict resolver: the vocabulary the
// whole sync fabric speaks.
package model

import "time"

// ChangeKind is the kind of filesystem mutation a change entry records.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
	ChangeRename ChangeKind = "rename"
)

// ChangeSource identifies what produced a change entry.
type ChangeSource string

const (
	SourceWatcher ChangeSource = "watcher"
	SourceScan    ChangeSource = "scan"
	SourceAPI     ChangeSource = "api"
	SourceRemote  ChangeSource = "remote"
)

// ChangeEntry is one append-only journal record. It is never mutated after
// creation; compaction removes rows outright rather than editing them.
type ChangeEntry struct {
	ID          int64
	Path        string
	OldPath     string // set only for ChangeRename
	Kind        ChangeKind
	ContentHash string // empty for ChangeDelete
	Size        *int64
	MTime       *int64 // epoch milliseconds, nil for ChangeDelete
	DetectedAt  time.Time
	Source      ChangeSource
	DeviceID    string
}

// Version is the current (or historical) recorded state of one file as seen
// by one device. The (Path, VersionNum) pair is unique per device; the
// highest VersionNum row for a path is that device's canonical local state.
type Version struct {
	Path        string
	ContentHash string
	Size        int64
	MTime       int64
	VersionNum  int64
	RecordedAt  time.Time
	DeviceID    string
}

// CursorDirection distinguishes a peer cursor tracking what has been sent
// to a peer from one tracking what has been received from it.
type CursorDirection string

const (
	DirectionSent     CursorDirection = "sent"
	DirectionReceived CursorDirection = "received"
)

// AdvisoryLock is a (path -> holder) row with a TTL. At most one non-expired
// holder may exist per path; expired locks are reclaimable by anyone.
type AdvisoryLock struct {
	Path       string
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// ConflictStrategy selects how the conflict resolver picks a winner.
type ConflictStrategy string

const (
	StrategyNewerWins        ConflictStrategy = "newer-wins"
	StrategyMergeFrontmatter ConflictStrategy = "merge-frontmatter"
	StrategyManual           ConflictStrategy = "manual"
)

// ConflictWinner names which side's content was kept.
type ConflictWinner string

const (
	WinnerLocal  ConflictWinner = "local"
	WinnerRemote ConflictWinner = "remote"
)

// ResolvedBy distinguishes automatic resolution from operator action.
type ResolvedBy string

const (
	ResolvedAuto   ResolvedBy = "auto"
	ResolvedManual ResolvedBy = "manual"
)

// Resolution records how a conflict was settled, once it has been.
type Resolution struct {
	Winner     ConflictWinner
	LoserPath  string
	ResolvedAt time.Time
	ResolvedBy ResolvedBy
}

// ConflictRecord captures a detected divergence between local and remote
// content for a path, and its resolution once one exists.
type ConflictRecord struct {
	Path           string
	LocalHash      string
	RemoteHash     string
	RemoteDeviceID string
	DetectedAt     time.Time
	Strategy       ConflictStrategy
	Resolution     *Resolution
}

// DeviceRecord is the relay's server-side view of one device. It is keyed
// by (DeviceID, VaultID); re-registration updates DeviceName and LastSeen.
type DeviceRecord struct {
	DeviceID    string
	VaultID     string
	DeviceName  string
	DeviceToken string
	FirstSeen   time.Time
	LastSeen    time.Time
}

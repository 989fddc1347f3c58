package eventbus

import (
	"strings"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// Classify maps a raw change entry to a semantic event type by path
// prefix.
func Classify(c model.ChangeEntry) EventType {
	path := c.Path
	switch {
	case hasPrefix(path, "_jobs/pending/"):
		switch c.Kind {
		case model.ChangeCreate:
			return EventJobCreated
		case model.ChangeModify:
			return EventJobStatusChanged
		case model.ChangeDelete:
			return EventJobClaimed
		}
	case hasPrefix(path, "_jobs/running/"):
		switch c.Kind {
		case model.ChangeCreate:
			return EventJobClaimed
		case model.ChangeModify:
			return EventJobStatusChanged
		}
	case hasPrefix(path, "_jobs/done/"), hasPrefix(path, "_jobs/failed/"):
		return EventJobStatusChanged

	case hasPrefix(path, "_delegation/pending/"):
		switch c.Kind {
		case model.ChangeCreate:
			return EventTaskCreated
		case model.ChangeModify:
			return EventTaskStatusChanged
		case model.ChangeDelete:
			return EventTaskClaimed
		}
	case hasPrefix(path, "_delegation/claimed/"):
		if c.Kind == model.ChangeCreate {
			return EventTaskClaimed
		}
	case hasPrefix(path, "_delegation/completed/"):
		return EventTaskCompleted

	case hasPrefix(path, "_approvals/pending/"):
		if c.Kind == model.ChangeCreate {
			return EventApprovalCreated
		}
	case hasPrefix(path, "_approvals/resolved/"):
		return EventApprovalResolved

	case hasPrefix(path, "_system/"):
		if c.Kind == model.ChangeModify {
			return EventSystemModified
		}

	case hasPrefix(path, "Notebooks/"):
		switch c.Kind {
		case model.ChangeCreate:
			return EventNoteCreated
		case model.ChangeModify:
			return EventNoteModified
		case model.ChangeDelete:
			return EventNoteDeleted
		}
	}

	// Fallthrough: everything else, and any branch above whose kind didn't
	// match one of the rules it documents, is a generic file:* event.
	switch c.Kind {
	case model.ChangeCreate:
		return EventFileCreated
	case model.ChangeModify:
		return EventFileModified
	case model.ChangeDelete:
		return EventFileDeleted
	case model.ChangeRename:
		return EventFileRenamed
	default:
		return EventFileModified
	}
}

func hasPrefix(path, prefix string) bool {
	return strings.HasPrefix(path, prefix)
}

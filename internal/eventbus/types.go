// Package eventbus is the event classifier and fan-out bus: it consumes
// the journal's change tail, reclassifies each raw filesystem change into
// a semantic domain event by path prefix, and dispatches it to typed,
// wildcard, or filter-based subscribers on a best-effort basis. Dispatch
// walks a sorted-by-priority handler list and isolates one handler's
// failure from its siblings; an external-process handler supports operator
// scripting.
package eventbus

import (
	"time"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

// EventType is the semantic classification assigned to a raw change entry.
type EventType string

const (
	EventJobCreated        EventType = "job:created"
	EventJobStatusChanged  EventType = "job:status-changed"
	EventJobClaimed        EventType = "job:claimed"
	EventTaskCreated       EventType = "task:created"
	EventTaskStatusChanged EventType = "task:status-changed"
	EventTaskClaimed       EventType = "task:claimed"
	EventTaskCompleted     EventType = "task:completed"
	EventApprovalCreated   EventType = "approval:created"
	EventApprovalResolved  EventType = "approval:resolved"
	EventSystemModified    EventType = "system:modified"
	EventNoteCreated       EventType = "note:created"
	EventNoteModified      EventType = "note:modified"
	EventNoteDeleted       EventType = "note:deleted"
	EventFileCreated       EventType = "file:created"
	EventFileModified      EventType = "file:modified"
	EventFileDeleted       EventType = "file:deleted"
	EventFileRenamed       EventType = "file:renamed"
)

// Event is one classified change, handed to subscribers. Change is the raw
// journal record Type was derived from; ClassifiedAt is when the classifier
// processed it, independent of Change.DetectedAt.
type Event struct {
	Type         EventType
	Change       model.ChangeEntry
	ClassifiedAt time.Time
}

package eventbus

import (
	"context"
	"strings"
)

// Filter describes a filter-based subscription. A nil/empty EventTypes matches every
// type; a nil/empty DirectoryPrefixes matches every path.
type Filter struct {
	EventTypes        []EventType
	DirectoryPrefixes []string
}

func (f Filter) matchesPath(path string) bool {
	if len(f.DirectoryPrefixes) == 0 {
		return true
	}
	for _, p := range f.DirectoryPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// filterHandler adapts a Filter plus a plain callback into a Handler.
type filterHandler struct {
	id       string
	priority int
	filter   Filter
	fn       func(ctx context.Context, event *Event) error
}

// NewFilterHandler builds a Handler from a Filter and callback, for
// subscribers that want directory-scoped or type-scoped notification
// without implementing the full Handler interface themselves.
func NewFilterHandler(id string, priority int, filter Filter, fn func(ctx context.Context, event *Event) error) Handler {
	return &filterHandler{id: id, priority: priority, filter: filter, fn: fn}
}

func (h *filterHandler) ID() string           { return h.id }
func (h *filterHandler) Handles() []EventType { return h.filter.EventTypes }
func (h *filterHandler) Priority() int        { return h.priority }

func (h *filterHandler) Handle(ctx context.Context, event *Event) error {
	if !h.filter.matchesPath(event.Change.Path) {
		return nil
	}
	return h.fn(ctx, event)
}

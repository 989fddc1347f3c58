package eventbus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

type recordingHandler struct {
	id       string
	priority int
	types    []EventType
	calls    *[]string
	fail     bool
}

func (h *recordingHandler) ID() string           { return h.id }
func (h *recordingHandler) Handles() []EventType { return h.types }
func (h *recordingHandler) Priority() int         { return h.priority }
func (h *recordingHandler) Handle(ctx context.Context, event *Event) error {
	*h.calls = append(*h.calls, h.id)
	if h.fail {
		return fmt.Errorf("boom")
	}
	return nil
}

func TestBusDispatchPriorityOrder(t *testing.T) {
	var calls []string
	b := New()
	b.Register(&recordingHandler{id: "second", priority: 20, types: []EventType{EventNoteModified}, calls: &calls})
	b.Register(&recordingHandler{id: "first", priority: 10, types: []EventType{EventNoteModified}, calls: &calls})

	err := b.Dispatch(context.Background(), &Event{Type: EventNoteModified})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBusDispatchTypeFiltering(t *testing.T) {
	var calls []string
	b := New()
	b.Register(&recordingHandler{id: "notes-only", priority: 0, types: []EventType{EventNoteModified}, calls: &calls})

	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventJobCreated}))
	assert.Empty(t, calls)

	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventNoteModified}))
	assert.Equal(t, []string{"notes-only"}, calls)
}

func TestBusDispatchWildcard(t *testing.T) {
	var calls []string
	b := New()
	b.Register(&recordingHandler{id: "wild", priority: 0, types: nil, calls: &calls})

	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventJobCreated}))
	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventNoteDeleted}))
	assert.Equal(t, []string{"wild", "wild"}, calls)
}

func TestBusDispatchIsolatesHandlerFailure(t *testing.T) {
	var calls []string
	b := New()
	b.Register(&recordingHandler{id: "failing", priority: 0, types: []EventType{EventNoteCreated}, calls: &calls, fail: true})
	b.Register(&recordingHandler{id: "healthy", priority: 1, types: []EventType{EventNoteCreated}, calls: &calls})

	err := b.Dispatch(context.Background(), &Event{Type: EventNoteCreated})
	require.NoError(t, err)
	assert.Equal(t, []string{"failing", "healthy"}, calls)
}

func TestBusUnregister(t *testing.T) {
	b := New()
	b.Register(&recordingHandler{id: "h1", types: []EventType{EventNoteCreated}, calls: &[]string{}})
	assert.True(t, b.Unregister("h1"))
	assert.False(t, b.Unregister("h1"))
	assert.Empty(t, b.Handlers())
}

func TestFilterHandlerDirectoryPrefix(t *testing.T) {
	var seen []string
	b := New()
	b.Register(NewFilterHandler("notebooks-only", 0, Filter{DirectoryPrefixes: []string{"Notebooks/"}}, func(ctx context.Context, e *Event) error {
		seen = append(seen, e.Change.Path)
		return nil
	}))

	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventFileModified, Change: model.ChangeEntry{Path: "misc/x.md"}}))
	assert.Empty(t, seen)

	require.NoError(t, b.Dispatch(context.Background(), &Event{Type: EventNoteModified, Change: model.ChangeEntry{Path: "Notebooks/x.md"}}))
	assert.Equal(t, []string{"Notebooks/x.md"}, seen)
}

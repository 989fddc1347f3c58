package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CalvinMagezi/vaultsync/internal/model"
)

func TestExternalHandlerRunsCommandWithEventOnStdin(t *testing.T) {
	h := NewExternalHandler(ExternalHandlerConfig{
		ID:      "echoer",
		Command: "cat >/dev/null",
		Events:  []string{string(EventNoteModified)},
	})
	assert.Equal(t, "echoer", h.ID())
	assert.Equal(t, []EventType{EventNoteModified}, h.Handles())
	assert.Equal(t, 50, h.Priority())

	err := h.Handle(context.Background(), &Event{Type: EventNoteModified, Change: model.ChangeEntry{Path: "Notebooks/a.md"}})
	require.NoError(t, err)
}

func TestExternalHandlerReportsNonZeroExit(t *testing.T) {
	h := NewExternalHandler(ExternalHandlerConfig{ID: "failer", Command: "exit 3", Events: []string{string(EventNoteModified)}})
	err := h.Handle(context.Background(), &Event{Type: EventNoteModified})
	require.Error(t, err)
}

func TestLoadPersistedHandlers(t *testing.T) {
	b := New()
	cfg := ExternalHandlerConfig{ID: "h1", Command: "true", Events: []string{string(EventNoteModified)}}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	n := LoadPersistedHandlers(b, map[string]string{
		HandlerConfigPrefix + "h1": string(data),
		"unrelated.key":            "ignored",
	})
	assert.Equal(t, 1, n)
	assert.Len(t, b.Handlers(), 1)
}

package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// ExternalHandlerConfig is the serializable configuration for an operator
// script hook, persisted as JSON under a config key like
// "eventbus.handler.<id>".
type ExternalHandlerConfig struct {
	ID       string   `json:"id"`
	Command  string   `json:"command"`
	Events   []string `json:"events"`
	Priority int      `json:"priority,omitempty"`
	Shell    string   `json:"shell,omitempty"`
}

// ExternalHandler runs a shell command for each matching event, passing the
// classified event as JSON on stdin. There is no result protocol back from
// the script: a sync classifier has nothing to gate, only operator scripts
// to notify (e.g. "run my note-indexer whenever note:modified fires").
type ExternalHandler struct {
	config ExternalHandlerConfig
	events []EventType
}

// NewExternalHandler builds a handler from a persisted config.
func NewExternalHandler(cfg ExternalHandlerConfig) *ExternalHandler {
	if cfg.Priority == 0 {
		cfg.Priority = 50
	}
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	events := make([]EventType, len(cfg.Events))
	for i, e := range cfg.Events {
		events[i] = EventType(e)
	}
	return &ExternalHandler{config: cfg, events: events}
}

func (h *ExternalHandler) ID() string           { return h.config.ID }
func (h *ExternalHandler) Handles() []EventType { return h.events }
func (h *ExternalHandler) Priority() int        { return h.config.Priority }
func (h *ExternalHandler) Config() ExternalHandlerConfig { return h.config }

func (h *ExternalHandler) Handle(ctx context.Context, event *Event) error {
	input, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("external handler %s: marshal event: %w", h.config.ID, err)
	}

	cmd := exec.CommandContext(ctx, h.config.Shell, "-c", h.config.Command)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("external handler %s: exit %d: %s", h.config.ID, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("external handler %s: exec: %w", h.config.ID, err)
	}
	return nil
}

// HandlerConfigPrefix is the config key prefix for persisted external
// handlers.
const HandlerConfigPrefix = "eventbus.handler."

// LoadPersistedHandlers registers every external handler found in configs
// (key -> JSON ExternalHandlerConfig) under the HandlerConfigPrefix. Returns
// the number of handlers loaded; malformed entries are skipped.
func LoadPersistedHandlers(b *Bus, configs map[string]string) int {
	count := 0
	for key, value := range configs {
		if !strings.HasPrefix(key, HandlerConfigPrefix) {
			continue
		}
		var cfg ExternalHandlerConfig
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			continue
		}
		if cfg.ID == "" || cfg.Command == "" || len(cfg.Events) == 0 {
			continue
		}
		b.Register(NewExternalHandler(cfg))
		count++
	}
	return count
}

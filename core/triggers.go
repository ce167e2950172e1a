package core

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jdelaire/openbot/core/chat"
)

// Trigger binds a non-text message, such as a specific sticker, to a
// command invocation.
type Trigger struct {
	// Platform limits the binding to one platform. Empty or "*" matches all.
	Platform string `yaml:"platform"`
	Kind     string `yaml:"kind"`
	ID       string `yaml:"id"`
	Command  string `yaml:"command"`
	Args     string `yaml:"args"`
}

func triggerKey(platform, kind, id string) string {
	platform = strings.ToLower(platform)
	if platform == "" {
		platform = "*"
	}
	return platform + "\x00" + strings.ToLower(kind) + "\x00" + id
}

// TriggerTable maps media fingerprints to commands. It is safe to swap
// while messages are being dispatched.
type TriggerTable struct {
	mu    sync.RWMutex
	byKey map[string]Trigger
}

// NewTriggerTable creates an empty table.
func NewTriggerTable() *TriggerTable {
	return &TriggerTable{byKey: make(map[string]Trigger)}
}

// Set replaces every binding.
func (t *TriggerTable) Set(triggers []Trigger) {
	m := make(map[string]Trigger, len(triggers))
	for _, tr := range triggers {
		m[triggerKey(tr.Platform, tr.Kind, tr.ID)] = tr
	}
	t.mu.Lock()
	t.byKey = m
	t.mu.Unlock()
}

// Len returns the number of bindings.
func (t *TriggerTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}

// Rewrite turns a bound non-text message into a command invocation. It
// applies at most one binding and never overrides a parsed text command.
func (t *TriggerTable) Rewrite(msg *chat.Message) bool {
	if t == nil || msg.Command != "" || msg.Media == nil || msg.Media.ID == "" {
		return false
	}

	t.mu.RLock()
	tr, ok := t.byKey[triggerKey(msg.Platform, msg.Media.Kind, msg.Media.ID)]
	if !ok {
		tr, ok = t.byKey[triggerKey("*", msg.Media.Kind, msg.Media.ID)]
	}
	t.mu.RUnlock()
	if !ok {
		return false
	}

	msg.Command = strings.ToLower(strings.TrimSpace(tr.Command))
	msg.ArgText = strings.TrimSpace(tr.Args)
	msg.Args = nil
	if msg.ArgText != "" {
		msg.Args = strings.Fields(msg.ArgText)
	}
	return true
}

type triggersFile struct {
	Triggers []Trigger `yaml:"triggers"`
}

// LoadTriggers reads the triggers section of a YAML file.
// Returns nil, nil if the file does not exist.
func LoadTriggers(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read triggers file: %w", err)
	}

	var f triggersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse triggers file: %w", err)
	}
	for i, tr := range f.Triggers {
		if tr.ID == "" || tr.Command == "" {
			return nil, fmt.Errorf("trigger at index %d needs id and command", i)
		}
	}
	return f.Triggers, nil
}

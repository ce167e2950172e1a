package core

import (
	"log/slog"
	"sync"

	"github.com/jdelaire/openbot/core/command"
)

// Reloader loads the commands file into the command registry and trigger
// table, and reloads it when the file changes.
type Reloader struct {
	registry *command.Registry
	triggers *TriggerTable
	logger   *slog.Logger

	mu         sync.Mutex
	shellNames []string
}

// NewReloader creates a reloader that tracks file-defined commands.
func NewReloader(registry *command.Registry, triggers *TriggerTable, logger *slog.Logger) *Reloader {
	return &Reloader{
		registry: registry,
		triggers: triggers,
		logger:   logger,
	}
}

// Reload unregisters the previously loaded shell commands, registers the
// ones currently in the file and swaps the trigger table. A file that fails
// to parse leaves the previous state in place. Shell commands never replace
// built-in commands.
func (r *Reloader) Reload(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmds, err := command.LoadShellCommands(path)
	if err != nil {
		r.logger.Error("reload commands failed", "path", path, "error", err)
		return
	}
	triggers, err := LoadTriggers(path)
	if err != nil {
		r.logger.Error("reload triggers failed", "path", path, "error", err)
		return
	}

	for _, name := range r.shellNames {
		r.registry.Unregister(name)
	}
	r.shellNames = nil

	var names []string
	for i := range cmds {
		def := cmds[i].Definition()
		if r.registry.Lookup(def.Name) != nil {
			r.logger.Warn("shell command shadows a built-in, skipped", "name", def.Name)
			continue
		}
		def.Aliases = r.freeAliases(def)
		if err := r.registry.Register(def); err != nil {
			r.logger.Warn("skip command", "name", cmds[i].Name, "error", err)
			continue
		}
		names = append(names, def.Name)
	}
	r.shellNames = names

	r.triggers.Set(triggers)
	r.logger.Info("commands file loaded", "path", path, "commands", len(names), "triggers", len(triggers))
}

// freeAliases drops the aliases of def that already resolve to another
// command, so a shell command never takes over a built-in's alias.
func (r *Reloader) freeAliases(def *command.Definition) []string {
	var free []string
	for _, a := range def.Aliases {
		if owner := r.registry.Lookup(a); owner != nil {
			r.logger.Warn("shell alias already in use, skipped", "name", def.Name, "alias", a, "command", owner.Name)
			continue
		}
		free = append(free, a)
	}
	return free
}

// Loaded returns the names of the shell commands currently registered.
func (r *Reloader) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.shellNames...)
}

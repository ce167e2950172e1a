package command

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultCooldownHorizon = time.Hour

// Options configure a Registry.
type Options struct {
	// Allow is consulted for per-command allow-lists. May be nil.
	Allow AllowLister
	// TrustedPlatforms skip allow-list checks entirely.
	TrustedPlatforms []string
	// CooldownHorizon is how long cooldown entries are kept. It must be
	// longer than any configured cooldown.
	CooldownHorizon time.Duration
}

type cooldownKey struct {
	user    string
	command string
}

// Registry holds command definitions keyed by primary name, an alias index,
// and the per-user cooldown map.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	aliases map[string]string

	cdMu      sync.Mutex
	cooldowns map[cooldownKey]time.Time
	horizon   time.Duration

	allow   AllowLister
	trusted map[string]bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty command registry.
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	horizon := opts.CooldownHorizon
	if horizon <= 0 {
		horizon = defaultCooldownHorizon
	}
	trusted := make(map[string]bool, len(opts.TrustedPlatforms))
	for _, p := range opts.TrustedPlatforms {
		trusted[strings.ToLower(p)] = true
	}
	return &Registry{
		defs:      make(map[string]*Definition),
		aliases:   make(map[string]string),
		cooldowns: make(map[cooldownKey]time.Time),
		horizon:   horizon,
		allow:     opts.Allow,
		trusted:   trusted,
		logger:    logger,
		now:       time.Now,
	}
}

// Register adds a command under its name and aliases. Registering a name
// that already exists replaces the old definition and all of its aliases.
func (r *Registry) Register(def *Definition) error {
	name := normalizeName(def.Name)
	if name == "" {
		return ErrNoName
	}
	if def.Handler == nil {
		return ErrNoHandler
	}
	def.Name = name
	aliases := make([]string, 0, len(def.Aliases))
	for _, a := range def.Aliases {
		aliases = append(aliases, normalizeName(a))
	}
	def.Aliases = aliases

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		r.logger.Warn("command re-registered, replacing", "command", name)
		r.unregisterLocked(name)
	}
	if primary, ok := r.aliases[name]; ok {
		r.logger.Warn("command name shadows alias", "command", name, "alias_of", primary)
		delete(r.aliases, name)
	}

	r.defs[name] = def
	for _, a := range def.Aliases {
		if a == "" || a == name {
			continue
		}
		if _, taken := r.defs[a]; taken {
			r.logger.Warn("alias collides with command, skipped", "alias", a, "command", name)
			continue
		}
		if prev, ok := r.aliases[a]; ok && prev != name {
			r.logger.Warn("alias reassigned", "alias", a, "from", prev, "to", name)
		}
		r.aliases[a] = name
	}
	return nil
}

// Unregister removes a command, given its primary name or any alias,
// together with every alias pointing at it.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	name = normalizeName(name)
	if primary, ok := r.aliases[name]; ok {
		name = primary
	}
	return r.unregisterLocked(name)
}

func (r *Registry) unregisterLocked(primary string) bool {
	if _, ok := r.defs[primary]; !ok {
		return false
	}
	delete(r.defs, primary)
	for a, p := range r.aliases {
		if p == primary {
			delete(r.aliases, a)
		}
	}
	return true
}

// Lookup returns the definition for a primary name or alias, or nil.
func (r *Registry) Lookup(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name = normalizeName(name)
	if def, ok := r.defs[name]; ok {
		return def
	}
	if primary, ok := r.aliases[name]; ok {
		return r.defs[primary]
	}
	return nil
}

// List returns all definitions sorted by category, then name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

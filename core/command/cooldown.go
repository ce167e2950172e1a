package command

import (
	"time"

	"github.com/jdelaire/openbot/core/chat"
)

const maxCooldownEntries = 10000

// takeCooldown reports the remaining wait for user on def. When the wait
// is zero the attempt is recorded as the new last invocation. Check and
// update happen under one lock so interleaved dispatches cannot both pass.
func (r *Registry) takeCooldown(def *Definition, user string, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}

	r.cdMu.Lock()
	defer r.cdMu.Unlock()

	now := r.now()
	k := cooldownKey{user: chat.NormalizeID(user), command: def.Name}
	if last, ok := r.cooldowns[k]; ok {
		if wait := last.Add(cooldown).Sub(now); wait > 0 {
			return wait
		}
	}
	if len(r.cooldowns) >= maxCooldownEntries {
		r.purgeLocked(now)
	}
	r.cooldowns[k] = now
	return 0
}

// PurgeCooldowns drops cooldown entries older than the horizon and returns
// how many were dropped.
func (r *Registry) PurgeCooldowns() int {
	r.cdMu.Lock()
	defer r.cdMu.Unlock()
	return r.purgeLocked(r.now())
}

func (r *Registry) purgeLocked(now time.Time) int {
	cutoff := now.Add(-r.horizon)
	n := 0
	for k, t := range r.cooldowns {
		if t.Before(cutoff) {
			delete(r.cooldowns, k)
			n++
		}
	}
	return n
}

// lastInvocation returns the recorded cooldown timestamp, if any.
func (r *Registry) lastInvocation(user, command string) (time.Time, bool) {
	r.cdMu.Lock()
	defer r.cdMu.Unlock()
	t, ok := r.cooldowns[cooldownKey{user: chat.NormalizeID(user), command: normalizeName(command)}]
	return t, ok
}

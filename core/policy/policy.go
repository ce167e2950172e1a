package policy

import (
	"context"
	"strings"
	"sync"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/command"
)

// Policy is an in-memory access-control list: banned users, blacklisted
// chats and per-command allow-lists. Identities are stored normalized.
type Policy struct {
	mu          sync.RWMutex
	banned      map[string]bool
	blacklisted map[string]bool
	allowUsers  map[string]map[string]bool
	allowChats  map[string]map[string]bool
}

// New creates an empty Policy.
func New() *Policy {
	return &Policy{
		banned:      make(map[string]bool),
		blacklisted: make(map[string]bool),
		allowUsers:  make(map[string]map[string]bool),
		allowChats:  make(map[string]map[string]bool),
	}
}

func scoped(platform, id string) string {
	return strings.ToLower(platform) + "\x00" + chat.NormalizeID(id)
}

// IsBanned reports whether userID is banned on platform.
func (p *Policy) IsBanned(_ context.Context, platform, userID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.banned[scoped(platform, userID)] || p.banned[scoped("*", userID)], nil
}

// IsChatBlacklisted reports whether chatID is blacklisted on platform.
func (p *Policy) IsChatBlacklisted(_ context.Context, platform, chatID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.blacklisted[scoped(platform, chatID)] || p.blacklisted[scoped("*", chatID)], nil
}

// CommandAllowList returns the identities allowed to run command.
func (p *Policy) CommandAllowList(_ context.Context, name string) (command.AllowList, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	name = strings.ToLower(name)
	var list command.AllowList
	for id := range p.allowUsers[name] {
		list.Users = append(list.Users, id)
	}
	for id := range p.allowChats[name] {
		list.Chats = append(list.Chats, id)
	}
	return list, nil
}

// Ban bans userID on platform. Platform "*" bans everywhere.
func (p *Policy) Ban(_ context.Context, platform, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.banned[scoped(platform, userID)] = true
	return nil
}

// Unban lifts a ban.
func (p *Policy) Unban(_ context.Context, platform, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.banned, scoped(platform, userID))
	return nil
}

// Blacklist blocks or unblocks a chat.
func (p *Policy) Blacklist(_ context.Context, platform, chatID string, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		p.blacklisted[scoped(platform, chatID)] = true
	} else {
		delete(p.blacklisted, scoped(platform, chatID))
	}
	return nil
}

// AllowUser adds userID to the allow-list of command.
func (p *Policy) AllowUser(_ context.Context, command, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	addTo(p.allowUsers, strings.ToLower(command), chat.NormalizeID(userID))
	return nil
}

// AllowChat adds chatID to the allow-list of command.
func (p *Policy) AllowChat(_ context.Context, command, chatID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	addTo(p.allowChats, strings.ToLower(command), chat.NormalizeID(chatID))
	return nil
}

func addTo(m map[string]map[string]bool, command, id string) {
	if m[command] == nil {
		m[command] = make(map[string]bool)
	}
	m[command][id] = true
}

package policy_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/openbot/core/policy"
)

func TestBanIsPlatformScoped(t *testing.T) {
	ctx := context.Background()
	p := policy.New()
	p.Ban(ctx, "telegram", "+1 555 0100")

	if banned, _ := p.IsBanned(ctx, "telegram", "15550100"); !banned {
		t.Error("normalized id not banned")
	}
	if banned, _ := p.IsBanned(ctx, "discord", "15550100"); banned {
		t.Error("ban leaked to another platform")
	}

	p.Unban(ctx, "telegram", "15550100")
	if banned, _ := p.IsBanned(ctx, "telegram", "15550100"); banned {
		t.Error("unban had no effect")
	}
}

func TestWildcardBan(t *testing.T) {
	ctx := context.Background()
	p := policy.New()
	p.Ban(ctx, "*", "spammer")
	if banned, _ := p.IsBanned(ctx, "discord", "Spammer"); !banned {
		t.Error("wildcard ban not applied")
	}
}

func TestBlacklist(t *testing.T) {
	ctx := context.Background()
	p := policy.New()
	p.Blacklist(ctx, "telegram", "-100123", true)
	if bl, _ := p.IsChatBlacklisted(ctx, "telegram", "-100123"); !bl {
		t.Error("chat not blacklisted")
	}
	if bl, _ := p.IsChatBlacklisted(ctx, "telegram", "100123"); bl {
		t.Error("blacklist matched a different chat")
	}
	p.Blacklist(ctx, "telegram", "-100123", false)
	if bl, _ := p.IsChatBlacklisted(ctx, "telegram", "-100123"); bl {
		t.Error("chat still blacklisted")
	}
}

func TestCommandAllowList(t *testing.T) {
	ctx := context.Background()
	p := policy.New()
	p.AllowUser(ctx, "VIP", "@Alice")
	p.AllowChat(ctx, "vip", "room")

	list, err := p.CommandAllowList(ctx, "vip")
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Users) != 1 || list.Users[0] != "alice" {
		t.Errorf("Users = %v, want [alice]", list.Users)
	}
	if len(list.Chats) != 1 || list.Chats[0] != "room" {
		t.Errorf("Chats = %v, want [room]", list.Chats)
	}
	if list, _ := p.CommandAllowList(ctx, "other"); !list.Empty() {
		t.Errorf("unrelated command has allow-list %+v", list)
	}
}

func TestDedupRejectsDuplicate(t *testing.T) {
	d := policy.NewDedup()
	now := time.Now()
	if err := d.Admit("telegram", "42", now); err != nil {
		t.Fatalf("first: %v", err)
	}
	err := d.Admit("telegram", "42", now)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("second Admit = %v, want duplicate error", err)
	}
	if err := d.Admit("discord", "42", now); err != nil {
		t.Errorf("same id on another platform = %v, want nil", err)
	}
}

func TestDedupRejectsStale(t *testing.T) {
	d := policy.NewDedup()
	err := d.Admit("telegram", "1", time.Now().Add(-6*time.Minute))
	if err == nil || !strings.Contains(err.Error(), "stale message") {
		t.Errorf("Admit(stale) = %v, want stale error", err)
	}
}

func TestDedupSkipsMissingFields(t *testing.T) {
	d := policy.NewDedup()
	for i := 0; i < 2; i++ {
		if err := d.Admit("webchat", "", time.Time{}); err != nil {
			t.Errorf("Admit(no id) = %v, want nil", err)
		}
	}
}

func TestDedupPrunesAtCapacity(t *testing.T) {
	d := policy.NewDedup()
	now := time.Now()
	for i := 0; i < 10001; i++ {
		if err := d.Admit("telegram", time.Duration(i).String(), now); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}
	// The oldest ids were pruned and are accepted again.
	if err := d.Admit("telegram", time.Duration(0).String(), now); err != nil {
		t.Errorf("pruned id = %v, want nil", err)
	}
}

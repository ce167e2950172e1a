package accessdb

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "access.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBans(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Ban(ctx, "Telegram", "@Alice"); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := db.Ban(ctx, "telegram", "alice"); err != nil {
		t.Fatalf("repeat ban: %v", err)
	}

	if banned, err := db.IsBanned(ctx, "telegram", "alice"); err != nil || !banned {
		t.Fatalf("IsBanned = %v, %v", banned, err)
	}
	if banned, _ := db.IsBanned(ctx, "discord", "alice"); banned {
		t.Error("ban leaked to another platform")
	}

	db.Unban(ctx, "telegram", "ALICE")
	if banned, _ := db.IsBanned(ctx, "telegram", "alice"); banned {
		t.Error("still banned after unban")
	}
}

func TestWildcardBan(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.Ban(ctx, Wildcard, "+1 (555) 123-4567")
	for _, p := range []string{"telegram", "discord"} {
		if banned, _ := db.IsBanned(ctx, p, "15551234567"); !banned {
			t.Errorf("wildcard ban missing on %s", p)
		}
	}
}

func TestBlacklist(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	db.Blacklist(ctx, "telegram", "-100123", true)
	if on, _ := db.IsChatBlacklisted(ctx, "telegram", "-100123"); !on {
		t.Fatal("chat not blacklisted")
	}
	if on, _ := db.IsChatBlacklisted(ctx, "telegram", "100123"); on {
		t.Error("negative chat id collided with positive id")
	}

	db.Blacklist(ctx, "telegram", "-100123", false)
	if on, _ := db.IsChatBlacklisted(ctx, "telegram", "-100123"); on {
		t.Error("chat still blacklisted")
	}
}

func TestCommandAllowList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	list, err := db.CommandAllowList(ctx, "deploy")
	if err != nil || !list.Empty() {
		t.Fatalf("empty list = %+v, %v", list, err)
	}

	db.AllowUser(ctx, "Deploy", "@Bob")
	db.AllowUser(ctx, "deploy", "bob")
	db.AllowChat(ctx, "deploy", "-100")

	list, err = db.CommandAllowList(ctx, "deploy")
	if err != nil {
		t.Fatalf("allow list: %v", err)
	}
	if len(list.Users) != 1 || list.Users[0] != "bob" {
		t.Errorf("users = %v", list.Users)
	}
	if len(list.Chats) != 1 || list.Chats[0] != "-100" {
		t.Errorf("chats = %v", list.Chats)
	}

	db.Revoke(ctx, "deploy")
	if list, _ := db.CommandAllowList(ctx, "deploy"); !list.Empty() {
		t.Errorf("list after revoke = %+v", list)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.Ban(context.Background(), "telegram", "alice")
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if banned, _ := db.IsBanned(context.Background(), "telegram", "alice"); !banned {
		t.Error("ban lost across reopen")
	}
}

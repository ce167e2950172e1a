package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/jdelaire/openbot/core/policy"
	"github.com/jdelaire/openbot/internal/config"
)

func testConfig(t *testing.T, set map[string]any) config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("socket", filepath.Join(t.TempDir(), "openbot.sock"))
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppRequiresAnAdapter(t *testing.T) {
	cfg := testConfig(t, nil)
	_, err := newApp(context.Background(), cfg, config.Secrets{}, discardLogger())
	if !errors.Is(err, errNoAdapters) {
		t.Fatalf("newApp error = %v, want errNoAdapters", err)
	}
}

func TestNewAppWiresWebchat(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"webchat.enabled": true,
		"webchat.listen":  "127.0.0.1:0",
		"access.db":       filepath.Join(t.TempDir(), "access.db"),
		"access.banned":   []string{"webchat:mallory"},
	})
	a, err := newApp(context.Background(), cfg, config.Secrets{}, discardLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if got := a.adapters.Platforms(); len(got) != 1 || got[0] != "webchat" {
		t.Errorf("platforms = %v, want [webchat]", got)
	}
	if len(a.receivers) != 1 {
		t.Errorf("receivers = %d, want 1", len(a.receivers))
	}
	if a.watcher != nil {
		t.Error("watcher started without a commands file")
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"webchat.enabled":  true,
		"janitor.schedule": "every five minutes",
	})
	if _, err := newApp(context.Background(), cfg, config.Secrets{}, discardLogger()); err == nil {
		t.Fatal("newApp accepted an invalid schedule")
	}
}

func TestSeedAccess(t *testing.T) {
	p := policy.New()
	ctx := context.Background()
	err := seedAccess(ctx, p, config.AccessConfig{
		Banned:           []config.Scoped{{Platform: "*", ID: "@Mallory"}},
		BlacklistedChats: []config.Scoped{{Platform: "telegram", ID: "-100"}},
	})
	if err != nil {
		t.Fatalf("seedAccess: %v", err)
	}

	if ok, _ := p.IsBanned(ctx, "discord", "mallory"); !ok {
		t.Error("wildcard ban not applied")
	}
	if ok, _ := p.IsChatBlacklisted(ctx, "telegram", "-100"); !ok {
		t.Error("chat blacklist not applied")
	}
	if ok, _ := p.IsChatBlacklisted(ctx, "discord", "-100"); ok {
		t.Error("platform-scoped blacklist leaked to another platform")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, config.LoggingConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "chat_id", "42")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record logged at warn level")
	}
	if !strings.Contains(out, `"chat_id":"42"`) {
		t.Errorf("json output = %q", out)
	}

	if _, err := newLogger(&buf, config.LoggingConfig{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := parseSlogLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

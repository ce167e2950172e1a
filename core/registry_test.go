package core

import (
	"testing"

	"github.com/jdelaire/openbot/core/chat/chattest"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tg := chattest.New("telegram")
	if err := r.Register(tg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(chattest.New("discord")); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Get("Telegram")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != tg {
		t.Error("expected the telegram adapter")
	}
	if p := r.Platforms(); len(p) != 2 || p[0] != "discord" || p[1] != "telegram" {
		t.Errorf("platforms = %v", p)
	}
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("telegram"); err == nil {
		t.Error("expected error for missing adapter")
	}
	if err := r.Register(chattest.New("")); err == nil {
		t.Error("expected error for empty platform")
	}
	r.Register(chattest.New("telegram"))
	if err := r.Register(chattest.New("telegram")); err == nil {
		t.Error("expected error for duplicate platform")
	}
	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

package command

import (
	"context"
	"strings"
	"testing"
)

func TestHelpListsVisibleCommands(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	h := (&counter{}).handler
	r.Register(Help(r))
	r.Register(&Definition{Name: "rate", Description: "Rate the bot", Category: "fun", Handler: h})
	r.Register(&Definition{Name: "secret", Description: "hidden", Hidden: true, Handler: h})
	r.Register(&Definition{Name: "ban", Description: "Ban a user", OwnerOnly: true, Category: "owner", Handler: h})

	c, spy := newCtx("help")
	r.Execute(context.Background(), c)
	out := spy.Texts()[0]

	for _, want := range []string{"Fun:", "/rate — Rate the bot", "/help"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
	for _, hidden := range []string{"/secret", "/ban"} {
		if strings.Contains(out, hidden) {
			t.Errorf("help output shows %s to a non-owner", hidden)
		}
	}
}

func TestHelpForOneCommand(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(Help(r))
	r.Register(Status())

	c, spy := newCtx("help")
	c.Msg.Args = []string{"ping"}
	r.Execute(context.Background(), c)
	out := spy.Texts()[0]
	if !strings.Contains(out, "/status — Show bot status") || !strings.Contains(out, "Cooldown: 5s") {
		t.Errorf("help status output = %q", out)
	}
}

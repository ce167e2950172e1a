package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/chat/chattest"
)

// --- test helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticAllow map[string]AllowList

func (s staticAllow) CommandAllowList(_ context.Context, command string) (AllowList, error) {
	return s[command], nil
}

type failingAllow struct{}

func (failingAllow) CommandAllowList(context.Context, string) (AllowList, error) {
	return AllowList{}, errors.New("db down")
}

type counter struct{ n int }

func (c *counter) handler(context.Context, *chat.Context) error {
	c.n++
	return nil
}

func newTestRegistry(opts Options) (*Registry, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(opts, testLogger())
	r.now = func() time.Time { return now }
	return r, &now
}

func newCtx(command string) (*chat.Context, *chattest.Adapter) {
	spy := chattest.New("test")
	msg := &chat.Message{
		Platform: "test",
		ChatID:   "chat-1",
		SenderID: "u1",
		Command:  command,
		AnchorID: "m1",
	}
	return chat.NewContext(msg, spy), spy
}

// --- registration ---

func TestRegisterValidates(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	if err := r.Register(&Definition{Handler: (&counter{}).handler}); !errors.Is(err, ErrNoName) {
		t.Errorf("Register(no name) = %v, want ErrNoName", err)
	}
	if err := r.Register(&Definition{Name: "x"}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("Register(no handler) = %v, want ErrNoHandler", err)
	}
}

func TestLookupByAlias(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	def := &Definition{Name: "Sticker", Aliases: []string{"S", "stk"}, Handler: (&counter{}).handler}
	r.Register(def)

	for _, name := range []string{"sticker", "s", "STK"} {
		if got := r.Lookup(name); got != def {
			t.Errorf("Lookup(%q) = %v, want the registered definition", name, got)
		}
	}
}

func TestRegisterLeavesCallerAliasesAlone(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	aliases := []string{"S", "Stk"}
	r.Register(&Definition{Name: "sticker", Aliases: aliases, Handler: (&counter{}).handler})

	if aliases[0] != "S" || aliases[1] != "Stk" {
		t.Errorf("caller aliases rewritten to %v", aliases)
	}
	if r.Lookup("stk") == nil {
		t.Error("normalized alias not registered")
	}
}

func TestUnregisterCascadesAliases(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "sticker", Aliases: []string{"s", "stk"}, Handler: (&counter{}).handler})

	if !r.Unregister("sticker") {
		t.Fatal("Unregister = false, want true")
	}
	for _, name := range []string{"sticker", "s", "stk"} {
		if r.Lookup(name) != nil {
			t.Errorf("Lookup(%q) found a removed command", name)
		}
	}
}

func TestUnregisterByAlias(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "sticker", Aliases: []string{"s"}, Handler: (&counter{}).handler})

	r.Unregister("s")
	if r.Lookup("sticker") != nil {
		t.Error("primary survived unregister by alias")
	}
}

func TestReRegisterReplaces(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "x", Aliases: []string{"old"}, Handler: (&counter{}).handler})
	second := &Definition{Name: "x", Aliases: []string{"new"}, Handler: (&counter{}).handler}
	r.Register(second)

	if r.Lookup("x") != second {
		t.Error("last registration did not win")
	}
	if r.Lookup("old") != nil {
		t.Error("alias of replaced definition still resolves")
	}
	if r.Lookup("new") != second {
		t.Error("new alias not registered")
	}
}

func TestListSorted(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	h := (&counter{}).handler
	r.Register(&Definition{Name: "zeta", Category: "a", Handler: h})
	r.Register(&Definition{Name: "beta", Category: "b", Handler: h})
	r.Register(&Definition{Name: "alpha", Category: "b", Handler: h})

	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "zeta,alpha,beta" {
		t.Errorf("List = %s, want zeta,alpha,beta", got)
	}
}

// --- execution ---

func TestExecuteUnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	c, spy := newCtx("nope")
	if got := r.Execute(context.Background(), c); got != NotFound {
		t.Errorf("Execute = %v, want not_found", got)
	}
	if spy.Count() != 0 {
		t.Errorf("sent %d messages, want 0", spy.Count())
	}
}

func TestExecuteSuccessIndicators(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	cnt := &counter{}
	r.Register(&Definition{Name: "ping", Handler: cnt.handler})
	c, spy := newCtx("ping")

	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Fatalf("Execute = %v, want succeeded", got)
	}
	if cnt.n != 1 {
		t.Errorf("handler ran %d times, want 1", cnt.n)
	}
	if got := strings.Join(spy.Reactions(), ""); got != emojiProcessing+emojiSuccess {
		t.Errorf("reactions = %q, want processing then success", got)
	}
}

func TestExecuteIndicatorFallsBackToText(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "ping", Handler: (&counter{}).handler})
	c, spy := newCtx("ping")
	spy.FailReactions = true

	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Fatalf("Execute = %v, want succeeded despite reaction failure", got)
	}
	if texts := spy.Texts(); len(texts) != 1 || !strings.Contains(texts[0], "Processing /ping") {
		t.Errorf("texts = %v, want one processing fallback", texts)
	}
}

func TestExecuteHandlerErrorIsContained(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "boom", Handler: func(context.Context, *chat.Context) error {
		return errors.New("kaput")
	}})
	c, spy := newCtx("boom")

	if got := r.Execute(context.Background(), c); got != Failed {
		t.Fatalf("Execute = %v, want failed", got)
	}
	if !strings.Contains(spy.LastText(), "Something went wrong") {
		t.Errorf("last text = %q, want generic error", spy.LastText())
	}
	if strings.Contains(spy.LastText(), "kaput") {
		t.Error("internal error leaked to user")
	}
	reactions := spy.Reactions()
	if reactions[len(reactions)-1] != emojiFailure {
		t.Errorf("reactions = %v, want failure last", reactions)
	}
}

func TestExecuteHandlerPanicIsContained(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "panic", Handler: func(context.Context, *chat.Context) error {
		panic("nil map")
	}})
	c, _ := newCtx("panic")

	if got := r.Execute(context.Background(), c); got != Failed {
		t.Errorf("Execute = %v, want failed", got)
	}
}

func TestOwnerOnlyIsSilent(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	cnt := &counter{}
	r.Register(&Definition{Name: "eval", OwnerOnly: true, Handler: cnt.handler})
	c, spy := newCtx("eval")

	if got := r.Execute(context.Background(), c); got != Denied {
		t.Errorf("Execute = %v, want denied", got)
	}
	if spy.Count() != 0 || cnt.n != 0 {
		t.Errorf("sent=%d ran=%d, want silent rejection", spy.Count(), cnt.n)
	}

	c.Msg.IsOwner = true
	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Errorf("Execute(owner) = %v, want succeeded", got)
	}
}

func TestAdminAndGroupRejectionsAreVisible(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	h := (&counter{}).handler
	r.Register(&Definition{Name: "kick", AdminOnly: true, Handler: h})
	r.Register(&Definition{Name: "poll", GroupOnly: true, Handler: h})

	c, spy := newCtx("kick")
	c.Msg.IsGroup = true
	if got := r.Execute(context.Background(), c); got != Rejected {
		t.Errorf("kick = %v, want rejected", got)
	}
	if !strings.Contains(spy.LastText(), "admins") {
		t.Errorf("text = %q, want admin notice", spy.LastText())
	}

	c, spy = newCtx("poll")
	if got := r.Execute(context.Background(), c); got != Rejected {
		t.Errorf("poll = %v, want rejected", got)
	}
	if !strings.Contains(spy.LastText(), "groups") {
		t.Errorf("text = %q, want group notice", spy.LastText())
	}
}

func TestAdminRejectionLeavesCooldownUntouched(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "kick", AdminOnly: true, Cooldown: time.Minute, Handler: (&counter{}).handler})
	c, _ := newCtx("kick")
	c.Msg.IsGroup = true

	r.Execute(context.Background(), c)
	if _, ok := r.lastInvocation("u1", "kick"); ok {
		t.Error("cooldown entry created by an unauthorized attempt")
	}
}

func TestCooldownScenario(t *testing.T) {
	r, now := newTestRegistry(Options{})
	cnt := &counter{}
	r.Register(&Definition{Name: "meme", Cooldown: 5 * time.Second, Handler: cnt.handler})
	ctx := context.Background()

	c, spy := newCtx("meme")
	if got := r.Execute(ctx, c); got != Succeeded {
		t.Fatalf("t=0: %v, want succeeded", got)
	}

	*now = now.Add(3 * time.Second)
	if got := r.Execute(ctx, c); got != CoolingDown {
		t.Fatalf("t=3: %v, want cooldown", got)
	}
	if !strings.Contains(spy.LastText(), "wait 2s") {
		t.Errorf("text = %q, want wait 2s", spy.LastText())
	}

	// The rejected attempt must not have reset the clock.
	*now = now.Add(3 * time.Second)
	if got := r.Execute(ctx, c); got != Succeeded {
		t.Errorf("t=6: %v, want succeeded", got)
	}
	if cnt.n != 2 {
		t.Errorf("handler ran %d times, want 2", cnt.n)
	}
}

func TestOwnersSkipCooldown(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "meme", Cooldown: time.Hour, Handler: (&counter{}).handler})
	c, _ := newCtx("meme")
	c.Msg.IsOwner = true

	for i := 0; i < 3; i++ {
		if got := r.Execute(context.Background(), c); got != Succeeded {
			t.Fatalf("owner run %d = %v, want succeeded", i, got)
		}
	}
}

func TestCooldownIsPerUser(t *testing.T) {
	r, _ := newTestRegistry(Options{})
	r.Register(&Definition{Name: "meme", Cooldown: time.Hour, Handler: (&counter{}).handler})

	c, _ := newCtx("meme")
	r.Execute(context.Background(), c)

	c2, _ := newCtx("meme")
	c2.Msg.SenderID = "u2"
	if got := r.Execute(context.Background(), c2); got != Succeeded {
		t.Errorf("other user = %v, want succeeded", got)
	}
}

func TestAllowListsRestrict(t *testing.T) {
	allow := staticAllow{"vip": {Users: []string{"+1 555 0100"}}}
	r, _ := newTestRegistry(Options{Allow: allow})
	r.Register(&Definition{Name: "vip", Handler: (&counter{}).handler})
	r.Register(&Definition{Name: "room", AllowChats: []string{"chat-9"}, Handler: (&counter{}).handler})

	c, spy := newCtx("vip")
	if got := r.Execute(context.Background(), c); got != Denied {
		t.Errorf("vip(stranger) = %v, want denied", got)
	}
	if spy.Count() != 0 {
		t.Error("denied probe received a reply")
	}

	c.Msg.SenderID = "15550100@s.whatsapp.net"
	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Errorf("vip(listed) = %v, want succeeded", got)
	}

	c, _ = newCtx("room")
	if got := r.Execute(context.Background(), c); got != Denied {
		t.Errorf("room(other chat) = %v, want denied", got)
	}
	c.Msg.ChatID = "chat-9"
	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Errorf("room(listed chat) = %v, want succeeded", got)
	}
}

func TestTrustedPlatformBypassesAllowLists(t *testing.T) {
	r, _ := newTestRegistry(Options{TrustedPlatforms: []string{"Test"}})
	r.Register(&Definition{Name: "room", AllowChats: []string{"chat-9"}, Handler: (&counter{}).handler})
	c, _ := newCtx("room")
	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Errorf("Execute = %v, want succeeded on trusted platform", got)
	}
}

func TestAllowLookupFailureUsesOwnLists(t *testing.T) {
	r, _ := newTestRegistry(Options{Allow: failingAllow{}})
	r.Register(&Definition{Name: "open", Handler: (&counter{}).handler})
	c, _ := newCtx("open")
	if got := r.Execute(context.Background(), c); got != Succeeded {
		t.Errorf("Execute = %v, want succeeded", got)
	}
}

func TestPurgeCooldowns(t *testing.T) {
	r, now := newTestRegistry(Options{CooldownHorizon: time.Hour})
	r.Register(&Definition{Name: "meme", Cooldown: time.Second, Handler: (&counter{}).handler})
	c, _ := newCtx("meme")
	r.Execute(context.Background(), c)

	if n := r.PurgeCooldowns(); n != 0 {
		t.Errorf("PurgeCooldowns(fresh) = %d, want 0", n)
	}

	*now = now.Add(2 * time.Hour)
	if n := r.PurgeCooldowns(); n != 1 {
		t.Errorf("PurgeCooldowns = %d, want 1 removed", n)
	}
	if _, ok := r.lastInvocation("u1", "meme"); ok {
		t.Error("expired cooldown entry survived purge")
	}
}

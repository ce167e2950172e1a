package commands

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jdelaire/openbot/core/chat"
	"github.com/jdelaire/openbot/core/chat/chattest"
	"github.com/jdelaire/openbot/core/command"
	"github.com/jdelaire/openbot/core/policy"
	"github.com/jdelaire/openbot/core/session"
)

// --- test helpers ---

type env struct {
	spy      *chattest.Adapter
	sessions *session.Store
	reg      *command.Registry
	access   *policy.Policy
	seq      int
}

func newEnv(t *testing.T, extra ...*command.Definition) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		spy:      chattest.New("telegram"),
		sessions: session.New(logger),
		access:   policy.New(),
	}
	e.reg = command.NewRegistry(command.Options{Allow: e.access}, logger)
	if err := Register(e.reg, Deps{Sessions: e.sessions, Access: e.access}); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, def := range extra {
		e.reg.Register(def)
	}
	return e
}

func (e *env) msg(sender, text string) *chat.Message {
	e.seq++
	return &chat.Message{
		Platform: "telegram",
		ChatID:   "-100",
		SenderID: sender,
		Text:     text,
		IsGroup:  true,
		AnchorID: "in-" + sender + "-" + text,
	}
}

func (e *env) run(t *testing.T, msg *chat.Message, cmd string, args ...string) command.Outcome {
	t.Helper()
	msg.Command = cmd
	msg.Args = args
	msg.ArgText = strings.Join(args, " ")
	return e.reg.Execute(context.Background(), chat.NewContext(msg, e.spy))
}

// answer feeds msg to the session store and reports whether it was consumed.
func (e *env) answer(t *testing.T, msg *chat.Message) bool {
	t.Helper()
	handled, err := e.sessions.Resolve(context.Background(), chat.NewContext(msg, e.spy))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return handled
}

func (e *env) lastPromptID() string {
	all := e.spy.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Kind == "text" {
			return all[i].MessageID
		}
	}
	return ""
}

func owner(m *chat.Message) *chat.Message {
	m.IsOwner = true
	return m
}

func quoting(m *chat.Message, id string) *chat.Message {
	m.QuotedID = id
	return m
}

// --- tests ---

func TestRegisterWithoutAccess(t *testing.T) {
	reg := command.NewRegistry(command.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := Register(reg, Deps{Sessions: session.New(slog.Default())}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Lookup("rate") == nil || reg.Lookup("guess") == nil {
		t.Error("expected rate and guess")
	}
	if reg.Lookup("ban") != nil {
		t.Error("owner commands registered without an access store")
	}
}

func TestRateReplyFlow(t *testing.T) {
	e := newEnv(t)

	if out := e.run(t, e.msg("alice", "/rate pizza"), "rate", "pizza"); out != command.Succeeded {
		t.Fatalf("outcome = %v", out)
	}
	prompt := e.lastPromptID()
	if !strings.Contains(e.spy.LastText(), "rate pizza") {
		t.Fatalf("prompt = %q", e.spy.LastText())
	}

	// Unrelated chatter from someone else falls through.
	if e.answer(t, e.msg("bob", "lol")) {
		t.Error("unrelated message consumed")
	}
	if e.sessions.Len() != 1 {
		t.Fatal("session should stay open")
	}

	// Another user's reply is not theirs to answer.
	if e.answer(t, quoting(e.msg("bob", "1"), prompt)) {
		t.Error("non-owner answered the prompt")
	}

	if !e.answer(t, quoting(e.msg("alice", "4"), prompt)) {
		t.Fatal("owner reply not consumed")
	}
	if got := e.spy.LastText(); got != "Thanks! You rated pizza 4/5. Average: 4.0 from 1 rating." {
		t.Errorf("reply = %q", got)
	}
	if e.sessions.Len() != 0 {
		t.Error("session should be resolved")
	}
}

func TestRateIgnoresNonScores(t *testing.T) {
	e := newEnv(t)
	e.run(t, e.msg("alice", "/rate"), "rate")
	prompt := e.lastPromptID()
	sent := e.spy.Count()

	if !e.answer(t, quoting(e.msg("alice", "seven"), prompt)) {
		t.Fatal("stray reply should be consumed")
	}
	if e.spy.Count() != sent || e.sessions.Len() != 1 {
		t.Error("stray reply changed state")
	}

	// Fallback also reaches the prompt.
	e.answer(t, e.msg("alice", "2"))
	if !strings.Contains(e.spy.LastText(), "rated the bot 2/5") {
		t.Errorf("reply = %q", e.spy.LastText())
	}
}

func TestRatingsAverage(t *testing.T) {
	r := NewRatings()
	r.Record("Pizza", 5)
	avg, n := r.Record("pizza", 2)
	if avg != 3.5 || n != 2 {
		t.Errorf("average = %v from %d", avg, n)
	}
	if avg, n := r.Average("sushi"); avg != 0 || n != 0 {
		t.Errorf("empty average = %v from %d", avg, n)
	}
}

func TestGuessKeepsGuessing(t *testing.T) {
	e := newEnv(t)
	e.reg.Register(Guess(e.sessions, DefaultTTL, func(int) int { return 42 }))

	e.run(t, e.msg("alice", "/guess"), "guess")
	prompt := e.lastPromptID()

	e.answer(t, e.msg("bob", "10"))
	if e.spy.LastText() != "📈 Higher!" {
		t.Fatalf("hint = %q", e.spy.LastText())
	}
	e.answer(t, e.msg("carol", "80"))
	if e.spy.LastText() != "📉 Lower!" {
		t.Fatalf("hint = %q", e.spy.LastText())
	}

	// Replying to the game's anchor claims the session; the game moves to
	// the new hint.
	e.answer(t, quoting(e.msg("bob", "50"), prompt))
	if e.sessions.Len() != 1 {
		t.Fatalf("sessions = %d, want 1", e.sessions.Len())
	}
	if _, ok := e.sessions.Lookup("-100", e.lastPromptID()); !ok {
		t.Fatal("game not reopened at the latest hint")
	}

	if e.answer(t, e.msg("alice", "not a number")) {
		t.Error("text consumed by the game")
	}
	e.answer(t, e.msg("alice", "42"))
	if got := e.spy.LastText(); got != "🎉 42 is right! Found in 4 tries." {
		t.Errorf("final = %q", got)
	}
	if e.sessions.Len() != 0 {
		t.Error("game should be over")
	}
}

func TestBanConfirmation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if out := e.run(t, e.msg("mallory", "/ban bob"), "ban", "bob"); out != command.Denied {
		t.Fatalf("non-owner outcome = %v", out)
	}

	e.run(t, owner(e.msg("boss", "/ban @Mallory")), "ban", "@Mallory")
	prompt := e.lastPromptID()
	if !strings.Contains(e.spy.LastText(), "Ban @Mallory on telegram?") {
		t.Fatalf("prompt = %q", e.spy.LastText())
	}

	e.answer(t, quoting(e.msg("boss", "no"), prompt))
	if banned, _ := e.access.IsBanned(ctx, "telegram", "mallory"); banned {
		t.Fatal("banned after no")
	}

	e.run(t, owner(e.msg("boss", "/ban again")), "ban", "@Mallory")
	e.answer(t, quoting(e.msg("boss", "yes"), e.lastPromptID()))
	if banned, _ := e.access.IsBanned(ctx, "telegram", "mallory"); !banned {
		t.Fatal("not banned after yes")
	}
	if e.spy.LastText() != "@Mallory is banned." {
		t.Errorf("reply = %q", e.spy.LastText())
	}

	e.run(t, owner(e.msg("boss", "/unban")), "unban", "mallory")
	if banned, _ := e.access.IsBanned(ctx, "telegram", "mallory"); banned {
		t.Error("still banned after unban")
	}
}

func TestBanUsesQuotedSender(t *testing.T) {
	e := newEnv(t)
	msg := owner(e.msg("boss", "/ban"))
	msg.Quoted = &chat.Quoted{ID: "m1", SenderID: "spammer"}
	e.run(t, msg, "ban")

	if !strings.Contains(e.spy.LastText(), "Ban spammer") {
		t.Errorf("prompt = %q", e.spy.LastText())
	}
}

func TestBlacklist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.run(t, owner(e.msg("boss", "/mute")), "mute")
	e.answer(t, e.msg("boss", "y"))
	if on, _ := e.access.IsChatBlacklisted(ctx, "telegram", "-100"); !on {
		t.Fatal("chat not blacklisted")
	}

	e.run(t, owner(e.msg("boss", "/blacklist off")), "blacklist", "off")
	if on, _ := e.access.IsChatBlacklisted(ctx, "telegram", "-100"); on {
		t.Error("chat still blacklisted")
	}
}

func TestAllowRestrictsCommand(t *testing.T) {
	var runs int
	secret := &command.Definition{
		Name: "deploy",
		Handler: func(context.Context, *chat.Context) error {
			runs++
			return nil
		},
	}
	e := newEnv(t, secret)

	e.run(t, e.msg("alice", "/deploy"), "deploy")
	if runs != 1 {
		t.Fatal("deploy should be open before an allow-list exists")
	}

	e.run(t, owner(e.msg("boss", "/allow")), "allow", "/deploy", "user", "@bob")
	if !strings.Contains(e.spy.LastText(), "@bob may now use /deploy") {
		t.Fatalf("reply = %q", e.spy.LastText())
	}

	if out := e.run(t, e.msg("alice", "/deploy 2"), "deploy"); out != command.Denied {
		t.Errorf("alice outcome = %v", out)
	}
	if out := e.run(t, e.msg("bob", "/deploy"), "deploy"); out != command.Succeeded {
		t.Errorf("bob outcome = %v", out)
	}

	e.run(t, owner(e.msg("boss", "/allow x")), "allow", "deploy")
	if !strings.HasPrefix(e.spy.LastText(), "Usage:") {
		t.Errorf("reply = %q", e.spy.LastText())
	}
}

func TestAllowResolvesAlias(t *testing.T) {
	e := newEnv(t, command.Status())

	e.run(t, owner(e.msg("boss", "/allow ping")), "allow", "ping", "user", "alice")
	if got := e.spy.LastText(); got != "alice may now use /status." {
		t.Fatalf("reply = %q", got)
	}

	if out := e.run(t, e.msg("bob", "/status"), "status"); out != command.Denied {
		t.Errorf("bob outcome = %v, want denied", out)
	}
	if out := e.run(t, e.msg("alice", "/ping"), "ping"); out != command.Succeeded {
		t.Errorf("alice outcome = %v, want succeeded", out)
	}
}

func TestAllowRejectsUnknownCommand(t *testing.T) {
	e := newEnv(t)

	e.run(t, owner(e.msg("boss", "/allow nope")), "allow", "nope", "user", "alice")
	if got := e.spy.LastText(); got != "Unknown command /nope." {
		t.Errorf("reply = %q", got)
	}
	if list, _ := e.access.CommandAllowList(context.Background(), "nope"); !list.Empty() {
		t.Errorf("allow-list stored for unknown command: %+v", list)
	}
}

package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/domain"
	"telegram-quiz-bot/internal/infra/memory"
)

type adminStore struct {
	*memory.StaticQuizLoader
	*memory.AttemptRepository
	*memory.UserRepository
	*memory.Stats
}

type adminHarness struct {
	*harness
	admin *AdminHandlers
	root  *tele.User
}

func newAdminHarness(t *testing.T) *adminHarness {
	t.Helper()
	hs := newHarness(t)
	store := adminStore{
		StaticQuizLoader:  hs.loader,
		AttemptRepository: hs.attempts,
		UserRepository:    hs.users,
		Stats:             memory.NewStats(hs.loader, hs.attempts, hs.users),
	}
	root := &tele.User{ID: 900, FirstName: "Root"}
	return &adminHarness{
		harness: hs,
		admin:   NewAdminHandlers(store, hs.quizzes, []int64{root.ID}),
		root:    root,
	}
}

func (ah *adminHarness) call(t *testing.T, c *fakeContext, handler tele.HandlerFunc) {
	t.Helper()
	if err := ah.admin.Only(handler)(c); err != nil {
		t.Fatalf("admin handler: %v", err)
	}
}

func TestAdminCommandsRefuseOtherUsers(t *testing.T) {
	ah := newAdminHarness(t)

	msg := newMessage(ah.user, "/stats")
	ah.call(t, msg, ah.admin.OnStats)
	if !strings.Contains(msg.last(), "Access denied") {
		t.Fatalf("unexpected reply %q", msg.last())
	}

	press := newCallback(ah.user, "admin_reload", "7")
	ah.call(t, press, ah.admin.OnReloadQuiz)
	if len(press.edited) != 0 || len(press.responses) != 1 || !strings.Contains(press.responses[0].Text, "Access denied") {
		t.Fatalf("refused press should only toast, edited=%v responses=%+v", press.edited, press.responses)
	}
}

func TestAdminStatsCountsFinishedAttempts(t *testing.T) {
	ah := newAdminHarness(t)
	ah.run(t, newCallback(ah.user, "start_quiz", "7"), ah.h.OnStartQuiz)
	ah.run(t, newCallback(ah.user, "answer", "1", "11"), ah.h.OnAnswer)
	ah.run(t, newMessage(ah.user, "go"), ah.h.OnText)

	c := newMessage(ah.root, "/stats")
	ah.call(t, c, ah.admin.OnStats)
	for _, want := range []string{"Total users: 1", "Active quizzes: 1", "Total questions: 2", "Completed attempts: 1", "Pass rate: 100.0%"} {
		if !strings.Contains(c.last(), want) {
			t.Fatalf("stats missing %q: %q", want, c.last())
		}
	}
	if c.markups[0] == nil || c.markups[0].InlineKeyboard[0][0].Unique != "admin_stats" {
		t.Fatalf("expected refresh button, got %+v", c.markups[0])
	}
}

func TestAdminQuizListIncludesInactive(t *testing.T) {
	ah := newAdminHarness(t)
	ah.loader.Put(domain.Quiz{ID: 8, Title: "Draft", IsActive: false})

	c := newMessage(ah.root, "/list_quizzes")
	ah.call(t, c, ah.admin.OnListQuizzes)
	if !strings.Contains(c.last(), "✅ <b>Go &lt;Basics&gt;</b>") || !strings.Contains(c.last(), "❌ <b>Draft</b>") {
		t.Fatalf("unexpected list %q", c.last())
	}
	if rows := c.markups[0].InlineKeyboard; len(rows) != 2 || rows[1][0].Data != "8" {
		t.Fatalf("unexpected buttons %+v", rows)
	}
}

func TestAdminReloadEvictsCachedQuiz(t *testing.T) {
	ah := newAdminHarness(t)
	ctx := context.Background()
	if _, err := ah.quizzes.GetQuiz(ctx, 7); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	edited, _ := ah.loader.LoadQuiz(ctx, 7)
	edited.Title = "Go Advanced"
	ah.loader.Put(edited)
	if cached, _ := ah.quizzes.GetQuiz(ctx, 7); cached.Title != "Go <Basics>" {
		t.Fatalf("expected cached title, got %q", cached.Title)
	}

	press := newCallback(ah.root, "admin_reload", "7")
	ah.call(t, press, ah.admin.OnReloadQuiz)
	if len(press.responses) == 0 || !strings.Contains(press.responses[0].Text, "reloaded") {
		t.Fatalf("expected reload toast, got %+v", press.responses)
	}
	if !strings.Contains(press.last(), "Quiz Details: Go Advanced") || !strings.Contains(press.last(), "Max attempts: 2") {
		t.Fatalf("unexpected details %q", press.last())
	}
	if fresh, _ := ah.quizzes.GetQuiz(ctx, 7); fresh.Title != "Go Advanced" {
		t.Fatalf("cache still serves %q", fresh.Title)
	}

	missing := newCallback(ah.root, "admin_quiz", "99")
	ah.call(t, missing, ah.admin.OnQuizDetails)
	if !strings.Contains(missing.last(), "Quiz not found") {
		t.Fatalf("unexpected reply %q", missing.last())
	}
}

func TestAdminUsersArePaged(t *testing.T) {
	ah := newAdminHarness(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		if _, err := ah.users.EnsureUser(ctx, domain.User{TelegramID: int64(1000 + i), FirstName: fmt.Sprintf("User%d", i)}); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
	}

	first := newMessage(ah.root, "/list_users")
	ah.call(t, first, ah.admin.OnListUsers)
	if !strings.Contains(first.last(), "Users (Page 1/2)") || strings.Contains(first.last(), "User11") {
		t.Fatalf("unexpected first page %q", first.last())
	}
	rows := first.markups[0].InlineKeyboard
	if nav := rows[len(rows)-1]; len(nav) != 1 || nav[0].Unique != "admin_users" || nav[0].Data != "1" {
		t.Fatalf("expected next button, got %+v", nav)
	}

	second := newCallback(ah.root, "admin_users", "1")
	ah.call(t, second, ah.admin.OnUsersPage)
	if len(second.edited) != 1 || !strings.Contains(second.last(), "Users (Page 2/2)") || !strings.Contains(second.last(), "User12") {
		t.Fatalf("unexpected second page %q", second.last())
	}
}

func TestAdminUserDetails(t *testing.T) {
	ah := newAdminHarness(t)
	ah.run(t, newCallback(ah.user, "start_quiz", "7"), ah.h.OnStartQuiz)
	ah.run(t, newMessage(ah.user, "/cancel"), ah.h.OnCancel)

	c := newMessage(ah.root, "/user 555")
	ah.call(t, c, ah.admin.OnUser)
	for _, want := range []string{"Ann", "@annlee", "Telegram ID: 555", "Total: 1", "Completed: 0"} {
		if !strings.Contains(c.last(), want) {
			t.Fatalf("details missing %q: %q", want, c.last())
		}
	}

	unknown := newMessage(ah.root, "/user 999")
	ah.call(t, unknown, ah.admin.OnUser)
	if !strings.Contains(unknown.last(), "User not found") {
		t.Fatalf("unexpected reply %q", unknown.last())
	}

	bare := newMessage(ah.root, "/user")
	ah.call(t, bare, ah.admin.OnUser)
	if !strings.Contains(bare.last(), "Usage") {
		t.Fatalf("unexpected reply %q", bare.last())
	}
}

type recordingRouter struct {
	middleware int
	endpoints  []string
}

func (r *recordingRouter) Use(m ...tele.MiddlewareFunc) { r.middleware += len(m) }

func (r *recordingRouter) Handle(endpoint interface{}, _ tele.HandlerFunc, _ ...tele.MiddlewareFunc) {
	switch e := endpoint.(type) {
	case string:
		r.endpoints = append(r.endpoints, e)
	case *tele.Btn:
		r.endpoints = append(r.endpoints, "btn:"+e.Unique)
	}
}

func TestAdminRegisterStandalone(t *testing.T) {
	ah := newAdminHarness(t)

	shared := &recordingRouter{}
	ah.admin.Register(shared, false)
	if shared.middleware != 0 || contains(shared.endpoints, "/start") || !contains(shared.endpoints, "/admin") {
		t.Fatalf("shared bot registration %+v", shared)
	}

	own := &recordingRouter{}
	ah.admin.Register(own, true)
	if own.middleware != 2 || !contains(own.endpoints, "/start") || !contains(own.endpoints, "btn:admin_reload") {
		t.Fatalf("standalone registration %+v", own)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

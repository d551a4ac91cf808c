package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
	"telegram-quiz-bot/internal/infra/memory"
	"telegram-quiz-bot/internal/notify"
)

// fakeContext records what the handlers send back. Methods the handlers do
// not use panic through the embedded nil interface.
type fakeContext struct {
	tele.Context

	sender   *tele.User
	text     string
	callback *tele.Callback
	store    map[string]interface{}

	sent      []string
	edited    []string
	markups   []*tele.ReplyMarkup
	responses []*tele.CallbackResponse
}

func newMessage(user *tele.User, text string) *fakeContext {
	return &fakeContext{sender: user, text: text, store: map[string]interface{}{}}
}

func newCallback(user *tele.User, unique string, args ...string) *fakeContext {
	return &fakeContext{
		sender:   user,
		callback: &tele.Callback{Unique: unique, Data: strings.Join(args, "|")},
		store:    map[string]interface{}{},
	}
}

func (c *fakeContext) Sender() *tele.User       { return c.sender }
func (c *fakeContext) Text() string             { return c.text }
func (c *fakeContext) Callback() *tele.Callback { return c.callback }
func (c *fakeContext) Update() tele.Update      { return tele.Update{ID: 1} }
func (c *fakeContext) Get(key string) interface{} {
	return c.store[key]
}
func (c *fakeContext) Set(key string, v interface{}) { c.store[key] = v }

func (c *fakeContext) Args() []string {
	if c.callback != nil {
		return strings.Split(c.callback.Data, "|")
	}
	fields := strings.Fields(c.text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

func (c *fakeContext) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, what.(string))
	c.markups = append(c.markups, markupOf(opts))
	return nil
}

func (c *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	c.edited = append(c.edited, what.(string))
	c.markups = append(c.markups, markupOf(opts))
	return nil
}

func (c *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *fakeContext) last() string {
	if len(c.edited) > 0 {
		return c.edited[len(c.edited)-1]
	}
	if len(c.sent) > 0 {
		return c.sent[len(c.sent)-1]
	}
	return ""
}

func markupOf(opts []interface{}) *tele.ReplyMarkup {
	for _, o := range opts {
		if m, ok := o.(*tele.ReplyMarkup); ok {
			return m
		}
	}
	return nil
}

type catalog struct {
	*memory.QuizRepository
	*memory.StaticQuizLoader
}

func (c catalog) GetQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	return c.QuizRepository.GetQuiz(ctx, id)
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []notify.Completion
}

func (n *recordingNotifier) NotifyCompletion(_ context.Context, c notify.Completion) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, c)
	return nil
}

type harness struct {
	h        *Handlers
	loader   *memory.StaticQuizLoader
	quizzes  *memory.QuizRepository
	users    *memory.UserRepository
	attempts *memory.AttemptRepository
	notifier *recordingNotifier
	user     *tele.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quiz := domain.Quiz{
		ID:           7,
		Title:        "Go <Basics>",
		IsActive:     true,
		MaxAttempts:  2,
		PassingScore: 50,
		ShowResults:  true,
		TimeLimit:    5 * time.Minute,
		Questions: []domain.Question{
			{ID: 1, Text: "Zero value of int?", Type: domain.QuestionMultipleChoice, Order: 1, Options: []domain.Option{
				{ID: 11, Text: "0", IsCorrect: true, Order: 1},
				{ID: 12, Text: "nil", Order: 2},
			}},
			{ID: 2, Text: "Name the keyword for goroutines", Type: domain.QuestionText, Order: 2},
		},
	}
	loader := memory.NewStaticQuizLoader(map[int64]domain.Quiz{quiz.ID: quiz})
	quizzes := memory.NewQuizRepository(loader, time.Minute)
	attempts := memory.NewAttemptRepository(loader)
	users := memory.NewUserRepository()
	engine := app.NewEngine(memory.NewSessionStore(), quizzes, attempts)
	n := &recordingNotifier{}

	h := NewHandlers(engine, catalog{quizzes, loader}, attempts, users, n, 5)
	h.dispatch = func(f func()) { f() }
	return &harness{
		h:        h,
		loader:   loader,
		quizzes:  quizzes,
		users:    users,
		attempts: attempts,
		notifier: n,
		user:     &tele.User{ID: 555, FirstName: "Ann", Username: "annlee"},
	}
}

func (hs *harness) run(t *testing.T, c *fakeContext, handler tele.HandlerFunc) {
	t.Helper()
	if err := hs.h.RegisterUser(handler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestStartGreetsAndRegistersUser(t *testing.T) {
	hs := newHarness(t)
	c := newMessage(hs.user, "/start")
	hs.run(t, c, hs.h.OnStart)

	if !strings.Contains(c.last(), "Welcome to Quiz Bot, Ann") {
		t.Fatalf("unexpected greeting %q", c.last())
	}
	if _, err := hs.users.GetUser(context.Background(), 555); err != nil {
		t.Fatalf("user not registered: %v", err)
	}
}

func TestInactiveUserIsRefused(t *testing.T) {
	hs := newHarness(t)
	hs.run(t, newMessage(hs.user, "/start"), hs.h.OnStart)
	if err := hs.users.SetActive(context.Background(), 555, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	c := newMessage(hs.user, "/quizzes")
	called := false
	hs.run(t, c, func(tele.Context) error { called = true; return nil })
	if called || !strings.Contains(c.last(), "deactivated") {
		t.Fatalf("inactive user reached handler (called=%v, reply=%q)", called, c.last())
	}
}

func TestQuizListAndInfo(t *testing.T) {
	hs := newHarness(t)
	c := newMessage(hs.user, "/quizzes")
	hs.run(t, c, hs.h.OnQuizzes)
	if c.markups[0] == nil || len(c.markups[0].InlineKeyboard) != 1 {
		t.Fatalf("expected one quiz button, got %+v", c.markups[0])
	}
	if btn := c.markups[0].InlineKeyboard[0][0]; !strings.Contains(btn.Text, "Go <Basics> (5min)") {
		t.Fatalf("unexpected button %q", btn.Text)
	}

	info := newCallback(hs.user, "quiz_info", "7")
	hs.run(t, info, hs.h.OnQuizInfo)
	if len(info.edited) != 1 || !strings.Contains(info.edited[0], "Go &lt;Basics&gt;") || !strings.Contains(info.edited[0], "Attempts left: 2/2") {
		t.Fatalf("unexpected info %q", info.last())
	}
}

func TestFullAttemptThroughButtonsAndText(t *testing.T) {
	hs := newHarness(t)

	start := newCallback(hs.user, "start_quiz", "7")
	hs.run(t, start, hs.h.OnStartQuiz)
	if !strings.Contains(start.last(), "Question 1 of 2") {
		t.Fatalf("unexpected first question %q", start.last())
	}

	hs.run(t, newCallback(hs.user, "answer", "1", "11"), hs.h.OnAnswer)

	done := newMessage(hs.user, "go")
	hs.run(t, done, hs.h.OnText)
	if !strings.Contains(done.last(), "Quiz Completed!") || !strings.Contains(done.last(), "Score: 1/2 (50.0%)") {
		t.Fatalf("unexpected result %q", done.last())
	}

	if len(hs.notifier.seen) != 1 || hs.notifier.seen[0].User.TelegramID != 555 {
		t.Fatalf("expected one completion notice, got %+v", hs.notifier.seen)
	}

	history := newMessage(hs.user, "/my_results")
	hs.run(t, history, hs.h.OnMyResults)
	if !strings.Contains(history.last(), "✅ 1/2 (50.0%)") {
		t.Fatalf("unexpected history %q", history.last())
	}
}

func TestStaleButtonOnlyToasts(t *testing.T) {
	hs := newHarness(t)
	hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)
	hs.run(t, newCallback(hs.user, "answer", "1", "11"), hs.h.OnAnswer)

	stale := newCallback(hs.user, "answer", "1", "12")
	hs.run(t, stale, hs.h.OnAnswer)
	if len(stale.edited) != 0 || len(stale.responses) != 1 || !strings.Contains(stale.responses[0].Text, "no longer active") {
		t.Fatalf("stale press should only respond, edited=%v responses=%+v", stale.edited, stale.responses)
	}
}

func TestTextOnChoiceQuestionAsksForButton(t *testing.T) {
	hs := newHarness(t)
	hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)

	c := newMessage(hs.user, "0")
	hs.run(t, c, hs.h.OnText)
	if !strings.Contains(c.last(), "choose one of the options") || c.markups[0] == nil {
		t.Fatalf("unexpected reply %q", c.last())
	}
}

func TestTextWithoutSessionHints(t *testing.T) {
	hs := newHarness(t)
	c := newMessage(hs.user, "hello")
	hs.run(t, c, hs.h.OnText)
	if !strings.Contains(c.last(), "/quizzes") {
		t.Fatalf("unexpected reply %q", c.last())
	}
}

func TestProfileShowsAttemptStats(t *testing.T) {
	hs := newHarness(t)
	hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)
	hs.run(t, newCallback(hs.user, "answer", "1", "11"), hs.h.OnAnswer)
	hs.run(t, newMessage(hs.user, "go"), hs.h.OnText)

	c := newMessage(hs.user, "/profile")
	hs.run(t, c, hs.h.OnProfile)
	for _, want := range []string{"Ann", "@annlee", "Member since:", "Total quizzes taken:</b> 1", "passed 1", "50.0%"} {
		if !strings.Contains(c.last(), want) {
			t.Fatalf("profile missing %q: %q", want, c.last())
		}
	}
}

func TestCancel(t *testing.T) {
	hs := newHarness(t)

	none := newMessage(hs.user, "/cancel")
	hs.run(t, none, hs.h.OnCancel)
	if !strings.Contains(none.last(), "no quiz in progress") {
		t.Fatalf("unexpected reply %q", none.last())
	}

	hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)
	c := newMessage(hs.user, "/cancel")
	hs.run(t, c, hs.h.OnCancel)
	if !strings.Contains(c.last(), "Quiz abandoned") {
		t.Fatalf("unexpected reply %q", c.last())
	}
	if len(hs.notifier.seen) != 1 || hs.notifier.seen[0].Result.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned notice, got %+v", hs.notifier.seen)
	}
}

func TestExhaustedQuizLeavesList(t *testing.T) {
	hs := newHarness(t)
	for i := 0; i < 2; i++ {
		hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)
	}

	again := newCallback(hs.user, "start_quiz", "7")
	hs.run(t, again, hs.h.OnStartQuiz)
	if !strings.Contains(again.last(), "maximum number of attempts") {
		t.Fatalf("unexpected reply %q", again.last())
	}

	list := newMessage(hs.user, "/quizzes")
	hs.run(t, list, hs.h.OnQuizzes)
	if !strings.Contains(list.last(), "completed all available quizzes") {
		t.Fatalf("unexpected list %q", list.last())
	}
}

func TestBadCallbackData(t *testing.T) {
	hs := newHarness(t)
	c := newCallback(hs.user, "start_quiz", "abc")
	hs.run(t, c, hs.h.OnStartQuiz)
	if !strings.Contains(c.last(), "Something went wrong") {
		t.Fatalf("unexpected reply %q", c.last())
	}
}

func TestRestartingQuizNotifiesAboutClosedAttempt(t *testing.T) {
	hs := newHarness(t)
	hs.run(t, newCallback(hs.user, "start_quiz", "7"), hs.h.OnStartQuiz)
	hs.run(t, newCallback(hs.user, "answer", "1", "11"), hs.h.OnAnswer)

	again := newCallback(hs.user, "start_quiz", "7")
	hs.run(t, again, hs.h.OnStartQuiz)
	if !strings.Contains(again.last(), "Question 1 of 2") {
		t.Fatalf("unexpected question %q", again.last())
	}
	if len(hs.notifier.seen) != 1 {
		t.Fatalf("expected one notice for the closed attempt, got %d", len(hs.notifier.seen))
	}
	res := hs.notifier.seen[0].Result
	if res.Status != domain.StatusAbandoned || res.Score != 1 || hs.notifier.seen[0].User.TelegramID != 555 {
		t.Fatalf("unexpected notice %+v", hs.notifier.seen[0])
	}
}

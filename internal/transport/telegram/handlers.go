package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
	"telegram-quiz-bot/internal/notify"
)

// Engine is the attempt state machine driven by chat events.
type Engine interface {
	StartAttempt(ctx context.Context, userID, quizID int64) (app.Start, error)
	Advance(ctx context.Context, userID, questionID int64, answer domain.RawAnswer) (app.Step, error)
	Skip(ctx context.Context, userID, questionID int64) (app.Step, error)
	Back(ctx context.Context, userID, questionID int64) (app.Step, error)
	Current(ctx context.Context, userID int64) (app.QuestionView, error)
	Abandon(ctx context.Context, userID int64) (app.Result, error)
}

// Catalog lists and loads quizzes.
type Catalog interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	ListActiveQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// History answers quota, past-results and profile questions.
type History interface {
	CountAttempts(ctx context.Context, userID, quizID int64) (int, error)
	ListUserAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptSummary, error)
	UserStats(ctx context.Context, userID int64) (domain.AttemptStats, error)
}

// Users registers Telegram profiles.
type Users interface {
	EnsureUser(ctx context.Context, profile domain.User) (domain.User, error)
}

const userKey = "quiz_user"

// Handlers translates Telegram updates into engine calls.
type Handlers struct {
	engine       Engine
	catalog      Catalog
	history      History
	users        Users
	notifier     notify.Notifier
	resultsLimit int
	timeout      time.Duration
	// dispatch runs notification work off the update goroutine.
	dispatch func(func())
}

func NewHandlers(engine Engine, catalog Catalog, history History, users Users, notifier notify.Notifier, resultsLimit int) *Handlers {
	if resultsLimit <= 0 {
		resultsLimit = 10
	}
	return &Handlers{
		engine:       engine,
		catalog:      catalog,
		history:      history,
		users:        users,
		notifier:     notifier,
		resultsLimit: resultsLimit,
		timeout:      10 * time.Second,
		dispatch:     func(f func()) { go f() },
	}
}

// Router is the registration surface of *tele.Bot.
type Router interface {
	Use(middleware ...tele.MiddlewareFunc)
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

// Register wires every command and button to r.
func (h *Handlers) Register(r Router) {
	r.Use(Recover(), Logger(), h.RegisterUser)

	r.Handle("/start", h.OnStart)
	r.Handle("/help", h.OnHelp)
	r.Handle("/quizzes", h.OnQuizzes)
	r.Handle("/my_results", h.OnMyResults)
	r.Handle("/profile", h.OnProfile)
	r.Handle("/cancel", h.OnCancel)
	r.Handle(tele.OnText, h.OnText)

	r.Handle(&btnQuizzes, h.OnQuizzes)
	r.Handle(&btnQuizInfo, h.OnQuizInfo)
	r.Handle(&btnStartQuiz, h.OnStartQuiz)
	r.Handle(&btnAnswer, h.OnAnswer)
	r.Handle(&btnSkip, h.OnSkip)
	r.Handle(&btnPrev, h.OnPrev)
	r.Handle(&btnFinish, h.OnFinish)
}

// RegisterUser upserts the sender and refuses deactivated accounts.
func (h *Handlers) RegisterUser(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		ctx, cancel := h.ctx()
		defer cancel()

		user, err := h.users.EnsureUser(ctx, domain.User{
			TelegramID: sender.ID,
			Username:   sender.Username,
			FirstName:  sender.FirstName,
			LastName:   sender.LastName,
		})
		if err != nil {
			log.Error().Err(err).Int64("telegramID", sender.ID).Msg("ensure user")
			return reply(c, errorMessage(err), nil)
		}
		if !user.IsActive {
			return reply(c, "❌ Your account has been deactivated. Please contact an administrator.", nil)
		}
		c.Set(userKey, user)
		return next(c)
	}
}

func (h *Handlers) OnStart(c tele.Context) error {
	return c.Send(welcomeText(userFrom(c)), tele.ModeHTML)
}

func (h *Handlers) OnHelp(c tele.Context) error {
	return c.Send(helpText(), tele.ModeHTML)
}

func (h *Handlers) OnQuizzes(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	user := userFrom(c)

	quizzes, err := h.catalog.ListActiveQuizzes(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	if len(quizzes) == 0 {
		return reply(c, "📝 No quizzes are currently available. Please check back later!", nil)
	}

	choices := make([]QuizChoice, 0, len(quizzes))
	for _, q := range quizzes {
		used, err := h.history.CountAttempts(ctx, user.ID, q.ID)
		if err != nil {
			return h.fail(c, err)
		}
		if left := q.MaxAttempts - used; left > 0 {
			choices = append(choices, QuizChoice{QuizSummary: q, AttemptsLeft: left})
		}
	}
	text, markup := quizListMessage(choices)
	return reply(c, text, markup)
}

func (h *Handlers) OnQuizInfo(c tele.Context) error {
	quizID, err := argID(c, 0)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx()
	defer cancel()

	quiz, err := h.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return h.fail(c, err)
	}
	if !quiz.IsActive || len(quiz.Questions) == 0 {
		return h.fail(c, domain.ErrQuizUnavailable)
	}
	used, err := h.history.CountAttempts(ctx, userFrom(c).ID, quizID)
	if err != nil {
		return h.fail(c, err)
	}
	left := quiz.MaxAttempts - used
	if left <= 0 {
		return h.fail(c, domain.ErrAttemptsExhausted)
	}
	text, markup := quizInfoMessage(quiz, left)
	return reply(c, text, markup)
}

func (h *Handlers) OnStartQuiz(c tele.Context) error {
	quizID, err := argID(c, 0)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx()
	defer cancel()

	user := userFrom(c)
	start, err := h.engine.StartAttempt(ctx, user.ID, quizID)
	if err != nil {
		return h.fail(c, err)
	}
	if start.Previous != nil {
		h.notify(user, *start.Previous)
	}
	text, markup := questionMessage(start.QuestionView)
	return reply(c, text, markup)
}

func (h *Handlers) OnAnswer(c tele.Context) error {
	questionID, err := argID(c, 0)
	if err != nil {
		return h.fail(c, err)
	}
	optionID, err := argID(c, 1)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx()
	defer cancel()

	step, err := h.engine.Advance(ctx, userFrom(c).ID, questionID, domain.RawAnswer{OptionID: optionID})
	return h.step(c, step, err)
}

func (h *Handlers) OnSkip(c tele.Context) error {
	return h.navigate(c, h.engine.Skip)
}

func (h *Handlers) OnPrev(c tele.Context) error {
	return h.navigate(c, h.engine.Back)
}

// OnFinish ends the attempt from its last question; it leaves that question unanswered.
func (h *Handlers) OnFinish(c tele.Context) error {
	return h.navigate(c, h.engine.Skip)
}

func (h *Handlers) navigate(c tele.Context, move func(ctx context.Context, userID, questionID int64) (app.Step, error)) error {
	questionID, err := argID(c, 0)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx()
	defer cancel()

	step, err := move(ctx, userFrom(c).ID, questionID)
	return h.step(c, step, err)
}

// OnText accepts typed answers for text and boolean questions.
func (h *Handlers) OnText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return c.Send("🤔 Unknown command. Use /help to see what I can do.")
	}
	ctx, cancel := h.ctx()
	defer cancel()
	user := userFrom(c)

	view, err := h.engine.Current(ctx, user.ID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return c.Send("💡 Use /quizzes to see available quizzes.")
	}
	if err != nil {
		return h.fail(c, err)
	}
	if view.Type == domain.QuestionMultipleChoice {
		msg, markup := questionMessage(view)
		return c.Send("👆 Please choose one of the options.\n\n"+msg, tele.ModeHTML, markup)
	}
	if text == "" {
		return c.Send("✍️ Please type your answer.")
	}

	step, err := h.engine.Advance(ctx, user.ID, view.QuestionID, domain.RawAnswer{Text: text})
	return h.step(c, step, err)
}

func (h *Handlers) OnMyResults(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()

	attempts, err := h.history.ListUserAttempts(ctx, userFrom(c).ID, h.resultsLimit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Send(historyMessage(attempts), tele.ModeHTML)
}

func (h *Handlers) OnProfile(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	user := userFrom(c)

	stats, err := h.history.UserStats(ctx, user.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Send(profileMessage(user, stats), tele.ModeHTML)
}

func (h *Handlers) OnCancel(c tele.Context) error {
	ctx, cancel := h.ctx()
	defer cancel()
	user := userFrom(c)

	res, err := h.engine.Abandon(ctx, user.ID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return c.Send("ℹ️ You have no quiz in progress.")
	}
	if err != nil {
		return h.fail(c, err)
	}
	h.notify(user, res)
	return c.Send(resultMessage(res), tele.ModeHTML)
}

func (h *Handlers) step(c tele.Context, step app.Step, err error) error {
	if err != nil {
		return h.fail(c, err)
	}
	if step.Finished() {
		h.notify(userFrom(c), *step.Result)
		return reply(c, resultMessage(*step.Result), nil)
	}
	text, markup := questionMessage(*step.Question)
	return reply(c, text, markup)
}

func (h *Handlers) notify(user domain.User, res app.Result) {
	if h.notifier == nil {
		return
	}
	completion := notify.Completion{Result: res, User: user}
	h.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.notifier.NotifyCompletion(ctx, completion); err != nil {
			log.Error().Err(err).Int64("attemptID", res.AttemptID).Msg("completion notification")
		}
	})
}

// reply edits the message behind a button press, or sends a new one.
func reply(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	opts := []interface{}{tele.ModeHTML}
	if markup != nil {
		opts = append(opts, markup)
	}
	if c.Callback() != nil {
		_ = c.Respond()
		return c.Edit(text, opts...)
	}
	return c.Send(text, opts...)
}

// fail reports err to the user. A stale button press only gets a toast.
func (h *Handlers) fail(c tele.Context, err error) error {
	msg := errorMessage(err)
	if strings.HasPrefix(msg, "⚠️ Something went wrong") {
		log.Error().Err(err).Int("updateID", c.Update().ID).Msg("handler failed")
	}
	if c.Callback() != nil && errors.Is(err, domain.ErrStaleAnswer) {
		return c.Respond(&tele.CallbackResponse{Text: msg})
	}
	return reply(c, msg, nil)
}

func (h *Handlers) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

func userFrom(c tele.Context) domain.User {
	user, _ := c.Get(userKey).(domain.User)
	return user
}

func argID(c tele.Context, i int) (int64, error) {
	args := c.Args()
	if i >= len(args) {
		return 0, fmt.Errorf("missing callback argument %d", i)
	}
	v, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad callback argument %q: %w", args[i], err)
	}
	return v, nil
}

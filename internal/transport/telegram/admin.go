package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/domain"
)

const usersPerPage = 10

// AdminStore backs the read-only administrator commands.
type AdminStore interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	SystemStats(ctx context.Context) (domain.SystemStats, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizOverview, error)
	QuizStats(ctx context.Context, quizID int64) (domain.AttemptStats, error)
	ListUsers(ctx context.Context, offset, limit int) ([]domain.UserOverview, int, error)
	GetUser(ctx context.Context, telegramID int64) (domain.User, error)
	UserStats(ctx context.Context, userID int64) (domain.AttemptStats, error)
}

// QuizCache drops cached quiz content so edits are served before the TTL runs out.
type QuizCache interface {
	Invalidate(ctx context.Context, quizID int64) error
}

// AdminHandlers serves statistics, quiz and user listings to administrators.
type AdminHandlers struct {
	store   AdminStore
	cache   QuizCache
	admins  map[int64]struct{}
	timeout time.Duration
}

func NewAdminHandlers(store AdminStore, cache QuizCache, adminIDs []int64) *AdminHandlers {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &AdminHandlers{store: store, cache: cache, admins: admins, timeout: 10 * time.Second}
}

// Register wires the admin commands to r. A dedicated admin bot also gets
// the shared middleware and answers /start and /help with the admin menu;
// on the participant bot the menu lives under /admin.
func (a *AdminHandlers) Register(r Router, standalone bool) {
	if standalone {
		r.Use(Recover(), Logger())
		r.Handle("/start", a.OnMenu, a.Only)
		r.Handle("/help", a.OnMenu, a.Only)
	} else {
		r.Handle("/admin", a.OnMenu, a.Only)
	}
	r.Handle("/stats", a.OnStats, a.Only)
	r.Handle("/list_quizzes", a.OnListQuizzes, a.Only)
	r.Handle("/list_users", a.OnListUsers, a.Only)
	r.Handle("/user", a.OnUser, a.Only)

	r.Handle(&btnAdminStats, a.OnStats, a.Only)
	r.Handle(&btnAdminQuizzes, a.OnListQuizzes, a.Only)
	r.Handle(&btnAdminQuiz, a.OnQuizDetails, a.Only)
	r.Handle(&btnAdminReload, a.OnReloadQuiz, a.Only)
	r.Handle(&btnAdminUsers, a.OnUsersPage, a.Only)
	r.Handle(&btnAdminUser, a.OnUser, a.Only)
}

// Only lets configured administrators through.
func (a *AdminHandlers) Only(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if _, ok := a.admins[sender.ID]; !ok {
			log.Warn().Int64("telegramID", sender.ID).Msg("admin command refused")
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: "❌ Access denied."})
			}
			return c.Send("❌ Access denied. This bot is for administrators only.")
		}
		return next(c)
	}
}

func (a *AdminHandlers) OnMenu(c tele.Context) error {
	return c.Send(adminMenuText(c.Sender().FirstName), tele.ModeHTML)
}

func (a *AdminHandlers) OnStats(c tele.Context) error {
	ctx, cancel := a.ctx()
	defer cancel()

	stats, err := a.store.SystemStats(ctx)
	if err != nil {
		return a.fail(c, err)
	}
	text, markup := statsMessage(stats)
	return reply(c, text, markup)
}

func (a *AdminHandlers) OnListQuizzes(c tele.Context) error {
	ctx, cancel := a.ctx()
	defer cancel()

	quizzes, err := a.store.ListQuizzes(ctx)
	if err != nil {
		return a.fail(c, err)
	}
	text, markup := adminQuizListMessage(quizzes)
	return reply(c, text, markup)
}

func (a *AdminHandlers) OnQuizDetails(c tele.Context) error {
	quizID, err := argID(c, 0)
	if err != nil {
		return a.fail(c, err)
	}
	return a.quizDetails(c, quizID)
}

// OnReloadQuiz evicts the quiz from the cache and shows its fresh details.
func (a *AdminHandlers) OnReloadQuiz(c tele.Context) error {
	quizID, err := argID(c, 0)
	if err != nil {
		return a.fail(c, err)
	}
	ctx, cancel := a.ctx()
	defer cancel()

	if err := a.cache.Invalidate(ctx, quizID); err != nil {
		return a.fail(c, err)
	}
	log.Info().Int64("quizID", quizID).Int64("admin", c.Sender().ID).Msg("quiz cache invalidated")
	_ = c.Respond(&tele.CallbackResponse{Text: "🔄 Quiz reloaded"})
	return a.quizDetails(c, quizID)
}

func (a *AdminHandlers) quizDetails(c tele.Context, quizID int64) error {
	ctx, cancel := a.ctx()
	defer cancel()

	quiz, err := a.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return a.fail(c, err)
	}
	stats, err := a.store.QuizStats(ctx, quizID)
	if err != nil {
		return a.fail(c, err)
	}
	text, markup := quizDetailsMessage(quiz, stats)
	return reply(c, text, markup)
}

func (a *AdminHandlers) OnListUsers(c tele.Context) error {
	return a.usersPage(c, 0)
}

func (a *AdminHandlers) OnUsersPage(c tele.Context) error {
	page, err := argID(c, 0)
	if err != nil {
		return a.fail(c, err)
	}
	return a.usersPage(c, int(page))
}

func (a *AdminHandlers) usersPage(c tele.Context, page int) error {
	if page < 0 {
		page = 0
	}
	ctx, cancel := a.ctx()
	defer cancel()

	users, total, err := a.store.ListUsers(ctx, page*usersPerPage, usersPerPage)
	if err != nil {
		return a.fail(c, err)
	}
	if total == 0 {
		return reply(c, "👥 No users found.", nil)
	}
	pages := (total + usersPerPage - 1) / usersPerPage
	text, markup := usersPageMessage(users, page, pages)
	return reply(c, text, markup)
}

// OnUser shows one participant, by Telegram ID, with their attempt statistics.
func (a *AdminHandlers) OnUser(c tele.Context) error {
	telegramID, err := argID(c, 0)
	if err != nil {
		return c.Send("Usage: /user <telegram_id>")
	}
	ctx, cancel := a.ctx()
	defer cancel()

	user, err := a.store.GetUser(ctx, telegramID)
	if err != nil {
		return a.fail(c, err)
	}
	stats, err := a.store.UserStats(ctx, user.ID)
	if err != nil {
		return a.fail(c, err)
	}
	return reply(c, userDetailsMessage(user, stats), nil)
}

func (a *AdminHandlers) fail(c tele.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return reply(c, "❌ Quiz not found.", nil)
	case errors.Is(err, domain.ErrUserNotFound):
		return reply(c, "❌ User not found.", nil)
	}
	log.Error().Err(err).Int("updateID", c.Update().ID).Msg("admin handler failed")
	return reply(c, "⚠️ Something went wrong. Please try again later.", nil)
}

func (a *AdminHandlers) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/config"
	"telegram-quiz-bot/internal/domain"
	"telegram-quiz-bot/internal/infra/memory"
	"telegram-quiz-bot/internal/infra/postgres"
	redisinfra "telegram-quiz-bot/internal/infra/redis"
	"telegram-quiz-bot/internal/logger"
	"telegram-quiz-bot/internal/notify"
	transport "telegram-quiz-bot/internal/transport/http"
	"telegram-quiz-bot/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand that runs the bot and the HTTP server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type quizLister interface {
	ListActiveQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// catalog pairs the cached quiz repository with the uncached listing query.
type catalog struct {
	app.QuizRepository
	quizLister
}

type storage interface {
	memory.QuizLoader
	quizLister
	app.AttemptRepository
	telegram.History
	telegram.Users
	telegram.AdminStore
}

// memoryStorage serves the demo quizzes when no database is configured.
type memoryStorage struct {
	*memory.StaticQuizLoader
	*memory.AttemptRepository
	*memory.UserRepository
	*memory.Stats
}

// cachedQuizzes is a quiz repository administrators can evict entries from.
type cachedQuizzes interface {
	app.QuizRepository
	telegram.QuizCache
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Telegram.Token == "" {
		return errors.New("telegram token not configured (set telegram.token or TELEGRAM_BOT_TOKEN)")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var store storage
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Warn().Msg("postgres not configured, serving demo quizzes from memory")
		loader := memory.NewStaticQuizLoader(sampleQuizzes())
		attempts := memory.NewAttemptRepository(loader)
		users := memory.NewUserRepository()
		store = memoryStorage{
			StaticQuizLoader:  loader,
			AttemptRepository: attempts,
			UserRepository:    users,
			Stats:             memory.NewStats(loader, attempts, users),
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo cachedQuizzes
	var sessions app.SessionStore
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, store, quizTTL)
		sessions = redisinfra.NewSessionStore(redisClient, sessionTTL)
	} else {
		quizRepo = memory.NewQuizRepository(store, quizTTL)
		sessions = memory.NewSessionStore()
	}

	feed := app.NewResultFeed()
	engine := app.NewEngine(sessions, quizRepo, store, app.WithResultFeed(feed))

	pollTimeout := config.TTLDuration(cfg.Telegram.PollTimeout, 10*time.Second)
	bot, err := telegram.NewBot(cfg.Telegram.Token, pollTimeout)
	if err != nil {
		return err
	}

	var adminBot *tele.Bot
	if cfg.Telegram.AdminToken != "" {
		adminBot, err = telegram.NewBot(cfg.Telegram.AdminToken, pollTimeout)
		if err != nil {
			return err
		}
	}

	notifiers := notify.Multi{}
	if cfg.SMTP.Host != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From))
	}
	if len(cfg.Telegram.AdminChatIDs) > 0 {
		var sender notify.Sender = bot
		if adminBot != nil {
			sender = adminBot
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(sender, cfg.Telegram.AdminChatIDs))
	} else {
		log.Warn().Msg("no admin chat ids configured, admin commands are refused")
	}

	handlers := telegram.NewHandlers(engine, catalog{quizRepo, store}, store, store, notifiers, cfg.Telegram.ResultsLimit)
	handlers.Register(bot)

	admin := telegram.NewAdminHandlers(store, quizRepo, cfg.Telegram.AdminChatIDs)
	if adminBot != nil {
		admin.Register(adminBot, true)
	} else {
		admin.Register(bot, false)
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(feed),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	go func() {
		log.Info().Str("bot", bot.Me.Username).Msg("starting telegram polling")
		bot.Start()
	}()
	if adminBot != nil {
		go func() {
			log.Info().Str("bot", adminBot.Me.Username).Msg("starting admin bot polling")
			adminBot.Start()
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down...")
	}

	bot.Stop()
	if adminBot != nil {
		adminBot.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes is the demo content used without a database.
func sampleQuizzes() map[int64]domain.Quiz {
	return map[int64]domain.Quiz{
		1: {
			ID:           1,
			Title:        "Go Basics",
			Description:  "A warm-up on Go fundamentals.",
			IsActive:     true,
			TimeLimit:    5 * time.Minute,
			MaxAttempts:  3,
			PassingScore: 60,
			ShowResults:  true,
			Questions: []domain.Question{
				{
					ID:    1,
					Text:  "What is the zero value of an int?",
					Type:  domain.QuestionMultipleChoice,
					Order: 1,
					Options: []domain.Option{
						{ID: 1, Text: "0", IsCorrect: true, Order: 1},
						{ID: 2, Text: "nil", Order: 2},
						{ID: 3, Text: "undefined", Order: 3},
					},
				},
				{
					ID:     2,
					Text:   "Which keyword starts a goroutine?",
					Type:   domain.QuestionMultipleChoice,
					Order:  2,
					Points: 2,
					Options: []domain.Option{
						{ID: 4, Text: "async", Order: 1},
						{ID: 5, Text: "go", IsCorrect: true, Order: 2},
						{ID: 6, Text: "spawn", Order: 3},
					},
				},
				{
					ID:    3,
					Text:  "Describe what a channel is used for.",
					Type:  domain.QuestionText,
					Order: 3,
				},
			},
		},
	}
}

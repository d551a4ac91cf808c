package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-quiz-bot/internal/domain"
)

// Store is the Postgres backing store for quizzes, users and attempts.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// LoadQuiz loads a quiz with its questions and options, all in display order.
func (s *Store) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		limitSecs int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, instructions, is_active, time_limit_seconds,
		       max_attempts, passing_score, randomize_questions, show_results, notification_emails
		FROM quizzes WHERE id = $1`, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Description, &quiz.Instructions, &quiz.IsActive, &limitSecs,
		&quiz.MaxAttempts, &quiz.PassingScore, &quiz.RandomizeQuestions, &quiz.ShowResults, &quiz.NotificationEmails,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.TimeLimit = time.Duration(limitSecs) * time.Second

	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.question_text, q.question_type, q.points, q.is_required, q.explanation, q.order_index,
		       o.id, o.option_text, o.is_correct, o.order_index
		FROM questions q
		LEFT JOIN question_options o ON o.question_id = q.id
		WHERE q.quiz_id = $1
		ORDER BY q.order_index, q.id, o.order_index, o.id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var (
			q          domain.Question
			qType      string
			optID      *int64
			optText    *string
			optCorrect *bool
			optOrder   *int
		)
		if err := rows.Scan(&q.ID, &q.Text, &qType, &q.Points, &q.Required, &q.Explanation, &q.Order,
			&optID, &optText, &optCorrect, &optOrder); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		i, ok := index[q.ID]
		if !ok {
			i = len(quiz.Questions)
			index[q.ID] = i
			quiz.Questions = append(quiz.Questions, q)
		}
		if optID != nil {
			quiz.Questions[i].Options = append(quiz.Questions[i].Options, domain.Option{
				ID:        *optID,
				Text:      deref(optText),
				IsCorrect: optCorrect != nil && *optCorrect,
				Order:     derefInt(optOrder),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// ListActiveQuizzes returns active quizzes that have at least one question.
func (s *Store) ListActiveQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT z.id, z.title, z.time_limit_seconds, z.max_attempts, count(q.id)
		FROM quizzes z
		JOIN questions q ON q.quiz_id = z.id
		WHERE z.is_active
		GROUP BY z.id
		ORDER BY z.id`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizSummary
	for rows.Next() {
		var (
			summary   domain.QuizSummary
			limitSecs int
		)
		if err := rows.Scan(&summary.ID, &summary.Title, &limitSecs, &summary.MaxAttempts, &summary.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan quiz summary: %w", err)
		}
		summary.TimeLimit = time.Duration(limitSecs) * time.Second
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) CountAttempts(ctx context.Context, userID, quizID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2`, userID, quizID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO quiz_attempts (user_id, quiz_id, started_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, attempt.UserID, attempt.QuizID, attempt.StartedAt, string(attempt.Status)).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// SaveResult writes the graded answers and the terminal attempt in one
// transaction. An attempt that is no longer in progress is left untouched.
func (s *Store) SaveResult(ctx context.Context, attempt domain.Attempt, answers []domain.Answer) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quiz_attempts
			SET completed_at = $2, score = $3, max_score = $4, percentage = $5,
			    is_passed = $6, time_taken = $7, status = $8
			WHERE id = $1 AND status = 'in_progress'`,
			attempt.ID, attempt.CompletedAt, attempt.Score, attempt.MaxScore, attempt.Percentage,
			attempt.IsPassed, attempt.TimeTaken, string(attempt.Status))
		if err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAttemptFinalized
		}
		if len(answers) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, a := range answers {
			batch.Queue(`
				INSERT INTO answers (attempt_id, question_id, selected_option_id, text_answer, is_correct, points_earned)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				attempt.ID, a.QuestionID, a.SelectedOptionID, a.TextAnswer, a.IsCorrect, a.PointsEarned)
		}
		br := tx.SendBatch(ctx, batch)
		for range answers {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert answer: %w", err)
			}
		}
		return br.Close()
	})
}

// ListUserAttempts returns the user's attempts newest first, at most limit.
func (s *Store) ListUserAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.user_id, a.quiz_id, a.started_at, a.completed_at, a.score, a.max_score,
		       a.percentage, a.is_passed, a.time_taken, a.status, z.title
		FROM quiz_attempts a
		JOIN quizzes z ON z.id = a.quiz_id
		WHERE a.user_id = $1
		ORDER BY a.started_at DESC, a.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.AttemptSummary
	for rows.Next() {
		var (
			a      domain.AttemptSummary
			status string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.StartedAt, &a.CompletedAt, &a.Score, &a.MaxScore,
			&a.Percentage, &a.IsPassed, &a.TimeTaken, &status, &a.QuizTitle); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Status = domain.AttemptStatus(status)
		if !a.Status.Valid() {
			return nil, fmt.Errorf("attempt %d: unknown status %q", a.ID, status)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// EnsureUser upserts a Telegram profile and returns the stored user.
func (s *Store) EnsureUser(ctx context.Context, profile domain.User) (domain.User, error) {
	user := profile
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name, last_activity = now()
		RETURNING id, is_active, created_at, last_activity`,
		profile.TelegramID, profile.Username, profile.FirstName, profile.LastName).Scan(
		&user.ID, &user.IsActive, &user.CreatedAt, &user.LastActivity)
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, telegramID int64) (domain.User, error) {
	var user domain.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, telegram_id, username, first_name, last_name, is_active, created_at, last_activity
		FROM users WHERE telegram_id = $1`, telegramID).Scan(
		&user.ID, &user.TelegramID, &user.Username, &user.FirstName, &user.LastName, &user.IsActive,
		&user.CreatedAt, &user.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

const attemptStatsQuery = `
	SELECT count(*),
	       count(*) FILTER (WHERE status = 'completed'),
	       count(*) FILTER (WHERE status = 'completed' AND is_passed),
	       coalesce(avg(percentage) FILTER (WHERE status = 'completed'), 0)
	FROM quiz_attempts`

func (s *Store) attemptStats(ctx context.Context, where string, args ...interface{}) (domain.AttemptStats, error) {
	var stats domain.AttemptStats
	err := s.pool.QueryRow(ctx, attemptStatsQuery+where, args...).Scan(
		&stats.Attempts, &stats.Completed, &stats.Passed, &stats.AverageScore)
	if err != nil {
		return domain.AttemptStats{}, fmt.Errorf("attempt stats: %w", err)
	}
	return stats, nil
}

func (s *Store) QuizStats(ctx context.Context, quizID int64) (domain.AttemptStats, error) {
	return s.attemptStats(ctx, ` WHERE quiz_id = $1`, quizID)
}

func (s *Store) UserStats(ctx context.Context, userID int64) (domain.AttemptStats, error) {
	return s.attemptStats(ctx, ` WHERE user_id = $1`, userID)
}

func (s *Store) SystemStats(ctx context.Context) (domain.SystemStats, error) {
	var out domain.SystemStats
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM users),
		       (SELECT count(*) FROM users WHERE is_active),
		       (SELECT count(*) FROM quizzes),
		       (SELECT count(*) FROM quizzes WHERE is_active),
		       (SELECT count(*) FROM questions)`).Scan(
		&out.TotalUsers, &out.ActiveUsers, &out.TotalQuizzes, &out.ActiveQuizzes, &out.TotalQuestions)
	if err != nil {
		return domain.SystemStats{}, fmt.Errorf("system stats: %w", err)
	}
	out.AttemptStats, err = s.attemptStats(ctx, "")
	if err != nil {
		return domain.SystemStats{}, err
	}
	return out, nil
}

// ListQuizzes returns every quiz, inactive ones included, ordered by ID.
func (s *Store) ListQuizzes(ctx context.Context) ([]domain.QuizOverview, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT z.id, z.title, z.is_active,
		       (SELECT count(*) FROM questions q WHERE q.quiz_id = z.id),
		       (SELECT count(*) FROM quiz_attempts a WHERE a.quiz_id = z.id)
		FROM quizzes z
		ORDER BY z.id`)
	if err != nil {
		return nil, fmt.Errorf("list all quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizOverview
	for rows.Next() {
		var q domain.QuizOverview
		if err := rows.Scan(&q.ID, &q.Title, &q.IsActive, &q.QuestionCount, &q.Attempts); err != nil {
			return nil, fmt.Errorf("scan quiz overview: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ListUsers returns one page of users in registration order and the total count.
func (s *Store) ListUsers(ctx context.Context, offset, limit int) ([]domain.UserOverview, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.last_name, u.is_active,
		       u.created_at, u.last_activity,
		       (SELECT count(*) FROM quiz_attempts a WHERE a.user_id = u.id)
		FROM users u
		ORDER BY u.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.UserOverview
	for rows.Next() {
		var u domain.UserOverview
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.IsActive,
			&u.CreatedAt, &u.LastActivity, &u.Attempts); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"telegram-quiz-bot/internal/domain"
)

// AttemptRepository keeps attempts and answers in process memory.
// It mirrors the Postgres store, including the in_progress guard on SaveResult.
type AttemptRepository struct {
	quizzes QuizLoader

	mu       sync.RWMutex
	nextID   int64
	attempts map[int64]domain.Attempt
	answers  map[int64][]domain.Answer
}

// NewAttemptRepository builds an empty repository. quizzes is used to resolve
// titles for result listings and may be nil.
func NewAttemptRepository(quizzes QuizLoader) *AttemptRepository {
	return &AttemptRepository{
		quizzes:  quizzes,
		attempts: make(map[int64]domain.Attempt),
		answers:  make(map[int64][]domain.Answer),
	}
}

func (r *AttemptRepository) CountAttempts(_ context.Context, userID, quizID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			n++
		}
	}
	return n, nil
}

func (r *AttemptRepository) CreateAttempt(_ context.Context, attempt *domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	attempt.ID = r.nextID
	r.attempts[attempt.ID] = *attempt
	return nil
}

func (r *AttemptRepository) SaveResult(_ context.Context, attempt domain.Attempt, answers []domain.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.attempts[attempt.ID]
	if !ok {
		return fmt.Errorf("attempt %d not found", attempt.ID)
	}
	if stored.Status != domain.StatusInProgress {
		return domain.ErrAttemptFinalized
	}

	saved := make([]domain.Answer, len(answers))
	for i, a := range answers {
		r.nextID++
		a.ID = r.nextID
		a.AttemptID = attempt.ID
		saved[i] = a
	}
	r.answers[attempt.ID] = saved
	r.attempts[attempt.ID] = attempt
	return nil
}

// ListUserAttempts returns the user's most recent attempts first, at most limit.
func (r *AttemptRepository) ListUserAttempts(ctx context.Context, userID int64, limit int) ([]domain.AttemptSummary, error) {
	r.mu.RLock()
	out := make([]domain.AttemptSummary, 0)
	for _, a := range r.attempts {
		if a.UserID == userID {
			out = append(out, domain.AttemptSummary{Attempt: a})
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if r.quizzes != nil {
		for i := range out {
			if quiz, err := r.quizzes.LoadQuiz(ctx, out[i].QuizID); err == nil {
				out[i].QuizTitle = quiz.Title
			}
		}
	}
	return out, nil
}

// QuizStats aggregates every attempt made on quizID.
func (r *AttemptRepository) QuizStats(_ context.Context, quizID int64) (domain.AttemptStats, error) {
	return r.aggregate(func(a domain.Attempt) bool { return a.QuizID == quizID }), nil
}

// UserStats aggregates every attempt of userID.
func (r *AttemptRepository) UserStats(_ context.Context, userID int64) (domain.AttemptStats, error) {
	return r.aggregate(func(a domain.Attempt) bool { return a.UserID == userID }), nil
}

func (r *AttemptRepository) aggregate(match func(domain.Attempt) bool) domain.AttemptStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		stats domain.AttemptStats
		sum   float64
	)
	for _, a := range r.attempts {
		if !match(a) {
			continue
		}
		stats.Attempts++
		if a.Status != domain.StatusCompleted {
			continue
		}
		stats.Completed++
		sum += a.Percentage
		if a.IsPassed {
			stats.Passed++
		}
	}
	if stats.Completed > 0 {
		stats.AverageScore = sum / float64(stats.Completed)
	}
	return stats
}

// Attempt returns a stored attempt by ID.
func (r *AttemptRepository) Attempt(id int64) (domain.Attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[id]
	return a, ok
}

// Answers returns the graded answers saved for an attempt.
func (r *AttemptRepository) Answers(attemptID int64) []domain.Answer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Answer(nil), r.answers[attemptID]...)
}

package memory

import (
	"context"

	"telegram-quiz-bot/internal/domain"
)

// Stats answers administrator queries across the in-memory repositories.
type Stats struct {
	quizzes  *StaticQuizLoader
	attempts *AttemptRepository
	users    *UserRepository
}

func NewStats(quizzes *StaticQuizLoader, attempts *AttemptRepository, users *UserRepository) *Stats {
	return &Stats{quizzes: quizzes, attempts: attempts, users: users}
}

func (s *Stats) SystemStats(_ context.Context) (domain.SystemStats, error) {
	var out domain.SystemStats
	for _, u := range s.users.all() {
		out.TotalUsers++
		if u.IsActive {
			out.ActiveUsers++
		}
	}
	for _, q := range s.quizzes.all() {
		out.TotalQuizzes++
		if q.IsActive {
			out.ActiveQuizzes++
		}
		out.TotalQuestions += len(q.Questions)
	}
	out.AttemptStats = s.attempts.aggregate(func(domain.Attempt) bool { return true })
	return out, nil
}

// ListQuizzes returns every quiz, inactive ones included, ordered by ID.
func (s *Stats) ListQuizzes(_ context.Context) ([]domain.QuizOverview, error) {
	quizzes := s.quizzes.all()
	out := make([]domain.QuizOverview, 0, len(quizzes))
	for _, q := range quizzes {
		used := s.attempts.aggregate(func(a domain.Attempt) bool { return a.QuizID == q.ID })
		out = append(out, domain.QuizOverview{
			ID:            q.ID,
			Title:         q.Title,
			IsActive:      q.IsActive,
			QuestionCount: len(q.Questions),
			Attempts:      used.Attempts,
		})
	}
	return out, nil
}

// ListUsers returns one page of users in registration order and the total count.
func (s *Stats) ListUsers(_ context.Context, offset, limit int) ([]domain.UserOverview, int, error) {
	users := s.users.all()
	total := len(users)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]domain.UserOverview, 0, end-offset)
	for _, u := range users[offset:end] {
		used := s.attempts.aggregate(func(a domain.Attempt) bool { return a.UserID == u.ID })
		out = append(out, domain.UserOverview{User: u, Attempts: used.Attempts})
	}
	return out, total, nil
}

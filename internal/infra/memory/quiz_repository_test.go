package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"telegram-quiz-bot/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[int64]domain.Quiz{
			1: sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}

	if err := repo.Invalidate(context.Background(), 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpiresEntries(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[int64]domain.Quiz{1: sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz after ttl: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryNotFound(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), 42); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaticQuizLoaderListsActiveOnly(t *testing.T) {
	inactive := sampleQuiz()
	inactive.ID = 2
	inactive.IsActive = false
	third := sampleQuiz()
	third.ID = 3

	loader := NewStaticQuizLoader(map[int64]domain.Quiz{3: third, 1: sampleQuiz(), 2: inactive})
	list, err := loader.ListActiveQuizzes(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 3 {
		t.Fatalf("unexpected listing %+v", list)
	}
	if list[0].QuestionCount != 1 {
		t.Fatalf("expected question count 1, got %d", list[0].QuestionCount)
	}
}

func TestStaticQuizLoaderPutAndDelete(t *testing.T) {
	loader := NewStaticQuizLoader(map[int64]domain.Quiz{1: sampleQuiz()})
	second := sampleQuiz()
	second.ID = 2
	loader.Put(second)
	loader.Delete(1)

	if _, err := loader.LoadQuiz(context.Background(), 1); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected deleted quiz to be gone, got %v", err)
	}
	list, _ := loader.ListActiveQuizzes(context.Background())
	if len(list) != 1 || list[0].ID != 2 {
		t.Fatalf("unexpected listing %+v", list)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:          1,
		Title:       "Arithmetic",
		IsActive:    true,
		MaxAttempts: 1,
		Questions: []domain.Question{
			{
				ID:   10,
				Text: "What is 2 + 2?",
				Type: domain.QuestionMultipleChoice,
				Options: []domain.Option{
					{ID: 100, Text: "3", IsCorrect: false},
					{ID: 101, Text: "4", IsCorrect: true},
				},
				Points: 1,
			},
		},
	}
}

package memory

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"telegram-quiz-bot/internal/domain"
)

// QuizLoader reads quiz content from the system of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository is a process-local read-through cache in front of a QuizLoader.
// Concurrent misses for one quiz share a single load.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	jitter func(time.Duration) time.Duration
	loads  singleflight.Group

	mu      sync.RWMutex
	entries map[int64]quizEntry
}

type quizEntry struct {
	quiz    domain.Quiz
	expires time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		jitter:  spread(),
		entries: make(map[int64]quizEntry),
	}
}

// spread returns up to a tenth of ttl, so entries loaded together expire apart.
func spread() func(time.Duration) time.Duration {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(ttl time.Duration) time.Duration {
		if ttl < 10 {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rnd.Int63n(int64(ttl) / 10))
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.fresh(quizID); ok {
		return quiz, nil
	}
	v, err, _ := r.loads.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if quiz, ok := r.fresh(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		r.keep(quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return v.(domain.Quiz), nil
}

// Invalidate forgets quizID; the next read goes to the loader.
func (r *QuizRepository) Invalidate(_ context.Context, quizID int64) error {
	r.mu.Lock()
	delete(r.entries, quizID)
	r.mu.Unlock()
	return nil
}

func (r *QuizRepository) fresh(quizID int64) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[quizID]
	if !ok || !r.clock().Before(e.expires) {
		return domain.Quiz{}, false
	}
	return e.quiz, true
}

func (r *QuizRepository) keep(quizID int64, quiz domain.Quiz) {
	expires := r.clock().Add(r.ttl + r.jitter(r.ttl))
	r.mu.Lock()
	r.entries[quizID] = quizEntry{quiz: quiz, expires: expires}
	r.mu.Unlock()
}

// StaticQuizLoader serves quizzes from memory: demo mode and tests.
type StaticQuizLoader struct {
	mu      sync.RWMutex
	quizzes map[int64]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[int64]domain.Quiz) *StaticQuizLoader {
	own := make(map[int64]domain.Quiz, len(quizzes))
	for id, q := range quizzes {
		own[id] = q
	}
	return &StaticQuizLoader{quizzes: own}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// Put adds or replaces a quiz.
func (l *StaticQuizLoader) Put(quiz domain.Quiz) {
	l.mu.Lock()
	l.quizzes[quiz.ID] = quiz
	l.mu.Unlock()
}

// Delete removes a quiz; attempts referencing it are left alone.
func (l *StaticQuizLoader) Delete(quizID int64) {
	l.mu.Lock()
	delete(l.quizzes, quizID)
	l.mu.Unlock()
}

// ListActiveQuizzes returns active quizzes ordered by ID.
func (l *StaticQuizLoader) ListActiveQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	var out []domain.QuizSummary
	for _, quiz := range l.all() {
		if !quiz.IsActive {
			continue
		}
		out = append(out, domain.QuizSummary{
			ID:            quiz.ID,
			Title:         quiz.Title,
			TimeLimit:     quiz.TimeLimit,
			MaxAttempts:   quiz.MaxAttempts,
			QuestionCount: len(quiz.Questions),
		})
	}
	return out, nil
}

// all returns every quiz, active or not, ordered by ID.
func (l *StaticQuizLoader) all() []domain.Quiz {
	l.mu.RLock()
	out := make([]domain.Quiz, 0, len(l.quizzes))
	for _, quiz := range l.quizzes {
		out = append(out, quiz)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-quiz-bot/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// AttemptRepository persists attempts and their graded answers.
// SaveResult must write the answers and the terminal attempt atomically and
// return domain.ErrAttemptFinalized if the attempt is no longer in progress.
type AttemptRepository interface {
	CountAttempts(ctx context.Context, userID, quizID int64) (int, error)
	CreateAttempt(ctx context.Context, attempt *domain.Attempt) error
	SaveResult(ctx context.Context, attempt domain.Attempt, answers []domain.Answer) error
}

// OptionView is an answer choice as shown to the participant.
type OptionView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionView is everything the transport needs to present the current question.
type QuestionView struct {
	AttemptID  int64               `json:"attemptId"`
	QuizID     int64               `json:"quizId"`
	QuizTitle  string              `json:"quizTitle"`
	QuestionID int64               `json:"questionId"`
	Number     int                 `json:"number"` // 1-based
	Total      int                 `json:"total"`
	Text       string              `json:"text"`
	Type       domain.QuestionType `json:"type"`
	Options    []OptionView        `json:"options,omitempty"`
	Required   bool                `json:"required"`
	// TimeRemaining is nil when the quiz has no time limit.
	TimeRemaining *time.Duration    `json:"timeRemaining,omitempty"`
	HasPrev       bool              `json:"hasPrev"`
	Selected      *domain.RawAnswer `json:"selected,omitempty"`
}

// Result summarizes a finished attempt.
type Result struct {
	AttemptID    int64                `json:"attemptId"`
	UserID       int64                `json:"userId"`
	QuizID       int64                `json:"quizId"`
	QuizTitle    string               `json:"quizTitle"`
	Score        float64              `json:"score"`
	MaxScore     float64              `json:"maxScore"`
	Percentage   float64              `json:"percentage"`
	PassingScore float64              `json:"passingScore"`
	IsPassed     bool                 `json:"isPassed"`
	TimeTaken    int                  `json:"timeTaken"`
	Status       domain.AttemptStatus `json:"status"`
	Answered     int                  `json:"answered"`
	Total        int                  `json:"total"`
	ShowResults  bool                 `json:"showResults"`
	CompletedAt  time.Time            `json:"completedAt"`
	// Notify is set whenever the quiz has notification recipients, whatever the outcome.
	Notify     bool     `json:"notify"`
	Recipients []string `json:"recipients,omitempty"`
}

// Step is the outcome of a navigation call: either the next question or the final result.
type Step struct {
	Question *QuestionView
	Result   *Result
}

// Finished reports whether the attempt ended with this step.
func (s Step) Finished() bool {
	return s.Result != nil
}

// Start is the first question of a new attempt. Previous is set when a live
// attempt had to be closed to make room for it.
type Start struct {
	QuestionView
	Previous *Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithShuffle replaces the question shuffler used for randomized quizzes.
func WithShuffle(shuffle func([]int64)) Option {
	return func(e *Engine) { e.shuffle = shuffle }
}

// WithResultFeed publishes every finished attempt to feed.
func WithResultFeed(feed *ResultFeed) Option {
	return func(e *Engine) { e.feed = feed }
}

// Engine drives quiz attempts: one live session per participant, lazily expired.
type Engine struct {
	sessions SessionStore
	quizzes  QuizRepository
	attempts AttemptRepository
	feed     *ResultFeed
	now      func() time.Time
	shuffle  func([]int64)
}

func NewEngine(sessions SessionStore, quizzes QuizRepository, attempts AttemptRepository, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		quizzes:  quizzes,
		attempts: attempts,
		now:      time.Now,
		shuffle: func(ids []int64) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartAttempt opens a new attempt for userID and returns its first question.
// A live session on any quiz is closed once the quota check passes: as expired
// when its time limit has already passed, as abandoned otherwise.
func (e *Engine) StartAttempt(ctx context.Context, userID, quizID int64) (Start, error) {
	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			return Start{}, fmt.Errorf("%w: quiz %d not found", domain.ErrQuizUnavailable, quizID)
		}
		return Start{}, fmt.Errorf("load quiz %d: %w", quizID, err)
	}
	if !quiz.IsActive || len(quiz.Questions) == 0 {
		return Start{}, fmt.Errorf("%w: quiz %d", domain.ErrQuizUnavailable, quizID)
	}
	if quiz.MaxAttempts <= 0 {
		return Start{}, domain.ErrAttemptsExhausted
	}
	used, err := e.attempts.CountAttempts(ctx, userID, quizID)
	if err != nil {
		return Start{}, fmt.Errorf("count attempts: %w", err)
	}
	if used >= quiz.MaxAttempts {
		return Start{}, domain.ErrAttemptsExhausted
	}

	previous, err := e.closeLive(ctx, userID)
	if err != nil {
		return Start{}, fmt.Errorf("close previous attempt: %w", err)
	}

	now := e.now()
	attempt := domain.Attempt{
		UserID:    userID,
		QuizID:    quizID,
		StartedAt: now,
		Status:    domain.StatusInProgress,
	}
	if err := e.attempts.CreateAttempt(ctx, &attempt); err != nil {
		return Start{}, fmt.Errorf("create attempt: %w", err)
	}

	session := &Session{
		AttemptID:     attempt.ID,
		QuizID:        quizID,
		UserID:        userID,
		QuestionOrder: e.questionOrder(quiz),
		Current:       0,
		StartedAt:     now,
		Answers:       make(map[int64]domain.RawAnswer),
	}
	if err := e.sessions.Put(ctx, userID, session); err != nil {
		return Start{}, fmt.Errorf("store session: %w", err)
	}

	log.Info().Int64("userID", userID).Int64("quizID", quizID).Int64("attemptID", attempt.ID).Msg("attempt started")
	view, err := e.view(quiz, session, now)
	if err != nil {
		return Start{}, err
	}
	return Start{QuestionView: view, Previous: previous}, nil
}

// closeLive finalizes whatever attempt userID still has open. It returns nil
// when there was none, or when it could no longer be graded.
func (e *Engine) closeLive(ctx context.Context, userID int64) (*Result, error) {
	session, quiz, err := e.load(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNoActiveSession), errors.Is(err, domain.ErrQuizUnavailable):
		return nil, nil
	case err != nil:
		return nil, err
	}

	now := e.now()
	outcome := domain.StatusAbandoned
	if expired(quiz, session, now) {
		outcome = domain.StatusExpired
	}
	res, err := e.finalize(ctx, session, quiz, outcome, now)
	if errors.Is(err, domain.ErrAttemptFinalized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Advance records answer for questionID and moves to the next question, or
// finalizes the attempt after the last one. An attempt past its time limit is
// expired and the submitted answer is discarded.
func (e *Engine) Advance(ctx context.Context, userID, questionID int64, answer domain.RawAnswer) (Step, error) {
	return e.move(ctx, userID, questionID, func(s *Session) {
		s.Answers[questionID] = answer
		s.Current++
	})
}

// Skip moves past questionID without recording an answer.
func (e *Engine) Skip(ctx context.Context, userID, questionID int64) (Step, error) {
	return e.move(ctx, userID, questionID, func(s *Session) {
		s.Current++
	})
}

// Back returns to the previous question. On the first question it stays put.
func (e *Engine) Back(ctx context.Context, userID, questionID int64) (Step, error) {
	return e.move(ctx, userID, questionID, func(s *Session) {
		if s.Current > 0 {
			s.Current--
		}
	})
}

// Current returns the question the participant is on without changing anything.
func (e *Engine) Current(ctx context.Context, userID int64) (QuestionView, error) {
	session, quiz, err := e.load(ctx, userID)
	if err != nil {
		return QuestionView{}, err
	}
	return e.view(quiz, session, e.now())
}

// CheckTimeout expires the attempt if its time limit has passed.
// The bool reports whether the attempt was expired by this call.
func (e *Engine) CheckTimeout(ctx context.Context, userID int64) (Result, bool, error) {
	session, quiz, err := e.load(ctx, userID)
	if err != nil {
		return Result{}, false, err
	}
	now := e.now()
	if !expired(quiz, session, now) {
		return Result{}, false, nil
	}
	res, err := e.finalize(ctx, session, quiz, domain.StatusExpired, now)
	if err != nil {
		return Result{}, false, err
	}
	return res, true, nil
}

// Abandon finalizes the live attempt as abandoned.
func (e *Engine) Abandon(ctx context.Context, userID int64) (Result, error) {
	return e.Finalize(ctx, userID, domain.StatusAbandoned)
}

// Finalize grades the recorded answers, persists the attempt with outcome and
// removes the session.
func (e *Engine) Finalize(ctx context.Context, userID int64, outcome domain.AttemptStatus) (Result, error) {
	if !outcome.Terminal() {
		return Result{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, domain.StatusInProgress, outcome)
	}
	session, quiz, err := e.load(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return e.finalize(ctx, session, quiz, outcome, e.now())
}

func (e *Engine) move(ctx context.Context, userID, questionID int64, mutate func(*Session)) (Step, error) {
	session, quiz, err := e.load(ctx, userID)
	if err != nil {
		return Step{}, err
	}

	now := e.now()
	if expired(quiz, session, now) {
		res, err := e.finalize(ctx, session, quiz, domain.StatusExpired, now)
		if err != nil {
			return Step{}, err
		}
		return Step{Result: &res}, nil
	}

	current, ok := session.CurrentQuestionID()
	if !ok || current != questionID {
		log.Debug().Int64("userID", userID).Int64("questionID", questionID).Int64("current", current).Msg("stale answer ignored")
		return Step{}, fmt.Errorf("%w: question %d, current %d", domain.ErrStaleAnswer, questionID, current)
	}

	mutate(session)
	if session.Current >= len(session.QuestionOrder) {
		res, err := e.finalize(ctx, session, quiz, domain.StatusCompleted, now)
		if err != nil {
			return Step{}, err
		}
		return Step{Result: &res}, nil
	}

	if err := e.sessions.Put(ctx, userID, session); err != nil {
		return Step{}, fmt.Errorf("store session: %w", err)
	}
	view, err := e.view(quiz, session, now)
	if err != nil {
		return Step{}, err
	}
	return Step{Question: &view}, nil
}

// load fetches the live session and its quiz. A session whose quiz vanished
// cannot be graded: its attempt is closed as abandoned with no score and the
// session is dropped.
func (e *Engine) load(ctx context.Context, userID int64) (*Session, domain.Quiz, error) {
	session, ok, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, domain.Quiz{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil, domain.Quiz{}, domain.ErrNoActiveSession
	}
	if session.Answers == nil {
		session.Answers = make(map[int64]domain.RawAnswer)
	}

	quiz, err := e.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			e.dropOrphan(ctx, session)
			return nil, domain.Quiz{}, fmt.Errorf("%w: quiz %d not found", domain.ErrQuizUnavailable, session.QuizID)
		}
		return nil, domain.Quiz{}, fmt.Errorf("load quiz %d: %w", session.QuizID, err)
	}
	return session, quiz, nil
}

func (e *Engine) dropOrphan(ctx context.Context, session *Session) {
	now := e.now()
	taken := int(session.Elapsed(now) / time.Second)
	if taken < 0 {
		taken = 0
	}
	attempt := domain.Attempt{
		ID:          session.AttemptID,
		UserID:      session.UserID,
		QuizID:      session.QuizID,
		StartedAt:   session.StartedAt,
		CompletedAt: &now,
		TimeTaken:   taken,
		Status:      domain.StatusAbandoned,
	}
	err := e.attempts.SaveResult(ctx, attempt, nil)
	if err != nil && !errors.Is(err, domain.ErrAttemptFinalized) {
		log.Error().Err(err).Int64("attemptID", session.AttemptID).Msg("close orphaned attempt")
	}
	if err := e.sessions.Remove(ctx, session.UserID); err != nil {
		log.Error().Err(err).Int64("userID", session.UserID).Msg("remove orphaned session")
	}
	log.Warn().Int64("attemptID", session.AttemptID).Int64("quizID", session.QuizID).Msg("quiz vanished, attempt abandoned")
}

func (e *Engine) finalize(ctx context.Context, session *Session, quiz domain.Quiz, outcome domain.AttemptStatus, now time.Time) (Result, error) {
	status, err := domain.StatusInProgress.Transition(outcome)
	if err != nil {
		return Result{}, err
	}

	answers := grade(quiz, session)
	score := totalScore(answers)
	maxScore := quiz.MaxScore()
	pct := percentage(score, maxScore)

	taken := int(session.Elapsed(now) / time.Second)
	if taken < 0 {
		taken = 0
	}
	completedAt := now
	attempt := domain.Attempt{
		ID:          session.AttemptID,
		UserID:      session.UserID,
		QuizID:      session.QuizID,
		StartedAt:   session.StartedAt,
		CompletedAt: &completedAt,
		Score:       score,
		MaxScore:    maxScore,
		Percentage:  pct,
		IsPassed:    pct >= quiz.PassingScore,
		TimeTaken:   taken,
		Status:      status,
	}

	if err := e.attempts.SaveResult(ctx, attempt, answers); err != nil {
		if errors.Is(err, domain.ErrAttemptFinalized) {
			// Storage already holds a terminal attempt; the session is stale.
			if rmErr := e.sessions.Remove(ctx, session.UserID); rmErr != nil {
				log.Error().Err(rmErr).Int64("userID", session.UserID).Msg("remove stale session")
			}
		}
		return Result{}, fmt.Errorf("save attempt %d: %w", session.AttemptID, err)
	}

	// The attempt is terminal in storage now, so a leftover session would be
	// rejected by SaveResult on its next finalize.
	if err := e.sessions.Remove(ctx, session.UserID); err != nil {
		log.Error().Err(err).Int64("userID", session.UserID).Msg("remove finished session")
	}

	res := Result{
		AttemptID:    attempt.ID,
		UserID:       attempt.UserID,
		QuizID:       attempt.QuizID,
		QuizTitle:    quiz.Title,
		Score:        score,
		MaxScore:     maxScore,
		Percentage:   pct,
		PassingScore: quiz.PassingScore,
		IsPassed:     attempt.IsPassed,
		TimeTaken:    taken,
		Status:       status,
		Answered:     len(answers),
		Total:        len(quiz.Questions),
		ShowResults:  quiz.ShowResults,
		CompletedAt:  completedAt,
		Notify:       len(quiz.NotificationEmails) > 0,
		Recipients:   append([]string(nil), quiz.NotificationEmails...),
	}
	if e.feed != nil {
		e.feed.Publish(res)
	}

	log.Info().
		Int64("userID", res.UserID).
		Int64("attemptID", res.AttemptID).
		Str("status", string(res.Status)).
		Float64("score", res.Score).
		Float64("maxScore", res.MaxScore).
		Msg("attempt finalized")
	return res, nil
}

func (e *Engine) questionOrder(quiz domain.Quiz) []int64 {
	questions := append([]domain.Question(nil), quiz.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	if quiz.RandomizeQuestions && e.shuffle != nil {
		e.shuffle(ids)
	}
	return ids
}

func (e *Engine) view(quiz domain.Quiz, session *Session, now time.Time) (QuestionView, error) {
	id, ok := session.CurrentQuestionID()
	if !ok {
		return QuestionView{}, fmt.Errorf("%w: session for attempt %d has no current question", domain.ErrNoActiveSession, session.AttemptID)
	}
	question, ok := quiz.Question(id)
	if !ok {
		return QuestionView{}, fmt.Errorf("%w: question %d missing from quiz %d", domain.ErrQuizUnavailable, id, quiz.ID)
	}

	options := append([]domain.Option(nil), question.Options...)
	sort.SliceStable(options, func(i, j int) bool { return options[i].Order < options[j].Order })
	views := make([]OptionView, 0, len(options))
	for _, opt := range options {
		views = append(views, OptionView{ID: opt.ID, Text: opt.Text})
	}

	v := QuestionView{
		AttemptID:  session.AttemptID,
		QuizID:     quiz.ID,
		QuizTitle:  quiz.Title,
		QuestionID: question.ID,
		Number:     session.Current + 1,
		Total:      len(session.QuestionOrder),
		Text:       question.Text,
		Type:       question.Type,
		Options:    views,
		Required:   question.Required,
		HasPrev:    session.Current > 0,
	}
	if quiz.TimeLimit > 0 {
		remaining := quiz.TimeLimit - session.Elapsed(now)
		if remaining < 0 {
			remaining = 0
		}
		v.TimeRemaining = &remaining
	}
	if prev, ok := session.Answers[question.ID]; ok {
		v.Selected = &prev
	}
	return v, nil
}

func expired(quiz domain.Quiz, session *Session, now time.Time) bool {
	return quiz.TimeLimit > 0 && session.Elapsed(now) > quiz.TimeLimit
}

package app

import (
	"context"
	"time"

	"telegram-quiz-bot/internal/domain"
)

// SessionStore abstracts where live quiz sessions are kept (in-memory, Redis, etc).
// Implementations hold at most one session per participant and must be safe for
// concurrent use by different participants. Get returns a copy; callers persist
// their changes with Put.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*Session, bool, error)
	Put(ctx context.Context, userID int64, session *Session) error
	Remove(ctx context.Context, userID int64) error
}

// Session is the in-progress state of one attempt.
type Session struct {
	AttemptID     int64                      `json:"attemptId"`
	QuizID        int64                      `json:"quizId"`
	UserID        int64                      `json:"userId"`
	QuestionOrder []int64                    `json:"questionOrder"`
	Current       int                        `json:"current"`
	StartedAt     time.Time                  `json:"startedAt"`
	Answers       map[int64]domain.RawAnswer `json:"answers"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.QuestionOrder = append([]int64(nil), s.QuestionOrder...)
	cp.Answers = make(map[int64]domain.RawAnswer, len(s.Answers))
	for id, answer := range s.Answers {
		cp.Answers[id] = answer
	}
	return &cp
}

// CurrentQuestionID returns the question the participant is looking at.
func (s *Session) CurrentQuestionID() (int64, bool) {
	if s.Current < 0 || s.Current >= len(s.QuestionOrder) {
		return 0, false
	}
	return s.QuestionOrder[s.Current], true
}

// Elapsed is the wall-clock time since the attempt started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

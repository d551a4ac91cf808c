package domain

import "time"

// QuestionType selects how a question is presented and graded.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionText           QuestionType = "text"
	QuestionBoolean        QuestionType = "boolean"
)

// DefaultPoints is used for questions stored without an explicit weight.
const DefaultPoints = 1.0

// User is a Telegram participant known to the bot.
type User struct {
	ID         int64  `json:"id"`
	TelegramID int64  `json:"telegramId"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	IsActive   bool   `json:"isActive"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Option represents a possible answer for a multiple choice question.
type Option struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

// Question is a single quiz item. Options are only meaningful for multiple choice.
type Question struct {
	ID          int64        `json:"id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Options     []Option     `json:"options,omitempty"`
	Points      float64      `json:"points"` // defaults to 1 if zero
	Required    bool         `json:"required"`
	Explanation string       `json:"explanation,omitempty"`
	Order       int          `json:"order"`
}

// Weight returns the points a correct answer earns.
func (q Question) Weight() float64 {
	if q.Points <= 0 {
		return DefaultPoints
	}
	return q.Points
}

// Option looks up an option by ID.
func (q Question) Option(id int64) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is the read-only definition a participant takes. Questions are kept in Order.
type Quiz struct {
	ID                 int64         `json:"id"`
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Instructions       string        `json:"instructions,omitempty"`
	IsActive           bool          `json:"isActive"`
	TimeLimit          time.Duration `json:"timeLimit"` // zero means no limit
	MaxAttempts        int           `json:"maxAttempts"`
	PassingScore       float64       `json:"passingScore"`
	RandomizeQuestions bool          `json:"randomizeQuestions"`
	ShowResults        bool          `json:"showResults"`
	NotificationEmails []string      `json:"notificationEmails,omitempty"`
	Questions          []Question    `json:"questions"`
}

// Question looks up a question by ID.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// MaxScore is the sum of every question's weight, answered or not.
func (q Quiz) MaxScore() float64 {
	total := 0.0
	for _, question := range q.Questions {
		total += question.Weight()
	}
	return total
}

// QuizSummary is the listing view of an active quiz.
type QuizSummary struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	TimeLimit     time.Duration `json:"timeLimit"`
	MaxAttempts   int           `json:"maxAttempts"`
	QuestionCount int           `json:"questionCount"`
}

// RawAnswer is what a participant submitted for one question: an option for
// multiple choice, free text otherwise.
type RawAnswer struct {
	OptionID int64  `json:"optionId,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Attempt is one persisted run of a participant through a quiz.
type Attempt struct {
	ID          int64         `json:"id"`
	UserID      int64         `json:"userId"`
	QuizID      int64         `json:"quizId"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Score       float64       `json:"score"`
	MaxScore    float64       `json:"maxScore"`
	Percentage  float64       `json:"percentage"`
	IsPassed    bool          `json:"isPassed"`
	TimeTaken   int           `json:"timeTaken"` // seconds
	Status      AttemptStatus `json:"status"`
}

// AttemptSummary joins an attempt with the title of its quiz for result listings.
type AttemptSummary struct {
	Attempt
	QuizTitle string `json:"quizTitle"`
}

// Answer is the graded record of one question within a finished attempt.
type Answer struct {
	ID               int64   `json:"id"`
	AttemptID        int64   `json:"attemptId"`
	QuestionID       int64   `json:"questionId"`
	SelectedOptionID *int64  `json:"selectedOptionId,omitempty"`
	TextAnswer       *string `json:"textAnswer,omitempty"`
	IsCorrect        bool    `json:"isCorrect"`
	PointsEarned     float64 `json:"pointsEarned"`
}

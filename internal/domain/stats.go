package domain

// AttemptStats aggregates a set of attempts. Only completed attempts count
// towards AverageScore (mean percentage) and Passed.
type AttemptStats struct {
	Attempts     int     `json:"attempts"`
	Completed    int     `json:"completed"`
	Passed       int     `json:"passed"`
	AverageScore float64 `json:"averageScore"`
}

// PassRate is the percentage of completed attempts that passed.
func (s AttemptStats) PassRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Completed) * 100
}

// SystemStats is the administrator overview.
type SystemStats struct {
	TotalUsers     int `json:"totalUsers"`
	ActiveUsers    int `json:"activeUsers"`
	TotalQuizzes   int `json:"totalQuizzes"`
	ActiveQuizzes  int `json:"activeQuizzes"`
	TotalQuestions int `json:"totalQuestions"`
	AttemptStats
}

// QuizOverview is a row of the administrator quiz list, inactive quizzes included.
type QuizOverview struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	IsActive      bool   `json:"isActive"`
	QuestionCount int    `json:"questionCount"`
	Attempts      int    `json:"attempts"`
}

// UserOverview is a row of the administrator user list.
type UserOverview struct {
	User
	Attempts int `json:"attempts"`
}

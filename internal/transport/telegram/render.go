package telegram

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
)

// Inline button prototypes; handlers are registered against their Unique.
var (
	btnQuizInfo  = tele.Btn{Unique: "quiz_info"}
	btnStartQuiz = tele.Btn{Unique: "start_quiz"}
	btnQuizzes   = tele.Btn{Unique: "quizzes"}
	btnAnswer    = tele.Btn{Unique: "answer"}
	btnSkip      = tele.Btn{Unique: "skip"}
	btnPrev      = tele.Btn{Unique: "prev"}
	btnFinish    = tele.Btn{Unique: "finish"}
)

// QuizChoice is an entry of the /quizzes list.
type QuizChoice struct {
	domain.QuizSummary
	AttemptsLeft int
}

func welcomeText(user domain.User) string {
	return fmt.Sprintf(`🎯 <b>Welcome to Quiz Bot, %s!</b>

I can help you take quizzes and tests. Here's what you can do:

📝 /quizzes - View available quizzes
📊 /my_results - View your quiz results
👤 /profile - View your profile
🛑 /cancel - Abandon the quiz in progress
❓ /help - Get help

To get started, use /quizzes to see available tests!`, html.EscapeString(user.FirstName))
}

func helpText() string {
	return `🤖 <b>Quiz Bot Help</b>

<b>Available Commands:</b>
/start - Start the bot
/quizzes - View available quizzes
/my_results - View your quiz results
/profile - View your profile
/cancel - Abandon the quiz in progress
/help - Show this help message

<b>How to take a quiz:</b>
1. Use /quizzes to see available tests
2. Select a quiz from the list
3. Read the instructions carefully
4. Answer all questions
5. View your results

Starting another quiz abandons the one in progress.`
}

func quizListMessage(choices []QuizChoice) (string, *tele.ReplyMarkup) {
	if len(choices) == 0 {
		return "📝 You have completed all available quizzes or reached the maximum attempts.", nil
	}
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(choices))
	for _, c := range choices {
		label := "📝 " + c.Title
		if c.TimeLimit > 0 {
			label += fmt.Sprintf(" (%dmin)", int(c.TimeLimit/time.Minute))
		}
		rows = append(rows, m.Row(m.Data(label, btnQuizInfo.Unique, id(c.ID))))
	}
	m.Inline(rows...)
	return "📚 <b>Available Quizzes:</b>\n\nSelect a quiz to view details and start:", m
}

func quizInfoMessage(quiz domain.Quiz, attemptsLeft int) (string, *tele.ReplyMarkup) {
	description := quiz.Description
	if description == "" {
		description = "No description available."
	}
	instructions := quiz.Instructions
	if instructions == "" {
		instructions = "Answer all questions to the best of your ability."
	}
	limit := "No limit"
	if quiz.TimeLimit > 0 {
		limit = fmt.Sprintf("%d minutes", int(quiz.TimeLimit/time.Minute))
	}

	text := fmt.Sprintf(`📝 <b>%s</b>

<b>Description:</b>
%s

<b>Details:</b>
• Questions: %d
• Time limit: %s
• Passing score: %s%%
• Attempts left: %d/%d

<b>Instructions:</b>
%s`,
		html.EscapeString(quiz.Title), html.EscapeString(description), len(quiz.Questions), limit,
		number(quiz.PassingScore), attemptsLeft, quiz.MaxAttempts, html.EscapeString(instructions))

	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("🚀 Start Quiz", btnStartQuiz.Unique, id(quiz.ID))),
		m.Row(m.Data("⬅️ Back to Quizzes", btnQuizzes.Unique)),
	)
	return text, m
}

func questionMessage(v app.QuestionView) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "❓ <b>Question %d of %d</b>\n\n%s\n", v.Number, v.Total, html.EscapeString(v.Text))

	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	switch v.Type {
	case domain.QuestionMultipleChoice:
		for i, opt := range v.Options {
			label := fmt.Sprintf("%c. %s", 'A'+i, opt.Text)
			if v.Selected != nil && v.Selected.OptionID == opt.ID {
				label = "✓ " + label
			}
			rows = append(rows, m.Row(m.Data(label, btnAnswer.Unique, id(v.QuestionID), id(opt.ID))))
		}
	case domain.QuestionBoolean:
		b.WriteString("\nPlease type your answer (true or false):")
	default:
		b.WriteString("\nPlease type your answer:")
	}
	if v.Selected != nil && v.Selected.Text != "" {
		fmt.Fprintf(&b, "\n<i>Your previous answer: %s</i>", html.EscapeString(v.Selected.Text))
	}
	if v.TimeRemaining != nil {
		secs := int(v.TimeRemaining.Seconds())
		fmt.Fprintf(&b, "\n\n⏰ Time remaining: %d:%02d", secs/60, secs%60)
	}

	var nav []tele.Btn
	if v.HasPrev {
		nav = append(nav, m.Data("⬅️ Previous", btnPrev.Unique, id(v.QuestionID)))
	}
	if v.Number < v.Total {
		nav = append(nav, m.Data("➡️ Skip", btnSkip.Unique, id(v.QuestionID)))
	} else {
		nav = append(nav, m.Data("✅ Finish Quiz", btnFinish.Unique, id(v.QuestionID)))
	}
	rows = append(rows, m.Row(nav...))
	m.Inline(rows...)
	return b.String(), m
}

func resultMessage(r app.Result) string {
	var b strings.Builder
	switch r.Status {
	case domain.StatusExpired:
		b.WriteString("⏰ <b>Time's up!</b>\n\nThe quiz has expired. You can start a new attempt if you have attempts remaining.\n\n")
	case domain.StatusAbandoned:
		b.WriteString("🛑 <b>Quiz abandoned.</b>\n\n")
	default:
		if r.IsPassed {
			b.WriteString("🎉 <b>Quiz Completed!</b>\n\n")
		} else {
			b.WriteString("😔 <b>Quiz Completed!</b>\n\n")
		}
	}
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(r.QuizTitle))

	if !r.ShowResults {
		b.WriteString("\nYour answers have been recorded.")
		return b.String()
	}

	verdict := "Failed"
	if r.IsPassed {
		verdict = "Passed"
	}
	fmt.Fprintf(&b, `
<b>Results:</b>
• Score: %s/%s (%.1f%%)
• Status: %s
• Answered: %d of %d
• Time taken: %dm %ds
• Passing score: %s%%`,
		number(r.Score), number(r.MaxScore), r.Percentage, verdict, r.Answered, r.Total,
		r.TimeTaken/60, r.TimeTaken%60, number(r.PassingScore))
	return b.String()
}

func historyMessage(attempts []domain.AttemptSummary) string {
	if len(attempts) == 0 {
		return "📊 You haven't taken any quizzes yet. Use /quizzes to get started!"
	}
	var b strings.Builder
	b.WriteString("📊 <b>Your Quiz Results:</b>\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "\n<b>%s</b> · %s\n", html.EscapeString(a.QuizTitle), a.StartedAt.UTC().Format("2006-01-02 15:04"))
		switch a.Status {
		case domain.StatusInProgress:
			b.WriteString("⏳ In progress\n")
		case domain.StatusCompleted:
			mark := "❌"
			if a.IsPassed {
				mark = "✅"
			}
			fmt.Fprintf(&b, "%s %s/%s (%.1f%%)\n", mark, number(a.Score), number(a.MaxScore), a.Percentage)
		default:
			fmt.Fprintf(&b, "⚠️ %s, %s/%s (%.1f%%)\n", a.Status, number(a.Score), number(a.MaxScore), a.Percentage)
		}
	}
	return b.String()
}

func profileMessage(user domain.User, stats domain.AttemptStats) string {
	username := "Not set"
	if user.Username != "" {
		username = "@" + user.Username
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>Your Profile:</b>\n\n<b>Name:</b> %s\n<b>Username:</b> %s\n",
		html.EscapeString(fullName(user)), html.EscapeString(username))
	if !user.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "<b>Member since:</b> %s\n", user.CreatedAt.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "<b>Total quizzes taken:</b> %d\n", stats.Attempts)
	if stats.Completed > 0 {
		fmt.Fprintf(&b, "<b>Completed:</b> %d (passed %d)\n<b>Average score:</b> %.1f%%\n",
			stats.Completed, stats.Passed, stats.AverageScore)
	}
	return b.String()
}

// errorMessage maps engine errors to user-facing text. Unknown errors get a
// generic apology; the details are logged by the caller.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizUnavailable), errors.Is(err, domain.ErrQuizNotFound):
		return "❌ Quiz not found or no longer available."
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return "❌ You have reached the maximum number of attempts for this quiz."
	case errors.Is(err, domain.ErrNoActiveSession):
		return "❌ No active quiz session found. Use /quizzes to start a new quiz."
	case errors.Is(err, domain.ErrStaleAnswer):
		return "⚠️ That question is no longer active."
	default:
		return "⚠️ Something went wrong. Please try again later."
	}
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

// number prints whole values without decimals and keeps fractional ones short.
func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/domain"
)

var (
	btnAdminStats   = tele.Btn{Unique: "admin_stats"}
	btnAdminQuizzes = tele.Btn{Unique: "admin_quizzes"}
	btnAdminQuiz    = tele.Btn{Unique: "admin_quiz"}
	btnAdminReload  = tele.Btn{Unique: "admin_reload"}
	btnAdminUsers   = tele.Btn{Unique: "admin_users"}
	btnAdminUser    = tele.Btn{Unique: "admin_user"}
)

func adminMenuText(name string) string {
	return fmt.Sprintf(`🔧 <b>Admin Quiz Bot Control Panel</b>

Welcome, %s!

📊 /stats - View system statistics
📝 /list_quizzes - List all quizzes
👥 /list_users - List all users
👤 /user &lt;telegram_id&gt; - View user details`, html.EscapeString(name))
}

func statsMessage(s domain.SystemStats) (string, *tele.ReplyMarkup) {
	text := fmt.Sprintf(`📊 <b>System Statistics</b>

👥 <b>Users:</b>
• Total users: %d
• Active users: %d

📝 <b>Quizzes:</b>
• Total quizzes: %d
• Active quizzes: %d
• Total questions: %d

📊 <b>Attempts:</b>
• Total attempts: %d
• Completed attempts: %d
• Average score: %.1f%%
• Pass rate: %.1f%%`,
		s.TotalUsers, s.ActiveUsers, s.TotalQuizzes, s.ActiveQuizzes, s.TotalQuestions,
		s.Attempts, s.Completed, s.AverageScore, s.PassRate())

	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.Data("🔄 Refresh", btnAdminStats.Unique)))
	return text, m
}

func adminQuizListMessage(quizzes []domain.QuizOverview) (string, *tele.ReplyMarkup) {
	if len(quizzes) == 0 {
		return "📝 No quizzes found.", nil
	}
	var b strings.Builder
	b.WriteString("📚 <b>All Quizzes:</b>\n\n")
	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(quizzes))
	for _, q := range quizzes {
		fmt.Fprintf(&b, "%s <b>%s</b>\n   Questions: %d | Attempts: %d\n\n",
			activeMark(q.IsActive), html.EscapeString(q.Title), q.QuestionCount, q.Attempts)
		rows = append(rows, m.Row(m.Data("📝 "+q.Title, btnAdminQuiz.Unique, id(q.ID))))
	}
	m.Inline(rows...)
	return b.String(), m
}

func quizDetailsMessage(quiz domain.Quiz, stats domain.AttemptStats) (string, *tele.ReplyMarkup) {
	status := "❌ Inactive"
	if quiz.IsActive {
		status = "✅ Active"
	}
	limit := "No limit"
	if quiz.TimeLimit > 0 {
		limit = fmt.Sprintf("%d minutes", int(quiz.TimeLimit/time.Minute))
	}
	description := quiz.Description
	if description == "" {
		description = "No description"
	}

	text := fmt.Sprintf(`📝 <b>Quiz Details: %s</b>

<b>Basic Information:</b>
• Status: %s
• Questions: %d
• Time limit: %s
• Max attempts: %d
• Passing score: %s%%

<b>Description:</b>
%s

<b>Statistics:</b>
• Total attempts: %d
• Completed attempts: %d
• Average score: %.1f%%
• Pass rate: %.1f%%

<b>Notifications:</b>
• Email recipients: %d`,
		html.EscapeString(quiz.Title), status, len(quiz.Questions), limit, quiz.MaxAttempts,
		number(quiz.PassingScore), html.EscapeString(description),
		stats.Attempts, stats.Completed, stats.AverageScore, stats.PassRate(),
		len(quiz.NotificationEmails))

	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("🔄 Reload", btnAdminReload.Unique, id(quiz.ID))),
		m.Row(m.Data("⬅️ Back to Quizzes", btnAdminQuizzes.Unique)),
	)
	return text, m
}

// usersPageMessage renders page (zero based) of pages.
func usersPageMessage(users []domain.UserOverview, page, pages int) (string, *tele.ReplyMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>Users (Page %d/%d)</b>\n\n", page+1, pages)

	m := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(users)+1)
	for _, u := range users {
		fmt.Fprintf(&b, "%s <b>%s</b>\n   %s | ID: %d\n   Quizzes taken: %d\n   Last activity: %s\n\n",
			activeMark(u.IsActive), html.EscapeString(fullName(u.User)), html.EscapeString(handle(u.User)),
			u.TelegramID, u.Attempts, stamp(u.LastActivity))
		rows = append(rows, m.Row(m.Data("👤 "+u.FirstName, btnAdminUser.Unique, id(u.TelegramID))))
	}

	var nav []tele.Btn
	if page > 0 {
		nav = append(nav, m.Data("⬅️ Previous", btnAdminUsers.Unique, id(int64(page-1))))
	}
	if page < pages-1 {
		nav = append(nav, m.Data("➡️ Next", btnAdminUsers.Unique, id(int64(page+1))))
	}
	if len(nav) > 0 {
		rows = append(rows, m.Row(nav...))
	}
	m.Inline(rows...)
	return b.String(), m
}

func userDetailsMessage(user domain.User, stats domain.AttemptStats) string {
	status := "❌ Deactivated"
	if user.IsActive {
		status = "✅ Active"
	}
	return fmt.Sprintf(`👤 <b>%s</b>

• Username: %s
• Telegram ID: %d
• Status: %s
• Registered: %s
• Last activity: %s

<b>Attempts:</b>
• Total: %d
• Completed: %d
• Passed: %d
• Average score: %.1f%%`,
		html.EscapeString(fullName(user)), html.EscapeString(handle(user)), user.TelegramID, status,
		stamp(user.CreatedAt), stamp(user.LastActivity),
		stats.Attempts, stats.Completed, stats.Passed, stats.AverageScore)
}

func activeMark(active bool) string {
	if active {
		return "✅"
	}
	return "❌"
}

func fullName(u domain.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func handle(u domain.User) string {
	if u.Username == "" {
		return "No username"
	}
	return "@" + u.Username
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

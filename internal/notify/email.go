package notify

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"
)

var emailBody = template.Must(template.New("completion").Funcs(template.FuncMap{
	"duration": formatSeconds,
	"pct":      func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
	"num":      func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	"verdict": func(passed bool) string {
		if passed {
			return "Passed"
		}
		return "Failed"
	},
}).Parse(`Quiz Completion Notification

User Details:
- Name: {{.User.FirstName}} {{.User.LastName}}
- Username: @{{if .User.Username}}{{.User.Username}}{{else}}Not set{{end}}
- Telegram ID: {{.User.TelegramID}}

Quiz Details:
- Title: {{.Result.QuizTitle}}
- Outcome: {{.Result.Status}}

Results:
- Score: {{num .Result.Score}}/{{num .Result.MaxScore}} ({{pct .Result.Percentage}}%)
- Status: {{verdict .Result.IsPassed}}
- Time Taken: {{duration .Result.TimeTaken}}
- Completed At: {{.Result.CompletedAt.UTC.Format "2006-01-02 15:04:05 UTC"}}

Passing Score: {{num .Result.PassingScore}}%

This is an automated notification from the Telegram Quiz Bot.
`))

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails completion notices to the quiz's notification recipients.
type EmailNotifier struct {
	addr string
	from string
	auth smtp.Auth
	send SendFunc
}

// NewEmailNotifier builds a notifier for host:port. Auth is skipped when
// username is empty.
func NewEmailNotifier(host string, port int, username, password, from string) *EmailNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailNotifier{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		auth: auth,
		send: smtp.SendMail,
	}
}

// WithSender replaces the SMTP transport, mainly for tests.
func (n *EmailNotifier) WithSender(send SendFunc) *EmailNotifier {
	n.send = send
	return n
}

func (n *EmailNotifier) NotifyCompletion(_ context.Context, c Completion) error {
	if !c.Result.Notify || len(c.Result.Recipients) == 0 {
		return nil
	}
	msg, err := n.message(c)
	if err != nil {
		return err
	}
	if err := n.send(n.addr, n.auth, n.from, c.Result.Recipients, msg); err != nil {
		return fmt.Errorf("send completion email for attempt %d: %w", c.Result.AttemptID, err)
	}
	log.Info().Int64("attemptID", c.Result.AttemptID).Int("recipients", len(c.Result.Recipients)).Msg("completion email sent")
	return nil
}

func (n *EmailNotifier) message(c Completion) ([]byte, error) {
	var body bytes.Buffer
	if err := emailBody.Execute(&body, c); err != nil {
		return nil, fmt.Errorf("render completion email: %w", err)
	}

	subject := strings.TrimSpace(fmt.Sprintf("Quiz Completed: %s - %s %s", c.Result.QuizTitle, c.User.FirstName, c.User.LastName))

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.Result.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", c.Result.CompletedAt.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
)

func sampleCompletion(recipients ...string) Completion {
	return Completion{
		Result: app.Result{
			AttemptID:    12,
			QuizTitle:    "Go Basics",
			Score:        3,
			MaxScore:     4,
			Percentage:   75,
			PassingScore: 60,
			IsPassed:     true,
			TimeTaken:    125,
			Status:       domain.StatusCompleted,
			CompletedAt:  time.Date(2024, 5, 1, 9, 2, 5, 0, time.UTC),
			Notify:       len(recipients) > 0,
			Recipients:   recipients,
		},
		User: domain.User{TelegramID: 555, FirstName: "Ann", LastName: "Lee", Username: "annlee"},
	}
}

func TestEmailNotifierSendsToRecipients(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n := NewEmailNotifier("smtp.example.com", 587, "", "", "bot@example.com").
		WithSender(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			return nil
		})

	if err := n.NotifyCompletion(context.Background(), sampleCompletion("hr@example.com", "lead@example.com")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 2 {
		t.Fatalf("unexpected envelope addr=%s to=%v", gotAddr, gotTo)
	}
	for _, want := range []string{
		"Subject: Quiz Completed: Go Basics - Ann Lee",
		"Score: 3/4 (75.0%)",
		"Status: Passed",
		"Time Taken: 2m 5s",
		"Username: @annlee",
		"Completed At: 2024-05-01 09:02:05 UTC",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestEmailNotifierSkipsWithoutRecipients(t *testing.T) {
	called := false
	n := NewEmailNotifier("smtp.example.com", 25, "", "", "bot@example.com").
		WithSender(func(string, smtp.Auth, string, []string, []byte) error {
			called = true
			return nil
		})
	if err := n.NotifyCompletion(context.Background(), sampleCompletion()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if called {
		t.Fatalf("no recipients means no email")
	}
}

func TestEmailNotifierWrapsSendError(t *testing.T) {
	boom := errors.New("connection refused")
	n := NewEmailNotifier("smtp.example.com", 25, "", "", "bot@example.com").
		WithSender(func(string, smtp.Auth, string, []string, []byte) error { return boom })
	if err := n.NotifyCompletion(context.Background(), sampleCompletion("hr@example.com")); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}

type fakeSender struct {
	sent []tele.Recipient
	text []string
	fail map[string]bool
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.fail[to.Recipient()] {
		return nil, errors.New("forbidden")
	}
	f.sent = append(f.sent, to)
	f.text = append(f.text, what.(string))
	return &tele.Message{}, nil
}

func TestTelegramNotifierPostsToEveryChat(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"-200": true}}
	n := NewTelegramNotifier(sender, []int64{-100, -200, -300})

	err := n.NotifyCompletion(context.Background(), sampleCompletion())
	if err == nil || !strings.Contains(err.Error(), "-200") {
		t.Fatalf("expected error for failing chat, got %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 deliveries despite one failure, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.text[0], "Go Basics") || !strings.Contains(sender.text[0], "@annlee") {
		t.Fatalf("unexpected admin text %q", sender.text[0])
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{
		NewEmailNotifier("h", 25, "", "", "f@example.com").WithSender(func(string, smtp.Auth, string, []string, []byte) error { return boom }),
		nil,
		NewTelegramNotifier(&fakeSender{}, []int64{1}),
	}
	if err := m.NotifyCompletion(context.Background(), sampleCompletion("a@example.com")); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
}

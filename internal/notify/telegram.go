package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"
)

// Sender is the subset of *tele.Bot used to post admin messages.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier posts every finished attempt to the configured admin chats.
type TelegramNotifier struct {
	bot   Sender
	chats []int64
}

func NewTelegramNotifier(bot Sender, chats []int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chats: chats}
}

func (n *TelegramNotifier) NotifyCompletion(_ context.Context, c Completion) error {
	text := AdminMessage(c)
	var firstErr error
	for _, chat := range n.chats {
		if _, err := n.bot.Send(tele.ChatID(chat), text); err != nil {
			log.Error().Err(err).Int64("chatID", chat).Int64("attemptID", c.Result.AttemptID).Msg("admin notification failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("notify admin chat %d: %w", chat, err)
			}
		}
	}
	return firstErr
}

// AdminMessage is the plain-text notice sent to admin chats.
func AdminMessage(c Completion) string {
	name := c.User.FirstName
	if c.User.Username != "" {
		name += " (@" + c.User.Username + ")"
	}
	verdict := "failed"
	if c.Result.IsPassed {
		verdict = "passed"
	}
	return fmt.Sprintf("Attempt #%d %s\nQuiz: %s\nUser: %s\nScore: %.4g/%.4g (%.1f%%), %s\nTime: %s",
		c.Result.AttemptID, c.Result.Status, c.Result.QuizTitle, name,
		c.Result.Score, c.Result.MaxScore, c.Result.Percentage, verdict, formatSeconds(c.Result.TimeTaken))
}

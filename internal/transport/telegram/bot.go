package telegram

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"
)

// NewBot creates a long-polling bot. Handlers pass their parse mode
// explicitly, so plain-text senders such as admin notices stay unparsed.
func NewBot(token string, pollTimeout time.Duration) (*tele.Bot, error) {
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil {
				ev = ev.Int("updateID", c.Update().ID)
			}
			ev.Msg("telegram update failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

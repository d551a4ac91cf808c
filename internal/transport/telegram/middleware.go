package telegram

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v4"
)

// Recover turns a panicking handler into an error so the poller keeps running.
func Recover() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					switch x := r.(type) {
					case error:
						err = x
					case string:
						err = errors.New(x)
					default:
						err = fmt.Errorf("panic: %v", x)
					}
					log.Error().Err(err).Int("updateID", c.Update().ID).Msg("recovered from panic in handler")
				}
			}()
			return next(c)
		}
	}
}

// Logger logs every incoming update at debug level.
func Logger() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug().Int("updateID", c.Update().ID)
			if s := c.Sender(); s != nil {
				ev = ev.Int64("telegramID", s.ID)
			}
			if cb := c.Callback(); cb != nil {
				ev = ev.Str("callback", cb.Unique).Str("data", cb.Data)
			} else if text := c.Text(); text != "" {
				ev = ev.Int("textLen", len(text))
			}
			ev.Msg("update")
			return next(c)
		}
	}
}

package notify

import (
	"context"
	"errors"

	"telegram-quiz-bot/internal/app"
	"telegram-quiz-bot/internal/domain"
)

// Completion is a finished attempt together with the participant who took it.
type Completion struct {
	Result app.Result
	User   domain.User
}

// Notifier delivers completion notices to administrators.
type Notifier interface {
	NotifyCompletion(ctx context.Context, c Completion) error
}

// Multi fans a completion out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) NotifyCompletion(ctx context.Context, c Completion) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyCompletion(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

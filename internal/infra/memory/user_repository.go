package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-quiz-bot/internal/domain"
)

// UserRepository registers Telegram users in memory, keyed by Telegram ID.
type UserRepository struct {
	clock func() time.Time

	mu     sync.Mutex
	nextID int64
	users  map[int64]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{clock: time.Now, users: make(map[int64]domain.User)}
}

// EnsureUser creates the user on first contact and refreshes the profile
// fields afterwards. The active flag of a known user is preserved.
func (r *UserRepository) EnsureUser(_ context.Context, profile domain.User) (domain.User, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[profile.TelegramID]; ok {
		existing.Username = profile.Username
		existing.FirstName = profile.FirstName
		existing.LastName = profile.LastName
		existing.LastActivity = now
		r.users[profile.TelegramID] = existing
		return existing, nil
	}

	r.nextID++
	profile.ID = r.nextID
	profile.IsActive = true
	profile.CreatedAt = now
	profile.LastActivity = now
	r.users[profile.TelegramID] = profile
	return profile, nil
}

func (r *UserRepository) GetUser(_ context.Context, telegramID int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// SetActive toggles whether a user may take quizzes.
func (r *UserRepository) SetActive(_ context.Context, telegramID int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[telegramID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.IsActive = active
	r.users[telegramID] = user
	return nil
}

// all returns every user in registration order.
func (r *UserRepository) all() []domain.User {
	r.mu.Lock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

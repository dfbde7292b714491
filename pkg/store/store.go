// Package store persists the bot's user records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrAlreadyExists = errors.New("user already exists")
)

// User is one registered Telegram user.
type User struct {
	ID         uuid.UUID `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store creates, reads and deletes users keyed by Telegram id.
type Store interface {
	CreateUser(ctx context.Context, telegramID int64, username string) (User, error)
	GetUser(ctx context.Context, telegramID int64) (User, error)
	DeleteUser(ctx context.Context, telegramID int64) error
	Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createUsersTable = `CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	telegram_id BIGINT NOT NULL UNIQUE,
	username TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps users in a single Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres connects to dsn with at most maxConns pooled connections and
// makes sure the users table exists.
func OpenPostgres(ctx context.Context, dsn string, maxConns int, log *slog.Logger) (*PostgresStore, error) {
	if log == nil {
		log = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := pool.Exec(ctx, createUsersTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	log.Info("User store connected", "backend", "postgres", "max_conns", poolCfg.MaxConns)
	return &PostgresStore{pool: pool, log: log.With("component", "store")}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, telegramID int64, username string) (User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, telegram_id, username) VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING id, telegram_id, username, created_at`,
		uuid.New(), telegramID, username,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, telegramID int64) (User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT id, telegram_id, username, created_at FROM users WHERE telegram_id = $1`,
		telegramID,
	).Scan(&user.ID, &user.TelegramID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, telegramID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

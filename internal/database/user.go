// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/lobbyd/internal/auth"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// CreateUser inserts a user, hashing the plaintext password first. Ephemeral
// guest users are created with an empty password.
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	if user.Password != "" {
		hash, err := auth.HashPassword(user.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = hash
	}

	q := `INSERT INTO users (id, email, password, username, is_ephemeral)
	      VALUES ($1, $2, $3, $4, $5)`

	err := pgx.BeginTxFunc(ctx, d.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.IsEphemeral,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username, is_ephemeral FROM users WHERE id=$1`
	err := d.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username, is_ephemeral FROM users WHERE email=$1`
	err := d.Pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser checks credentials and returns a signed JWT on success.
func (d *DB) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := d.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return token, nil
}

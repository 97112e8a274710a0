package repositories

import (
	"context"
	"database/sql"
	"errors"

	"paydesk/internal/models"
)

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository { return &UserRepository{DB: db} }

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, email, default_currency, tax_reserve_rate, created_at
		FROM users WHERE id = $1`, id).Scan(
		&u.ID, &u.Email, &u.DefaultCurrency, &u.TaxReserveRate, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	return u, err
}

func (r *UserRepository) GetClient(ctx context.Context, id int64) (models.Client, error) {
	var c models.Client
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, country FROM clients WHERE id = $1`, id).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Email, &c.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, models.ErrClientNotFound
	}
	return c, err
}

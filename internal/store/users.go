package store

import (
	"context"
	"fmt"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
)

const userColumns = `id, email, name, role, loyalty_points, loyalty_tier, referred_by, created_at, updated_at, version`

type UserInput struct {
	Email      string
	Name       string
	Role       models.Role
	ReferredBy *int64
}

func scanUser(row rowScanner, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.LoyaltyPoints,
		&user.LoyaltyTier,
		&user.ReferredBy,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func CreateUser(ctx context.Context, q Querier, in UserInput) (*models.User, error) {
	user := &models.User{}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	query := `
		INSERT INTO users (email, name, role, referred_by, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(q.QueryRowContext(ctx, query, in.Email, in.Name, role, in.ReferredBy), user)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, id), user); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func ListUsers(ctx context.Context, q Querier, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}

// AwardLoyaltyPoints adds points to the user's balance and returns the new
// balance.
func AwardLoyaltyPoints(ctx context.Context, q Querier, userID, points int64) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx,
		`UPDATE users
		 SET loyalty_points = loyalty_points + $1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING loyalty_points`,
		points, userID).Scan(&balance)
	if err != nil {
		if database.IsNoRows(err) {
			return 0, database.ErrUserNotFound
		}
		return 0, fmt.Errorf("award loyalty points: %w", err)
	}

	return balance, nil
}

func SetLoyaltyTier(ctx context.Context, q Querier, userID int64, tier string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE users SET loyalty_tier = $1, updated_at = NOW() WHERE id = $2 AND loyalty_tier <> $1`,
		tier, userID)
	if err != nil {
		return fmt.Errorf("set loyalty tier: %w", err)
	}

	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	return nil
}

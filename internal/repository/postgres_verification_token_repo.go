package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habitman/internal/model"
)

// PostgresVerificationTokenRepo はPostgreSQLを使用した確認トークンリポジトリ。
type PostgresVerificationTokenRepo struct {
	db *sql.DB
}

// NewPostgresVerificationTokenRepo はPostgresVerificationTokenRepoを生成する。
func NewPostgresVerificationTokenRepo(db *sql.DB) *PostgresVerificationTokenRepo {
	return &PostgresVerificationTokenRepo{db: db}
}

// Create は確認トークンを作成する。
func (r *PostgresVerificationTokenRepo) Create(ctx context.Context, token *model.VerificationToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (id, user_id, token, purpose, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.Token, token.Purpose, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// FindValid はトークン値と用途で有効なトークンを検索する。見つからない場合はnilを返す。
func (r *PostgresVerificationTokenRepo) FindValid(ctx context.Context, tokenValue string, purpose model.TokenPurpose) (*model.VerificationToken, error) {
	token := &model.VerificationToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token, purpose, expires_at, consumed_at, created_at
		 FROM verification_tokens
		 WHERE token = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > now()`,
		tokenValue, purpose,
	).Scan(&token.ID, &token.UserID, &token.Token, &token.Purpose, &token.ExpiresAt, &token.ConsumedAt, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification token: %w", err)
	}

	return token, nil
}

// Consume はトークンを消費済みにする。
// 既に消費済みの場合はエラーを返し、ワンタイム性を保証する。
func (r *PostgresVerificationTokenRepo) Consume(ctx context.Context, id string, consumedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, consumedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to consume verification token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("verification token already consumed: %s", id)
	}
	return nil
}

// compile-time interface check
var _ VerificationTokenRepository = (*PostgresVerificationTokenRepo)(nil)

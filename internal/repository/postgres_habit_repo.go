package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/habitman/internal/model"
)

// PostgresHabitRepo はPostgreSQLを使用した習慣リポジトリ。
// 全クエリがuser_idにスコープされており、行レベルの所有者分離を
// ストレージ層で保証する。
type PostgresHabitRepo struct {
	db *sql.DB
}

// NewPostgresHabitRepo はPostgresHabitRepoを生成する。
func NewPostgresHabitRepo(db *sql.DB) *PostgresHabitRepo {
	return &PostgresHabitRepo{db: db}
}

const habitColumns = `id, user_id, name, description, completed, created_at, updated_at`

// ListByUserID はユーザーの習慣一覧をcreated_at降順で返す。
func (r *PostgresHabitRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Habit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+habitColumns+` FROM habits
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	defer rows.Close()

	habits := []*model.Habit{}
	for rows.Next() {
		habit := &model.Habit{}
		if err := rows.Scan(
			&habit.ID, &habit.UserID, &habit.Name, &habit.Description,
			&habit.Completed, &habit.CreatedAt, &habit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, habit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habits: %w", err)
	}

	return habits, nil
}

// FindByID は指定ユーザーの指定IDの習慣を取得する。見つからない場合はnilを返す。
func (r *PostgresHabitRepo) FindByID(ctx context.Context, userID, id string) (*model.Habit, error) {
	habit := &model.Habit{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(
		&habit.ID, &habit.UserID, &habit.Name, &habit.Description,
		&habit.Completed, &habit.CreatedAt, &habit.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find habit: %w", err)
	}

	return habit, nil
}

// Create は習慣を作成する。
func (r *PostgresHabitRepo) Create(ctx context.Context, habit *model.Habit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO habits (id, user_id, name, description, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		habit.ID, habit.UserID, habit.Name, habit.Description,
		habit.Completed, habit.CreatedAt, habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert habit: %w", err)
	}
	return nil
}

// ToggleCompleted は完了フラグを反転し、更新後の行を返す。
// 指定ユーザーの行が存在しない場合はnilを返す。
func (r *PostgresHabitRepo) ToggleCompleted(ctx context.Context, userID, id string, updatedAt time.Time) (*model.Habit, error) {
	habit := &model.Habit{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE habits SET completed = NOT completed, updated_at = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+habitColumns,
		id, userID, updatedAt,
	).Scan(
		&habit.ID, &habit.UserID, &habit.Name, &habit.Description,
		&habit.Completed, &habit.CreatedAt, &habit.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to toggle habit: %w", err)
	}

	return habit, nil
}

// Delete は指定ユーザーの習慣を削除する。削除された場合trueを返す。
func (r *PostgresHabitRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM habits WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete habit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ HabitRepository = (*PostgresHabitRepo)(nil)

// Package habit は習慣の管理機能を提供する。
package habit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/habitman/internal/model"
	"github.com/hitoshi/habitman/internal/repository"
	"github.com/hitoshi/habitman/internal/security"
)

// Service は習慣のCRUDサービス。
// 全操作が認証済みユーザーのIDにスコープされる。
type Service struct {
	habitRepo repository.HabitRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	habitRepo repository.HabitRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		habitRepo: habitRepo,
		sanitizer: sanitizer,
	}
}

// List はユーザーの習慣一覧を作成日時の降順で返す。
// 習慣が存在しない場合は空スライスを返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Habit, error) {
	habits, err := s.habitRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habits: %w", err)
	}
	if habits == nil {
		habits = []*model.Habit{}
	}
	return habits, nil
}

// Create は新しい習慣を作成する。
// 名前は必須で、前後空白のみの名前は拒否する。説明は省略可能。
// 新規作成された習慣は常に未完了状態で始まる。
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.Habit, error) {
	name = s.sanitizer.Sanitize(name)
	description = s.sanitizer.Sanitize(description)

	if name == "" {
		return nil, model.NewValidationError("Habit name is required")
	}

	now := time.Now()
	habit := &model.Habit{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.habitRepo.Create(ctx, habit); err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	slog.Info("habit created",
		slog.String("habit_id", habit.ID),
		slog.String("user_id", userID),
	)
	return habit, nil
}

// Toggle は習慣の完了フラグを反転し、更新後の習慣を返す。
// 他ユーザーの習慣や存在しないIDの場合は未検出エラーを返す。
func (s *Service) Toggle(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	habit, err := s.habitRepo.ToggleCompleted(ctx, userID, habitID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to toggle habit: %w", err)
	}
	if habit == nil {
		return nil, model.NewHabitNotFoundError(habitID)
	}

	slog.Info("habit toggled",
		slog.String("habit_id", habit.ID),
		slog.String("user_id", userID),
		slog.Bool("completed", habit.Completed),
	)
	return habit, nil
}

// Delete は習慣を削除する。
// 他ユーザーの習慣や存在しないIDの場合は未検出エラーを返す。
func (s *Service) Delete(ctx context.Context, userID, habitID string) error {
	deleted, err := s.habitRepo.Delete(ctx, userID, habitID)
	if err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if !deleted {
		return model.NewHabitNotFoundError(habitID)
	}

	slog.Info("habit deleted",
		slog.String("habit_id", habitID),
		slog.String("user_id", userID),
	)
	return nil
}

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/habitman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// メールアドレスは小文字に正規化して保存される。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuthサインアップ時に使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// ConfirmEmail はメール確認日時を記録する。
	ConfirmEmail(ctx context.Context, userID string, confirmedAt time.Time) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
// トークン本体ではなくSHA-256ハッシュで検索する。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンレコードを作成する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindByTokenHash はハッシュでトークンを検索する。
	// 期限切れ・失効済み・未知の場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash []byte) (*model.RefreshToken, error)

	// Revoke は指定IDのトークンを失効させる。
	Revoke(ctx context.Context, id string) error

	// RevokeByUserID は指定ユーザーの全トークンを失効させる。サインアウトで使用する。
	RevokeByUserID(ctx context.Context, userID string) error
}

// VerificationTokenRepository は確認トークンの永続化インターフェース。
type VerificationTokenRepository interface {
	// Create は確認トークンを作成する。
	Create(ctx context.Context, token *model.VerificationToken) error

	// FindValid はトークン値と用途で有効な（未消費・期限内の）トークンを検索する。
	// 見つからない場合はnilを返す。
	FindValid(ctx context.Context, token string, purpose model.TokenPurpose) (*model.VerificationToken, error)

	// Consume はトークンを消費済みにする。ワンタイム性を保証する。
	Consume(ctx context.Context, id string, consumedAt time.Time) error
}

// HabitRepository は習慣データの永続化インターフェース。
// 全クエリがuser_idにスコープされており、他ユーザーの行には到達できない。
type HabitRepository interface {
	// ListByUserID はユーザーの習慣一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Habit, error)

	// FindByID は指定ユーザーの指定IDの習慣を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Habit, error)

	// Create は習慣を作成する。
	Create(ctx context.Context, habit *model.Habit) error

	// ToggleCompleted は完了フラグを反転し、更新後の行を返す。
	// 指定ユーザーの行が存在しない場合はnilを返す。
	ToggleCompleted(ctx context.Context, userID, id string, updatedAt time.Time) (*model.Habit, error)

	// Delete は指定ユーザーの習慣を削除する。削除された場合trueを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)
}

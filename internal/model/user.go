// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// EmailConfirmedAtがnilの間はメール確認待ちであり、セッションを発行できない。
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EmailConfirmed はメールアドレスが確認済みかどうかを返す。
func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Principal は認証済みリクエストが代理する主体を表す。
// アクセストークンの検証結果としてリクエストコンテキストに注入される。
type Principal struct {
	ID    string
	Email string
}

// Identity は外部IdPとの紐付け情報を表す。
// 複数のIdP（Google, Facebook等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

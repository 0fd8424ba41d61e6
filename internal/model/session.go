package model

import "time"

// Session は発行済みの認証セッションを表す。
// アクセストークンはJWT、リフレッシュトークンは不透明なランダム値。
// クライアントはプロバイダーが丸ごと置き換えるまでイミュータブルとして扱う。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// RefreshToken はリフレッシュトークンの永続化レコードを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash []byte
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// TokenPurpose は確認トークンの用途を表す。
type TokenPurpose string

const (
	// PurposeEmailVerification はメールアドレス確認用トークンを示す。
	PurposeEmailVerification TokenPurpose = "email_verification"
	// PurposePasswordReset はパスワードリセット用トークンを示す。
	PurposePasswordReset TokenPurpose = "password_reset"
)

// VerificationToken はメール確認・パスワードリセット用のワンタイムトークンを表す。
type VerificationToken struct {
	ID         string
	UserID     string
	Token      string
	Purpose    TokenPurpose
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

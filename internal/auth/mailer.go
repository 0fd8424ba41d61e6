package auth

import (
	"context"
	"log/slog"
)

// Mailer は確認メール・リセットメールの送信インターフェース。
// 実際のメール配信は外部の責務であり、本体にはログ実装のみを持つ。
type Mailer interface {
	// SendVerificationEmail はメールアドレス確認用トークンを送信する。
	SendVerificationEmail(ctx context.Context, email, token string) error
	// SendPasswordResetEmail はパスワードリセット用トークンを送信する。
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// LogMailer は送信内容を構造化ログに出力するMailer実装。
// 開発環境およびメール基盤未接続のデプロイで使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。loggerがnilの場合はデフォルトロガーを使う。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendVerificationEmail は確認トークンをログに出力する。
func (m *LogMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.logger.Info("verification email",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}

// SendPasswordResetEmail はリセットトークンをログに出力する。
func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.logger.Info("password reset email",
		slog.String("email", email),
		slog.String("token", token),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)

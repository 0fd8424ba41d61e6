// Package auth はユーザー登録、パスワード認証、OAuth認証フロー、
// トークン発行・検証を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/habitman/internal/model"
	"github.com/hitoshi/habitman/internal/repository"
	"github.com/hitoshi/habitman/internal/security"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Provider       string // "google", "facebook" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	RefreshTokenTTL time.Duration // リフレッシュトークンの有効期間
	VerificationTTL time.Duration // 確認トークンの有効期間
	AutoConfirm     bool          // trueの場合、サインアップ時にメール確認を省略する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers  map[string]OAuthProvider
	userRepo   repository.UserRepository
	identRepo  repository.IdentityRepository
	tokenRepo  repository.RefreshTokenRepository
	verifyRepo repository.VerificationTokenRepository
	issuer     *TokenIssuer
	mailer     Mailer
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers map[string]OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	tokenRepo repository.RefreshTokenRepository,
	verifyRepo repository.VerificationTokenRepository,
	issuer *TokenIssuer,
	mailer Mailer,
	config ServiceConfig,
) *Service {
	if config.VerificationTTL == 0 {
		config.VerificationTTL = 24 * time.Hour
	}
	return &Service{
		providers:  providers,
		userRepo:   userRepo,
		identRepo:  identRepo,
		tokenRepo:  tokenRepo,
		verifyRepo: verifyRepo,
		issuer:     issuer,
		mailer:     mailer,
		config:     config,
	}
}

// SignUp は新規ユーザーを登録する。
// メール確認が必要な場合、セッションはnilで返り、確認トークンが送信される。
// 自動確認モードの場合は即座にセッションを発行する。
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, nil, err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		if err == security.ErrPasswordTooShort {
			return nil, nil, model.NewValidationError("Password must be at least 6 characters")
		}
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewEmailExistsError()
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.config.AutoConfirm {
		user.EmailConfirmedAt = &now
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", user.ID),
		slog.Bool("auto_confirm", s.config.AutoConfirm),
	)

	if s.config.AutoConfirm {
		session, err := s.issueSession(ctx, user)
		if err != nil {
			return nil, nil, err
		}
		return user, session, nil
	}

	// メール確認待ち: セッションは発行しない
	if err := s.sendVerification(ctx, user, model.PurposeEmailVerification); err != nil {
		return nil, nil, err
	}
	return user, nil, nil
}

// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
// 未知のメールアドレスとパスワード不一致は区別せず同じエラーを返す。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !security.VerifyPassword(password, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.EmailConfirmed() {
		return nil, model.NewEmailNotConfirmedError()
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	return session, nil
}

// Refresh はリフレッシュトークンを検証し、新しいセッションを発行する。
// 使用されたトークンは失効させ、ローテーションする。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	stored, err := s.tokenRepo.FindByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	if stored == nil {
		return nil, model.NewInvalidGrantError()
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidGrantError()
	}

	if err := s.tokenRepo.Revoke(ctx, stored.ID); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	return s.issueSession(ctx, user)
}

// SignOut は指定ユーザーの全リフレッシュトークンを失効させる。
func (s *Service) SignOut(ctx context.Context, userID string) error {
	if err := s.tokenRepo.RevokeByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	slog.Info("user signed out", slog.String("user_id", userID))
	return nil
}

// GetUser は指定IDのユーザーを取得する。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdatePassword は認証済みユーザーのパスワードを更新する。
func (s *Service) UpdatePassword(ctx context.Context, userID, password string) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		if err == security.ErrPasswordTooShort {
			return nil, model.NewValidationError("Password must be at least 6 characters")
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password updated", slog.String("user_id", user.ID))
	return user, nil
}

// Verify は確認トークンを消費し、セッションを発行する。
// メール確認トークンの場合はメールアドレスを確認済みにする。
// パスワードリセットトークンの場合はそのままセッションを発行し、
// クライアントはそのセッションでパスワード更新を行う。
func (s *Service) Verify(ctx context.Context, tokenValue string, purpose model.TokenPurpose) (*model.Session, error) {
	token, err := s.verifyRepo.FindValid(ctx, tokenValue, purpose)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification token: %w", err)
	}
	if token == nil {
		return nil, model.NewVerificationInvalidError()
	}

	now := time.Now()
	if err := s.verifyRepo.Consume(ctx, token.ID, now); err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}

	if purpose == model.PurposeEmailVerification {
		if err := s.userRepo.ConfirmEmail(ctx, token.UserID, now); err != nil {
			return nil, fmt.Errorf("failed to confirm email: %w", err)
		}
		slog.Info("email confirmed", slog.String("user_id", token.UserID))
	}

	user, err := s.userRepo.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return s.issueSession(ctx, user)
}

// ResendVerification はメール確認トークンを再送する。
// ユーザーの存在有無を漏らさないため、未知のメールアドレスでも成功として扱う。
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.EmailConfirmed() {
		return nil
	}
	return s.sendVerification(ctx, user, model.PurposeEmailVerification)
}

// RequestPasswordReset はパスワードリセットトークンを送信する。
// ユーザーの存在有無を漏らさないため、未知のメールアドレスでも成功として扱う。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil
	}
	return s.sendVerification(ctx, user, model.PurposePasswordReset)
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown oauth provider: %s", provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleOAuthCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// OAuth経由のメールアドレスはIdPが確認済みのため、確認済みとして扱う。
func (s *Service) HandleOAuthCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider: %s", provider)
	}

	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var user *model.User

	if identity != nil {
		user, err = s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("identity references missing user: %s", identity.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		user = &model.User{
			ID:               uuid.New().String(),
			Email:            normalizeEmail(userInfo.Email),
			EmailConfirmedAt: &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", userInfo.Provider),
		)
	}

	return s.issueSession(ctx, user)
}

// issueSession はアクセストークンとリフレッシュトークンを発行し永続化する。
func (s *Service) issueSession(ctx context.Context, user *model.User) (*model.Session, error) {
	accessToken, expiresAt, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, tokenHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	record := &model.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().Add(s.config.RefreshTokenTTL),
		CreatedAt: time.Now(),
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// sendVerification は確認トークンを作成し、用途に応じたメールを送信する。
func (s *Service) sendVerification(ctx context.Context, user *model.User, purpose model.TokenPurpose) error {
	tokenValue, err := generateVerificationToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	token := &model.VerificationToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Token:     tokenValue,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(s.config.VerificationTTL),
		CreatedAt: time.Now(),
	}
	if err := s.verifyRepo.Create(ctx, token); err != nil {
		return fmt.Errorf("failed to save verification token: %w", err)
	}

	switch purpose {
	case model.PurposePasswordReset:
		err = s.mailer.SendPasswordResetEmail(ctx, user.Email, tokenValue)
	default:
		err = s.mailer.SendVerificationEmail(ctx, user.Email, tokenValue)
	}
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	return nil
}

// normalizeEmail はメールアドレスを小文字・前後空白なしに正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail はメールアドレスの形式を簡易検証する。
func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError("Email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return model.NewValidationError("Invalid email address")
	}
	return nil
}

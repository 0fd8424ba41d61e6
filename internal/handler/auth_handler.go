// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/habitman/internal/metrics"
	"github.com/hitoshi/habitman/internal/middleware"
	"github.com/hitoshi/habitman/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context, userID string) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, password string) (*model.User, error)
	Verify(ctx context.Context, token string, purpose model.TokenPurpose) (*model.Session, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	GetLoginURL(provider, state string) (string, error)
	HandleOAuthCallback(ctx context.Context, provider, code string) (*model.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string // OAuth完了後のリダイレクト先
	CookieSecure bool
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnil可。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// credentialsRequest はメールアドレスとパスワードを持つリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest はリフレッシュトークングラントのリクエストボディ。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// verifyRequest は確認トークン消費のリクエストボディ。
// Typeは"signup"（メール確認）または"recovery"（パスワードリセット）。
type verifyRequest struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

// emailRequest はメールアドレスのみのリクエストボディ。
type emailRequest struct {
	Email string `json:"email"`
}

// updateUserRequest はユーザー更新のリクエストボディ。
type updateUserRequest struct {
	Password string `json:"password"`
}

// signUpResponse はサインアップのレスポンス。
// メール確認待ちの場合、sessionはnullになる。
type signUpResponse struct {
	User    *userResponse    `json:"user"`
	Session *sessionResponse `json:"session"`
}

// SignUp は新規ユーザー登録を処理する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	user, session, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, signUpResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(session),
	})
}

// Token はパスワードグラントとリフレッシュトークングラントを処理する。
// POST /auth/token?grant_type=password
// POST /auth/token?grant_type=refresh_token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	grantType := r.URL.Query().Get("grant_type")

	switch grantType {
	case "password":
		h.passwordGrant(w, r)
	case "refresh_token":
		h.refreshGrant(w, r)
	default:
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error:   "Unsupported grant type",
			Details: grantType,
		})
	}
}

// passwordGrant はメールアドレスとパスワードでセッションを発行する。
func (h *AuthHandler) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	session, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordSignInFailure()
		}
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignInSuccess()
	}
	writeData(w, http.StatusOK, toSessionResponse(session))
}

// refreshGrant はリフレッシュトークンでセッションを更新する。
func (h *AuthHandler) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Refresh token is required",
		})
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordTokenRefresh()
	}
	writeData(w, http.StatusOK, toSessionResponse(session))
}

// Logout は認証済みユーザーの全リフレッシュトークンを失効させる。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.SignOut(r.Context(), principal.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUser は現在のユーザー情報を返す。
// GET /auth/user
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetUser(r.Context(), principal.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// UpdateUser は現在のユーザーの属性を更新する。現状はパスワードのみ対応。
// PUT /auth/user
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Password == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Password is required",
		})
		return
	}

	user, err := h.service.UpdatePassword(r.Context(), principal.ID, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toUserResponse(user))
}

// Verify は確認トークンを消費し、セッションを発行する。
// POST /auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Token == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Verification token is required",
		})
		return
	}

	purpose := model.PurposeEmailVerification
	if req.Type == "recovery" {
		purpose = model.PurposePasswordReset
	}

	session, err := h.service.Verify(r.Context(), req.Token, purpose)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, toSessionResponse(session))
}

// Resend はメール確認トークンを再送する。
// POST /auth/resend
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Email == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Email is required",
		})
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recover はパスワードリセットトークンを送信する。
// POST /auth/recover
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.Email == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Email is required",
		})
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// OAuthLogin はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.GetLoginURL(provider, state)
	if err != nil {
		middleware.WriteErrorBody(w, http.StatusNotFound, middleware.ErrorBody{
			Error:   "Unknown provider",
			Details: provider,
		})
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// OAuthCallback はOAuthコールバックを処理し、トークンをフラグメントに載せて
// フロントエンドにリダイレクトする。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("provider", provider),
		)
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Invalid state parameter",
		})
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
			Error: "Missing authorization code",
		})
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleOAuthCallback(r.Context(), provider, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorBody(w, http.StatusInternalServerError, middleware.ErrorBody{
			Error: "Authentication failed",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignInSuccess()
	}

	// 4. トークンをURLフラグメントに載せてフロントエンドにリダイレクト。
	// フラグメントはサーバーに送信されないため、アクセスログに残らない。
	fragment := url.Values{
		"access_token":  {session.AccessToken},
		"refresh_token": {session.RefreshToken},
		"expires_at":    {strconv.FormatInt(session.ExpiresAt.Unix(), 10)},
	}
	http.Redirect(w, r, h.config.BaseURL+"#"+fragment.Encode(), http.StatusTemporaryRedirect)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

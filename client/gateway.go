// Package client はhabitmanサーバーを利用するGoクライアントを提供する。
// 認証ゲートウェイ、セッションストア、起動時ブートストラップ、ルートガード、
// 習慣CRUDクライアントで構成される。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// User は認証済みユーザーのクライアント側表現。
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Session は発行済みセッション。プロバイダから置き換えられるまで不変として扱う。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// EventType は認証状態変化イベントの種類を表す。
type EventType string

const (
	// EventSignedIn はサインイン完了を示す。
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut はサインアウト完了を示す。
	EventSignedOut EventType = "SIGNED_OUT"
	// EventTokenRefreshed はアクセストークンの更新を示す。
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	// EventUserUpdated はユーザー属性の更新を示す。
	EventUserUpdated EventType = "USER_UPDATED"
)

// AuthEvent は認証状態変化のプッシュイベント。
// SIGNED_OUT時はSessionとUserはnilになる。
type AuthEvent struct {
	Type    EventType
	Session *Session
	User    *User
}

// Gateway は認証プロバイダへの呼び出しを統一された結果/エラー形状に包む。
type Gateway interface {
	SignUp(ctx context.Context, email, password string) (*User, *Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	OAuthLoginURL(provider string) (string, error)
	AdoptSession(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) (*Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	VerifyEmail(ctx context.Context, token string) (*Session, error)
	ResendVerificationEmail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) (*User, error)

	// Subscribe は認証状態変化イベントのチャネルと解除関数を返す。
	Subscribe() (<-chan AuthEvent, func())

	// AccessToken は現在のセッションのアクセストークンを返す。
	// 期限切れの場合はリフレッシュを試みる。
	AccessToken(ctx context.Context) (string, error)
}

// HTTPGateway はhabitmanサーバーの/authエンドポイントに対するGateway実装。
// 現在のセッションをプロセス内に保持し、状態変化を購読者にプッシュする。
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	session *Session

	subMu  sync.Mutex
	subs   map[int]chan AuthEvent
	nextID int
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway はHTTPGatewayを生成する。httpClientがnilの場合はデフォルトを使う。
func NewHTTPGateway(baseURL string, httpClient *http.Client) *HTTPGateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		httpClient: httpClient,
		subs:       make(map[int]chan AuthEvent),
	}
}

// --- ワイヤ形式 ---

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *userPayload `json:"user"`
}

type signUpPayload struct {
	User    *userPayload    `json:"user"`
	Session *sessionPayload `json:"session"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (p *userPayload) toUser() *User {
	if p == nil {
		return nil
	}
	return &User{ID: p.ID, Email: p.Email, CreatedAt: p.CreatedAt}
}

func (p *sessionPayload) toSession() *Session {
	if p == nil {
		return nil
	}
	return &Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    time.Unix(p.ExpiresAt, 0),
		User:         p.User.toUser(),
	}
}

// --- Gateway実装 ---

// SignUp は新規ユーザーを登録する。
// メール確認待ちの場合、返されるセッションはnilになる。
// セッションが発行された場合は保持し、SIGNED_INイベントを発火する。
func (g *HTTPGateway) SignUp(ctx context.Context, email, password string) (*User, *Session, error) {
	body := map[string]string{"email": email, "password": password}

	var payload signUpPayload
	if err := g.doJSON(ctx, http.MethodPost, "/auth/signup", "", body, &payload); err != nil {
		return nil, nil, err
	}

	session := payload.Session.toSession()
	if session != nil {
		g.setSession(session)
		g.emit(AuthEvent{Type: EventSignedIn, Session: session, User: session.User})
	}
	return payload.User.toUser(), session, nil
}

// SignInWithPassword はメールアドレスとパスワードでセッションを発行する。
// 成功時はセッションを保持し、SIGNED_INイベントを発火する。
func (g *HTTPGateway) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var payload sessionPayload
	if err := g.doJSON(ctx, http.MethodPost, "/auth/token?grant_type=password", "", body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	g.setSession(session)
	g.emit(AuthEvent{Type: EventSignedIn, Session: session, User: session.User})
	return session, nil
}

// OAuthLoginURL はOAuthフローを開始するためのナビゲーション先URLを返す。
// 実際のリダイレクトは呼び出し側（ブラウザ相当）が行う。
func (g *HTTPGateway) OAuthLoginURL(provider string) (string, error) {
	switch provider {
	case "google", "facebook":
		return g.baseURL + "/auth/" + provider + "/login", nil
	default:
		return "", &AuthError{
			Kind:    KindValidation,
			Message: fmt.Sprintf("unknown oauth provider: %s", provider),
		}
	}
}

// AdoptSession はOAuthコールバックのフラグメントで受け取ったトークンを
// セッションとして取り込む。ユーザー情報をサーバーから取得し、
// SIGNED_INイベントを発火する。
func (g *HTTPGateway) AdoptSession(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) (*Session, error) {
	var payload userPayload
	if err := g.doJSON(ctx, http.MethodGet, "/auth/user", accessToken, nil, &payload); err != nil {
		return nil, err
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         payload.toUser(),
	}
	g.setSession(session)
	g.emit(AuthEvent{Type: EventSignedIn, Session: session, User: session.User})
	return session, nil
}

// SignOut はサーバー側のリフレッシュトークンを失効させ、保持中のセッションを破棄する。
// サーバー呼び出しが失敗した場合、セッションは破棄されない。
func (g *HTTPGateway) SignOut(ctx context.Context) error {
	session := g.currentSession()
	if session == nil {
		return nil
	}

	if err := g.doJSON(ctx, http.MethodPost, "/auth/logout", session.AccessToken, nil, nil); err != nil {
		return err
	}

	g.setSession(nil)
	g.emit(AuthEvent{Type: EventSignedOut})
	return nil
}

// GetSession は現在のセッションを返す。セッションが存在しない場合は(nil, nil)。
// アクセストークンが期限切れの場合はリフレッシュトークンで更新を試み、
// 成功時はTOKEN_REFRESHEDイベントを発火する。
func (g *HTTPGateway) GetSession(ctx context.Context) (*Session, error) {
	session := g.currentSession()
	if session == nil {
		return nil, nil
	}

	// 期限まで30秒を切ったら先回りして更新する
	if time.Until(session.ExpiresAt) > 30*time.Second {
		return session, nil
	}

	refreshed, err := g.refresh(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (g *HTTPGateway) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var payload sessionPayload
	if err := g.doJSON(ctx, http.MethodPost, "/auth/token?grant_type=refresh_token", "", body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	g.setSession(session)
	g.emit(AuthEvent{Type: EventTokenRefreshed, Session: session, User: session.User})
	return session, nil
}

// VerifyEmail は確認トークンを消費してセッションを確立する。
func (g *HTTPGateway) VerifyEmail(ctx context.Context, token string) (*Session, error) {
	body := map[string]string{"token": token, "type": "signup"}

	var payload sessionPayload
	if err := g.doJSON(ctx, http.MethodPost, "/auth/verify", "", body, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession()
	g.setSession(session)
	g.emit(AuthEvent{Type: EventSignedIn, Session: session, User: session.User})
	return session, nil
}

// ResendVerificationEmail はメール確認トークンの再送を依頼する。
func (g *HTTPGateway) ResendVerificationEmail(ctx context.Context, email string) error {
	return g.doJSON(ctx, http.MethodPost, "/auth/resend", "", map[string]string{"email": email}, nil)
}

// ResetPassword はパスワードリセットトークンの送信を依頼する。
func (g *HTTPGateway) ResetPassword(ctx context.Context, email string) error {
	return g.doJSON(ctx, http.MethodPost, "/auth/recover", "", map[string]string{"email": email}, nil)
}

// UpdatePassword は現在のユーザーのパスワードを更新する。
// 成功時はUSER_UPDATEDイベントを発火する。
// 保持中のセッションは書き換えず、更新後のユーザーを載せた新しい
// セッション値で丸ごと置き換える（セッションは置換されるまで不変）。
func (g *HTTPGateway) UpdatePassword(ctx context.Context, password string) (*User, error) {
	token, err := g.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload userPayload
	if err := g.doJSON(ctx, http.MethodPut, "/auth/user", token, map[string]string{"password": password}, &payload); err != nil {
		return nil, err
	}

	user := payload.toUser()

	g.mu.Lock()
	var replaced *Session
	if g.session != nil {
		replaced = &Session{
			AccessToken:  g.session.AccessToken,
			RefreshToken: g.session.RefreshToken,
			ExpiresAt:    g.session.ExpiresAt,
			User:         user,
		}
		g.session = replaced
	}
	g.mu.Unlock()

	g.emit(AuthEvent{Type: EventUserUpdated, Session: replaced, User: user})
	return user, nil
}

// Subscribe は認証状態変化イベントのチャネルと購読解除関数を返す。
// チャネルはバッファ付きで、購読者が追いつかない場合イベントは破棄される。
func (g *HTTPGateway) Subscribe() (<-chan AuthEvent, func()) {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	id := g.nextID
	g.nextID++
	ch := make(chan AuthEvent, 16)
	g.subs[id] = ch

	unsubscribe := func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		if sub, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// AccessToken は現在のセッションのアクセストークンを返す。
// セッションが存在しない場合はKindUnauthorizedのAuthErrorを返す。
func (g *HTTPGateway) AccessToken(ctx context.Context) (string, error) {
	session, err := g.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", &AuthError{
			Kind:    KindUnauthorized,
			Message: "no active session",
		}
	}
	return session.AccessToken, nil
}

// --- 内部ヘルパー ---

func (g *HTTPGateway) currentSession() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *HTTPGateway) setSession(session *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = session
}

func (g *HTTPGateway) emit(event AuthEvent) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, ch := range g.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// doJSON はJSONリクエストを送り、{data: ...}エンベロープからoutにデコードする。
// 非2xxレスポンスはAuthErrorに、到達性エラーはKindNetworkに変換する。
// outがnilの場合、レスポンスボディは読み捨てる。
func (g *HTTPGateway) doJSON(ctx context.Context, method, path, bearerToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return wrapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAuthError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// decodeAuthError は非2xxレスポンスをAuthErrorに変換する。
func decodeAuthError(resp *http.Response) *AuthError {
	var payload errorPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
		payload.Error = resp.Status
	}
	return &AuthError{
		Kind:    kindForStatus(resp.StatusCode, payload.Error),
		Message: payload.Error,
		Status:  resp.StatusCode,
	}
}

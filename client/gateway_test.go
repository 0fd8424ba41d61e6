package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// writeTestData は{data: ...}エンベロープで成功レスポンスを書くヘルパー。
func writeTestData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

// writeTestError は統一エラーフォーマットでエラーレスポンスを書くヘルパー。
func writeTestError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func sessionJSON(userID string, expiresAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  "access-" + userID,
		"refresh_token": "refresh-" + userID,
		"token_type":    "bearer",
		"expires_at":    expiresAt.Unix(),
		"user": map[string]interface{}{
			"id":         userID,
			"email":      userID + "@example.com",
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func TestHTTPGateway_SignUp_NilSession_ReturnsUserOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/signup" {
			t.Errorf("path = %q, want /auth/signup", r.URL.Path)
		}
		writeTestData(w, http.StatusOK, map[string]interface{}{
			"user":    map[string]interface{}{"id": "u1", "email": "a@b.com"},
			"session": nil,
		})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	user, session, err := gw.SignUp(context.Background(), "a@b.com", "pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user == nil || user.ID != "u1" {
		t.Errorf("unexpected user: %+v", user)
	}
	if session != nil {
		t.Error("session should be nil when verification is required")
	}

	// セッションが無いのでGetSessionも(nil, nil)
	got, err := gw.GetSession(context.Background())
	if err != nil || got != nil {
		t.Errorf("GetSession = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestHTTPGateway_SignIn_StoresSessionAndEmitsEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
		}
		writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(time.Hour)))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	session, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.AccessToken != "access-u1" {
		t.Errorf("access token = %q, want %q", session.AccessToken, "access-u1")
	}
	if session.User == nil || session.User.Email != "u1@example.com" {
		t.Errorf("unexpected user: %+v", session.User)
	}

	select {
	case event := <-events:
		if event.Type != EventSignedIn {
			t.Errorf("event type = %q, want %q", event.Type, EventSignedIn)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SIGNED_IN event")
	}

	// 状態変化が無い限り、GetSessionは同じペイロードを返し続ける
	first, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	second, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if first != second {
		t.Error("GetSession should be idempotent absent state changes")
	}
}

func TestHTTPGateway_GetSession_Expired_RefreshesAndEmits(t *testing.T) {
	var gotRefreshToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("grant_type") {
		case "password":
			// 即時に期限切れになるセッションを返す
			writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(-time.Minute)))
		case "refresh_token":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			gotRefreshToken = body["refresh_token"]
			writeTestData(w, http.StatusOK, sessionJSON("u1-rotated", time.Now().Add(time.Hour)))
		default:
			t.Errorf("unexpected grant_type: %q", r.URL.Query().Get("grant_type"))
		}
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	if _, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	session, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.AccessToken != "access-u1-rotated" {
		t.Errorf("access token = %q, want rotated token", session.AccessToken)
	}
	if gotRefreshToken != "refresh-u1" {
		t.Errorf("refresh used token %q, want %q", gotRefreshToken, "refresh-u1")
	}

	select {
	case event := <-events:
		if event.Type != EventTokenRefreshed {
			t.Errorf("event type = %q, want %q", event.Type, EventTokenRefreshed)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TOKEN_REFRESHED event")
	}
}

func TestHTTPGateway_SignOut_Success_ClearsSessionAndEmits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(time.Hour)))
		case "/auth/logout":
			if got := r.Header.Get("Authorization"); got != "Bearer access-u1" {
				t.Errorf("Authorization = %q, want bearer token", got)
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	if _, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	if err := gw.SignOut(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if session, _ := gw.GetSession(context.Background()); session != nil {
		t.Error("session should be cleared after sign-out")
	}

	select {
	case event := <-events:
		if event.Type != EventSignedOut {
			t.Errorf("event type = %q, want %q", event.Type, EventSignedOut)
		}
		if event.Session != nil {
			t.Error("SIGNED_OUT event must not carry a session")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SIGNED_OUT event")
	}
}

func TestHTTPGateway_SignOut_Failure_KeepsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(time.Hour)))
		case "/auth/logout":
			writeTestError(w, http.StatusInternalServerError, "Internal server error")
		}
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	if _, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := gw.SignOut(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}

	// 失敗時はセッションを破棄しない
	session, err := gw.GetSession(context.Background())
	if err != nil || session == nil {
		t.Error("failed sign-out must leave the session in place")
	}
}

func TestHTTPGateway_InvalidCredentials_MapsErrorKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestError(w, http.StatusUnauthorized, "Invalid login credentials")
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	_, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "bad")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	if authErr.Kind != KindInvalidCredentials {
		t.Errorf("kind = %v, want %v", authErr.Kind, KindInvalidCredentials)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", authErr.Status)
	}
	if authErr.Message != "Invalid login credentials" {
		t.Errorf("message = %q, should pass server message through verbatim", authErr.Message)
	}
}

func TestHTTPGateway_NetworkError_HasFixedPrefix(t *testing.T) {
	// 閉じたサーバーのURLに対してリクエストし、到達性エラーを起こす
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	gw := NewHTTPGateway(url, nil)
	_, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	if authErr.Kind != KindNetwork {
		t.Errorf("kind = %v, want %v", authErr.Kind, KindNetwork)
	}
	if !strings.HasPrefix(authErr.Message, networkErrorPrefix) {
		t.Errorf("message = %q, want prefix %q", authErr.Message, networkErrorPrefix)
	}
}

func TestHTTPGateway_OAuthLoginURL(t *testing.T) {
	gw := NewHTTPGateway("https://api.example.com", nil)

	url, err := gw.OAuthLoginURL("google")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if url != "https://api.example.com/auth/google/login" {
		t.Errorf("url = %q", url)
	}

	if _, err := gw.OAuthLoginURL("github"); err == nil {
		t.Error("unknown provider should return error")
	}
}

func TestHTTPGateway_AdoptSession_FetchesUserAndEmits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/user" {
			t.Errorf("path = %q, want /auth/user", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer frag-access" {
			t.Errorf("Authorization = %q", got)
		}
		writeTestData(w, http.StatusOK, map[string]interface{}{
			"id": "u1", "email": "u1@example.com",
		})
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	expiresAt := time.Now().Add(time.Hour)
	session, err := gw.AdoptSession(context.Background(), "frag-access", "frag-refresh", expiresAt)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.AccessToken != "frag-access" || session.RefreshToken != "frag-refresh" {
		t.Errorf("unexpected session: %+v", session)
	}
	if session.User == nil || session.User.ID != "u1" {
		t.Errorf("unexpected user: %+v", session.User)
	}

	select {
	case event := <-events:
		if event.Type != EventSignedIn {
			t.Errorf("event type = %q, want %q", event.Type, EventSignedIn)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SIGNED_IN event")
	}
}

func TestHTTPGateway_GetSession_Unexpired_IsIdempotentAndSilent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("no request other than sign-in expected, got %s %s", r.Method, r.URL.String())
		}
		writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(time.Hour)))
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	if _, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	// 状態変化が無い限り、繰り返し呼んでも同じペイロードが返る
	first, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("first GetSession: %v", err)
	}
	second, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("second GetSession: %v", err)
	}
	if first != second {
		t.Error("consecutive GetSession calls should return the same payload")
	}
	if first.AccessToken != "access-u1" {
		t.Errorf("access token = %q, want %q", first.AccessToken, "access-u1")
	}

	// イベントも発火しない
	select {
	case event := <-events:
		t.Errorf("unexpected event %q from a read-only GetSession", event.Type)
	default:
	}
}

func TestHTTPGateway_UpdatePassword_ReplacesSessionWholesale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			writeTestData(w, http.StatusOK, sessionJSON("u1", time.Now().Add(time.Hour)))
		case "/auth/user":
			writeTestData(w, http.StatusOK, map[string]interface{}{
				"id": "u1", "email": "new@example.com",
			})
		}
	}))
	defer server.Close()

	gw := NewHTTPGateway(server.URL, nil)
	before, err := gw.SignInWithPassword(context.Background(), "u1@example.com", "pw")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	events, unsubscribe := gw.Subscribe()
	defer unsubscribe()

	user, err := gw.UpdatePassword(context.Background(), "new-pw")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("email = %q, want %q", user.Email, "new@example.com")
	}

	// 以前取得したセッション値は書き換えられない（置換されるまで不変）
	if before.User == nil || before.User.Email != "u1@example.com" {
		t.Error("previously returned session must not be mutated in place")
	}

	// 保持中のセッションは更新後ユーザーを載せた新しい値に丸ごと置き換わる
	after, err := gw.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if after == before {
		t.Error("session should be replaced with a fresh value")
	}
	if after.User == nil || after.User.Email != "new@example.com" {
		t.Errorf("unexpected user on replaced session: %+v", after.User)
	}
	if after.AccessToken != before.AccessToken || after.RefreshToken != before.RefreshToken {
		t.Error("replacement session should carry the same tokens")
	}

	select {
	case event := <-events:
		if event.Type != EventUserUpdated {
			t.Errorf("event type = %q, want %q", event.Type, EventUserUpdated)
		}
		if event.Session != after {
			t.Error("USER_UPDATED should carry the replacement session")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for USER_UPDATED event")
	}
}

func TestHTTPGateway_AccessToken_NoSession_ReturnsUnauthorized(t *testing.T) {
	gw := NewHTTPGateway("https://api.example.com", nil)

	_, err := gw.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != KindUnauthorized {
		t.Errorf("unexpected error: %v", err)
	}
}

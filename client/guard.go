package client

import "net/url"

// GuardState はルートガードの観測可能な3状態を表す。
type GuardState int

const (
	// GuardInitializing は初期化未完了。ローディング表示を描画する。
	GuardInitializing GuardState = iota
	// GuardUnauthenticated は未認証。ログイン先へリダイレクトする。
	GuardUnauthenticated
	// GuardAuthenticated は認証済み。保護されたコンテンツを描画する。
	GuardAuthenticated
)

// String はGuardStateの文字列表現を返す。
func (s GuardState) String() string {
	switch s {
	case GuardInitializing:
		return "initializing"
	case GuardUnauthenticated:
		return "unauthenticated"
	case GuardAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// GuardResult はルートガードの判定結果。
// RedirectURLはGuardUnauthenticatedの場合のみ設定され、
// ログイン後に元の場所へ戻れるよう要求元のパスを引き回す。
type GuardResult struct {
	State       GuardState
	RedirectURL string
}

// RouteGuard はセッションストアの状態から描画可否を判定する。
// 自身の状態は持たず、遷移はすべてストアの更新によって駆動される。
type RouteGuard struct {
	store     *SessionStore
	loginPath string
}

// NewRouteGuard はRouteGuardを生成する。
func NewRouteGuard(store *SessionStore, loginPath string) *RouteGuard {
	return &RouteGuard{store: store, loginPath: loginPath}
}

// Evaluate は現在のストア状態とリクエストされたパスから判定結果を返す。
func (g *RouteGuard) Evaluate(requestedPath string) GuardResult {
	state := g.store.State()

	switch {
	case !state.Initialized:
		return GuardResult{State: GuardInitializing}
	case state.User == nil:
		redirect := g.loginPath
		if requestedPath != "" {
			redirect += "?return_to=" + url.QueryEscape(requestedPath)
		}
		return GuardResult{State: GuardUnauthenticated, RedirectURL: redirect}
	default:
		return GuardResult{State: GuardAuthenticated}
	}
}

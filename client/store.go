package client

import (
	"context"
	"sync"
)

// State はセッションストアの観測可能なスナップショット。
type State struct {
	User                      *User
	Session                   *Session
	Loading                   bool
	Initialized               bool
	EmailVerificationRequired bool
	PendingVerificationEmail  string
}

// SessionStore は認証状態の唯一の観測可能なソース。
// アンビエントなグローバル状態ではなく、コンポジションルートで生成して
// 注入する明示的なオブジェクトとして扱う。
//
// 不変条件: EmailVerificationRequired == true のとき Session == nil。
// 両フィールドはサインイン/サインアウトの成功時に一緒にクリアされる。
type SessionStore struct {
	gateway Gateway

	mu    sync.RWMutex
	state State

	subMu  sync.Mutex
	subs   map[int]chan State
	nextID int
}

// NewSessionStore はSessionStoreを生成する。
// 初期状態はLoading=true（ブートストラップ完了までビューはローディング表示）。
func NewSessionStore(gateway Gateway) *SessionStore {
	return &SessionStore{
		gateway: gateway,
		state:   State{Loading: true},
		subs:    make(map[int]chan State),
	}
}

// State は現在の状態のスナップショットを返す。
func (s *SessionStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe は状態変化のチャネルと購読解除関数を返す。
// チャネルはバッファ付きで、購読者が追いつかない場合は更新が破棄される。
// 最新状態はState()でいつでも取得できる。
func (s *SessionStore) Subscribe() (<-chan State, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, 16)
	s.subs[id] = ch

	unsubscribe := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// mutate はロック下でfnを適用し、購読者に新しい状態を通知する。
func (s *SessionStore) mutate(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// --- 非同期操作 ---
// すべての操作は失敗時にLoadingをfalseに戻してからエラーを返す。
// エラーを握りつぶすことはない。

// SignIn はメールアドレスとパスワードでサインインする。
// 成功時はuser/sessionを設定し、確認待ちフラグをクリアする。
// 失敗時は確認待ちフラグに触れない。
func (s *SessionStore) SignIn(ctx context.Context, email, password string) error {
	s.mutate(func(st *State) { st.Loading = true })

	session, err := s.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.mutate(func(st *State) { st.Loading = false })
		return err
	}

	s.mutate(func(st *State) {
		st.User = session.User
		st.Session = session
		st.EmailVerificationRequired = false
		st.PendingVerificationEmail = ""
		st.Loading = false
	})
	return nil
}

// SignUp は新規ユーザーを登録する。
// セッションが返されない場合、アカウントはメール確認待ち:
// EmailVerificationRequired=true、PendingVerificationEmailに送信先を設定し、
// user/sessionはnilにする。セッションが返された場合（自動確認）は
// user/sessionを設定し、確認待ちフラグをクリアする。
func (s *SessionStore) SignUp(ctx context.Context, email, password string) error {
	s.mutate(func(st *State) { st.Loading = true })

	user, session, err := s.gateway.SignUp(ctx, email, password)
	if err != nil {
		s.mutate(func(st *State) { st.Loading = false })
		return err
	}

	s.mutate(func(st *State) {
		if session == nil {
			st.User = nil
			st.Session = nil
			st.EmailVerificationRequired = true
			st.PendingVerificationEmail = email
		} else {
			st.User = user
			st.Session = session
			st.EmailVerificationRequired = false
			st.PendingVerificationEmail = ""
		}
		st.Loading = false
	})
	return nil
}

// SignInWithGoogle はGoogle OAuthフローのナビゲーション先URLを返す。
// 呼び出し側がそのURLへ遷移するため、成功時はLoadingをtrueのままにする
// （ページ遷移により状態は破棄され、コールバック後に再構築される）。
func (s *SessionStore) SignInWithGoogle(ctx context.Context) (string, error) {
	return s.signInWithOAuth(ctx, "google")
}

// SignInWithFacebook はFacebook OAuthフローのナビゲーション先URLを返す。
func (s *SessionStore) SignInWithFacebook(ctx context.Context) (string, error) {
	return s.signInWithOAuth(ctx, "facebook")
}

func (s *SessionStore) signInWithOAuth(_ context.Context, provider string) (string, error) {
	s.mutate(func(st *State) { st.Loading = true })

	loginURL, err := s.gateway.OAuthLoginURL(provider)
	if err != nil {
		s.mutate(func(st *State) { st.Loading = false })
		return "", err
	}
	return loginURL, nil
}

// SignOut はサインアウトする。
// 成功時はuser/session/確認待ちフラグをすべてクリアする。
// 失敗時は状態をクリアしない（古いuser/sessionが残る）。
func (s *SessionStore) SignOut(ctx context.Context) error {
	s.mutate(func(st *State) { st.Loading = true })

	if err := s.gateway.SignOut(ctx); err != nil {
		s.mutate(func(st *State) { st.Loading = false })
		return err
	}

	s.mutate(func(st *State) {
		st.User = nil
		st.Session = nil
		st.EmailVerificationRequired = false
		st.PendingVerificationEmail = ""
		st.Loading = false
	})
	return nil
}

// ResendVerificationEmail は確認メールの再送を依頼する。
// ストア状態への副作用はない。
func (s *SessionStore) ResendVerificationEmail(ctx context.Context, email string) error {
	return s.gateway.ResendVerificationEmail(ctx, email)
}

// ResetPassword はパスワードリセットメールの送信を依頼する。
// ストア状態への副作用はない。
func (s *SessionStore) ResetPassword(ctx context.Context, email string) error {
	return s.gateway.ResetPassword(ctx, email)
}

// UpdatePassword はパスワードを更新する。
// ストア状態への反映はUSER_UPDATEDイベント経由で行われる。
func (s *SessionStore) UpdatePassword(ctx context.Context, password string) error {
	_, err := s.gateway.UpdatePassword(ctx, password)
	return err
}

// --- プレーンセッター ---
// ブートストラップコンポーネントが使用する。ビューからは使わない。

// SetUser はユーザーを設定する。
func (s *SessionStore) SetUser(user *User) {
	s.mutate(func(st *State) { st.User = user })
}

// SetSession はセッションを設定する。
func (s *SessionStore) SetSession(session *Session) {
	s.mutate(func(st *State) { st.Session = session })
}

// SetLoading はローディングフラグを設定する。
func (s *SessionStore) SetLoading(loading bool) {
	s.mutate(func(st *State) { st.Loading = loading })
}

// SetInitialized は初期化済みフラグを設定する。
func (s *SessionStore) SetInitialized(initialized bool) {
	s.mutate(func(st *State) { st.Initialized = initialized })
}

// SetEmailVerificationRequired はメール確認待ちフラグを設定する。
func (s *SessionStore) SetEmailVerificationRequired(required bool) {
	s.mutate(func(st *State) { st.EmailVerificationRequired = required })
}

// SetPendingVerificationEmail は確認待ちメールアドレスを設定する。
func (s *SessionStore) SetPendingVerificationEmail(email string) {
	s.mutate(func(st *State) { st.PendingVerificationEmail = email })
}

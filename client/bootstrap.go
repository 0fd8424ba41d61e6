package client

import "context"

// Bootstrapper はアプリケーション起動時にセッション状態を確立し、
// プロバイダのプッシュイベントでストアを最新に保つ。
//
// 一回限りの初期フェッチとプッシュイベントは単一の適用ループで直列化され、
// 書き込みは到着順に反映される。初期フェッチの結果より先にプッシュイベントが
// 到着した場合、フェッチ結果のセッションは破棄される（イベントの方が新しい）。
type Bootstrapper struct {
	store   *SessionStore
	gateway Gateway
}

// NewBootstrapper はBootstrapperを生成する。
func NewBootstrapper(store *SessionStore, gateway Gateway) *Bootstrapper {
	return &Bootstrapper{store: store, gateway: gateway}
}

type fetchResult struct {
	session *Session
	err     error
}

// Run は適用ループを実行する。ctxがキャンセルされるまでブロックするため、
// 通常はgoroutineで起動する。終了時にイベント購読を解除する。
func (b *Bootstrapper) Run(ctx context.Context) {
	events, unsubscribe := b.gateway.Subscribe()
	defer unsubscribe()

	// 初期フェッチはループ外のgoroutineで行い、結果をループに届ける
	var fetchCh chan fetchResult
	if !b.store.State().Initialized {
		fetchCh = make(chan fetchResult, 1)
		go func() {
			session, err := b.gateway.GetSession(ctx)
			fetchCh <- fetchResult{session: session, err: err}
		}()
	}

	eventArrived := false

	for {
		select {
		case <-ctx.Done():
			return

		case result := <-fetchCh:
			fetchCh = nil

			// プッシュイベントが先に到着していた場合、フェッチ結果は古いので
			// セッションには反映しない。失敗時も含め、初期化完了だけは必ず通知する
			// （アプリをローディング状態のまま残さない）。
			if !eventArrived && result.err == nil {
				b.store.SetSession(result.session)
				if result.session != nil {
					b.store.SetUser(result.session.User)
				} else {
					b.store.SetUser(nil)
				}
			}
			b.store.SetLoading(false)
			b.store.SetInitialized(true)

		case event, ok := <-events:
			if !ok {
				return
			}
			eventArrived = true
			b.apply(event)
		}
	}
}

// apply はプッシュイベントをストアに反映する。
// SIGNED_IN/SIGNED_OUTは確認待ちフラグもクリアする。
// TOKEN_REFRESHED/USER_UPDATEDはsession/userのみ更新し、
// 確認待ちフラグには決して触れない。
func (b *Bootstrapper) apply(event AuthEvent) {
	switch event.Type {
	case EventSignedIn, EventSignedOut:
		b.store.SetSession(event.Session)
		b.store.SetUser(event.User)
		b.store.SetEmailVerificationRequired(false)
		b.store.SetPendingVerificationEmail("")
	case EventTokenRefreshed, EventUserUpdated:
		b.store.SetSession(event.Session)
		b.store.SetUser(event.User)
	}
}

package client

import "fmt"

// ErrorKind は認証エラーの分類を表す。
// 呼び出し側は動的な型判定ではなくこの列挙値で分岐する。
type ErrorKind int

const (
	// KindUnknown は分類できないエラー。
	KindUnknown ErrorKind = iota
	// KindNetwork はサーバーに到達できなかったエラー。
	KindNetwork
	// KindValidation は入力バリデーションエラー（400）。
	KindValidation
	// KindInvalidCredentials はメールアドレスまたはパスワードの不一致。
	KindInvalidCredentials
	// KindEmailNotConfirmed はメール未確認のアカウントへのサインイン。
	KindEmailNotConfirmed
	// KindEmailExists はメールアドレスの重複登録（409）。
	KindEmailExists
	// KindUnauthorized はトークン不正・期限切れなどの認証エラー（401）。
	KindUnauthorized
	// KindNotFound はリソース未検出（404）。
	KindNotFound
	// KindRateLimited はレート制限超過（429）。
	KindRateLimited
	// KindServer はサーバー内部エラー（5xx）。
	KindServer
)

// String はErrorKindの文字列表現を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindEmailNotConfirmed:
		return "email_not_confirmed"
	case KindEmailExists:
		return "email_exists"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// AuthError は認証ゲートウェイが返すエラー。
// Messageはサーバーのエラーメッセージをそのまま保持し、UIにそのまま表示できる。
type AuthError struct {
	Kind    ErrorKind
	Message string
	Status  int // HTTPステータスコード。ネットワークエラー時は0。
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// APIError は習慣APIの非2xxレスポンスを表す。
type APIError struct {
	Status  int
	Message string
	Details string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// networkErrorPrefix はネットワーク到達性エラーに付与する固定プレフィックス。
const networkErrorPrefix = "network error"

// wrapNetworkError はHTTPクライアントの失敗をKindNetworkのAuthErrorに包む。
func wrapNetworkError(err error) *AuthError {
	return &AuthError{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("%s: %v", networkErrorPrefix, err),
	}
}

// kindForStatus はHTTPステータスコードとサーバーのエラーメッセージから
// ErrorKindを導出する。サーバーはエラーコードをレスポンスに含めないため、
// 401系の細分類はメッセージ文字列で判別する。
func kindForStatus(status int, message string) ErrorKind {
	switch {
	case status == 400:
		return KindValidation
	case status == 401 && message == "Email not confirmed":
		return KindEmailNotConfirmed
	case status == 401 && message == "Invalid login credentials":
		return KindInvalidCredentials
	case status == 401:
		return KindUnauthorized
	case status == 404:
		return KindNotFound
	case status == 409:
		return KindEmailExists
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

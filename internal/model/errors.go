package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// MessageはそのままAPIレスポンスの error フィールドとして返される。
// Detailsは補足情報で、省略可能。
type APIError struct {
	Code    string // エラーコード
	Message string // ユーザー向けエラーメッセージ
	Details string // 補足情報（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidToken        = "INVALID_TOKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeEmailExists         = "EMAIL_EXISTS"
	ErrCodeEmailNotConfirmed   = "EMAIL_NOT_CONFIRMED"
	ErrCodeValidation          = "VALIDATION"
	ErrCodeHabitNotFound       = "HABIT_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidGrant        = "INVALID_GRANT"
	ErrCodeVerificationInvalid = "VERIFICATION_INVALID"
)

// NewValidationError は入力バリデーションエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewHabitNotFoundError は習慣未検出エラーを生成する。
func NewHabitNotFoundError(habitID string) *APIError {
	return &APIError{
		Code:    ErrCodeHabitNotFound,
		Message: "Habit not found",
		Details: habitID,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// 存在しないメールアドレスとパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid login credentials",
	}
}

// NewEmailExistsError はメールアドレス重複エラーを生成する。
func NewEmailExistsError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailExists,
		Message: "User already registered",
	}
}

// NewEmailNotConfirmedError はメール未確認エラーを生成する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:    ErrCodeEmailNotConfirmed,
		Message: "Email not confirmed",
	}
}

// NewInvalidGrantError は無効なトークングラントエラーを生成する。
// 期限切れ・失効済み・未知のリフレッシュトークンをまとめて扱う。
func NewInvalidGrantError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidGrant,
		Message: "Invalid refresh token",
	}
}

// NewVerificationInvalidError は無効な確認トークンエラーを生成する。
func NewVerificationInvalidError() *APIError {
	return &APIError{
		Code:    ErrCodeVerificationInvalid,
		Message: "Verification token is invalid or expired",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeUserNotFound,
		Message: "User not found",
	}
}

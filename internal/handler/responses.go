package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/habitman/internal/middleware"
	"github.com/hitoshi/habitman/internal/model"
)

// dataResponse は成功レスポンスの統一エンベロープ。
type dataResponse struct {
	Data interface{} `json:"data"`
}

// habitResponse は習慣のAPIレスポンス。
type habitResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// sessionResponse は発行済みセッションのAPIレスポンス。
type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user,omitempty"`
}

// writeData は成功レスポンスを {data: ...} エンベロープで書き込む。
func writeData(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

// toHabitResponse はmodel.HabitからAPIレスポンスに変換する。
func toHabitResponse(habit *model.Habit) habitResponse {
	return habitResponse{
		ID:          habit.ID,
		Name:        habit.Name,
		Description: habit.Description,
		Completed:   habit.Completed,
		UserID:      habit.UserID,
		CreatedAt:   habit.CreatedAt,
		UpdatedAt:   habit.UpdatedAt,
	}
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
// パスワードハッシュは決してレスポンスに含めない。
func toUserResponse(user *model.User) *userResponse {
	if user == nil {
		return nil
	}
	return &userResponse{
		ID:               user.ID,
		Email:            user.Email,
		EmailConfirmedAt: user.EmailConfirmedAt,
		CreatedAt:        user.CreatedAt,
		UpdatedAt:        user.UpdatedAt,
	}
}

// toSessionResponse はmodel.SessionからAPIレスポンスに変換する。
func toSessionResponse(session *model.Session) *sessionResponse {
	if session == nil {
		return nil
	}
	return &sessionResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    session.ExpiresAt.Unix(),
		User:         toUserResponse(session.User),
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		middleware.WriteErrorBody(w, statusCode, middleware.ErrorBody{
			Error:   apiErr.Message,
			Details: apiErr.Details,
		})
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidToken,
		model.ErrCodeInvalidCredentials, model.ErrCodeEmailNotConfirmed,
		model.ErrCodeInvalidGrant, model.ErrCodeVerificationInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeEmailExists:
		return http.StatusConflict
	case model.ErrCodeHabitNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeUnauthorized は認証必須エンドポイントで主体が取れない場合の401を書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorBody(w, http.StatusUnauthorized, middleware.ErrorBody{
		Error:   "Authentication required",
		Message: "No authorization token was found",
	})
}

// writeInvalidBody はJSONボディの解析失敗時の400を書き込む。
func writeInvalidBody(w http.ResponseWriter) {
	middleware.WriteErrorBody(w, http.StatusBadRequest, middleware.ErrorBody{
		Error: "Invalid request body",
	})
}

package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody はAPIエラーレスポンスの統一フォーマット。
// errorフィールドのみ必須で、他は省略可能。
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	Path    string `json:"path,omitempty"`
}

// WriteErrorBody は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorBody(w http.ResponseWriter, statusCode int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorBody(w, http.StatusInternalServerError, ErrorBody{
		Error: "Internal server error",
	})
}

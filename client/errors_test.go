package client

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ErrorKind
	}{
		{"validation", http.StatusBadRequest, "Habit name is required", KindValidation},
		{"invalid credentials", http.StatusUnauthorized, "Invalid login credentials", KindInvalidCredentials},
		{"email not confirmed", http.StatusUnauthorized, "Email not confirmed", KindEmailNotConfirmed},
		{"other 401", http.StatusUnauthorized, "Invalid token", KindUnauthorized},
		{"not found", http.StatusNotFound, "Habit not found", KindNotFound},
		{"email exists", http.StatusConflict, "User already registered", KindEmailExists},
		{"rate limited", http.StatusTooManyRequests, "Too many requests", KindRateLimited},
		{"server error", http.StatusInternalServerError, "Internal server error", KindServer},
		{"bad gateway", http.StatusBadGateway, "Bad Gateway", KindServer},
		{"unclassified", http.StatusTeapot, "teapot", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindForStatus(tt.status, tt.message); got != tt.want {
				t.Errorf("kindForStatus(%d, %q) = %v, want %v", tt.status, tt.message, got, tt.want)
			}
		})
	}
}

func TestAuthError_Error_IncludesKindAndMessage(t *testing.T) {
	err := &AuthError{Kind: KindInvalidCredentials, Message: "Invalid login credentials", Status: 401}
	got := err.Error()
	if !strings.Contains(got, "invalid_credentials") {
		t.Errorf("error string %q should include the kind", got)
	}
	if !strings.Contains(got, "Invalid login credentials") {
		t.Errorf("error string %q should include the message", got)
	}
}

func TestAPIError_Error_IncludesStatus(t *testing.T) {
	err := &APIError{Status: 404, Message: "Habit not found"}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error string %q should include the status", err.Error())
	}
}

func TestWrapNetworkError(t *testing.T) {
	wrapped := wrapNetworkError(errors.New("connection refused"))
	if wrapped.Kind != KindNetwork {
		t.Errorf("kind = %v, want %v", wrapped.Kind, KindNetwork)
	}
	if !strings.HasPrefix(wrapped.Message, networkErrorPrefix) {
		t.Errorf("message = %q, want prefix %q", wrapped.Message, networkErrorPrefix)
	}
	if !strings.Contains(wrapped.Message, "connection refused") {
		t.Errorf("message = %q should include the cause", wrapped.Message)
	}
}

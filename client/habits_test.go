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

// staticTokenSource は固定トークンを返すTokenSource実装。
type staticTokenSource struct {
	token string
	err   error
}

func (s *staticTokenSource) AccessToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

var _ TokenSource = (*staticTokenSource)(nil)

func habitJSON(id string, completed bool) map[string]interface{} {
	now := time.Now().UTC().Format(time.RFC3339)
	return map[string]interface{}{
		"id": id, "name": "Run", "description": "", "completed": completed,
		"userId": "u1", "createdAt": now, "updatedAt": now,
	}
}

func TestHabitsClient_List_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/habits" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
		}
		writeTestData(w, http.StatusOK, []interface{}{habitJSON("h1", true), habitJSON("h2", false)})
	}))
	defer server.Close()

	c := NewHabitsClient(server.URL, nil, &staticTokenSource{token: "tok"})
	habits, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(habits) != 2 {
		t.Fatalf("len(habits) = %d, want 2", len(habits))
	}
	if habits[0].ID != "h1" || !habits[0].Completed {
		t.Errorf("unexpected first habit: %+v", habits[0])
	}
}

func TestHabitsClient_Create_PostsNameAndDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Run" || body["description"] != "morning" {
			t.Errorf("unexpected body: %v", body)
		}
		writeTestData(w, http.StatusCreated, habitJSON("h1", false))
	}))
	defer server.Close()

	c := NewHabitsClient(server.URL, nil, &staticTokenSource{token: "tok"})
	habit, err := c.Create(context.Background(), "Run", "morning")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if habit.ID != "h1" || habit.Completed {
		t.Errorf("unexpected habit: %+v", habit)
	}
}

func TestHabitsClient_Create_ValidationError_ReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestError(w, http.StatusBadRequest, "Habit name is required")
	}))
	defer server.Close()

	c := NewHabitsClient(server.URL, nil, &staticTokenSource{token: "tok"})
	_, err := c.Create(context.Background(), "", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.Status)
	}
	if apiErr.Message != "Habit name is required" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestHabitsClient_Toggle_ReturnsFlippedHabit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/habits/h1/toggle" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeTestData(w, http.StatusOK, habitJSON("h1", true))
	}))
	defer server.Close()

	c := NewHabitsClient(server.URL, nil, &staticTokenSource{token: "tok"})
	habit, err := c.Toggle(context.Background(), "h1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !habit.Completed {
		t.Error("expected completed = true after toggle")
	}
}

func TestHabitsClient_Delete_SendsDeleteRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete || r.URL.Path != "/api/habits/h1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeTestData(w, http.StatusOK, map[string]string{"id": "h1"})
	}))
	defer server.Close()

	c := NewHabitsClient(server.URL, nil, &staticTokenSource{token: "tok"})
	if err := c.Delete(context.Background(), "h1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Error("delete request was not sent")
	}
}

func TestHabitsClient_TokenSourceFailure_Propagates(t *testing.T) {
	wantErr := &AuthError{Kind: KindUnauthorized, Message: "no active session"}
	c := NewHabitsClient("https://api.example.com", nil, &staticTokenSource{err: wantErr})

	_, err := c.List(context.Background())
	if !errors.Is(err, wantErr) {
		t.Errorf("expected token source error to propagate, got %v", err)
	}
}

func TestHabitsClient_NetworkError_HasFixedPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewHabitsClient(url, nil, &staticTokenSource{token: "tok"})
	_, err := c.List(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), networkErrorPrefix) {
		t.Errorf("error = %q, want prefix %q", err.Error(), networkErrorPrefix)
	}
}

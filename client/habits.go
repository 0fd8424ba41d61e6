package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Habit は習慣のクライアント側表現。
type Habit struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TokenSource はリクエストに付与するアクセストークンを提供する。
// Gatewayがこのインターフェースを満たす。
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// HabitsClient は習慣CRUD APIの型付きクライアント。
type HabitsClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewHabitsClient はHabitsClientを生成する。httpClientがnilの場合はデフォルトを使う。
func NewHabitsClient(baseURL string, httpClient *http.Client, tokens TokenSource) *HabitsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HabitsClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
	}
}

// List は習慣の一覧を作成日時の降順で取得する。
func (c *HabitsClient) List(ctx context.Context) ([]Habit, error) {
	var habits []Habit
	if err := c.do(ctx, http.MethodGet, "/api/habits", nil, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

// Create は習慣を作成する。nameは必須、descriptionは省略可。
func (c *HabitsClient) Create(ctx context.Context, name, description string) (*Habit, error) {
	body := map[string]string{"name": name, "description": description}

	var habit Habit
	if err := c.do(ctx, http.MethodPost, "/api/habits", body, &habit); err != nil {
		return nil, err
	}
	return &habit, nil
}

// Toggle は習慣の完了状態を反転し、更新後の習慣を返す。
func (c *HabitsClient) Toggle(ctx context.Context, habitID string) (*Habit, error) {
	var habit Habit
	if err := c.do(ctx, http.MethodPatch, "/api/habits/"+habitID+"/toggle", nil, &habit); err != nil {
		return nil, err
	}
	return &habit, nil
}

// Delete は習慣を削除する。
func (c *HabitsClient) Delete(ctx context.Context, habitID string) error {
	return c.do(ctx, http.MethodDelete, "/api/habits/"+habitID, nil, nil)
}

// do は認証付きJSONリクエストを送り、{data: ...}エンベロープからoutにデコードする。
// 非2xxレスポンスはAPIErrorに、到達性エラーは固定プレフィックス付きで包む。
func (c *HabitsClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", networkErrorPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// decodeAPIError は非2xxレスポンスをAPIErrorに変換する。
func decodeAPIError(resp *http.Response) *APIError {
	var payload errorPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
		payload.Error = resp.Status
	}
	return &APIError{
		Status:  resp.StatusCode,
		Message: payload.Error,
		Details: payload.Details,
	}
}

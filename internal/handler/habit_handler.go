package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/habitman/internal/metrics"
	"github.com/hitoshi/habitman/internal/middleware"
	"github.com/hitoshi/habitman/internal/model"
)

// HabitServiceInterface は習慣ハンドラーが必要とするサービスインターフェース。
type HabitServiceInterface interface {
	// List はユーザーの習慣一覧を作成日時の降順で返す。
	List(ctx context.Context, userID string) ([]*model.Habit, error)
	// Create は新しい習慣を作成する。
	Create(ctx context.Context, userID, name, description string) (*model.Habit, error)
	// Toggle は習慣の完了フラグを反転する。
	Toggle(ctx context.Context, userID, habitID string) (*model.Habit, error)
	// Delete は習慣を削除する。
	Delete(ctx context.Context, userID, habitID string) error
}

// HabitHandler は習慣管理のHTTPハンドラー。
type HabitHandler struct {
	service HabitServiceInterface
	metrics metrics.MetricsCollector
}

// NewHabitHandler はHabitHandlerを生成する。collectorはnil可。
func NewHabitHandler(service HabitServiceInterface, collector metrics.MetricsCollector) *HabitHandler {
	return &HabitHandler{
		service: service,
		metrics: collector,
	}
}

// createHabitRequest は習慣作成リクエストのボディ。
type createHabitRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List はユーザーの習慣一覧を返す。
// GET /api/habits
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	habits, err := h.service.List(r.Context(), principal.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]habitResponse, len(habits))
	for i, habit := range habits {
		responses[i] = toHabitResponse(habit)
	}

	writeData(w, http.StatusOK, responses)
}

// Create は習慣を作成する。
// POST /api/habits
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	habit, err := h.service.Create(r.Context(), principal.ID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordHabitCreated()
	}
	writeData(w, http.StatusCreated, toHabitResponse(habit))
}

// Toggle は習慣の完了フラグを反転する。
// PATCH /api/habits/{id}/toggle
func (h *HabitHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	habitID := chi.URLParam(r, "id")

	habit, err := h.service.Toggle(r.Context(), principal.ID, habitID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordHabitToggled()
	}
	writeData(w, http.StatusOK, toHabitResponse(habit))
}

// Delete は習慣を削除する。
// DELETE /api/habits/{id}
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	habitID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), principal.ID, habitID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{"id": habitID})
}

package ingest

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/common"
)

// Enqueuer is the subset of *asynq.Client used to schedule refreshes.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RefreshRequest is the body of POST /api/v1/admin/refresh.
type RefreshRequest struct {
	City string `json:"city" validate:"required"`
}

// AdminHandler lets administrators trigger an ad-hoc catalog refresh.
type AdminHandler struct {
	Queue Enqueuer
}

// Refresh handles POST /api/v1/admin/refresh.
func (h AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "task queue not configured", nil)
		return
	}
	var req RefreshRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.WriteError(w, err)
		return
	}
	task, err := NewRefreshTask(req.City)
	if err != nil {
		common.WriteError(w, common.BadRequest("city", "city is required", err))
		return
	}
	info, err := h.Queue.EnqueueContext(r.Context(), task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		common.JSONError(w, http.StatusConflict, "REFRESH_PENDING", "a refresh for this city is already queued", nil)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("city", req.City).Msg("enqueue catalog refresh")
		common.JSONError(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "could not enqueue refresh", nil)
		return
	}
	subject, _ := common.Subject(r.Context())
	zerolog.Ctx(r.Context()).Info().Str("city", req.City).Str("task_id", info.ID).Str("requested_by", subject).Msg("catalog refresh enqueued")
	common.Data(w, http.StatusAccepted, map[string]string{
		"taskId": info.ID,
		"queue":  info.Queue,
		"city":   req.City,
	})
}

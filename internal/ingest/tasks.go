package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeCatalogRefresh is the asynq task type refreshing one city.
const TypeCatalogRefresh = "catalog:refresh"

// QueueCatalog is the asynq queue refresh tasks run on.
const QueueCatalog = "catalog"

// RefreshPayload is the JSON payload of a catalog:refresh task.
type RefreshPayload struct {
	City string `json:"city"`
}

// NewRefreshTask builds a refresh task for city. Duplicate tasks for the same
// city are rejected by asynq while one is pending.
func NewRefreshTask(city string) (*asynq.Task, error) {
	city = strings.ToLower(strings.TrimSpace(city))
	if city == "" {
		return nil, errors.New("ingest: city is required")
	}
	payload, err := json.Marshal(RefreshPayload{City: city})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCatalogRefresh, payload,
		asynq.Queue(QueueCatalog),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Unique(5*time.Minute),
	), nil
}

// TaskHandler processes catalog:refresh tasks.
type TaskHandler struct {
	Refresher *Refresher
}

// ProcessTask implements asynq.Handler.
func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return h.HandleRefreshTask(ctx, t)
}

// HandleRefreshTask decodes the payload and refreshes the city. Malformed
// payloads and refreshes already running elsewhere are not retried.
func (h TaskHandler) HandleRefreshTask(ctx context.Context, t *asynq.Task) error {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TypeCatalogRefresh, err, asynq.SkipRetry)
	}
	if strings.TrimSpace(p.City) == "" {
		return fmt.Errorf("%s payload without city: %w", TypeCatalogRefresh, asynq.SkipRetry)
	}
	_, err := h.Refresher.Refresh(ctx, p.City)
	if errors.Is(err, ErrRefreshInProgress) || errors.Is(err, ErrCityNotFound) {
		return nil
	}
	return err
}

// RegisterSchedules enqueues a refresh of every city on the cron spec.
func RegisterSchedules(s *asynq.Scheduler, spec string, cities []string) ([]string, error) {
	ids := make([]string, 0, len(cities))
	for _, city := range cities {
		task, err := NewRefreshTask(city)
		if err != nil {
			return ids, err
		}
		id, err := s.Register(spec, task)
		if err != nil {
			return ids, fmt.Errorf("schedule refresh of %s: %w", city, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

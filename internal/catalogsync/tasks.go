package catalogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeCatalogRefresh is the asynq task type for a catalog refresh.
const TypeCatalogRefresh = "catalog:refresh"

type refreshPayload struct {
	Supplier    string    `json:"supplier"`
	RequestedAt time.Time `json:"requested_at"`
	Trigger     string    `json:"trigger"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler queues refresh tasks.
type Scheduler struct {
	Client Enqueuer
	Queue  string
	// Unique collapses duplicate refresh requests within the window.
	Unique time.Duration
}

// NewRefreshTask builds a refresh task for supplier.
func NewRefreshTask(supplier, trigger string, now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(refreshPayload{Supplier: supplier, RequestedAt: now.UTC(), Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCatalogRefresh, payload), nil
}

// Enqueue queues a refresh and returns the task id.
func (s Scheduler) Enqueue(ctx context.Context, supplier, trigger string) (string, error) {
	if s.Client == nil {
		return "", errors.New("catalogsync: task client not configured")
	}
	task, err := NewRefreshTask(supplier, trigger, time.Now())
	if err != nil {
		return "", err
	}
	opts := []asynq.Option{
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(3),
		asynq.Timeout(5 * time.Minute),
	}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.Unique > 0 {
		opts = append(opts, asynq.Unique(s.Unique))
	}
	info, err := s.Client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", ErrAlreadyRunning
		}
		return "", fmt.Errorf("catalogsync: enqueue refresh: %w", err)
	}
	return info.ID, nil
}

// Jobs maps a supplier to its refresh job.
type Jobs map[string]*Job

// ProcessTask implements asynq.Handler.
func (jobs Jobs) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p refreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode refresh payload: %v: %w", err, asynq.SkipRetry)
	}
	job, ok := jobs[p.Supplier]
	if !ok {
		return fmt.Errorf("no refresh job for supplier %q: %w", p.Supplier, asynq.SkipRetry)
	}
	if _, err := job.Run(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return nil
		}
		return err
	}
	return nil
}

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// TaskMessage is the wire payload announcing a task ready for processing.
type TaskMessage struct {
	TaskID uuid.UUID `json:"task_id"`
}

// pipeline runs the resize pipeline for one task.
type pipeline interface {
	Process(ctx context.Context, taskID uuid.UUID) error
}

// pool schedules a pipeline run on the bounded worker pool.
type pool interface {
	Submit(ctx context.Context, run func(context.Context))
}

// CreatedHandler handles Kafka messages for newly created tasks. It hands
// each task to the worker pool; processing failures never surface here
// because the pipeline records them as the task's terminal state.
type CreatedHandler struct {
	pipeline pipeline
	pool     pool
	timeout  time.Duration
}

// NewCreatedHandler creates a handler dispatching to the given pipeline.
// timeout bounds each pipeline run; zero means unbounded.
func NewCreatedHandler(p pipeline, wp pool, timeout time.Duration) *CreatedHandler {
	return &CreatedHandler{pipeline: p, pool: wp, timeout: timeout}
}

// Handle unmarshals the message and schedules the pipeline run. It returns
// an error only for undecodable payloads.
func (h *CreatedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var m TaskMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return fmt.Errorf("unmarshal task message: %w", err)
	}

	h.pool.Submit(ctx, func(runCtx context.Context) {
		if h.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, h.timeout)
			defer cancel()
		}

		if err := h.pipeline.Process(runCtx, m.TaskID); err != nil {
			zlog.Logger.Err(err).
				Str("task_id", m.TaskID.String()).
				Msg("pipeline run failed")
		}
	})

	return nil
}

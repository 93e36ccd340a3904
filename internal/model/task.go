package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a processing task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task represents one image processing request. It is the aggregate root:
// the Images list on a completed task is the authoritative result set.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	Status       TaskStatus `json:"status"`
	Price        float64    `json:"price"`
	OriginalPath string     `json:"original_path"`
	Images       []ImageRef `json:"images,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ImageRef is one derived variant as reported on the task itself.
type ImageRef struct {
	Resolution string `json:"resolution"`
	Path       string `json:"path"`
}

// StatusUpdate is a tagged transition payload. Constructors below are the
// only way to build one, so a failed update cannot carry images and a
// pending update always clears previous results.
type StatusUpdate struct {
	Status       TaskStatus
	Images       []ImageRef
	ErrorMessage *string
}

// PendingUpdate resets a task for re-processing, discarding any previous
// images and error message.
func PendingUpdate() StatusUpdate {
	return StatusUpdate{Status: StatusPending}
}

// CompletedUpdate marks a task completed with its full derivative list.
func CompletedUpdate(images []ImageRef) StatusUpdate {
	return StatusUpdate{Status: StatusCompleted, Images: images}
}

// FailedUpdate marks a task failed with a descriptive message.
func FailedUpdate(msg string) StatusUpdate {
	return StatusUpdate{Status: StatusFailed, ErrorMessage: &msg}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// Image is one derived resized artifact, persisted as its own record for
// lookup and audit. TaskID is a non-owning back-reference; the Task record
// keeps the authoritative list.
type Image struct {
	ID         uuid.UUID `json:"id"`
	TaskID     uuid.UUID `json:"task_id"`
	Path       string    `json:"path"`       // relative output path, unique system-wide
	Resolution string    `json:"resolution"` // target width token, e.g. "1024"
	MD5        string    `json:"md5"`        // content hash of the original source file
	CreatedAt  time.Time `json:"created_at"`
}

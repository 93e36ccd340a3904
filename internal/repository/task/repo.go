package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
)

var ErrTaskNotFound = errors.New("task not found")

// Repository provides CRUD operations for tasks in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new task record.
func (r *Repository) Create(ctx context.Context, t model.Task) error {
	query := `
		INSERT INTO tasks (id, status, price, original_path, images, created_at)
		VALUES ($1, $2, $3, $4, '[]'::jsonb, $5)
   `

	_, err := r.db.ExecContext(
		ctx, query, t.ID, t.Status, t.Price, t.OriginalPath, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create: failed to save task: %w", err)
	}

	return nil
}

// Get retrieves a task record by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	query := `
		SELECT status, price, original_path, images, error_message, created_at, completed_at
		FROM tasks
		WHERE id = $1
    `

	var t model.Task
	var imagesBytes []byte

	err := r.db.QueryRowContext(
		ctx, query, id,
	).Scan(&t.Status, &t.Price, &t.OriginalPath, &imagesBytes, &t.ErrorMessage, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrTaskNotFound
		}

		return model.Task{}, fmt.Errorf("get: failed to get task: %w", err)
	}

	if len(imagesBytes) > 0 {
		if err := json.Unmarshal(imagesBytes, &t.Images); err != nil {
			return model.Task{}, fmt.Errorf("get: failed to unmarshal images: %w", err)
		}
	}

	t.ID = id

	return t, nil
}

// UpdateStatus applies a status transition. A pending update clears images
// and the error message; terminal updates stamp completed_at.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, upd model.StatusUpdate) error {
	imagesJSON, err := json.Marshal(upd.Images)
	if err != nil {
		return fmt.Errorf("update: failed to marshal images: %w", err)
	}
	if upd.Images == nil {
		imagesJSON = []byte("[]")
	}

	var completedAt *time.Time
	if upd.Status != model.StatusPending {
		now := time.Now().UTC()
		completedAt = &now
	}

	query := `
		UPDATE tasks
		SET status = $1, images = $2, error_message = $3, completed_at = $4
		WHERE id = $5
    `

	res, err := r.db.ExecContext(ctx, query, upd.Status, imagesJSON, upd.ErrorMessage, completedAt, id)
	if err != nil {
		return fmt.Errorf("update: failed to update task: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrTaskNotFound
	}

	return nil
}

package image

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
)

// Repository provides operations over the derivative image index.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts a new image record and returns its UUID. Paths are unique
// system-wide; byte-identical sources across tasks resolve to the same path,
// so a conflict re-points the existing record instead of failing.
func (r *Repository) Save(ctx context.Context, img model.Image) (uuid.UUID, error) {
	query := `
		INSERT INTO images (task_id, path, resolution, md5)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE SET task_id = EXCLUDED.task_id
		RETURNING id
   `

	var id uuid.UUID
	err := r.db.QueryRowContext(
		ctx, query, img.TaskID, img.Path, img.Resolution, img.MD5,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save: failed to save image: %w", err)
	}

	return id, nil
}

// GetByTaskID retrieves all image records owned by the given task, in
// insertion order.
func (r *Repository) GetByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.Image, error) {
	query := `
		SELECT id, path, resolution, md5, created_at
		FROM images
		WHERE task_id = $1
		ORDER BY created_at
    `

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("get: failed to get images: %w", err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		img := model.Image{TaskID: taskID}
		if err := rows.Scan(&img.ID, &img.Path, &img.Resolution, &img.MD5, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("get: failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get: failed to read images: %w", err)
	}

	return images, nil
}

// CountByTaskID reports how many derivative records the given task owns.
func (r *Repository) CountByTaskID(ctx context.Context, taskID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM images
		WHERE task_id = $1
    `

	var n int
	if err := r.db.QueryRowContext(ctx, query, taskID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: failed to count images: %w", err)
	}

	return n, nil
}

package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
	taskrepo "github.com/Martaccvlc/ImageResizingAPI/internal/repository/task"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrSourceNotFound = errors.New("source file not found")
	ErrDownloadFailed = errors.New("download failed")
)

// Prices are cosmetic: uniform in [5.00, 50.00], two decimals.
const (
	priceMin = 5.00
	priceMax = 50.00
)

// Accepted local source: absolute path with a supported image extension.
var localPathPattern = regexp.MustCompile(`(?i)^/.+\.(jpe?g|png|gif)$`)

// taskRepository defines the store operations the service needs.
type taskRepository interface {
	Create(ctx context.Context, t model.Task) error
	Get(ctx context.Context, id uuid.UUID) (model.Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd model.StatusUpdate) error
}

// imageRepository reads the derivative index.
type imageRepository interface {
	GetByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.Image, error)
}

// sourceFetcher downloads a remote image to the managed input directory.
type sourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// producer hands a created task off for asynchronous processing.
type producer interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
}

// taskCache caches task views on the read path.
type taskCache interface {
	Get(ctx context.Context, taskID string) (model.Task, error)
	Set(ctx context.Context, t model.Task) error
	Invalidate(ctx context.Context, taskID string) error
}

// CreateInput carries the creation request: exactly one of URL or LocalPath.
type CreateInput struct {
	URL       string
	LocalPath string
}

// Service implements the task lifecycle: creation with source resolution,
// asynchronous dispatch, status reads, and administrative retry.
type Service struct {
	repo       taskRepository
	images     imageRepository
	downloader sourceFetcher
	producer   producer
	cache      taskCache
}

// NewService creates a Service. cache may be nil.
func NewService(repo taskRepository, images imageRepository, d sourceFetcher, p producer, c taskCache) *Service {
	return &Service{repo: repo, images: images, downloader: d, producer: p, cache: c}
}

// Create validates the input, resolves the source image onto local disk,
// persists a pending task, and enqueues it for processing. The task record
// is durable before the handoff, so a concurrent read always observes at
// least the pending state.
func (s *Service) Create(ctx context.Context, input CreateInput) (model.Task, error) {
	if (input.URL == "") == (input.LocalPath == "") {
		return model.Task{}, fmt.Errorf("%w: URL or local image path needed", ErrInvalidRequest)
	}

	originalPath, err := s.resolveSource(ctx, input)
	if err != nil {
		return model.Task{}, err
	}

	t := model.Task{
		ID:           uuid.New(),
		Status:       model.StatusPending,
		Price:        randomPrice(),
		OriginalPath: originalPath,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}

	if err := s.producer.Enqueue(ctx, t.ID); err != nil {
		// The record stays pending and can be re-driven via Retry.
		zlog.Logger.Err(err).Str("task_id", t.ID.String()).Msg("failed to enqueue task")
		return model.Task{}, fmt.Errorf("enqueue task: %w", err)
	}

	zlog.Logger.Info().
		Str("task_id", t.ID.String()).
		Str("original_path", t.OriginalPath).
		Msg("task created")

	return t, nil
}

// resolveSource turns the request into an on-disk source path: downloads
// the URL, or validates the local path pattern and existence.
func (s *Service) resolveSource(ctx context.Context, input CreateInput) (string, error) {
	if input.URL != "" {
		u, err := url.Parse(input.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("%w: malformed URL", ErrInvalidRequest)
		}

		path, err := s.downloader.Fetch(ctx, input.URL)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}

		return path, nil
	}

	if !localPathPattern.MatchString(input.LocalPath) {
		return "", fmt.Errorf("%w: invalid image path", ErrInvalidRequest)
	}

	if _, err := os.Stat(input.LocalPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, input.LocalPath)
	}

	return input.LocalPath, nil
}

// Get returns the task with the given id. A malformed id is reported the
// same way as a missing record.
func (s *Service) Get(ctx context.Context, taskID string) (model.Task, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return model.Task{}, taskrepo.ErrTaskNotFound
	}

	if s.cache != nil {
		if t, err := s.cache.Get(ctx, taskID); err == nil {
			return t, nil
		}
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}

	// Only terminal views are cached. A pending view read here may already
	// be superseded by the processor's terminal update and invalidation, and
	// re-caching it would pin the stale state for the full TTL. Terminal
	// states never change, so caching them cannot race.
	if s.cache != nil && t.Status != model.StatusPending {
		if err := s.cache.Set(ctx, t); err != nil {
			zlog.Logger.Err(err).Str("task_id", taskID).Msg("failed to cache task")
		}
	}

	return t, nil
}

// Images returns the derivative index records owned by a task. The task's
// own images list stays authoritative for results; this surfaces the
// per-record detail (id, content hash) the index keeps.
func (s *Service) Images(ctx context.Context, taskID string) ([]model.Image, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil, taskrepo.ErrTaskNotFound
	}

	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	return s.images.GetByTaskID(ctx, id)
}

// Retry resets a task to pending, clearing previous images and error
// message, and enqueues it again.
func (s *Service) Retry(ctx context.Context, taskID string) (model.Task, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return model.Task{}, taskrepo.ErrTaskNotFound
	}

	if err := s.repo.UpdateStatus(ctx, id, model.PendingUpdate()); err != nil {
		return model.Task{}, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, taskID); err != nil {
			zlog.Logger.Err(err).Str("task_id", taskID).Msg("failed to invalidate cached task")
		}
	}

	if err := s.producer.Enqueue(ctx, id); err != nil {
		zlog.Logger.Err(err).Str("task_id", taskID).Msg("failed to enqueue task")
		return model.Task{}, fmt.Errorf("enqueue task: %w", err)
	}

	zlog.Logger.Info().Str("task_id", taskID).Msg("task requeued")

	return s.repo.Get(ctx, id)
}

func randomPrice() float64 {
	v := priceMin + rand.Float64()*(priceMax-priceMin)
	return math.Round(v*100) / 100
}

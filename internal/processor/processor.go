package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/Martaccvlc/ImageResizingAPI/internal/fileops"
	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
)

// taskRepository defines the store operations the pipeline needs.
type taskRepository interface {
	Get(ctx context.Context, id uuid.UUID) (model.Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, upd model.StatusUpdate) error
}

// imageRepository persists derivative records.
type imageRepository interface {
	Save(ctx context.Context, img model.Image) (uuid.UUID, error)
	CountByTaskID(ctx context.Context, taskID uuid.UUID) (int, error)
}

// derivativeStorage defines the interface for derivative file storage.
type derivativeStorage interface {
	SourceExists(path string) bool
	DerivativeExists(relPath string) bool
	SaveDerivative(relPath string, src io.Reader) (string, error)
}

// taskCache invalidates cached task views after a status transition.
type taskCache interface {
	Invalidate(ctx context.Context, taskID string) error
}

// Processor derives one resized variant per configured resolution for a
// task's source image and records the outcome. All resolutions succeed or
// the task fails; there is no partial completion.
type Processor struct {
	tasks       taskRepository
	images      imageRepository
	storage     derivativeStorage
	cache       taskCache
	resolutions []string
	jpegQuality int
}

// New creates a Processor. resolutions is the ordered set of target width
// tokens; the order is preserved in the task's reported images list.
// cache may be nil.
func New(tasks taskRepository, images imageRepository, storage derivativeStorage, cache taskCache, resolutions []string, jpegQuality int) *Processor {
	return &Processor{
		tasks:       tasks,
		images:      images,
		storage:     storage,
		cache:       cache,
		resolutions: resolutions,
		jpegQuality: jpegQuality,
	}
}

// Process runs the pipeline for the given task. Processing failures are
// captured as the task's failed state and not returned; the error return
// covers only conditions where no state change was possible (missing task)
// or the terminal update itself failed.
func (p *Processor) Process(ctx context.Context, taskID uuid.UUID) error {
	t, err := p.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}

	// At-least-once delivery can hand back a task that already finished.
	// When the index carries every configured derivative there is nothing
	// to redo.
	if t.Status == model.StatusCompleted {
		n, countErr := p.images.CountByTaskID(ctx, taskID)
		if countErr == nil && n >= len(p.resolutions) {
			zlog.Logger.Info().
				Str("task_id", taskID.String()).
				Msg("task already processed, skipping")
			return nil
		}
	}

	// The creation-time existence check is not trusted here; the file may
	// have vanished between create and dispatch.
	if !p.storage.SourceExists(t.OriginalPath) {
		return p.fail(ctx, taskID, fmt.Sprintf("source file not found: %s", t.OriginalPath))
	}

	hash, err := fileops.MD5File(t.OriginalPath)
	if err != nil {
		return p.fail(ctx, taskID, fmt.Sprintf("failed to read source file: %v", err))
	}

	format, err := imaging.FormatFromFilename(t.OriginalPath)
	if err != nil {
		return p.fail(ctx, taskID, fmt.Sprintf("image decode failed: %v", err))
	}

	src, err := imaging.Open(t.OriginalPath)
	if err != nil {
		return p.fail(ctx, taskID, fmt.Sprintf("image decode failed: %v", err))
	}

	base := fileops.BaseName(t.OriginalPath)
	ext := fileops.Ext(t.OriginalPath)

	refs := make([]model.ImageRef, 0, len(p.resolutions))

	for _, res := range p.resolutions {
		width, err := strconv.Atoi(res)
		if err != nil {
			return p.fail(ctx, taskID, fmt.Sprintf("image processing failed: invalid resolution %q", res))
		}

		relPath := filepath.Join(base, res, hash+ext)

		// A byte-identical source processed before already produced this
		// exact file; skip the re-encode and only record the reference.
		if !p.storage.DerivativeExists(relPath) {
			buf := bytes.NewBuffer(nil)
			if err := p.encode(buf, fitWidth(src, width), format); err != nil {
				return p.fail(ctx, taskID, fmt.Sprintf("image processing failed: %v", err))
			}

			if _, err := p.storage.SaveDerivative(relPath, buf); err != nil {
				return p.fail(ctx, taskID, fmt.Sprintf("failed to write derivative: %v", err))
			}
		}

		img := model.Image{
			TaskID:     taskID,
			Path:       relPath,
			Resolution: res,
			MD5:        hash,
		}
		if _, err := p.images.Save(ctx, img); err != nil {
			return p.fail(ctx, taskID, fmt.Sprintf("failed to record derivative: %v", err))
		}

		refs = append(refs, model.ImageRef{Resolution: res, Path: relPath})
	}

	if err := p.tasks.UpdateStatus(ctx, taskID, model.CompletedUpdate(refs)); err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}

	p.invalidate(ctx, taskID)

	zlog.Logger.Info().
		Str("task_id", taskID.String()).
		Int("images", len(refs)).
		Msg("task processed")

	return nil
}

// encode re-encodes the image in the source's own container format. JPEG
// gets the configured fixed quality; other formats use library defaults.
func (p *Processor) encode(w io.Writer, img image.Image, format imaging.Format) error {
	if format == imaging.JPEG {
		return imaging.Encode(w, img, format, imaging.JPEGQuality(p.jpegQuality))
	}

	return imaging.Encode(w, img, format)
}

// fail records the terminal failed state. The returned error is non-nil
// only when the state update itself could not be applied.
func (p *Processor) fail(ctx context.Context, taskID uuid.UUID, msg string) error {
	zlog.Logger.Error().
		Str("task_id", taskID.String()).
		Str("reason", msg).
		Msg("task processing failed")

	if err := p.tasks.UpdateStatus(ctx, taskID, model.FailedUpdate(msg)); err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}

	p.invalidate(ctx, taskID)

	return nil
}

func (p *Processor) invalidate(ctx context.Context, taskID uuid.UUID) {
	if p.cache == nil {
		return
	}

	if err := p.cache.Invalidate(ctx, taskID.String()); err != nil {
		zlog.Logger.Err(err).Str("task_id", taskID.String()).Msg("failed to invalidate cached task")
	}
}

// fitWidth scales the image down so its width does not exceed width,
// preserving aspect ratio. Narrower sources pass through unchanged.
func fitWidth(img image.Image, width int) image.Image {
	if img.Bounds().Dx() <= width {
		return img
	}

	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/Martaccvlc/ImageResizingAPI/internal/api/respond"
	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
	taskrepo "github.com/Martaccvlc/ImageResizingAPI/internal/repository/task"
	tasksvc "github.com/Martaccvlc/ImageResizingAPI/internal/service/task"
)

// service defines the interface for task-related operations.
type service interface {
	Create(ctx context.Context, input tasksvc.CreateInput) (model.Task, error)
	Get(ctx context.Context, taskID string) (model.Task, error)
	Retry(ctx context.Context, taskID string) (model.Task, error)
	Images(ctx context.Context, taskID string) ([]model.Image, error)
}

// Handler provides HTTP handlers for the task resource.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// CreateRequest carries the creation payload: exactly one of url/localPath.
type CreateRequest struct {
	URL       string `json:"url"`
	LocalPath string `json:"localPath"`
}

// TaskResponse is the wire representation of a task. Images appear only on
// completed tasks, errorMessage only on failed ones.
type TaskResponse struct {
	TaskID       string          `json:"taskId"`
	Status       string          `json:"status"`
	Price        float64         `json:"price"`
	Images       []ImageResponse `json:"images,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// ImageResponse is one derived variant in a completed task's response.
type ImageResponse struct {
	Resolution string `json:"resolution"`
	Path       string `json:"path"`
}

// ImageRecordResponse is one row of a task's derivative index, including
// the record identity and the source content hash.
type ImageRecordResponse struct {
	ID         string `json:"id"`
	Resolution string `json:"resolution"`
	Path       string `json:"path"`
	MD5        string `json:"md5"`
}

func toResponse(t model.Task) TaskResponse {
	resp := TaskResponse{
		TaskID: t.ID.String(),
		Status: string(t.Status),
		Price:  t.Price,
	}

	switch t.Status {
	case model.StatusCompleted:
		resp.Images = make([]ImageResponse, 0, len(t.Images))
		for _, img := range t.Images {
			resp.Images = append(resp.Images, ImageResponse{Resolution: img.Resolution, Path: img.Path})
		}
	case model.StatusFailed:
		if t.ErrorMessage != nil {
			resp.ErrorMessage = *t.ErrorMessage
		}
	}

	return resp
}

// Create handles POST /api/tasks. It validates the payload, creates the
// task, and responds with its identity and pending status before processing
// completes.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode create request")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	t, err := h.service.Create(c.Request.Context(), tasksvc.CreateInput{
		URL:       req.URL,
		LocalPath: req.LocalPath,
	})
	if err != nil {
		h.failCreate(c, err)
		return
	}

	respond.Created(c, toResponse(t))
}

// Get handles GET /api/tasks/:taskId.
func (h *Handler) Get(c *ginext.Context) {
	t, err := h.service.Get(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get task")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get task"))
		return
	}

	respond.OK(c, toResponse(t))
}

// Retry handles POST /api/tasks/:taskId/retry. It resets the task to
// pending and requeues it.
func (h *Handler) Retry(c *ginext.Context) {
	t, err := h.service.Retry(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to retry task")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to retry task"))
		return
	}

	respond.OK(c, toResponse(t))
}

// Images handles GET /api/tasks/:taskId/images. It exposes the derivative
// index records for auditing, independent of the task's own images list.
func (h *Handler) Images(c *ginext.Context) {
	imgs, err := h.service.Images(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get task images")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get task images"))
		return
	}

	resp := make([]ImageRecordResponse, 0, len(imgs))
	for _, img := range imgs {
		resp = append(resp, ImageRecordResponse{
			ID:         img.ID.String(),
			Resolution: img.Resolution,
			Path:       img.Path,
			MD5:        img.MD5,
		})
	}

	respond.OK(c, resp)
}

func (h *Handler) failCreate(c *ginext.Context, err error) {
	switch {
	case errors.Is(err, tasksvc.ErrInvalidRequest):
		respond.Fail(c, http.StatusBadRequest, err)
	case errors.Is(err, tasksvc.ErrSourceNotFound):
		respond.Fail(c, http.StatusNotFound, err)
	default:
		zlog.Logger.Err(err).Msg("failed to create task")
		respond.Fail(c, http.StatusInternalServerError, err)
	}
}

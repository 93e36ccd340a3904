package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/Martaccvlc/ImageResizingAPI/internal/api/handlers/task"
	"github.com/Martaccvlc/ImageResizingAPI/internal/middleware"
)

func Setup(h *task.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/tasks", h.Create)               // create a processing task
	api.GET("/tasks/:taskId", h.Get)           // poll task status
	api.GET("/tasks/:taskId/images", h.Images) // inspect the derivative index
	api.POST("/tasks/:taskId/retry", h.Retry)  // reset a task and requeue it

	r.GET("/health", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	return r
}

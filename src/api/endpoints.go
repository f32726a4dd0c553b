package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/history"
	"github.com/lost-woods/nistcheck/src/runner"
)

// History is the read side of the run history.
type History interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (history.Run, error)
}

type Handlers struct {
	ctrl        *runner.Controller
	history     History
	defaultBits int
	log         *zap.SugaredLogger
}

// NewHandlers builds the monitor handlers. hist may be nil when no history
// database is configured.
func NewHandlers(ctrl *runner.Controller, hist History, defaultBits int, log *zap.SugaredLogger) *Handlers {
	return &Handlers{ctrl: ctrl, history: hist, defaultBits: defaultBits, log: log}
}

// Register mounts every endpoint on r.
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/progress", h.Progress)
	r.GET("/tests", h.Tests)
	r.PUT("/tests/:id", h.UpdateTest)
	r.POST("/runs", h.StartRun)
	r.GET("/runs", h.Runs)
	r.GET("/runs/:id", h.RunByID)
	r.POST("/stop", h.Stop)
	r.GET("/report", h.Report)
	r.GET("/health", h.Health)
}

func CheckHeader(headerName, expectedValue string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Auth disabled if not configured
		if expectedValue == "" {
			c.Next()
			return
		}

		if c.GetHeader(headerName) != expectedValue {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

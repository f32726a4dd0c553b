package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/api"
	"github.com/lost-woods/nistcheck/src/runner"
)

type Server struct {
	addr         string
	router       *gin.Engine
	ctrl         *runner.Controller
	pollInterval time.Duration
	log          *zap.SugaredLogger
}

func New(addr string, handlers *api.Handlers, apiKey string, ctrl *runner.Controller, pollInterval time.Duration, log *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT"},
		AllowHeaders:     []string{"X-API-KEY", "Accept", "Content-Type"},
		AllowAllOrigins:  true,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(api.CheckHeader("X-API-KEY", apiKey))

	handlers.Register(router)

	return &Server{
		addr:         addr,
		router:       router,
		ctrl:         ctrl,
		pollInterval: pollInterval,
		log:          log,
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Watch polls the controller until ctx is done so that runs started over
// HTTP are finalized without a client waiting on them.
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if out, ok := s.ctrl.Poll(0); ok && out.Err != nil {
				s.log.Warnw("Run ended with error", "run", out.Run.ID, "error", out.Err)
			}
		}
	}
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.Watch(ctx)

	srv := &http.Server{Addr: s.addr, Handler: s.router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("Monitor listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

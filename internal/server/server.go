package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tsubaki-chat/backend/internal/config"
	"github.com/tsubaki-chat/backend/internal/dispatch"
	"github.com/tsubaki-chat/backend/internal/handler"
	appmw "github.com/tsubaki-chat/backend/internal/middleware"
	"github.com/tsubaki-chat/backend/internal/push"
	"github.com/tsubaki-chat/backend/internal/repository"
	"github.com/tsubaki-chat/backend/internal/service"
)

type Server struct {
	e         *echo.Echo
	scheduler *dispatch.Scheduler
	sha       string
	build     string
}

func New(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, sha, buildTime string) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) (bool, error) {
			low := strings.ToLower(origin)
			if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
				strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
				return true, nil
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false, nil
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false, nil
			}
			if strings.HasSuffix(u.Hostname(), "vercel.app") {
				return true, nil
			}
			return false, nil
		},
	}))

	jobRepo := repository.NewDispatchJobRepository(db, time.Duration(cfg.DispatchLeaseGraceSeconds)*time.Second)
	subRepo := repository.NewPushSubscriptionRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)
	traceRepo := repository.NewDeliveryTraceRepository(db)
	wakeupRepo := repository.NewWakeupConfigRepository(db, cfg.WakeupMinIntervalSeconds)

	var provider push.Provider
	provider, err := push.NewWebPushProvider(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject,
		time.Duration(cfg.DispatchSendTimeoutSeconds)*time.Second)
	if err != nil {
		// The API stays up without push credentials; only real sends are
		// off the table, and the worker reports that per job.
		log.Warnw("web push disabled", "error", err)
		provider = push.Unconfigured()
	}

	worker := dispatch.NewWorker(log, jobRepo, subRepo, notifRepo, traceRepo, provider, dispatch.WorkerConfig{
		LeaseDuration: time.Duration(cfg.DispatchLeaseSeconds) * time.Second,
		MaxAttempts:   cfg.DispatchMaxAttempts,
		BackoffBase:   time.Duration(cfg.DispatchBackoffBaseSeconds) * time.Second,
		BackoffCap:    time.Duration(cfg.DispatchBackoffCapSeconds) * time.Second,
		DefaultBatch:  cfg.DispatchBatchSize,
		MaxBatch:      cfg.DispatchMaxBatchSize,
		FanOut:        cfg.DispatchFanOut,
	})
	scheduler := dispatch.NewScheduler(log, wakeupRepo, worker, cfg.DispatchBatchSize)
	monitor := dispatch.NewHealthMonitor(jobRepo)

	notifSvc := service.NewNotificationService(log, notifRepo, prefRepo, subRepo, jobRepo, scheduler)
	subSvc := service.NewSubscriptionService(subRepo)

	notifHandler := handler.NewNotificationHandler(notifSvc, prefRepo)
	subHandler := handler.NewSubscriptionHandler(subSvc, cfg.VAPIDPublicKey)
	routeHandler := handler.NewRouteHandler(traceRepo)
	dispatchHandler := handler.NewDispatchHandler(worker, scheduler, monitor, traceRepo)

	authMw, err := appmw.NewAuthMiddleware(context.Background(), cfg.FirebaseProjectID)
	if err != nil {
		return nil, err
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    sha,
			"build_time": buildTime,
		})
	})

	api := e.Group("/api")

	api.POST("/notifications/events", notifHandler.CreateEvent, authMw.RequireAuth)
	api.GET("/notifications", notifHandler.List, authMw.RequireAuth)
	api.POST("/notifications/:id/read", notifHandler.MarkRead, authMw.RequireAuth)
	api.POST("/notifications/:id/dismiss", notifHandler.Dismiss, authMw.RequireAuth)
	api.GET("/notifications/preferences", notifHandler.GetPreferences, authMw.RequireAuth)
	api.PUT("/notifications/preferences", notifHandler.PutPreferences, authMw.RequireAuth)

	api.GET("/push/public-key", subHandler.PublicKey)
	api.POST("/push/subscriptions", subHandler.Subscribe, authMw.RequireAuth)
	api.DELETE("/push/subscriptions", subHandler.Unsubscribe, authMw.RequireAuth)
	api.POST("/push/route-decision", routeHandler.Decide, authMw.RequireAuth)

	api.POST("/dispatch/run", dispatchHandler.Run, authMw.RequireAuth)
	api.GET("/dispatch/wakeup", dispatchHandler.GetWakeupConfig, authMw.RequireAuth)
	api.PATCH("/dispatch/wakeup", dispatchHandler.UpdateWakeupConfig, authMw.RequireAuth)
	api.GET("/dispatch/health", dispatchHandler.Health, authMw.RequireAuth)
	api.GET("/dispatch/traces", dispatchHandler.ListTraces, authMw.RequireAuth)
	api.GET("/dispatch/traces/parity", dispatchHandler.TraceParity, authMw.RequireAuth)

	return &Server{e: e, scheduler: scheduler, sha: sha, build: buildTime}, nil
}

// Scheduler exposes the wakeup scheduler so main can wire the cron trigger.
func (s *Server) Scheduler() *dispatch.Scheduler {
	return s.scheduler
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

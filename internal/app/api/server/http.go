package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/app/api/handlers"
	mw "github.com/lendlib/membership/internal/app/api/middleware"
	"github.com/lendlib/membership/internal/app/service/enrolment"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Trace middleware only; request logger + access log attach per group.
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, eng *enrolment.Engine, db *gorm.DB, cfg *cfgpkg.Config) {
	var ops *prometheus.CounterVec
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.Options{
			Subsystem:     "membership",
			ListenAddress: cfg.MetricsAddr,
			Logger:        log,
		})
		p.Use(r)
		ops = p.EnrolmentOps
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: health + the gateway callback. The gateway cannot carry
	// credentials, the handler trusts only the payment id it fetches back.
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	handlers.RegisterWebhookRoutes(pub, eng, log, ops)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterEnrolmentRoutes(apiV1, eng, ops)
	handlers.RegisterUserRoutes(apiV1, db)

	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), eng, ops)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)

package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"msg_client/client/common/infra/db"
	commonlog "msg_client/client/common/log"
	"msg_client/client/common/metrics"
	"msg_client/client/common/middleware"
	"msg_client/client/devserver/api"
	"msg_client/client/devserver/store"
)

type Server struct {
	HTTPServer *http.Server
	Limiter    *middleware.RateLimiter
	Postgres   *store.PostgresStore
}

func NewServer(cfg Config) (*Server, error) {
	var (
		st      store.Store = store.NewMemoryStore()
		pgStore *store.PostgresStore
	)
	if cfg.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := db.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pgStore = store.NewPostgresStore(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			pgStore.Close()
			return nil, fmt.Errorf("migrate devserver schema: %w", err)
		}
		st = pgStore
		commonlog.Infof("devserver storage: postgres")
	} else {
		commonlog.Infof("devserver storage: memory")
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst, 2*time.Minute)
	go limiter.Run()

	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware(), limiter.Middleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.NewHandler(st, cfg.JWTSecret, cfg.JWTTTLMinutes).RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{HTTPServer: httpServer, Limiter: limiter, Postgres: pgStore}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Limiter.Stop()
	err := s.HTTPServer.Shutdown(ctx)
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	return err
}

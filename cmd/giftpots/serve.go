package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/middleware"
	"github.com/phillip/giftpots-go/ratelimit"
	"github.com/phillip/giftpots-go/routes"
	"github.com/phillip/giftpots-go/utils"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = ":" + cfg.Port
			}
			return runServe(cmd.Context(), cfg, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, defaults to :$PORT")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string) error {
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	deps := routes.Deps{
		Service:        newService(cfg, s),
		SessionLimiter: ratelimit.NewSlidingWindow(cfg.SessionRateLimit, cfg.RateLimitWindow),
		PaymentLimiter: ratelimit.NewSlidingWindow(cfg.PaymentRateLimit, cfg.RateLimitWindow),
	}
	if cfg.CloudinaryEnabled() {
		media, err := utils.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, "pots")
		if err != nil {
			log.WithError(err).Warn("cloudinary disabled")
		} else {
			deps.Media = media
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infof("running listener at %s", srv.Addr)
		return srv.ListenAndServe()
	})

	group.Go(func() error {
		defer func() {
			log.Info("shutting down web server")
			shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("server shutdown failed")
			}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			cancel()
			return nil
		}
	})

	if err := group.Wait(); err != nil && err != context.Canceled && err != http.ErrServerClosed {
		return err
	}
	log.Info("gracefully stopped")
	return nil
}

func newRouter(cfg *config.Config, deps routes.Deps) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AddAllowHeaders("Authorization", "If-None-Match")
	corsCfg.AddExposeHeaders("ETag")
	r.Use(cors.New(corsCfg))

	routes.SetupRoutes(r, cfg, deps)
	return r
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citnet/api"
	"citnet/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the optional cron schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer a.close()
		logging := a.logger

		sampler, err := a.sampler()
		if err != nil {
			return err
		}
		server := api.NewServer(a.cfg, a.store, sampler,
			services.NewEdgeGenerator(a.store, logging, a.metrics),
			services.NewClusterAssigner(a.store, logging, a.metrics),
			logging, prometheus.DefaultGatherer)

		cronScheduler, err := server.StartScheduler()
		if err != nil {
			return err
		}
		if cronScheduler != nil {
			logging.Info("Scheduler aktiv", zap.String("schedule", a.cfg.CronSchedule))
		}

		if gin.Mode() != gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:              ":" + a.cfg.HTTPPort,
			Handler:           server.Router(),
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		ctx, cancel := signalContext()
		defer cancel()
		go func() {
			<-ctx.Done()
			// A second signal terminates the process.
			cancel()
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logging.Info("Starting server", zap.String("port", a.cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logging.Info("Beende laufende Jobs")
		server.Stop()
		return nil
	},
}

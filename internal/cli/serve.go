package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"scadenze/internal/backend"
	apphttp "scadenze/internal/http"
	"scadenze/internal/log"
	"scadenze/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("rate-limit", ratelimit.DefaultConfig().Requests, "Mutating requests allowed per client per minute")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON HTTP API",
	Long: `Run the HTTP API on $PORT. Every /api request names its owner in the X-Owner-ID
header. SIGINT or SIGTERM drains in-flight requests before the storage is closed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := appLogger.WithComponent(log.ComponentApp)
	res, err := OpenBackend(cmd.Context(), logger, appConfig)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("rate-limit")
	srv := apphttp.NewServer(":"+appConfig.Port, apphttp.Deps{
		Commitments:    res.Commitments,
		Reports:        res.Reports,
		Logger:         logger,
		RateLimit:      ratelimit.Config{Requests: limit, Window: time.Minute},
		MetricsEnabled: appConfig.MetricsEnabled,
		Ready:          res.Ready,
	})

	ctx, done := GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		closeBackend(logger, res)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting scadenze server",
			"port", appConfig.Port,
			"backend", appConfig.DataBackend,
			"metrics", appConfig.MetricsEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		logger.Error("Server error", log.FieldError, err, "port", appConfig.Port)
		closeBackend(logger, res)
		return err
	case <-ctx.Done():
	}

	WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}

func closeBackend(logger *log.Logger, res *backend.BackendResult) {
	if err := res.Cleanup(); err != nil {
		logger.Warn("Backend cleanup failed", log.FieldError, err)
	}
}

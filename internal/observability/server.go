package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// NewHandler routes /metrics and /health.
func NewHandler(registry *Registry, health *HealthMonitor) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", NewPrometheusExporter(registry))
	mux.Handle("/health", health)
	return mux
}

// Serve runs the metrics server until ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) error {
	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server started (/metrics, /health)")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

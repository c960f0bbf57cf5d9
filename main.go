package phonoglyph

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/config"
	"github.com/rheome-dev/Phonoglyph-sub001/internal/logging"
)

var appCtx context.Context

// Main runs the sync service until SIGINT or SIGTERM.
func Main(configPath string) {
	logger := logging.GetSubsystemLogger("phonoglyph")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		os.Exit(1)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger = logging.GetSubsystemLogger("phonoglyph")

	var cancel context.CancelFunc
	appCtx, cancel = context.WithCancel(context.Background())
	defer cancel()

	logger.Info().
		Str("config", configPath).
		Str("listen_addr", cfg.HTTP.ListenAddr).
		Msg("starting phonoglyph sync service")

	svc, err := NewService(appCtx, cfg, logging.GetDefaultLogger(), nil, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize service")
		os.Exit(1)
	}
	svc.Start()

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
	case <-appCtx.Done():
	}
	logger.Info().Msg("phonoglyph shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown")
	}
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("service shutdown")
	}
}

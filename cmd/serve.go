package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"ftpgate/config"
	"ftpgate/internal/api"
	"ftpgate/internal/auth"
	"ftpgate/internal/core"
	"ftpgate/internal/metrics"
	"ftpgate/internal/registry"
	"ftpgate/util"
)

// listening is called with the bound address once the façade accepts
// connections.
var listening = func(net.Addr) {} //nolint:gochecknoglobals

// runServe runs the HTTP façade until ctx is cancelled, then drains
// in-flight requests.
func runServe(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	m := metrics.New()
	engine, dialer := core.Build(cfg, logger, m)
	defer dialer.Close()

	if cfg.JWTSecret == "" {
		logger.Warn("no JWT secret configured; issued tokens end with this process")
	}
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	handler := api.New(engine,
		registry.NewServers(cfg.ServersFile),
		registry.NewUsers(cfg.UsersFile),
		issuer, m, logger).Handler()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("listening on %s (servers %s, users %s)", ln.Addr(), cfg.ServersFile, cfg.UsersFile)
	listening(ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/hupe1980/raaf/config"
	"github.com/hupe1980/raaf/httpapi"
	"github.com/hupe1980/raaf/session"
)

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	stopJanitor := startJanitor(ctx, a, cfg.Session.CleanupInterval)
	defer stopJanitor()

	srv := &http.Server{
		Addr: *addr,
		Handler: httpapi.NewRouter(a.raaf, func(o *httpapi.Options) {
			o.Logger = a.logger
		}),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http.listen", "addr", *addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("http.shutdown", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startJanitor purges expired sessions in the background. The returned stop
// function blocks until the janitor has exited, so the store can be closed.
func startJanitor(ctx context.Context, a *app, interval time.Duration) (stop func()) {
	p, ok := a.sessions.(session.Purger)
	if !ok || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		session.RunJanitor(ctx, p, interval, a.logger)
	}()
	a.logger.Info("session.janitor.start", "interval", interval.String())
	return func() {
		cancel()
		<-done
	}
}

package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmorgan81/textimage/internal/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ListenAndServe serves the UI on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.FromContextOrDiscard(ctx).Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return s.sweepLoop(gctx, sessionSweepEvery)
	})
	group.Go(func() error {
		<-gctx.Done()
		log.FromContextOrDiscard(ctx).Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

package httpserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

// Serve runs the HTTP server next to any background workers until ctx is
// cancelled or one of them fails, then shuts the server down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, workers ...func(context.Context) error) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln, h, workers...)
}

func ServeListener(ctx context.Context, ln net.Listener, h http.Handler, workers ...func(context.Context) error) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, w := range workers {
		w := w
		g.Go(func() error { return w(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Printf("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Mux is a bare mux with the health check used by the chat bot process.
func Mux(healthzBody string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(healthzBody))
	})
	return mux
}

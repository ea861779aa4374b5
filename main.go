package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stevemurr/flatfile-items/config"
	"github.com/stevemurr/flatfile-items/handler"
	"github.com/stevemurr/flatfile-items/idgen"
	"github.com/stevemurr/flatfile-items/store"
)

// corsMiddleware applies ALLOWED_ORIGINS to the items API and answers
// preflight requests itself.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	// ALLOWED_ORIGINS=* (the default) opens the API to any origin.
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range allowedOrigins {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Printf("%s %s %d %dms", r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds())
	})
}

func main() {
	cfg := config.Load(os.Getenv)
	logger := log.Default()

	s, err := store.New(cfg.Backend, cfg.DataFile, logger)
	if err != nil {
		log.Fatalf("failed to create store (backend=%s): %v", cfg.Backend, err)
	}

	newID, err := idgen.New(cfg.IDStrategy)
	if err != nil {
		log.Fatalf("invalid ID_STRATEGY: %v", err)
	}

	h := handler.New(s, handler.Options{NewID: newID, Logger: logger})
	wrapped := logMiddleware(corsMiddleware(h, cfg.AllowedOrigins), logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           wrapped,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logger,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("listen on %s: %v", srv.Addr, err)
	}
	log.Printf("Server is running on http://localhost:%d (store=%s, data=%s, ids=%s)",
		cfg.Port, cfg.Backend, cfg.DataFile, cfg.IDStrategy)

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Printf("received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
	if c, ok := s.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}

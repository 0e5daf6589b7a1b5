package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	// shutdownTimeout bounds how long in-flight requests get to finish.
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// httpServer is the running HTTP server. Both fields are set before it is
// published on the Server and never change afterwards.
type httpServer struct {
	server   *http.Server
	listener net.Listener
}

func (s *Server) running() *httpServer {
	s.httpServerMu.RLock()
	defer s.httpServerMu.RUnlock()
	return s.httpServer
}

// Shutdown gracefully shuts down the server.
// If the server hasn't been started, this is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	hs := s.running()
	if hs == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// Addr returns the address the server is listening on, or "" before it starts.
func (s *Server) Addr() string {
	hs := s.running()
	if hs == nil {
		return ""
	}
	return hs.listener.Addr().String()
}

// ListenAndServeWithShutdown serves until SIGINT, SIGTERM, cancellation of ctx
// or a call to Shutdown, then drains in-flight requests.
// Returns nil on a clean shutdown.
func (s *Server) ListenAndServeWithShutdown(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	// Listen first so Addr reports the real port when Port is 0
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	hs := &httpServer{
		server: &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listener: listener,
	}
	s.httpServerMu.Lock()
	s.httpServer = hs
	s.httpServerMu.Unlock()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	served := make(chan error, 1)
	go func() {
		err := hs.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	log.Printf("Server started on %s", listener.Addr().String())
	close(s.ready)

	select {
	case sig := <-signals:
		log.Printf("Received signal %v, initiating shutdown...", sig)
	case <-ctx.Done():
		log.Printf("Context done, initiating shutdown...")
	case err := <-served:
		// Shutdown was called or Serve failed
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := hs.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
		return err
	}
	<-served

	log.Println("Server shutdown complete")
	return nil
}

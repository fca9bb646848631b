package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5174
	DefaultMaxConnections = 4
	ReadTimeout           = 10 * time.Second
	WriteTimeout          = 10 * time.Second
	ShutdownTimeout       = 30 * time.Second
	IdleTimeout           = 30 * time.Second
	ReadHeaderTimeout     = 5 * time.Second
)

// Config holds the listener settings. Zero values fall back to the defaults;
// a zero Port is only honored when AnyPort is set.
type Config struct {
	Host           string
	Port           int
	AnyPort        bool
	MaxConnections int
}

type Server struct {
	host           string
	port           int
	maxConnections int
	httpServer     *http.Server
	listener       net.Listener
	handler        *Handler
	log            logrus.FieldLogger
	ready          atomic.Bool
}

func NewServer(cfg Config, handler *Handler, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.New()
	}
	if handler == nil {
		handler = NewHandler(log)
	}

	server := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		maxConnections: cfg.MaxConnections,
		handler:        handler,
		log:            log,
	}

	if server.host == "" {
		server.host = DefaultHost
	}
	if server.port == 0 && !cfg.AnyPort {
		server.port = DefaultPort
	}
	if server.maxConnections <= 0 {
		server.maxConnections = DefaultMaxConnections
	}

	server.ready.Store(false)
	return server
}

// Router builds the routes served by the server.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	s.handler.RegisterRoutes(router)
	return router
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprint(s.port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}
	s.listener = listener

	limitListener := &limitedListener{
		Listener:  listener,
		semaphore: make(chan struct{}, s.maxConnections),
	}

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	s.ready.Store(true)
	s.log.Infof("HTTP server listening on %s (max connections: %d)", listener.Addr(), s.maxConnections)

	go func() {
		if err := s.httpServer.Serve(limitListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.log.Info("Shutting down HTTP server gracefully...")
	s.ready.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
		return err
	}

	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) IsReady() bool {
	return s.ready.Load()
}

func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.host, fmt.Sprint(s.port))
}

// WaitForShutdown blocks until ctx is done or SIGINT/SIGTERM arrives, then
// stops the server.
func (s *Server) WaitForShutdown(ctx context.Context) error {
	if !s.IsReady() {
		s.log.Warn("WaitForShutdown called but server not started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		s.log.Infof("Received signal: %v", sig)
	case <-ctx.Done():
	}

	return s.Stop()
}

type limitedListener struct {
	net.Listener
	semaphore chan struct{}
}

func (l *limitedListener) Accept() (net.Conn, error) {
	l.semaphore <- struct{}{}

	conn, err := l.Listener.Accept()
	if err != nil {
		<-l.semaphore
		return nil, err
	}

	return &limitedConn{
		Conn:      conn,
		semaphore: l.semaphore,
	}, nil
}

type limitedConn struct {
	net.Conn
	semaphore chan struct{}
	once      sync.Once
}

func (c *limitedConn) Close() error {
	var err error
	c.once.Do(func() {
		<-c.semaphore
		err = c.Conn.Close()
	})
	return err
}

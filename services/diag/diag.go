// Package diag serves node metrics and the latest bus state over HTTP.
package diag

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"sensornode-go/bus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const logKey = "log"

// Server mirrors retained node/# messages and exposes them with the metrics.
type Server struct {
	echo *echo.Echo
	conn *bus.Connection
	log  *slog.Logger

	mu     sync.RWMutex
	latest map[string]any
}

// New wires the routes. gatherer may be nil, in which case /metrics is absent.
func New(conn *bus.Connection, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	s := &Server{
		conn:   conn,
		log:    log.With("svc", "diag"),
		latest: map[string]any{},
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.contextLogger())
	e.Use(middlewareLogger())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/state", s.state)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	s.echo = e
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Watch copies node/# into the snapshot until ctx ends.
func (s *Server) Watch(ctx context.Context) {
	sub := s.conn.Subscribe(bus.T("node", "#"))
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			s.mu.Lock()
			if msg.Payload == nil {
				delete(s.latest, msg.Topic.String())
			} else {
				s.latest[msg.Topic.String()] = msg.Payload
			}
			s.mu.Unlock()
		}
	}
}

// Snapshot returns a copy of the mirrored topics.
func (s *Server) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

type topicEntry struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func (s *Server) state(c echo.Context) error {
	snap := s.Snapshot()
	out := make([]topicEntry, 0, len(snap))
	for k, v := range snap {
		out = append(out, topicEntry{Topic: k, Payload: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return c.JSON(http.StatusOK, out)
}

// Run listens on addr and watches the bus until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.Watch(ctx)

	srv := &http.Server{Addr: addr, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.StartServer(srv)
	}()
	s.log.Info("diag listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.log.Error("diag server failed", "err", err)
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdown); err != nil {
		s.log.Error("error stopping diag server", "err", err)
	}
	return nil
}

func reqLog(c echo.Context) *slog.Logger {
	if l, ok := c.Get(logKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func middlewareLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		HandleError:      true,
		LogContentLength: true,
		LogError:         true,
		LogMethod:        true,
		LogStatus:        true,
		LogURI:           true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log := reqLog(c)
			args := []any{"method", v.Method, "content-length", v.ContentLength, "status", v.Status}
			if v.Error == nil {
				log.Debug("response", args...)
			} else {
				args = append(args, "err", v.Error.Error())
				log.Error("response", args...)
			}
			return nil
		},
	})
}

func (s *Server) contextLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = random.String(12)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			c.Set(logKey, s.log.With("req_id", rid, "uri", req.RequestURI))
			return next(c)
		}
	}
}

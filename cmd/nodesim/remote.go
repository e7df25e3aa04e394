package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
)

// remote stands in for the OTA source, the portal and the collector.
type remote struct {
	echo *echo.Echo
	ln   net.Listener

	mu     sync.Mutex
	image  string
	status int
	posts  []map[string]float64
	logins int
	out    io.Writer
}

func newRemote(image string, portalStatus int, out io.Writer) (*remote, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	r := &remote{ln: ln, image: image, status: portalStatus, out: out}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln

	e.GET("/main.py", func(c echo.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		return c.String(http.StatusOK, r.image)
	})
	e.POST("/login", func(c echo.Context) error {
		r.mu.Lock()
		r.logins++
		r.mu.Unlock()
		fmt.Fprintf(r.out, "portal  user=%s zone=%s -> %d\n", c.FormValue("auth_user"), c.FormValue("zone"), r.status)
		return c.NoContent(r.status)
	})
	e.POST("/macros/s/:deployment/exec", func(c echo.Context) error {
		var body struct {
			Parameters map[string]float64 `json:"parameters"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		r.mu.Lock()
		r.posts = append(r.posts, body.Parameters)
		r.mu.Unlock()
		fmt.Fprintf(r.out, "collect %s %v\n", c.Param("deployment"), body.Parameters)
		return c.String(http.StatusOK, "ok")
	})
	r.echo = e

	go func() {
		if err := e.StartServer(&http.Server{}); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(r.out, "remote:", err)
		}
	}()
	return r, nil
}

func (r *remote) URL() string { return "http://" + r.ln.Addr().String() }

func (r *remote) counts() (posts, logins int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts), r.logins
}

func (r *remote) close() { _ = r.echo.Shutdown(context.Background()) }

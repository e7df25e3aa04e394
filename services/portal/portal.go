// Package portal submits the captive-portal login form.
package portal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sensornode-go/errcode"
	"sensornode-go/services/config"
)

const (
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	formType     = "application/x-www-form-urlencoded"
)

// Authenticator posts the login form once per call.
type Authenticator struct {
	cfg    config.Portal
	client *http.Client
	log    *slog.Logger
}

// New returns nil when no login URL is configured.
func New(cfg config.Portal, client *http.Client, log *slog.Logger) *Authenticator {
	if cfg.LoginURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Authenticator{cfg: cfg, client: client, log: log.With("svc", "portal")}
}

// Form returns the encoded login body.
func (a *Authenticator) Form() url.Values {
	return url.Values{
		"auth_user": {a.cfg.Username},
		"auth_pass": {a.cfg.Password},
		"redirurl":  {a.cfg.RedirURL},
		"zone":      {a.cfg.Zone},
		"accept":    {a.cfg.Accept},
	}
}

// Authenticate posts the form. A non-200 status is reported as http_status
// and a failed exchange as transport; callers log and carry on either way.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	const op = "portal.authenticate"
	if a == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.LoginURL, strings.NewReader(a.Form().Encode()))
	if err != nil {
		return errcode.Wrap(errcode.InvalidConfig, op, err)
	}
	if a.cfg.Host != "" {
		req.Host = a.cfg.Host
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", formType)
	if a.cfg.Origin != "" {
		req.Header.Set("Origin", a.cfg.Origin)
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Error("portal unreachable", "err", err)
		return errcode.Wrap(errcode.Transport, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		a.log.Warn("authentication failed", "status", resp.StatusCode)
		return errcode.New(errcode.HTTPStatus, op, strconv.Itoa(resp.StatusCode))
	}
	a.log.Info("authenticated", "status", resp.StatusCode)
	return nil
}

package portal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sensornode-go/errcode"
	"sensornode-go/services/config"

	"github.com/stretchr/testify/require"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func portalCfg(url string) config.Portal {
	return config.Portal{
		LoginURL:  url,
		Username:  "12330922",
		Password:  "p&ss=word",
		RedirURL:  "https://portal.example:8003/index.php?zone=cpzone",
		Zone:      "cpzone",
		Accept:    "Entrar",
		Host:      "portal.example:8003",
		Origin:    "https://portal.example:8003",
		UserAgent: "sensornode-test",
		Timeout:   time.Second,
	}
}

func TestAuthenticatePostsForm(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(portalCfg(srv.URL+"/index.php"), nil, quietLog())
	require.NoError(t, a.Authenticate(context.Background()))

	require.NotNil(t, got)
	require.Equal(t, http.MethodPost, got.Method)
	require.Equal(t, "/index.php", got.URL.Path)
	require.Equal(t, "portal.example:8003", got.Host)
	require.Equal(t, formType, got.Header.Get("Content-Type"))
	require.Equal(t, "https://portal.example:8003", got.Header.Get("Origin"))
	require.Equal(t, "sensornode-test", got.Header.Get("User-Agent"))
	require.Equal(t, acceptHeader, got.Header.Get("Accept"))

	require.Equal(t, "12330922", got.PostForm.Get("auth_user"))
	require.Equal(t, "p&ss=word", got.PostForm.Get("auth_pass"))
	require.Equal(t, "https://portal.example:8003/index.php?zone=cpzone", got.PostForm.Get("redirurl"))
	require.Equal(t, "cpzone", got.PostForm.Get("zone"))
	require.Equal(t, "Entrar", got.PostForm.Get("accept"))
}

func TestAuthenticateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := New(portalCfg(srv.URL), nil, quietLog()).Authenticate(context.Background())
	require.Equal(t, errcode.HTTPStatus, errcode.Of(err))
	require.Contains(t, err.Error(), "403")
	require.False(t, errcode.Retryable(err))
}

func TestAuthenticateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(portalCfg(url), nil, quietLog()).Authenticate(context.Background())
	require.Equal(t, errcode.Transport, errcode.Of(err))
	require.True(t, errcode.Retryable(err))
}

func TestDisabledWithoutLoginURL(t *testing.T) {
	a := New(config.Portal{}, nil, quietLog())
	require.Nil(t, a)
	require.NoError(t, a.Authenticate(context.Background()))
}

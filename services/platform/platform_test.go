package platform

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExitRestarter(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	r := ExitRestarter{Log: slog.New(slog.NewTextHandler(&buf, nil)), exit: func(c int) { code = c }}
	r.Restart("ota_promoted")
	require.Equal(t, RestartExitCode, code)
	require.Contains(t, buf.String(), "reason=ota_promoted")
}

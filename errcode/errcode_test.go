package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"bus_error":      BusError,
		"not_ready":      NotReady,
		"crc_mismatch":   CRCMismatch,
		"timeout":        Timeout,
		"transport":      Transport,
		"http_status":    HTTPStatus,
		"no_version":     NoVersion,
		"stage_failed":   StageFailed,
		"promote_failed": PromoteFailed,
		"too_large":      TooLarge,
		"invalid_config": InvalidConfig,
	}
	for want, c := range cases {
		require.Equal(t, want, c.Error())
	}
}

func TestOf(t *testing.T) {
	require.Equal(t, OK, Of(nil))
	require.Equal(t, Timeout, Of(Timeout))
	require.Equal(t, Error, Of(errors.New("boom")))

	e := Wrap(BusError, "sht21.read", errors.New("nack"))
	require.Equal(t, BusError, Of(e))
	require.Equal(t, BusError, Of(fmt.Errorf("cycle: %w", e)))
	require.EqualError(t, e, "sht21.read: bus_error: nack")
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(BusError, "op", nil))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(New(Transport, "report.send", "dial")))
	require.True(t, Retryable(Timeout))
	require.False(t, Retryable(New(HTTPStatus, "ota.fetch", "404")))
	require.False(t, Retryable(NoVersion))
	require.False(t, Retryable(New(TooLarge, "ota.fetch", "5242881 bytes")))
	require.False(t, Retryable(nil))
}

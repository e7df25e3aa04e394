//go:build linux && !tinygo

package platform

import (
	"testing"

	"sensornode-go/errcode"

	"github.com/stretchr/testify/require"
)

func TestOpenI2CMissingAdapter(t *testing.T) {
	_, err := OpenI2C(9999)
	require.Error(t, err)
	require.Equal(t, errcode.NotPresent, errcode.Of(err))
	require.Contains(t, err.Error(), "/dev/i2c-9999")
}

// services/hal/registry.go
package hal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sensornode-go/services/config"

	"tinygo.org/x/drivers"
)

// BuildInput is provided to a device builder to construct an Adaptor.
type BuildInput struct {
	Ctx    context.Context
	Bus    drivers.I2C
	Sensor config.Sensor
	// Sleep is used for fixed device settle delays; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Builder constructs and initialises an Adaptor. A builder error means the
// device is unavailable for the rest of the boot.
type Builder interface {
	Build(in BuildInput) (Adaptor, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(in BuildInput) (Adaptor, error)

func (f BuilderFunc) Build(in BuildInput) (Adaptor, error) { return f(in) }

var (
	muBuilders sync.RWMutex
	builders   = map[string]Builder{}
)

// RegisterBuilder installs a builder for a given device type string.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterBuilder(deviceType string, b Builder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if deviceType == "" {
		panic("hal: empty device type for builder")
	}
	if _, exists := builders[deviceType]; exists {
		panic(fmt.Sprintf("hal: builder already registered for type %q", deviceType))
	}
	builders[deviceType] = b
}

// findBuilder looks up a registered builder by type.
func findBuilder(deviceType string) (Builder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}

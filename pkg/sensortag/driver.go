package sensortag

import (
	"context"
	"time"
)

// RawListener receives raw change notifications from a Driver.
type RawListener interface {
	AccelerometerChange(x, y, z float64)
	MagnetometerChange(x, y, z float64)
	LuxometerChange(lux float64)
	SimpleKeyChange(left, right, reedRelay bool)
}

// Driver is the hardware abstraction a Sensor wraps. Every configuration
// operation blocks until the device acknowledged it or ctx is done.
type Driver interface {
	UUID() string
	AddListener(l RawListener)

	EnableAccelerometer(ctx context.Context) error
	SetAccelerometerPeriod(ctx context.Context, period time.Duration) error
	NotifyAccelerometer(ctx context.Context) error
	UnnotifyAccelerometer(ctx context.Context) error

	EnableMagnetometer(ctx context.Context) error
	SetMagnetometerPeriod(ctx context.Context, period time.Duration) error
	NotifyMagnetometer(ctx context.Context) error
	UnnotifyMagnetometer(ctx context.Context) error

	EnableLuxometer(ctx context.Context) error
	SetLuxometerPeriod(ctx context.Context, period time.Duration) error
	NotifyLuxometer(ctx context.Context) error
	UnnotifyLuxometer(ctx context.Context) error

	NotifySimpleKey(ctx context.Context) error
}

package sensortag

import (
	"fmt"
	"time"
)

// Config holds the fixed periods, window and precision applied by a Sensor.
// It is copied at construction and never changes afterwards.
type Config struct {
	AccelerometerPeriod time.Duration
	MagnetometerPeriod  time.Duration
	LuxometerPeriod     time.Duration

	// Window is the moving-average window of the accelerometer axis filters.
	Window time.Duration

	AccelerometerPrecision int
	MagnetometerPrecision  int
	LuxometerPrecision     int

	// AccelerometerMinInterval is only honoured when throttling is enabled
	// with WithAccelerometerThrottle.
	AccelerometerMinInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		AccelerometerPeriod:      200 * time.Millisecond,
		MagnetometerPeriod:       200 * time.Millisecond,
		LuxometerPeriod:          200 * time.Millisecond,
		Window:                   2000 * time.Millisecond,
		AccelerometerPrecision:   2,
		MagnetometerPrecision:    2,
		LuxometerPrecision:       2,
		AccelerometerMinInterval: 100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	for name, p := range map[string]time.Duration{
		"accelerometer": c.AccelerometerPeriod,
		"magnetometer":  c.MagnetometerPeriod,
		"luxometer":     c.LuxometerPeriod,
	} {
		if p <= 0 {
			return fmt.Errorf("%s period must be positive, got %s", name, p)
		}
	}
	for name, d := range map[string]int{
		"accelerometer": c.AccelerometerPrecision,
		"magnetometer":  c.MagnetometerPrecision,
		"luxometer":     c.LuxometerPrecision,
	} {
		if d < 0 {
			return fmt.Errorf("%s precision must not be negative, got %d", name, d)
		}
	}
	return nil
}

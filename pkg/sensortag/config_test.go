package sensortag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 200*time.Millisecond, cfg.AccelerometerPeriod)
	assert.Equal(t, 200*time.Millisecond, cfg.MagnetometerPeriod)
	assert.Equal(t, 200*time.Millisecond, cfg.LuxometerPeriod)
	assert.Equal(t, 2*time.Second, cfg.Window)
	assert.Equal(t, 2, cfg.AccelerometerPrecision)
	assert.Equal(t, 2, cfg.MagnetometerPrecision)
	assert.Equal(t, 2, cfg.LuxometerPrecision)
	assert.NoError(t, cfg.validate())
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"window":    func(c *Config) { c.Window = 0 },
		"period":    func(c *Config) { c.LuxometerPeriod = -time.Second },
		"precision": func(c *Config) { c.MagnetometerPrecision = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

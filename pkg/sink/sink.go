// Package sink forwards normalized sensortag events to external systems.
// Every sink has a Handle method matching sensortag.Handler so it can be
// passed straight to Sensor.Subscribe.
package sink

import (
	"strconv"

	"github.com/iancoleman/strcase"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
)

type Sink interface {
	Handle(e sensortag.Event)
	Close() error
}

// Name is the snake case name of an event kind, used for topics, stream
// fields and measurements ("accelerometer_change").
func Name(k sensortag.Kind) string {
	return strcase.ToSnake(string(k))
}

// numericValues parses the formatted payload back into numbers. Values
// that fail to parse are skipped.
func numericValues(e sensortag.Event) map[string]float64 {
	out := make(map[string]float64)
	for k, v := range e.Values() {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out
}

package sensortag

import "time"

type Kind string

const (
	KindAccelerometer Kind = "accelerometerChange"
	KindMagnetometer  Kind = "magnetometerChange"
	KindLuxometer     Kind = "luxometerChange"
	KindButtonPress   Kind = "buttonPress"
)

// Event is a normalized reading emitted by a Sensor. Numeric values are
// already formatted to the configured precision. X, Y and Z are set for
// accelerometer and magnetometer events, Lux for luxometer events, and a
// button press carries no payload.
type Event struct {
	Kind     Kind      `json:"kind"`
	SensorID string    `json:"sensorId"`
	Time     time.Time `json:"timestamp"`
	X        string    `json:"x,omitempty"`
	Y        string    `json:"y,omitempty"`
	Z        string    `json:"z,omitempty"`
	Lux      string    `json:"lux,omitempty"`
}

// Values returns the formatted payload of the event keyed by field name.
func (e Event) Values() map[string]string {
	switch e.Kind {
	case KindAccelerometer, KindMagnetometer:
		return map[string]string{"x": e.X, "y": e.Y, "z": e.Z}
	case KindLuxometer:
		return map[string]string{"lux": e.Lux}
	default:
		return map[string]string{}
	}
}

// Handler receives normalized events.
type Handler func(Event)

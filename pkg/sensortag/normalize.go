package sensortag

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// listener keeps the raw callbacks off the Sensor's exported method set.
type listener struct {
	s *Sensor
}

func (l listener) AccelerometerChange(x, y, z float64) {
	l.s.onAccelerometerChange(x, y, z)
}

func (l listener) MagnetometerChange(x, y, z float64) {
	l.s.onMagnetometerChange(x, y, z)
}

func (l listener) LuxometerChange(lux float64) {
	l.s.onLuxometerChange(lux)
}

func (l listener) SimpleKeyChange(left, right, reedRelay bool) {
	l.s.onSimpleKeyChange(left, right, reedRelay)
}

func (s *Sensor) onAccelerometerChange(x, y, z float64) {
	now := s.now()
	p := s.cfg.AccelerometerPrecision

	s.mu.Lock()
	s.x.Push(now, x)
	s.y.Push(now, y)
	s.z.Push(now, z)
	if s.limiter != nil && !s.limiter.AllowN(now, 1) {
		s.mu.Unlock()
		return
	}
	s.accelUpdated = now
	e := Event{
		Kind:     KindAccelerometer,
		SensorID: s.ID(),
		Time:     now,
		X:        FormatFixed(s.x.Average(), p),
		Y:        FormatFixed(s.y.Average(), p),
		Z:        FormatFixed(s.z.Average(), p),
	}
	s.mu.Unlock()

	s.log.Debug("on accelerometerChange", zap.String("x", e.X), zap.String("y", e.Y), zap.String("z", e.Z))
	s.emit(e)
}

func (s *Sensor) onMagnetometerChange(x, y, z float64) {
	s.log.Debug("on magnetometerChange", zap.Float64("x", x), zap.Float64("y", y), zap.Float64("z", z))
	p := s.cfg.MagnetometerPrecision
	s.emit(Event{
		Kind:     KindMagnetometer,
		SensorID: s.ID(),
		Time:     s.now(),
		X:        FormatFixed(x, p),
		Y:        FormatFixed(y, p),
		Z:        FormatFixed(z, p),
	})
}

func (s *Sensor) onLuxometerChange(lux float64) {
	s.log.Debug("on luxometerChange", zap.Float64("lux", lux))
	s.emit(Event{
		Kind:     KindLuxometer,
		SensorID: s.ID(),
		Time:     s.now(),
		Lux:      FormatFixed(lux, s.cfg.LuxometerPrecision),
	})
}

// Only a pressed right button produces an event; left and reed relay
// changes are recorded but not emitted.
func (s *Sensor) onSimpleKeyChange(left, right, reedRelay bool) {
	s.log.Debug("on simpleKeyChange", zap.Bool("left", left), zap.Bool("right", right), zap.Bool("reedRelay", reedRelay))
	s.mu.Lock()
	s.leftPressed, s.rightPressed = left, right
	s.mu.Unlock()

	if right {
		s.emit(Event{Kind: KindButtonPress, SensorID: s.ID(), Time: s.now()})
	}
}

func (s *Sensor) emit(e Event) {
	s.subsMu.RLock()
	subs := s.subs
	s.subsMu.RUnlock()

	s.emitted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
	for _, sub := range subs {
		sub.h(e)
	}
}

// Subscribe registers h for every normalized event and returns a function
// that removes it again. Handlers run on the goroutine delivering the raw
// event, in subscription order.
func (s *Sensor) Subscribe(h Handler) (unsubscribe func()) {
	sub := &subscription{h: h}

	s.subsMu.Lock()
	subs := make([]*subscription, len(s.subs), len(s.subs)+1)
	copy(subs, s.subs)
	s.subs = append(subs, sub)
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, cur := range s.subs {
			if cur == sub {
				subs := make([]*subscription, 0, len(s.subs)-1)
				subs = append(subs, s.subs[:i]...)
				s.subs = append(subs, s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Sensor) OnAccelerometerChange(f func(x, y, z string)) (unsubscribe func()) {
	return s.Subscribe(func(e Event) {
		if e.Kind == KindAccelerometer {
			f(e.X, e.Y, e.Z)
		}
	})
}

func (s *Sensor) OnMagnetometerChange(f func(x, y, z string)) (unsubscribe func()) {
	return s.Subscribe(func(e Event) {
		if e.Kind == KindMagnetometer {
			f(e.X, e.Y, e.Z)
		}
	})
}

func (s *Sensor) OnLuxometerChange(f func(lux string)) (unsubscribe func()) {
	return s.Subscribe(func(e Event) {
		if e.Kind == KindLuxometer {
			f(e.Lux)
		}
	})
}

func (s *Sensor) OnButtonPress(f func()) (unsubscribe func()) {
	return s.Subscribe(func(e Event) {
		if e.Kind == KindButtonPress {
			f()
		}
	})
}

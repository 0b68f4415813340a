// Package simtag provides a simulated SensorTag driver. It behaves like the
// hardware as far as the sensortag package can observe: configuration calls
// are acknowledged after an optional latency and raw readings are delivered
// periodically once a stream is enabled and notifying.
package simtag

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimdanitro/sensortag-go/pkg/sensortag"
	"go.uber.org/zap"
)

// CC2650 accepts periods between 100 ms and 2550 ms.
const (
	MinPeriod = 100 * time.Millisecond
	MaxPeriod = 2550 * time.Millisecond

	defaultPeriod = time.Second
	keyPeriod     = time.Second
)

var (
	ErrNotEnabled    = errors.New("sensor not enabled")
	ErrInvalidPeriod = errors.New("period out of range")
	ErrClosed        = errors.New("device closed")
)

type stream int

const (
	accelerometer stream = iota
	magnetometer
	luxometer
	simpleKey
)

func (s stream) String() string {
	switch s {
	case accelerometer:
		return "accelerometer"
	case magnetometer:
		return "magnetometer"
	case luxometer:
		return "luxometer"
	case simpleKey:
		return "simpleKey"
	}
	return fmt.Sprintf("stream(%d)", int(s))
}

type streamState struct {
	enabled bool
	period  time.Duration
	stop    chan struct{}
	done    chan struct{}
}

type Device struct {
	uuid    string
	log     *zap.Logger
	latency time.Duration
	fail    map[string]error

	mu        sync.Mutex
	rnd       *rand.Rand
	listeners []sensortag.RawListener
	calls     []string
	streams   map[stream]*streamState
	closed    bool
	wg        sync.WaitGroup
}

type Option func(d *Device) error

func New(opts ...Option) (*Device, error) {
	d := &Device{
		uuid:    uuid.NewString(),
		log:     zap.L(),
		fail:    make(map[string]error),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		streams: make(map[stream]*streamState),
	}
	for _, s := range []stream{accelerometer, magnetometer, luxometer, simpleKey} {
		d.streams[s] = &streamState{period: defaultPeriod}
	}
	d.streams[simpleKey].enabled = true
	d.streams[simpleKey].period = keyPeriod

	// apply the options
	for _, o := range opts {
		err := o(d)
		if err != nil {
			return nil, err
		}
	}
	d.log = d.log.With(zap.String("device", d.uuid))
	return d, nil
}

func WithUUID(id string) Option {
	return func(d *Device) error {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("invalid device uuid %q: %w", id, err)
		}
		d.uuid = id
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) error {
		if l == nil {
			return errors.New("nil logger")
		}
		d.log = l
		return nil
	}
}

// WithLatency delays every configuration acknowledgement by l.
func WithLatency(l time.Duration) Option {
	return func(d *Device) error {
		d.latency = l
		return nil
	}
}

// WithFailure makes the configuration operation op (for example
// "enableMagnetometer") fail with err.
func WithFailure(op string, err error) Option {
	return func(d *Device) error {
		d.fail[op] = err
		return nil
	}
}

func WithSeed(seed uint64) Option {
	return func(d *Device) error {
		d.rnd = rand.New(rand.NewPCG(seed, seed))
		return nil
	}
}

func (d *Device) UUID() string {
	return d.uuid
}

func (d *Device) AddListener(l sensortag.RawListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Calls returns the configuration operations issued so far, in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Notifying reports whether readings are currently delivered for the
// named stream ("accelerometer", "magnetometer", "luxometer", "simpleKey").
func (d *Device) Notifying(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s, st := range d.streams {
		if s.String() == name {
			return st.stop != nil
		}
	}
	return false
}

// Close stops all deliveries and waits for them to finish.
func (d *Device) Close() {
	d.mu.Lock()
	d.closed = true
	for _, st := range d.streams {
		if st.stop != nil {
			close(st.stop)
			st.stop, st.done = nil, nil
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// ack records op, waits for the simulated latency and returns the injected
// failure for op, if any.
func (d *Device) ack(ctx context.Context, op string) error {
	d.mu.Lock()
	d.calls = append(d.calls, op)
	closed := d.closed
	d.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if d.latency > 0 {
		t := time.NewTimer(d.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.log.Debug("ack", zap.String("op", op))
	return d.fail[op]
}

func (d *Device) enable(ctx context.Context, op string, s stream) error {
	if err := d.ack(ctx, op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams[s].enabled = true
	return nil
}

func (d *Device) setPeriod(ctx context.Context, op string, s stream, period time.Duration) error {
	if err := d.ack(ctx, op); err != nil {
		return err
	}
	if period < MinPeriod || period > MaxPeriod {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, period)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streams[s].period = period
	return nil
}

func (d *Device) notify(ctx context.Context, op string, s stream) error {
	if err := d.ack(ctx, op); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.streams[s]
	if !st.enabled {
		return fmt.Errorf("%w: %s", ErrNotEnabled, s)
	}
	if st.stop != nil || d.closed {
		return nil
	}
	st.stop = make(chan struct{})
	st.done = make(chan struct{})
	d.wg.Add(1)
	go d.run(s, st.period, st.stop, st.done)
	return nil
}

func (d *Device) unnotify(ctx context.Context, op string, s stream) error {
	if err := d.ack(ctx, op); err != nil {
		return err
	}
	d.mu.Lock()
	st := d.streams[s]
	done := st.done
	if st.stop != nil {
		close(st.stop)
		st.stop, st.done = nil, nil
	}
	d.mu.Unlock()

	// no reading is delivered once unnotify has returned
	if done != nil {
		<-done
	}
	return nil
}

func (d *Device) run(s stream, period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer d.wg.Done()
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.deliver(s)
		case <-stop:
			return
		}
	}
}

func (d *Device) deliver(s stream) {
	d.mu.Lock()
	listeners := append([]sensortag.RawListener(nil), d.listeners...)
	r := d.rnd
	var fire func(l sensortag.RawListener)
	switch s {
	case accelerometer:
		// resting on a table: gravity on Z plus a little noise
		x, y, z := r.NormFloat64()*0.05, r.NormFloat64()*0.05, 1+r.NormFloat64()*0.05
		fire = func(l sensortag.RawListener) { l.AccelerometerChange(x, y, z) }
	case magnetometer:
		x, y, z := -50+r.Float64()*100, -50+r.Float64()*100, -50+r.Float64()*100
		fire = func(l sensortag.RawListener) { l.MagnetometerChange(x, y, z) }
	case luxometer:
		lux := 100.0 + r.Float64()*400.0
		fire = func(l sensortag.RawListener) { l.LuxometerChange(lux) }
	case simpleKey:
		if r.Float64() >= 0.1 {
			d.mu.Unlock()
			return
		}
		left, right := r.IntN(2) == 1, r.IntN(2) == 1
		fire = func(l sensortag.RawListener) { l.SimpleKeyChange(left, right, false) }
	}
	d.mu.Unlock()

	for _, l := range listeners {
		fire(l)
	}
}

func (d *Device) EnableAccelerometer(ctx context.Context) error {
	return d.enable(ctx, "enableAccelerometer", accelerometer)
}

func (d *Device) SetAccelerometerPeriod(ctx context.Context, period time.Duration) error {
	return d.setPeriod(ctx, "setAccelerometerPeriod", accelerometer, period)
}

func (d *Device) NotifyAccelerometer(ctx context.Context) error {
	return d.notify(ctx, "notifyAccelerometer", accelerometer)
}

func (d *Device) UnnotifyAccelerometer(ctx context.Context) error {
	return d.unnotify(ctx, "unnotifyAccelerometer", accelerometer)
}

func (d *Device) EnableMagnetometer(ctx context.Context) error {
	return d.enable(ctx, "enableMagnetometer", magnetometer)
}

func (d *Device) SetMagnetometerPeriod(ctx context.Context, period time.Duration) error {
	return d.setPeriod(ctx, "setMagnetometerPeriod", magnetometer, period)
}

func (d *Device) NotifyMagnetometer(ctx context.Context) error {
	return d.notify(ctx, "notifyMagnetometer", magnetometer)
}

func (d *Device) UnnotifyMagnetometer(ctx context.Context) error {
	return d.unnotify(ctx, "unnotifyMagnetometer", magnetometer)
}

func (d *Device) EnableLuxometer(ctx context.Context) error {
	return d.enable(ctx, "enableLuxometer", luxometer)
}

func (d *Device) SetLuxometerPeriod(ctx context.Context, period time.Duration) error {
	return d.setPeriod(ctx, "setLuxometerPeriod", luxometer, period)
}

func (d *Device) NotifyLuxometer(ctx context.Context) error {
	return d.notify(ctx, "notifyLuxometer", luxometer)
}

func (d *Device) UnnotifyLuxometer(ctx context.Context) error {
	return d.unnotify(ctx, "unnotifyLuxometer", luxometer)
}

func (d *Device) NotifySimpleKey(ctx context.Context) error {
	return d.notify(ctx, "notifySimpleKey", simpleKey)
}

var _ sensortag.Driver = (*Device)(nil)

package sensortag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/nimdanitro/sensortag-go/pkg/sensortag"

// StopFunc is called once all notifications have been torn down. err
// combines every unnotify failure and is nil when all of them succeeded.
type StopFunc func(err error)

type Sensor struct {
	driver   Driver
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	meter    metric.Meter
	tracer   trace.Tracer
	throttle bool

	emitted      metric.Int64Counter
	configErrors metric.Int64Counter

	mu                sync.Mutex
	listenersAttached bool
	started           bool
	x, y, z           *AxisFilter
	limiter           *rate.Limiter
	accelUpdated      time.Time
	leftPressed       bool
	rightPressed      bool

	subsMu sync.RWMutex
	subs   []*subscription
}

type subscription struct {
	h Handler
}

type Option func(s *Sensor) error

// New wraps d and attaches the raw listeners right away.
func New(d Driver, opts ...Option) (*Sensor, error) {
	if d == nil {
		return nil, errors.New("sensortag: nil driver")
	}
	s := &Sensor{
		driver: d,
		cfg:    DefaultConfig(),
		log:    zap.L(),
		now:    time.Now,
		meter:  otel.Meter(instrumentationName),
		tracer: otel.Tracer(instrumentationName),
	}

	// apply the options
	for _, o := range opts {
		err := o(s)
		if err != nil {
			return nil, err
		}
	}
	if err := s.cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var err error
	s.emitted, err = s.meter.Int64Counter("sensortag.events.emitted",
		metric.WithDescription("Normalized events emitted to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create emitted counter: %w", err)
	}
	s.configErrors, err = s.meter.Int64Counter("sensortag.config.errors",
		metric.WithDescription("Failed hardware configuration operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create config error counter: %w", err)
	}

	s.x = NewAxisFilter(s.cfg.Window)
	s.y = NewAxisFilter(s.cfg.Window)
	s.z = NewAxisFilter(s.cfg.Window)
	if s.throttle {
		s.limiter = rate.NewLimiter(rate.Every(s.cfg.AccelerometerMinInterval), 1)
	}
	s.log = s.log.With(zap.String("sensorId", d.UUID()))

	s.AddListeners()
	return s, nil
}

func WithConfig(cfg Config) Option {
	return func(s *Sensor) error {
		s.cfg = cfg
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Sensor) error {
		if l == nil {
			return errors.New("nil logger")
		}
		s.log = l
		return nil
	}
}

// WithClock replaces time.Now as the source of accelerometer sample timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) error {
		s.now = now
		return nil
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *Sensor) error {
		s.meter = m
		return nil
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Sensor) error {
		s.tracer = t
		return nil
	}
}

// WithAccelerometerThrottle suppresses accelerometer emissions that arrive
// sooner than Config.AccelerometerMinInterval after the previous one. The
// samples still feed the axis filters.
func WithAccelerometerThrottle() Option {
	return func(s *Sensor) error {
		s.throttle = true
		return nil
	}
}

// ID returns the identifier of the underlying device.
func (s *Sensor) ID() string {
	return s.driver.UUID()
}

func (s *Sensor) Config() Config {
	return s.cfg
}

// AddListeners registers the raw change listener with the driver. Only the
// first call has an effect.
func (s *Sensor) AddListeners() {
	s.mu.Lock()
	if s.listenersAttached {
		s.mu.Unlock()
		return
	}
	s.listenersAttached = true
	s.mu.Unlock()

	s.driver.AddListener(listener{s})
}

func (s *Sensor) ListenersAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenersAttached
}

func (s *Sensor) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// LastAccelerometerUpdate returns the time of the last accelerometer
// emission, or the zero time if there was none.
func (s *Sensor) LastAccelerometerUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accelUpdated
}

// Buttons reports the pressed state seen on the last key change.
func (s *Sensor) Buttons() (left, right bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leftPressed, s.rightPressed
}

type step struct {
	op string
	fn func(ctx context.Context) error
}

// Start enables and activates notifications for the accelerometer, simple
// key, magnetometer and luxometer streams. The four streams are configured
// concurrently and Start returns once all of them are done. A failed step is
// logged and the stream carries on with its next step. Only the first call
// has an effect, including after Stop.
//
// Cancelling ctx does not abort a chain that has begun; only its values
// (trace context included) are passed on to the driver.
func (s *Sensor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "sensortag.Start",
		trace.WithAttributes(attribute.String("sensor.id", s.ID())),
	)
	defer span.End()

	d := s.driver
	chains := [][]step{
		{
			{"enableAccelerometer", d.EnableAccelerometer},
			{"setAccelerometerPeriod", func(ctx context.Context) error {
				return d.SetAccelerometerPeriod(ctx, s.cfg.AccelerometerPeriod)
			}},
			{"notifyAccelerometer", d.NotifyAccelerometer},
		},
		{
			{"notifySimpleKey", d.NotifySimpleKey},
		},
		{
			{"enableMagnetometer", d.EnableMagnetometer},
			{"setMagnetometerPeriod", func(ctx context.Context) error {
				return d.SetMagnetometerPeriod(ctx, s.cfg.MagnetometerPeriod)
			}},
			{"notifyMagnetometer", d.NotifyMagnetometer},
		},
		{
			{"enableLuxometer", d.EnableLuxometer},
			{"setLuxometerPeriod", func(ctx context.Context) error {
				return d.SetLuxometerPeriod(ctx, s.cfg.LuxometerPeriod)
			}},
			{"notifyLuxometer", d.NotifyLuxometer},
		},
	}

	var wg sync.WaitGroup
	for _, chain := range chains {
		wg.Add(1)
		go func(chain []step) {
			defer wg.Done()
			for _, st := range chain {
				s.configure(ctx, span, st)
			}
		}(chain)
	}
	wg.Wait()
}

// Stop deactivates accelerometer, magnetometer and luxometer notifications
// and then calls done, if set. Stop may be called any number of times.
func (s *Sensor) Stop(ctx context.Context, done StopFunc) {
	ctx, span := s.tracer.Start(ctx, "sensortag.Stop",
		trace.WithAttributes(attribute.String("sensor.id", s.ID())),
	)
	defer span.End()

	steps := []step{
		{"unnotifyAccelerometer", s.driver.UnnotifyAccelerometer},
		{"unnotifyMagnetometer", s.driver.UnnotifyMagnetometer},
		{"unnotifyLuxometer", s.driver.UnnotifyLuxometer},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, st := range steps {
		wg.Add(1)
		go func(st step) {
			defer wg.Done()
			if err := s.configure(ctx, span, st); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(st)
	}
	wg.Wait()

	if done != nil {
		done(errs)
	}
}

func (s *Sensor) configure(ctx context.Context, span trace.Span, st step) error {
	err := st.fn(ctx)
	if err != nil {
		err = fmt.Errorf("%s: %w", st.op, err)
		s.log.Error("hardware configuration failed", zap.String("op", st.op), zap.Error(err))
		s.configErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", st.op)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "hardware configuration failed")
		return err
	}
	s.log.Debug("hardware configured", zap.String("op", st.op))
	return nil
}

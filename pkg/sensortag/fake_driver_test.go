package sensortag

import (
	"context"
	"sync"
	"time"
)

// fakeDriver records configuration calls and lets tests fire raw events.
type fakeDriver struct {
	mu        sync.Mutex
	uuid      string
	listeners []RawListener
	calls     []string
	periods   map[string]time.Duration
	fail      map[string]error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		uuid:    "b0b448c9-7f05-4c3e-9d1a-24718ab51a42",
		periods: make(map[string]time.Duration),
		fail:    make(map[string]error),
	}
}

func (f *fakeDriver) UUID() string { return f.uuid }

func (f *fakeDriver) AddListener(l RawListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

func (f *fakeDriver) each(fn func(l RawListener)) {
	f.mu.Lock()
	ls := append([]RawListener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

// call records op and fails like a real driver when ctx is already done.
func (f *fakeDriver) call(ctx context.Context, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fail[op]
}

func (f *fakeDriver) setPeriod(ctx context.Context, op string, p time.Duration) error {
	f.mu.Lock()
	f.periods[op] = p
	f.mu.Unlock()
	return f.call(ctx, op)
}

func (f *fakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDriver) EnableAccelerometer(ctx context.Context) error { return f.call(ctx, "enableAccelerometer") }
func (f *fakeDriver) SetAccelerometerPeriod(ctx context.Context, p time.Duration) error {
	return f.setPeriod(ctx, "setAccelerometerPeriod", p)
}
func (f *fakeDriver) NotifyAccelerometer(ctx context.Context) error { return f.call(ctx, "notifyAccelerometer") }
func (f *fakeDriver) UnnotifyAccelerometer(ctx context.Context) error {
	return f.call(ctx, "unnotifyAccelerometer")
}
func (f *fakeDriver) EnableMagnetometer(ctx context.Context) error { return f.call(ctx, "enableMagnetometer") }
func (f *fakeDriver) SetMagnetometerPeriod(ctx context.Context, p time.Duration) error {
	return f.setPeriod(ctx, "setMagnetometerPeriod", p)
}
func (f *fakeDriver) NotifyMagnetometer(ctx context.Context) error { return f.call(ctx, "notifyMagnetometer") }
func (f *fakeDriver) UnnotifyMagnetometer(ctx context.Context) error {
	return f.call(ctx, "unnotifyMagnetometer")
}
func (f *fakeDriver) EnableLuxometer(ctx context.Context) error { return f.call(ctx, "enableLuxometer") }
func (f *fakeDriver) SetLuxometerPeriod(ctx context.Context, p time.Duration) error {
	return f.setPeriod(ctx, "setLuxometerPeriod", p)
}
func (f *fakeDriver) NotifyLuxometer(ctx context.Context) error   { return f.call(ctx, "notifyLuxometer") }
func (f *fakeDriver) UnnotifyLuxometer(ctx context.Context) error { return f.call(ctx, "unnotifyLuxometer") }
func (f *fakeDriver) NotifySimpleKey(ctx context.Context) error   { return f.call(ctx, "notifySimpleKey") }

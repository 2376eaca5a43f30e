package schedcore

import "time"

// Default dispatch policy knobs, overridable via the With* options below.
const (
	defaultMaxTimeoutDispatchPerPass = 40
	defaultOpportunisticTimerThresh  = 50 * time.Millisecond
	defaultFreelistFloor             = 10
	defaultFreelistGCPeriod          = 3600 * time.Second
)

// config holds resolved construction-time configuration for a Scheduler.
// It is unexported; callers only ever see the Option functions below.
type config struct {
	maxTasks int
	parent   *Scheduler
	appCtx   any
	arena    any

	notify func(TaskHandle, Kind)
	logger *Logger
	metricsEnabled bool

	adapter       Adapter
	signalAdapter SignalAdapter

	freelistGCPeriod              time.Duration
	freelistFloor                 int
	opportunisticTimerThreshold   time.Duration
	maxTimeoutDispatchPerPass     int
}

// Option configures a Scheduler at construction time.
type Option interface {
	apply(*config) error
}

// optionImpl is the concrete type behind every With* constructor below.
type optionImpl struct {
	fn func(*config) error
}

func (o *optionImpl) apply(c *config) error {
	return o.fn(c)
}

// WithMaxTasks bounds the number of simultaneously-registered tasks.
// A value of 0 (the default) means unlimited, subject only to memory.
func WithMaxTasks(n int) Option {
	return &optionImpl{func(c *config) error {
		if n < 0 {
			return ErrInvalidArgument
		}
		c.maxTasks = n
		return nil
	}}
}

// WithParent attaches the new scheduler as a child of parent, sharing
// parent's event bus (event storage always lives on the root).
func WithParent(parent *Scheduler) Option {
	return &optionImpl{func(c *config) error {
		if parent == nil {
			return ErrInvalidArgument
		}
		c.parent = parent
		return nil
	}}
}

// WithAppContext attaches an opaque, caller-defined application context
// retrievable later via Scheduler.AppContext.
func WithAppContext(ctx any) Option {
	return &optionImpl{func(c *config) error {
		c.appCtx = ctx
		return nil
	}}
}

// WithArena attaches an opaque caller-owned allocation arena. schedcore
// never inspects it; it merely stores and returns it via Scheduler.Arena.
func WithArena(arena any) Option {
	return &optionImpl{func(c *config) error {
		c.arena = arena
		return nil
	}}
}

// WithNotify registers an observer called once per task invalidation,
// including invalidations caused by RemoveAll and the InvalidateBy*
// methods.
func WithNotify(fn func(TaskHandle, Kind)) Option {
	return &optionImpl{func(c *config) error {
		c.notify = fn
		return nil
	}}
}

// WithLogger attaches a structured Logger. If omitted, the scheduler
// uses a disabled Logger (zero overhead, per logiface's documented
// zero-value behavior).
func WithLogger(l *Logger) Option {
	return &optionImpl{func(c *config) error {
		c.logger = l
		return nil
	}}
}

// WithMetrics enables iteration/poll-wait latency percentile tracking
// and dispatch counters, retrievable via Scheduler.Metrics.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(c *config) error {
		c.metricsEnabled = enabled
		return nil
	}}
}

// WithAdapter overrides the platform adapter used to multiplex file
// descriptors. Tests supply an in-memory fake; production code normally
// leaves this unset and gets the default unix/windows adapter.
func WithAdapter(a Adapter) Option {
	return &optionImpl{func(c *config) error {
		if a == nil {
			return ErrInvalidArgument
		}
		c.adapter = a
		return nil
	}}
}

// WithSignalAdapter overrides the adapter used for AddSignal.
func WithSignalAdapter(a SignalAdapter) Option {
	return &optionImpl{func(c *config) error {
		if a == nil {
			return ErrInvalidArgument
		}
		c.signalAdapter = a
		return nil
	}}
}

// WithFreelistGCPeriod sets how often the registry's freelist sweep
// runs. Defaults to one hour.
func WithFreelistGCPeriod(d time.Duration) Option {
	return &optionImpl{func(c *config) error {
		if d <= 0 {
			return ErrInvalidArgument
		}
		c.freelistGCPeriod = d
		return nil
	}}
}

// WithFreelistFloor sets the minimum excess-over-live-count the sweep
// tolerates before it trims the slab. Defaults to 10.
func WithFreelistFloor(n int) Option {
	return &optionImpl{func(c *config) error {
		if n < 0 {
			return ErrInvalidArgument
		}
		c.freelistFloor = n
		return nil
	}}
}

// WithOpportunisticTimerThreshold sets how close the next timeout must
// be for the loop to poll without blocking (a zero poll timeout) instead
// of sleeping until the deadline. The timeout still fires only once its
// deadline has passed. Defaults to 50ms.
func WithOpportunisticTimerThreshold(d time.Duration) Option {
	return &optionImpl{func(c *config) error {
		if d < 0 {
			return ErrInvalidArgument
		}
		c.opportunisticTimerThreshold = d
		return nil
	}}
}

// WithMaxTimeoutDispatchPerPass bounds how many expired timeouts a
// single dispatch pass fires before yielding back to poll. Defaults to
// 40; the final drain after Stop ignores this cap.
func WithMaxTimeoutDispatchPerPass(n int) Option {
	return &optionImpl{func(c *config) error {
		if n <= 0 {
			return ErrInvalidArgument
		}
		c.maxTimeoutDispatchPerPass = n
		return nil
	}}
}

// resolveOptions applies opts over the documented defaults.
func resolveOptions(opts []Option) (*config, error) {
	c := &config{
		freelistGCPeriod:            defaultFreelistGCPeriod,
		freelistFloor:               defaultFreelistFloor,
		opportunisticTimerThreshold: defaultOpportunisticTimerThresh,
		maxTimeoutDispatchPerPass:   defaultMaxTimeoutDispatchPerPass,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

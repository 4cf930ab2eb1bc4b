package timectrl

import (
	"sync"
	"time"
)

// Scheduler invokes a tick handler periodically. Components that act on a
// fixed cadence (the sample transmitter) depend on this abstraction rather
// than on a concrete timer, enabling deterministic tests.
type Scheduler interface {
	// Start begins invoking fn once per period. Start on a running
	// scheduler is a no-op.
	Start(fn func(time.Time))
	// Stop halts tick delivery. A tick already in progress is allowed to
	// finish; no tick begins after Stop returns.
	Stop()
}

// PeriodicTask is a Scheduler backed by a time.Ticker running in its own
// goroutine.
type PeriodicTask struct {
	Interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewPeriodicTask constructs a task firing every interval.
func NewPeriodicTask(interval time.Duration) *PeriodicTask {
	return &PeriodicTask{Interval: interval}
}

// Start runs fn on every tick until Stop is called.
func (p *PeriodicTask) Start(fn func(time.Time)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || fn == nil {
		return
	}

	interval := p.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				// Prefer stop over a tick that became ready at the same time.
				select {
				case <-stop:
					return
				default:
				}
				fn(now)
			}
		}
	}(p.stop, p.done)
}

// Stop signals the ticker goroutine and waits for it to exit.
func (p *PeriodicTask) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop, done := p.stop, p.done
	p.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the task is currently delivering ticks.
func (p *PeriodicTask) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ManualScheduler is a Scheduler whose ticks are fired explicitly by the
// caller. Simulated time starts at the given instant and advances by Step
// on every fired tick.
type ManualScheduler struct {
	Step time.Duration

	mu      sync.Mutex
	now     time.Time
	fn      func(time.Time)
	running bool
	starts  int
}

// NewManualScheduler constructs a manual scheduler starting at start.
func NewManualScheduler(start time.Time, step time.Duration) *ManualScheduler {
	return &ManualScheduler{Step: step, now: start}
}

// Start registers fn as the tick handler.
func (m *ManualScheduler) Start(fn func(time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || fn == nil {
		return
	}
	m.fn = fn
	m.running = true
	m.starts++
}

// Stop unregisters the tick handler.
func (m *ManualScheduler) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.fn = nil
}

// Fire delivers n ticks synchronously and returns how many reached a
// handler. Ticks fired while stopped still advance simulated time.
func (m *ManualScheduler) Fire(n int) int {
	delivered := 0
	for i := 0; i < n; i++ {
		m.mu.Lock()
		m.now = m.now.Add(m.Step)
		now, fn := m.now, m.fn
		m.mu.Unlock()

		if fn == nil {
			continue
		}
		fn(now)
		delivered++
	}
	return delivered
}

// Now returns the simulated time of the last fired tick.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Running reports whether a handler is registered.
func (m *ManualScheduler) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Starts returns how many times Start registered a handler.
func (m *ManualScheduler) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

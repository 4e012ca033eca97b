package proc

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// StopGracePeriod bounds how long Stop waits for the watchdog
	// worker to exit before giving up.
	StopGracePeriod = 100 * time.Millisecond
)

// killable is the watchdog's view of a process handle.
type killable interface {
	Poll() (int, bool)
	Kill() error
	MarkTimedOut()
}

// entry pairs a deadline with the process to kill when it elapses.
type entry struct {
	deadline time.Time
	proc     killable
	seq      uint64
}

// deadlineHeap is a min-heap of entries ordered by deadline, with
// insertion order breaking ties.
type deadlineHeap []entry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Watchdog is a background scheduler that enforces wall-clock deadlines
// across all registered processes. A single shared instance normally
// serves the whole program, but isolated instances may be created for
// testing.
type Watchdog struct {
	logger *zerolog.Logger

	requests chan entry
	stop     chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	started  bool
	stopping bool
	seq      uint64
}

// NewWatchdog creates a new watchdog. It must be started with Start
// before registrations take effect.
func NewWatchdog(options ...Option) (*Watchdog, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	return &Watchdog{
		logger:   opts.Logger,
		requests: make(chan entry, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background worker. Calling Start on a running
// watchdog is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true

	go w.run()
}

// Stop signals the worker to exit and waits up to StopGracePeriod for
// it to do so. It never blocks indefinitely, so a hanging worker
// cannot stall process-wide shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.started || w.stopping {
		w.mu.Unlock()
		return
	}
	w.stopping = true
	w.mu.Unlock()

	close(w.stop)

	select {
	case <-w.done:
	case <-time.After(StopGracePeriod):
	}
}

// Register schedules the process to be killed once the timeout has
// elapsed. A zero timeout is a no-op. There is no unregister; an entry
// whose process has already exited is skipped when its deadline fires.
func (w *Watchdog) Register(p Process, timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	w.mu.Lock()
	w.seq++
	e := entry{
		deadline: time.Now().Add(timeout),
		proc:     p,
		seq:      w.seq,
	}
	w.mu.Unlock()

	select {
	case w.requests <- e:
	case <-w.done:
		// Worker is gone, nothing left to enforce deadlines.
	}
}

// run is the worker loop. It sleeps until the soonest deadline or a
// new registration, then kills every process whose deadline passed.
func (w *Watchdog) run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			stopping := w.stopping
			w.mu.Unlock()

			// Suppress all noise during shutdown.
			if !stopping {
				w.logger.Error().Interface("panic", r).Msg("Watchdog worker failed")
			}
		}
	}()

	pending := &deadlineHeap{}
	heap.Init(pending)

	for {
		var timer *time.Timer
		var expired <-chan time.Time
		if pending.Len() > 0 {
			wait := time.Until((*pending)[0].deadline)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			expired = timer.C
		}

		select {
		case e := <-w.requests:
			heap.Push(pending, e)
		case <-expired:
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}
		if timer != nil {
			timer.Stop()
		}

		w.sweep(pending)
	}
}

// sweep kills every process at the front of the heap whose deadline
// has passed. Processes that already exited are skipped and kill
// failures are swallowed, since the process may vanish concurrently.
func (w *Watchdog) sweep(pending *deadlineHeap) {
	now := time.Now()
	for pending.Len() > 0 {
		e := (*pending)[0]
		if e.deadline.After(now) {
			break
		}
		heap.Pop(pending)

		if _, exited := e.proc.Poll(); exited {
			continue
		}

		// Mark before killing so that classification observes the
		// flag as soon as the process dies.
		e.proc.MarkTimedOut()
		if err := e.proc.Kill(); err != nil {
			w.logger.Debug().Err(err).Msg("Failed to kill overdue process")
		}
	}
}

var (
	defaultWatchdog     *Watchdog
	defaultWatchdogOnce sync.Once
)

// DefaultWatchdog returns the shared process-wide watchdog, starting
// it on first use.
func DefaultWatchdog() *Watchdog {
	defaultWatchdogOnce.Do(func() {
		defaultWatchdog, _ = NewWatchdog()
		defaultWatchdog.Start()
	})
	return defaultWatchdog
}

// Shutdown stops the shared watchdog. It is intended to be called once
// during process-wide teardown.
func Shutdown() {
	defaultWatchdogOnce.Do(func() {
		defaultWatchdog, _ = NewWatchdog()
	})
	defaultWatchdog.Stop()
}

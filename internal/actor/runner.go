// Package actor implements the single-threaded task serializer that
// the transport and session layers are built on top of.
//
// Each Runner owns exactly one worker goroutine and a FIFO mailbox.
// Handlers submitted to a Runner always execute on that one goroutine,
// in submission order, so the layer's state never needs a mutex of its
// own -- only the Runner's internal bookkeeping (guard set, timer set)
// is shared across goroutines.
//
// This is the Go translation of the gateway's original single-thread
// actor: there, a one-worker ThreadPoolExecutor plus threading.Timer
// plus a set of "currently pending" function identities played the
// same role. Go has no cheap, safe way to ask "is the calling code
// already running on goroutine X", so unlike the original there is no
// dynamic inline fast-path: a handler that wants to re-enter itself
// synchronously calls its own unexported implementation directly
// instead of routing back through Submit. Submit and SubmitGuarded
// always hand work to the worker goroutine.
package actor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// GuardKey identifies a guarded handler or a scheduled timer for
// collapsing duplicate submissions. Any comparable value works; layers
// typically use a small package-level *struct{} or a string literal
// naming the handler.
type GuardKey any

// Runner is a single-threaded task serializer with delayed submission
// and guarded (at-most-one-pending) handlers.
type Runner struct {
	name    string
	log     *zap.Logger
	mailbox chan func()
	closing chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	guarded map[GuardKey]struct{}
	timers  map[GuardKey]*time.Timer

	running atomic.Bool // best-effort: true while the worker is inside a task
}

// NewRunner starts a Runner's worker goroutine and returns immediately.
func NewRunner(name string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		name:    name,
		log:     log.Named(name),
		mailbox: make(chan func(), 64),
		closing: make(chan struct{}),
		guarded: make(map[GuardKey]struct{}),
		timers:  make(map[GuardKey]*time.Timer),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Runner) Name() string { return r.name }

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case f := <-r.mailbox:
			r.running.Store(true)
			f()
			r.running.Store(false)
		case <-r.closing:
			// Drain whatever was already queued before this goroutine
			// exits: a submission that raced Close (enqueued just
			// before it) must still run, since callers like
			// Transport.Close rely on their shutdown task actually
			// executing rather than being silently dropped.
			r.drainMailbox()
			return
		}
	}
}

func (r *Runner) drainMailbox() {
	for {
		select {
		case f := <-r.mailbox:
			r.running.Store(true)
			f()
			r.running.Store(false)
		default:
			return
		}
	}
}

// Submit hands f to the worker goroutine. f runs after every task
// already queued ahead of it, never concurrently with another task on
// the same Runner.
func (r *Runner) Submit(f func()) {
	select {
	case r.mailbox <- f:
	case <-r.closing:
		r.log.Debug("submit(): runner closed, dropping task")
	}
}

// SubmitGuarded submits f under key unless a previous call already has
// f (or any other function under the same key) pending or executing;
// in that case the submission is silently dropped. Returns true if f
// was accepted.
func (r *Runner) SubmitGuarded(key GuardKey, f func()) bool {
	r.mu.Lock()
	if _, pending := r.guarded[key]; pending {
		r.mu.Unlock()
		r.log.Debug("submit_guarded(): collapsing duplicate submission", zap.Any("key", key))
		return false
	}
	r.guarded[key] = struct{}{}
	r.mu.Unlock()

	r.Submit(func() {
		defer func() {
			r.mu.Lock()
			delete(r.guarded, key)
			r.mu.Unlock()
		}()
		f()
	})
	return true
}

// IsGuardPending reports whether a submission under key is currently
// queued or executing.
func (r *Runner) IsGuardPending(key GuardKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, pending := r.guarded[key]
	return pending
}

// Schedule arms a timer that submits f after d elapses. A later
// Schedule call under the same key stops the previous timer first --
// re-arming supersedes rather than stacking, matching the guarded
// timeout contract layers rely on (session's heartbeat/timeout loop,
// transport's retry backoff).
func (r *Runner) Schedule(key GuardKey, d time.Duration, f func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()
		r.Submit(f)
	})
}

// CancelScheduled stops a pending timer armed by Schedule, if any.
func (r *Runner) CancelScheduled(key GuardKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// AssertOwnGoroutine logs a warning if called while the worker
// goroutine is not in the middle of running a task. This is a
// best-effort debugging aid -- it cannot tell which goroutine called
// it, only whether *some* task is currently executing -- so it catches
// the common mistake of touching layer state from outside the actor
// entirely, but isn't a substitute for routing state mutation through
// Submit/SubmitGuarded.
func (r *Runner) AssertOwnGoroutine() {
	if !r.running.Load() {
		r.log.Warn("assert_own_goroutine(): called while runner idle")
	}
}

// Close stops the worker goroutine and cancels all pending timers.
// Submissions already queued when Close is called still run before the
// worker exits; submissions made after Close never run.
func (r *Runner) Close() {
	close(r.closing)
	r.mu.Lock()
	for _, t := range r.timers {
		t.Stop()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

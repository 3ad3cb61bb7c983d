package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/fogfish/opts"
)

// LocalOption configures a Local timer service.
type LocalOption = opts.Option[Local]

// WithLocalLogger sets the logger for a Local timer service.
var WithLocalLogger = opts.ForName[Local, *slog.Logger]("logger")

// Local schedules timers in process with time.AfterFunc. Pending timers are
// lost when the process exits.
type Local struct {
	emitter Emitter
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewLocal creates an in-process timer service emitting through emitter.
func NewLocal(emitter Emitter, options ...LocalOption) *Local {
	l := &Local{
		emitter: emitter,
		logger:  slog.Default().With(slogx.LoggerName("strix.timer")),
		pending: make(map[string]*time.Timer),
	}
	if err := opts.Apply(l, options); err != nil {
		panic(err)
	}
	return l
}

// Schedule starts a timer and returns its id. The completion event keeps the
// values of ctx, so a timer requested from a handler is recorded as caused by
// the event that handler was processing. Cancelling ctx does not stop the timer.
func (l *Local) Schedule(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := uuidx.Prefixed("timer")
	delay := req.Delay()
	emitCtx := context.WithoutCancel(ctx)
	payload := completionPayload(req.Payload, 0)
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return "", ErrStopped
	}
	l.wg.Add(1)
	l.pending[id] = time.AfterFunc(delay, func() {
		defer l.wg.Done()
		l.mu.Lock()
		_, live := l.pending[id]
		delete(l.pending, id)
		l.mu.Unlock()
		if !live {
			return
		}
		payload[ElapsedKey] = time.Since(start).Milliseconds()
		l.logger.DebugContext(emitCtx, "timer fired", slog.String("timer", id), slogx.Event(req.Completion))
		l.emitter.Emit(emitCtx, req.Completion, payload)
	})

	l.logger.DebugContext(ctx, "timer scheduled", slog.String("timer", id), slogx.Event(req.Completion), slog.Duration("delay", delay))
	return id, nil
}

// Cancel stops a pending timer. It reports false when the timer already fired
// or does not exist.
func (l *Local) Cancel(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.pending[id]
	if !ok {
		return false
	}
	delete(l.pending, id)
	if t.Stop() {
		l.wg.Done()
	}
	return true
}

// Pending returns the number of timers that have not fired yet.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Stop cancels every pending timer, waits for timers already firing and
// rejects further requests.
func (l *Local) Stop() {
	l.mu.Lock()
	l.stopped = true
	for id, t := range l.pending {
		delete(l.pending, id)
		if t.Stop() {
			l.wg.Done()
		}
	}
	l.mu.Unlock()
	l.wg.Wait()
}

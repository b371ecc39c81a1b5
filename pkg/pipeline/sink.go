package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives every human-readable progress and error line of a run.
// Implementations must tolerate high-frequency calls from concurrent callers.
type Sink interface {
	Emit(line string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(string)

// Emit implements Sink.
func (f SinkFunc) Emit(line string) { f(line) }

// MultiSink fans one line out to several sinks in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(line string) {
		for _, s := range sinks {
			s.Emit(line)
		}
	})
}

// StopObserver is polled cooperatively at safe points during a run: before
// submitting a page, before each retry attempt, and before consuming each
// completed page. In-flight requests are not aborted.
type StopObserver interface {
	ShouldStop() bool
}

// StopFlag is a settable StopObserver. Read-mostly, written once per user
// action. The zero value is usable and not stopped.
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests cooperative cancellation of the run.
func (f *StopFlag) Stop() { f.stopped.Store(true) }

// Reset clears the flag so the owner can be reused for a new run.
func (f *StopFlag) Reset() { f.stopped.Store(false) }

// ShouldStop implements StopObserver.
func (f *StopFlag) ShouldStop() bool { return f.stopped.Load() }

// Broadcaster is a Sink that timestamps lines, retains the full history,
// and serves incremental reads for log streaming. All methods are safe for
// concurrent use; a line is never observed half-written.
type Broadcaster struct {
	mu      sync.Mutex
	history []string
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Emit implements Sink.
func (b *Broadcaster) Emit(line string) {
	entry := "[" + time.Now().Format("15:04:05") + "] " + line
	b.mu.Lock()
	b.history = append(b.history, entry)
	b.mu.Unlock()
}

// Lines returns the history entries at index >= after, plus the index one
// past the last returned entry. Pass the returned index back as after to
// poll incrementally; pass 0 for the full history.
func (b *Broadcaster) Lines(after int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if after < 0 {
		after = 0
	}
	if after >= len(b.history) {
		return nil, len(b.history)
	}

	out := make([]string, len(b.history)-after)
	copy(out, b.history[after:])
	return out, len(b.history)
}

// Clear discards the history.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}

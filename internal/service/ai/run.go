package ai

import "context"

// EventKind distinguishes the progress events of a chain run.
type EventKind int

const (
	// EventQuestion carries the standalone question produced from the
	// follow-up and the history. Only emitted when history is not empty.
	EventQuestion EventKind = iota + 1
	// EventToken carries one streamed fragment of the final answer.
	EventToken
)

func (k EventKind) String() string {
	switch k {
	case EventQuestion:
		return "question"
	case EventToken:
		return "token"
	default:
		return "unknown"
	}
}

// Event is a single generation progress report.
type Event struct {
	Kind EventKind
	Text string
}

// Result is the outcome of a run: an answer, or the reason it failed.
type Result struct {
	Answer string
	Err    error
}

// Failed reports whether the run ended without an answer.
func (r Result) Failed() bool { return r.Err != nil }

// Run is one in-flight question. Events arrive in generation order on an
// unbuffered channel that is closed when the run ends.
type Run struct {
	events chan Event
	done   chan struct{}
	result Result
}

func newRun() *Run {
	return &Run{
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

// Events returns the progress channel.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Wait discards any events not yet consumed and returns the result.
func (r *Run) Wait() Result {
	for range r.events {
	}
	<-r.done
	return r.result
}

func (r *Run) emit(ctx context.Context, ev Event) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit delivers one event to the consumer of a run. It fails once the run's
// context is done.
type Emit func(Event) error

// Start runs produce in its own goroutine and returns the Run observing it.
// The returned answer and error become the Result.
func Start(ctx context.Context, produce func(ctx context.Context, emit Emit) (string, error)) *Run {
	run := newRun()
	go func() {
		answer, err := produce(ctx, func(ev Event) error { return run.emit(ctx, ev) })
		run.finish(Result{Answer: answer, Err: err})
	}()
	return run
}

func (r *Run) finish(res Result) {
	r.result = res
	close(r.events)
	close(r.done)
}

package compressor

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/strategy"
)

// Listener receives the lifecycle of one request on a ResultLoop.
type Listener interface {
	OnStart(requestID string)
	OnSuccess(requestID string, result *Result)
	OnError(requestID string, err error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Start   func(requestID string)
	Success func(requestID string, result *Result)
	Error   func(requestID string, err error)
}

func (l ListenerFuncs) OnStart(id string) {
	if l.Start != nil {
		l.Start(id)
	}
}

func (l ListenerFuncs) OnSuccess(id string, result *Result) {
	if l.Success != nil {
		l.Success(id, result)
	}
}

func (l ListenerFuncs) OnError(id string, err error) {
	if l.Error != nil {
		l.Error(id, err)
	}
}

// Request carries everything a single compression needs. Requests are values;
// nothing is shared between them.
type Request struct {
	ID       string
	Source   source.Source
	Gear     strategy.Gear
	Listener Listener
}

// NewRequest builds a request with a fresh ID.
func NewRequest(src source.Source, gear strategy.Gear, listener Listener) Request {
	return Request{
		ID:       uuid.NewString(),
		Source:   src,
		Gear:     gear,
		Listener: listener,
	}
}

// Outcome is either a result or an error for one request.
type Outcome struct {
	RequestID string
	Result    *Result
	Err       error
}

// Submit runs the request on its own goroutine. The returned channel yields
// exactly one Outcome and is then closed.
func (e *Engine) Submit(ctx context.Context, req Request) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := e.Compress(ctx, req.Source, req.Gear)
		out <- Outcome{RequestID: req.ID, Result: res, Err: err}
	}()
	return out
}

// Launch submits req and reports its lifecycle to req.Listener on loop:
// OnStart first, then OnSuccess or OnError once the work is complete.
// Empty results (unknown gear) produce no completion callback. A nil loop
// gets a private one that is drained before the outcome is delivered.
func (e *Engine) Launch(ctx context.Context, req Request, loop *ResultLoop) <-chan Outcome {
	owned := false
	if loop == nil && req.Listener != nil {
		loop, owned = NewResultLoop(2), true
	}
	if req.Listener != nil {
		loop.Post(func() { req.Listener.OnStart(req.ID) })
	}

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		o := <-e.Submit(ctx, req)
		if req.Listener != nil {
			loop.Post(func() {
				switch {
				case o.Err != nil:
					req.Listener.OnError(o.RequestID, o.Err)
				case !o.Result.Empty():
					req.Listener.OnSuccess(o.RequestID, o.Result)
				}
			})
		}
		if owned {
			loop.Close()
		}
		out <- o
	}()
	return out
}

// ResultLoop runs callbacks one at a time, in the order they were posted, on
// a single goroutine.
type ResultLoop struct {
	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
	tasks   chan func()
	done    chan struct{}
}

// NewResultLoop starts a loop with the given queue capacity.
func NewResultLoop(capacity int) *ResultLoop {
	l := &ResultLoop{
		tasks: make(chan func(), max(capacity, 1)),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *ResultLoop) run() {
	defer close(l.done)
	for task := range l.tasks {
		task()
	}
}

// Post queues fn, waiting for room when the queue is full. It returns false
// once the loop is closed.
func (l *ResultLoop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.senders.Add(1)
	l.mu.Unlock()

	defer l.senders.Done()
	l.tasks <- fn
	return true
}

// Close stops accepting callbacks and waits for queued ones to finish.
func (l *ResultLoop) Close() {
	l.mu.Lock()
	first := !l.closed
	l.closed = true
	l.mu.Unlock()

	if first {
		// posts admitted before closing still hold a send
		l.senders.Wait()
		close(l.tasks)
	}
	<-l.done
}

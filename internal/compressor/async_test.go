package compressor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-shrinker-go/internal/strategy"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{done: make(chan struct{}, 1)}
}

func (l *recordingListener) record(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *recordingListener) OnStart(string) { l.record("start") }

func (l *recordingListener) OnSuccess(string, *Result) {
	l.record("success")
	l.done <- struct{}{}
}

func (l *recordingListener) OnError(string, error) {
	l.record("error")
	l.done <- struct{}{}
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("listener was not called")
	}
}

func TestSubmitYieldsOneOutcome(t *testing.T) {
	e := NewEngine(newScriptedCodec(func(int) int { return kb(1) }), DefaultOptions(), quietLogger())
	req := NewRequest(&fakeSource{width: 200, height: 100, size: 1000}, strategy.GearThird, nil)
	require.NotEmpty(t, req.ID)

	out := e.Submit(context.Background(), req)
	o, ok := <-out
	require.True(t, ok)
	assert.Equal(t, req.ID, o.RequestID)
	require.NoError(t, o.Err)
	assert.False(t, o.Result.Empty())

	_, ok = <-out
	assert.False(t, ok, "channel must be closed after the outcome")
}

func TestRequestsGetDistinctIDs(t *testing.T) {
	a := NewRequest(nil, strategy.GearFirst, nil)
	b := NewRequest(nil, strategy.GearFirst, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestLaunchReportsSuccessAfterStart(t *testing.T) {
	loop := NewResultLoop(4)
	defer loop.Close()

	e := NewEngine(newScriptedCodec(func(int) int { return kb(1) }), DefaultOptions(), quietLogger())
	l := newRecordingListener()
	req := NewRequest(&fakeSource{width: 200, height: 100, size: 5 << 20}, strategy.GearFirst, l)

	o := <-e.Launch(context.Background(), req, loop)
	require.NoError(t, o.Err)
	waitFor(t, l.done)
	assert.Equal(t, []string{"start", "success"}, l.snapshot())
}

func TestLaunchReportsError(t *testing.T) {
	loop := NewResultLoop(4)
	defer loop.Close()

	e := NewEngine(newScriptedCodec(func(int) int { return kb(1) }), DefaultOptions(), quietLogger())
	l := newRecordingListener()
	req := NewRequest(&fakeSource{width: 200, height: 100, decodePanic: true}, strategy.GearFirst, l)

	o := <-e.Launch(context.Background(), req, loop)
	assert.ErrorIs(t, o.Err, ErrCodecFailure)
	waitFor(t, l.done)
	assert.Equal(t, []string{"start", "error"}, l.snapshot())
}

func TestLaunchUnknownGearOnlyStarts(t *testing.T) {
	loop := NewResultLoop(4)

	e := NewEngine(newScriptedCodec(func(int) int { return kb(1) }), DefaultOptions(), quietLogger())
	l := newRecordingListener()
	req := NewRequest(&fakeSource{width: 200, height: 100}, strategy.GearUnknown, l)

	o := <-e.Launch(context.Background(), req, loop)
	require.NoError(t, o.Err)
	assert.True(t, o.Result.Empty())

	loop.Close()
	assert.Equal(t, []string{"start"}, l.snapshot())
}

func TestResultLoopRunsInOrder(t *testing.T) {
	loop := NewResultLoop(1)

	var got []int
	for i := 0; i < 20; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	loop.Close()

	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.False(t, loop.Post(func() {}))
	loop.Close()
}

func TestListenerFuncsSkipsNil(t *testing.T) {
	var started string
	l := ListenerFuncs{Start: func(id string) { started = id }}

	l.OnStart("abc")
	l.OnSuccess("abc", &Result{})
	l.OnError("abc", ErrCodecFailure)
	assert.Equal(t, "abc", started)
}

func TestLaunchWithoutLoopDrainsCallbacks(t *testing.T) {
	e := NewEngine(newScriptedCodec(func(int) int { return kb(1) }), DefaultOptions(), quietLogger())
	l := newRecordingListener()
	req := NewRequest(&fakeSource{width: 200, height: 100, size: 5 << 20}, strategy.GearFirst, l)

	o := <-e.Launch(context.Background(), req, nil)
	require.NoError(t, o.Err)
	assert.Equal(t, []string{"start", "success"}, l.snapshot())
}

func TestResultLoopCloseWithFullQueue(t *testing.T) {
	loop := NewResultLoop(1)
	release := make(chan struct{})
	running := make(chan struct{})

	require.True(t, loop.Post(func() {
		close(running)
		<-release
	}))
	<-running
	require.True(t, loop.Post(func() {}))

	posted := make(chan bool, 1)
	go func() { posted <- loop.Post(func() {}) }()

	closed := make(chan struct{})
	go func() {
		loop.Close()
		close(closed)
	}()

	// Close must not queue up behind a sender waiting for room
	require.Eventually(t, func() bool {
		loop.mu.Lock()
		defer loop.mu.Unlock()
		return loop.closed
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, loop.Post(func() {}))

	close(release)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	<-posted
}

package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHandle struct {
	closed atomic.Int32
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

// fakePush records the callbacks of the last Subscribe so tests can drive
// deliveries and mid-stream failures.
type fakePush struct {
	failWith error

	mu         sync.Mutex
	deliver    func(json.RawMessage)
	onError    func(error)
	handle     *fakeHandle
	subscribes atomic.Int32
}

func (f *fakePush) Subscribe(ctx context.Context, topic string, deliver func(json.RawMessage), onError func(error)) (io.Closer, error) {
	f.subscribes.Add(1)
	if f.failWith != nil {
		return nil, f.failWith
	}
	h := &fakeHandle{}
	f.mu.Lock()
	f.deliver = deliver
	f.onError = onError
	f.handle = h
	f.mu.Unlock()
	return h, nil
}

func (f *fakePush) push(payload json.RawMessage) {
	f.mu.Lock()
	deliver := f.deliver
	f.mu.Unlock()
	deliver(payload)
}

func (f *fakePush) die(err error) {
	f.mu.Lock()
	h := f.handle
	onError := f.onError
	f.mu.Unlock()
	// Real transports close themselves before reporting.
	h.Close()
	onError(err)
}

type fakeFetcher struct {
	mu      sync.Mutex
	payload json.RawMessage
	err     error
	fetches atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, topic string) (json.RawMessage, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func testConfig() Config {
	return Config{PollInterval: 20 * time.Millisecond, FetchTimeout: time.Second}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMultiplexer_PrefersFirstPushSource(t *testing.T) {
	primary := &fakePush{}
	secondary := &fakePush{}
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"id":"m1"}`)}
	mux := New([]PushSource{primary, secondary}, fetcher, testConfig(), nil)
	defer mux.Close()

	payloads := make(chan json.RawMessage, 1)
	sub, err := mux.Subscribe(context.Background(), "m1", func(p json.RawMessage) { payloads <- p })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if got := mux.TopicState("m1"); got != StateSubscriptionActive {
		t.Fatalf("state = %s, want %s", got, StateSubscriptionActive)
	}
	if secondary.subscribes.Load() != 0 {
		t.Error("secondary source tried even though primary succeeded")
	}

	primary.push(json.RawMessage(`{"id":"m1","stateHash":"aa"}`))
	select {
	case p := <-payloads:
		if string(p) != `{"id":"m1","stateHash":"aa"}` {
			t.Errorf("payload = %s", p)
		}
	case <-time.After(time.Second):
		t.Fatal("pushed payload never delivered")
	}

	// The polling transport must stay dormant while the subscription is up.
	time.Sleep(60 * time.Millisecond)
	if n := fetcher.fetches.Load(); n != 0 {
		t.Errorf("fetcher called %d times while subscription active", n)
	}
}

func TestMultiplexer_FallsBackThroughSources(t *testing.T) {
	primary := &fakePush{failWith: errors.New("ws down")}
	secondary := &fakePush{}
	fetcher := &fakeFetcher{payload: json.RawMessage(`{}`)}
	mux := New([]PushSource{primary, secondary}, fetcher, testConfig(), nil)
	defer mux.Close()

	sub, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if primary.subscribes.Load() != 1 || secondary.subscribes.Load() != 1 {
		t.Errorf("subscribes = (%d, %d), want (1, 1)",
			primary.subscribes.Load(), secondary.subscribes.Load())
	}
	if got := mux.TopicState("m1"); got != StateSubscriptionActive {
		t.Errorf("state = %s, want %s", got, StateSubscriptionActive)
	}
}

func TestMultiplexer_PollingWhenNoPushAvailable(t *testing.T) {
	broken := &fakePush{failWith: errors.New("no ws")}
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"id":"m1","stateHash":"poll"}`)}
	mux := New([]PushSource{broken}, fetcher, testConfig(), nil)
	defer mux.Close()

	payloads := make(chan json.RawMessage, 16)
	sub, err := mux.Subscribe(context.Background(), "m1", func(p json.RawMessage) { payloads <- p })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if got := mux.TopicState("m1"); got != StatePollingActive {
		t.Fatalf("state = %s, want %s", got, StatePollingActive)
	}

	// The first fetch happens immediately, not one interval later.
	select {
	case <-payloads:
	case <-time.After(time.Second):
		t.Fatal("no payload from initial poll fetch")
	}

	waitFor(t, func() bool { return fetcher.fetches.Load() >= 3 },
		"polling did not continue on the interval")
}

func TestMultiplexer_DowngradesOnMidStreamFailure(t *testing.T) {
	push := &fakePush{}
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"id":"m1"}`)}
	mux := New([]PushSource{push}, fetcher, testConfig(), nil)
	defer mux.Close()

	payloads := make(chan json.RawMessage, 16)
	sub, err := mux.Subscribe(context.Background(), "m1", func(p json.RawMessage) { payloads <- p })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	push.die(errors.New("connection reset"))

	waitFor(t, func() bool { return mux.TopicState("m1") == StatePollingActive },
		"topic never downgraded to polling")
	waitFor(t, func() bool { return fetcher.fetches.Load() >= 1 },
		"polling never fetched after downgrade")

	if push.handle.closed.Load() == 0 {
		t.Error("dead transport handle left open")
	}
	select {
	case <-payloads:
	case <-time.After(time.Second):
		t.Fatal("no updates after downgrade")
	}
}

func TestMultiplexer_PollErrorsAreSkipped(t *testing.T) {
	broken := &fakePush{failWith: errors.New("no ws")}
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"ok":true}`)}
	fetcher.setErr(errors.New("node busy"))
	mux := New([]PushSource{broken}, fetcher, testConfig(), nil)
	defer mux.Close()

	payloads := make(chan json.RawMessage, 16)
	sub, err := mux.Subscribe(context.Background(), "m1", func(p json.RawMessage) { payloads <- p })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	// Let a few ticks fail, then recover.
	waitFor(t, func() bool { return fetcher.fetches.Load() >= 2 }, "polling stalled")
	select {
	case p := <-payloads:
		t.Fatalf("payload delivered from failed fetch: %s", p)
	default:
	}

	fetcher.setErr(nil)
	select {
	case <-payloads:
	case <-time.After(time.Second):
		t.Fatal("polling did not recover after transient errors")
	}
}

func TestMultiplexer_UnsubscribeStopsTransport(t *testing.T) {
	t.Run("subscription", func(t *testing.T) {
		push := &fakePush{}
		mux := New([]PushSource{push}, &fakeFetcher{}, testConfig(), nil)
		defer mux.Close()

		sub, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}

		sub.Close()
		if push.handle.closed.Load() != 1 {
			t.Errorf("transport closed %d times, want 1", push.handle.closed.Load())
		}
		if got := mux.TopicState("m1"); got != StateClosed {
			t.Errorf("state = %s, want %s", got, StateClosed)
		}

		// Idempotent: a second close must not double-release.
		sub.Close()
		if push.handle.closed.Load() != 1 {
			t.Error("second Close released the transport again")
		}
	})

	t.Run("polling", func(t *testing.T) {
		broken := &fakePush{failWith: errors.New("no ws")}
		fetcher := &fakeFetcher{payload: json.RawMessage(`{}`)}
		mux := New([]PushSource{broken}, fetcher, testConfig(), nil)
		defer mux.Close()

		sub, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		waitFor(t, func() bool { return fetcher.fetches.Load() >= 1 }, "polling never started")

		sub.Close()
		settled := fetcher.fetches.Load()
		time.Sleep(80 * time.Millisecond)
		if got := fetcher.fetches.Load(); got != settled {
			t.Errorf("polling kept fetching after unsubscribe: %d -> %d", settled, got)
		}
	})
}

func TestMultiplexer_OneSubscriptionPerTopic(t *testing.T) {
	push := &fakePush{}
	mux := New([]PushSource{push}, &fakeFetcher{}, testConfig(), nil)
	defer mux.Close()

	sub, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {}); err == nil {
		t.Error("second subscribe on the same topic should fail")
	}

	// After release, the topic is free again.
	sub.Close()
	sub2, err := mux.Subscribe(context.Background(), "m1", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("re-subscribe after close: %v", err)
	}
	sub2.Close()
}

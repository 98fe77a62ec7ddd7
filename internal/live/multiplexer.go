// Package live delivers a best-effort stream of updates per topic while
// hiding the transport choice from consumers. Push transports (WebSocket
// subscription, SSE) are preferred; when none can be established, or when an
// established stream dies, the topic degrades to polling. At most one
// transport is ever active per topic.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval is the fallback polling cadence when none is configured.
const DefaultPollInterval = 5 * time.Second

// State is the per-topic transport state.
type State string

const (
	StateIdle               State = "idle"
	StateSubscriptionActive State = "subscription"
	StatePollingActive      State = "polling"
	StateClosed             State = "closed"
)

// PushSource establishes a push stream for a topic. A non-nil error means
// establishment failed and the caller should try the next transport; after a
// nil return, failures are reported through onError exactly once.
type PushSource interface {
	Subscribe(ctx context.Context, topic string, deliver func(json.RawMessage), onError func(error)) (io.Closer, error)
}

// Fetcher retrieves the current payload for a topic; it backs the polling
// transport.
type Fetcher interface {
	Fetch(ctx context.Context, topic string) (json.RawMessage, error)
}

// FetcherFunc is a function adapter for Fetcher.
type FetcherFunc func(ctx context.Context, topic string) (json.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, topic string) (json.RawMessage, error) {
	return f(ctx, topic)
}

// Config holds multiplexer tuning.
type Config struct {
	// PollInterval is the polling cadence per topic in the fallback state.
	PollInterval time.Duration

	// FetchTimeout bounds a single poll fetch.
	FetchTimeout time.Duration
}

// Multiplexer owns at most one active live-update source per subscribed
// topic. It alone creates and tears down transport handles; no other
// component touches the underlying socket or timer.
type Multiplexer struct {
	sources []PushSource
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger

	mu     sync.Mutex
	topics map[string]*topicState
}

// topicState tracks one subscribed topic. gen increments on every transport
// switch so stale error callbacks from a torn-down transport are ignored.
type topicState struct {
	deliver    func(json.RawMessage)
	state      State
	gen        int
	transport  io.Closer
	pollCancel context.CancelFunc
}

// New creates a multiplexer that tries the given push sources in order and
// falls back to polling through fetcher.
func New(sources []PushSource, fetcher Fetcher, cfg Config, logger *slog.Logger) *Multiplexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		sources: sources,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "live_multiplexer")),
		topics:  make(map[string]*topicState),
	}
}

// Subscription is the handle owned by one Subscribe call. It is bound to
// exactly one topic and must be released exactly once; Close is idempotent.
type Subscription struct {
	ID    string
	topic string
	mux   *Multiplexer
	once  sync.Once
}

// Topic returns the topic this subscription is bound to.
func (s *Subscription) Topic() string { return s.topic }

// Close cancels whichever transport is active for the topic and discards the
// handle. Closing an already-closed subscription is a no-op, not an error.
func (s *Subscription) Close() error {
	s.once.Do(func() { s.mux.unsubscribe(s.topic) })
	return nil
}

// Subscribe starts delivering updates for a topic. The push transports are
// tried in order; if every one fails to establish immediately, polling is
// activated at the configured interval. Payloads are passed through
// unmodified; deduplication is the consumer's responsibility, since push and
// poll payloads may race.
func (m *Multiplexer) Subscribe(ctx context.Context, topic string, deliver func(json.RawMessage)) (*Subscription, error) {
	m.mu.Lock()
	if _, exists := m.topics[topic]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("live: topic %s already subscribed", topic)
	}
	ts := &topicState{deliver: deliver, state: StateIdle}
	m.topics[topic] = ts
	m.mu.Unlock()

	m.activate(ctx, topic, ts)

	return &Subscription{
		ID:    uuid.NewString(),
		topic: topic,
		mux:   m,
	}, nil
}

// TopicState returns the transport state for a topic; StateClosed when the
// topic is not subscribed.
func (m *Multiplexer) TopicState(topic string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.topics[topic]
	if !ok {
		return StateClosed
	}
	return ts.state
}

// Close releases every active subscription.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	topics := make([]string, 0, len(m.topics))
	for t := range m.topics {
		topics = append(topics, t)
	}
	m.mu.Unlock()

	for _, t := range topics {
		m.unsubscribe(t)
	}
}

// activate tries push transports first and falls back to polling. It must be
// called without m.mu held.
func (m *Multiplexer) activate(ctx context.Context, topic string, ts *topicState) {
	m.mu.Lock()
	gen := ts.gen
	deliver := ts.deliver
	m.mu.Unlock()

	for i, src := range m.sources {
		onError := m.downgradeFunc(topic, gen)
		handle, err := src.Subscribe(ctx, topic, deliver, onError)
		if err != nil {
			m.logger.Debug("push transport unavailable",
				slog.String("topic", topic),
				slog.Int("source", i),
				slog.String("error", err.Error()),
			)
			continue
		}

		m.mu.Lock()
		if ts.gen != gen || ts.state == StateClosed {
			// Lost a race with unsubscribe or another switch.
			m.mu.Unlock()
			_ = handle.Close()
			return
		}
		ts.state = StateSubscriptionActive
		ts.transport = handle
		m.mu.Unlock()

		m.logger.Info("subscription active",
			slog.String("topic", topic),
			slog.Int("source", i),
		)
		return
	}

	m.startPolling(topic, ts, gen)
}

// downgradeFunc returns the one-shot error callback handed to a push
// transport. A mid-stream failure downgrades the topic to polling; it never
// reaches the consumer as an error.
func (m *Multiplexer) downgradeFunc(topic string, gen int) func(error) {
	return func(err error) {
		m.mu.Lock()
		ts, ok := m.topics[topic]
		if !ok || ts.gen != gen || ts.state == StateClosed {
			m.mu.Unlock()
			return
		}
		// The failed transport closed itself; forget the handle and switch.
		ts.transport = nil
		ts.gen++
		newGen := ts.gen
		m.mu.Unlock()

		m.logger.Warn("push transport lost, downgrading to polling",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		m.startPolling(topic, ts, newGen)
	}
}

// startPolling activates the polling transport for a topic. The previous
// transport must already be fully torn down: at most one transport runs per
// topic at any time.
func (m *Multiplexer) startPolling(topic string, ts *topicState, gen int) {
	pollCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if ts.gen != gen || ts.state == StateClosed {
		m.mu.Unlock()
		cancel()
		return
	}
	ts.state = StatePollingActive
	ts.pollCancel = cancel
	deliver := ts.deliver
	m.mu.Unlock()

	m.logger.Info("polling active",
		slog.String("topic", topic),
		slog.Duration("interval", m.cfg.PollInterval),
	)

	go m.pollLoop(pollCtx, topic, deliver)
}

// pollLoop fetches the topic payload on a fixed interval. A failed tick is
// logged and skipped; a missed update is not worth surfacing.
func (m *Multiplexer) pollLoop(ctx context.Context, topic string, deliver func(json.RawMessage)) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	// Fetch immediately so the consumer is not blind for a full interval.
	m.pollOnce(ctx, topic, deliver)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx, topic, deliver)
		}
	}
}

func (m *Multiplexer) pollOnce(ctx context.Context, topic string, deliver func(json.RawMessage)) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	payload, err := m.fetcher.Fetch(fetchCtx, topic)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("poll tick failed",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if deliver != nil {
		deliver(payload)
	}
}

// unsubscribe tears down whichever transport is active and closes the topic.
// Unsubscribing an unknown topic is a no-op.
func (m *Multiplexer) unsubscribe(topic string) {
	m.mu.Lock()
	ts, ok := m.topics[topic]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.topics, topic)
	ts.gen++
	ts.state = StateClosed
	transport := ts.transport
	pollCancel := ts.pollCancel
	ts.transport = nil
	ts.pollCancel = nil
	m.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}
	if pollCancel != nil {
		pollCancel()
	}
	m.logger.Debug("unsubscribed", slog.String("topic", topic))
}

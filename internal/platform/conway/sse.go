package conway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

// SSEClient reads the node's per-market server-sent-event streams. Payloads
// are JSON documents shaped like the market entity, delivered as-is.
type SSEClient struct {
	eventsURL  string
	httpClient *http.Client
}

// NewSSEClient creates an SSE client rooted at eventsURL, e.g.
// "http://localhost:8080/applications/<id>".
func NewSSEClient(eventsURL string) *SSEClient {
	return &SSEClient{
		eventsURL: strings.TrimRight(eventsURL, "/"),
		// No client timeout: the stream is long-lived. Cancellation comes
		// from the subscription's context.
		httpClient: &http.Client{},
	}
}

// SSESubscription is one live event stream, released exactly once via Close.
type SSESubscription struct {
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// Close tears down the stream. Idempotent.
func (s *SSESubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

// Subscribe opens the event stream for one market. A nil error means the
// server accepted the stream (200 with an event-stream content type); any
// earlier failure is an establishment failure wrapped in
// domain.ErrSubscription so callers fall back to another transport.
func (c *SSEClient) Subscribe(ctx context.Context, marketID string, deliver DeliverFunc, onError ErrorFunc) (*SSESubscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	url := fmt.Sprintf("%s/markets/%s/events", c.eventsURL, marketID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrSubscription, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: open stream %s: %v", domain.ErrSubscription, url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream %s: HTTP %d", domain.ErrSubscription, url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream %s: unexpected content type %q", domain.ErrSubscription, url, ct)
	}

	sub := &SSESubscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var data []string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case line == "":
				// Blank line terminates one event.
				if len(data) > 0 {
					payload := strings.Join(data, "\n")
					data = data[:0]
					if deliver != nil && json.Valid([]byte(payload)) {
						deliver(json.RawMessage(payload))
					}
				}
			default:
				// Comments (":keepalive") and unknown fields are ignored.
			}
		}

		select {
		case <-sub.done:
			// Closed by the owner; not an error.
		default:
			_ = sub.Close()
			if onError != nil {
				err := scanner.Err()
				if err == nil {
					err = fmt.Errorf("stream closed by server")
				}
				onError(fmt.Errorf("sse stream %s: %w", marketID, err))
			}
		}
	}()

	return sub, nil
}

package conway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// ackWait bounds how long subscription establishment may take: dialing,
	// connection_init, and the ack all have to complete within it.
	ackWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wsMessage is the graphql-transport-ws frame envelope.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeliverFunc receives one raw update payload. Payloads pass through
// unmodified; deduplication and ordering are the consumer's concern.
type DeliverFunc func(payload json.RawMessage)

// ErrorFunc is invoked once when an established stream dies mid-flight.
// Establishment failures are returned from Subscribe instead.
type ErrorFunc func(err error)

// SubscriptionClient establishes GraphQL-over-WebSocket subscriptions for
// market updates against the Conway node.
type SubscriptionClient struct {
	wsURL  string
	dialer websocket.Dialer
}

// NewSubscriptionClient creates a subscription client for the given WebSocket
// URL, e.g. "ws://localhost:8080/applications/<id>/ws".
func NewSubscriptionClient(wsURL string) *SubscriptionClient {
	return &SubscriptionClient{
		wsURL: wsURL,
		dialer: websocket.Dialer{
			HandshakeTimeout: ackWait,
		},
	}
}

// WSSubscription is one live marketUpdated stream. It is owned by whoever
// called Subscribe and must be released exactly once via Close; closing twice
// is a no-op.
type WSSubscription struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

// Close tears down the stream and its socket. Idempotent.
func (s *WSSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = s.conn.Close()
	})
	return nil
}

// Subscribe establishes a marketUpdated subscription for one market. A nil
// error means the stream is live: the handshake completed and the server
// acknowledged the subscription protocol. Any failure before that point is an
// establishment failure wrapped in domain.ErrSubscription, which callers use
// to fall back to another transport.
func (c *SubscriptionClient) Subscribe(ctx context.Context, marketID string, deliver DeliverFunc, onError ErrorFunc) (*WSSubscription, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrSubscription, c.wsURL, err)
	}

	if err := c.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	// Start the subscription operation.
	query := `
		subscription MarketUpdated($id: String!) {
			marketUpdated(id: $id) {` + marketFields + `
			}
		}
	`
	payload, err := json.Marshal(graphqlRequest{
		Query:     query,
		Variables: map[string]any{"id": marketID},
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: marshal subscribe: %v", domain.ErrSubscription, err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsMessage{ID: marketID, Type: "subscribe", Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrSubscription, marketID, err)
	}

	sub := &WSSubscription{
		conn: conn,
		done: make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go sub.readLoop(deliver, onError)
	go sub.pingLoop()

	return sub, nil
}

// handshake runs connection_init / connection_ack within ackWait.
func (c *SubscriptionClient) handshake(conn *websocket.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		return fmt.Errorf("%w: connection_init: %v", domain.ErrSubscription, err)
	}

	conn.SetReadDeadline(time.Now().Add(ackWait))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("%w: await ack: %v", domain.ErrSubscription, err)
	}
	if ack.Type != "connection_ack" {
		return fmt.Errorf("%w: unexpected ack type %q", domain.ErrSubscription, ack.Type)
	}
	return nil
}

// readLoop dispatches "next" frames to deliver until the stream dies or the
// subscription is closed. A mid-stream failure is reported once via onError.
func (s *WSSubscription) readLoop(deliver DeliverFunc, onError ErrorFunc) {
	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				// Closed by the owner; not an error.
			default:
				_ = s.Close()
				if onError != nil {
					onError(fmt.Errorf("subscription stream: %w", err))
				}
			}
			return
		}

		switch msg.Type {
		case "next":
			// Unwrap {data: {marketUpdated: ...}} to the bare market payload.
			var next struct {
				Data struct {
					MarketUpdated json.RawMessage `json:"marketUpdated"`
				} `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &next); err != nil {
				continue // drop unparseable frames
			}
			if deliver != nil && len(next.Data.MarketUpdated) > 0 {
				deliver(next.Data.MarketUpdated)
			}
		case "complete", "error":
			_ = s.Close()
			if onError != nil {
				onError(fmt.Errorf("subscription ended by server: %s", msg.Type))
			}
			return
		case "ping":
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteJSON(wsMessage{Type: "pong"})
		}
	}
}

// pingLoop sends periodic pings to keep the socket alive.
func (s *WSSubscription) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

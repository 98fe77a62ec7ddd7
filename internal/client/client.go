// Package client composes the connection handle, gateway, live-update
// multiplexer and feed machinery into one injectable object. Construction is
// fail-fast: a client without a node endpoint or application ID is refused
// immediately, never lazily on first use.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/GauravKarakoti/ConwayBets/internal/config"
	"github.com/GauravKarakoti/ConwayBets/internal/connection"
	"github.com/GauravKarakoti/ConwayBets/internal/domain"
	"github.com/GauravKarakoti/ConwayBets/internal/feed"
	"github.com/GauravKarakoti/ConwayBets/internal/live"
	"github.com/GauravKarakoti/ConwayBets/internal/platform/conway"
)

// Client is the assembled ConwayBets client. The connection handle and
// gateway are shared read-only by every feed; the multiplexer exclusively
// owns live-update transports.
type Client struct {
	cfg     *config.Config
	logger  *slog.Logger
	conn    *connection.Handle
	gateway *conway.Gateway
	mux     *live.Multiplexer
}

// New builds a client from configuration. The node endpoint URL and
// application ID are mandatory; their absence is a configuration error at
// construction time.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("client: %w: configuration not provided", domain.ErrConfig)
	}
	if cfg.Node.EndpointURL == "" {
		return nil, fmt.Errorf("client: %w: node endpoint URL is required", domain.ErrConfig)
	}
	if cfg.Node.ApplicationID == "" {
		return nil, fmt.Errorf("client: %w: application ID is required", domain.ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn := connection.New(cfg.Node.ApplicationID, logger)
	gateway := conway.NewGateway(cfg.Node.EndpointURL, cfg.Node.ApplicationID, conn)

	subURL := cfg.Node.SubscriptionURL
	if subURL == "" {
		subURL = deriveWSURL(cfg.Node.EndpointURL) + "/applications/" + cfg.Node.ApplicationID
	}
	eventsURL := cfg.Node.EventsURL
	if eventsURL == "" {
		eventsURL = strings.TrimRight(cfg.Node.EndpointURL, "/")
	}

	sources := []live.PushSource{
		wsSource{client: conway.NewSubscriptionClient(subURL)},
		sseSource{client: conway.NewSSEClient(eventsURL)},
	}
	mux := live.New(sources, live.FetcherFunc(gateway.MarketPayload), live.Config{
		PollInterval: cfg.Sync.PollInterval.Duration,
	}, logger)

	return &Client{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "client")),
		conn:    conn,
		gateway: gateway,
		mux:     mux,
	}, nil
}

// Connection returns the shared connection handle.
func (c *Client) Connection() *connection.Handle { return c.conn }

// Gateway returns the shared query/mutation gateway.
func (c *Client) Gateway() *conway.Gateway { return c.gateway }

// Connect binds the wallet using the configured RPC endpoint.
func (c *Client) Connect(ctx context.Context, wallet connection.Wallet) error {
	return c.conn.Connect(ctx, wallet, c.cfg.Node.RPCURL)
}

// Disconnect drops the wallet binding.
func (c *Client) Disconnect() { c.conn.Disconnect() }

// WatchMarket subscribes to live updates for one market. The returned handle
// must be closed exactly once; closing it twice is harmless.
func (c *Client) WatchMarket(ctx context.Context, marketID string, deliver func(json.RawMessage)) (*live.Subscription, error) {
	return c.mux.Subscribe(ctx, marketID, deliver)
}

// NewMarketFeed builds a feed controller backed by the gateway. Zero-valued
// option fields inherit the sync configuration.
func (c *Client) NewMarketFeed(opts feed.Options) *feed.Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = c.cfg.Sync.PageSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = c.cfg.Sync.Debounce.Duration
	}
	if opts.AutoRefresh <= 0 {
		opts.AutoRefresh = c.cfg.Sync.AutoRefresh.Duration
	}
	pager := feed.PagerFunc(func(ctx context.Context, limit, offset int) ([]domain.Market, error) {
		return c.gateway.ListMarkets(ctx, conway.ListMarketsRequest{Limit: limit, Offset: offset})
	})
	return feed.New(pager, opts, c.logger)
}

// Close releases every live subscription and disconnects.
func (c *Client) Close() {
	c.mux.Close()
	c.conn.Disconnect()
}

// deriveWSURL swaps an http(s) scheme for ws(s).
func deriveWSURL(endpointURL string) string {
	u := strings.TrimRight(endpointURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// wsSource adapts the WebSocket subscription client to the multiplexer's
// push-source shape.
type wsSource struct {
	client *conway.SubscriptionClient
}

func (s wsSource) Subscribe(ctx context.Context, topic string, deliver func(json.RawMessage), onError func(error)) (io.Closer, error) {
	return s.client.Subscribe(ctx, topic, conway.DeliverFunc(deliver), conway.ErrorFunc(onError))
}

// sseSource adapts the server-sent-event client likewise.
type sseSource struct {
	client *conway.SSEClient
}

func (s sseSource) Subscribe(ctx context.Context, topic string, deliver func(json.RawMessage), onError func(error)) (io.Closer, error) {
	return s.client.Subscribe(ctx, topic, conway.DeliverFunc(deliver), conway.ErrorFunc(onError))
}

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GauravKarakoti/ConwayBets/internal/config"
	"github.com/GauravKarakoti/ConwayBets/internal/domain"
	"github.com/GauravKarakoti/ConwayBets/internal/feed"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Node.EndpointURL = "http://localhost:8080"
	cfg.Node.ApplicationID = "app-1"
	return &cfg
}

func TestNew_FailsFastOnMissingConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing endpoint", func(c *config.Config) { c.Node.EndpointURL = "" }},
		{"missing application id", func(c *config.Config) { c.Node.ApplicationID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if _, err := New(cfg, nil); !errors.Is(err, domain.ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}

	if _, err := New(nil, nil); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("nil config: err = %v, want ErrConfig", err)
	}
}

func TestNew_ComposesWithoutNetwork(t *testing.T) {
	c, err := New(validConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Connection().IsReady() {
		t.Error("freshly built client must not be connected")
	}
	if c.Gateway() == nil {
		t.Error("gateway not wired")
	}
}

func TestClient_GatewayRefusesWhileDisconnected(t *testing.T) {
	c, err := New(validConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Gateway().GetMarket(ctx, "m1"); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestClient_FeedInheritsSyncDefaults(t *testing.T) {
	cfg := validConfig()
	ctrl := mustClient(t, cfg).NewMarketFeed(feed.Options{Enabled: false})
	defer ctrl.Close()

	// A disabled feed never fetches; construction alone must not either.
	time.Sleep(30 * time.Millisecond)
	if s := ctrl.Snapshot(); len(s.Items) != 0 || s.Loading {
		t.Errorf("disabled feed state = %+v", s)
	}
}

func mustClient(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestDeriveWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":  "ws://localhost:8080",
		"https://node.example/":  "wss://node.example",
		"ws://already.websocket": "ws://already.websocket",
	}
	for in, want := range cases {
		if got := deriveWSURL(in); got != want {
			t.Errorf("deriveWSURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefault_FailsWithoutEnvironment(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	// Without endpoint/application environment the registry must refuse,
	// and keep refusing, rather than caching a broken client.
	if _, err := Default(); err == nil {
		t.Skip("environment provides node configuration")
	}
	if _, err := Default(); err == nil {
		t.Error("second Default call succeeded after first failed")
	}
}

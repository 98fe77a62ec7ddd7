package client

import (
	"log/slog"
	"sync"

	"github.com/GauravKarakoti/ConwayBets/internal/config"
)

// The default client is a convenience for tools that have no wiring layer.
// Anything with a composition root should construct its own Client and pass
// it down instead.
var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, constructing it from environment
// configuration on first use. Construction failures are returned every call
// until the environment is fixed; nothing is cached on failure.
func Default() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return defaultClient, nil
	}
	c, err := New(config.FromEnv(), slog.Default())
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return c, nil
}

// ResetDefault closes and discards the process-wide client so the next
// Default call rebuilds it. Intended for tests and reconfiguration.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		defaultClient.Close()
		defaultClient = nil
	}
}

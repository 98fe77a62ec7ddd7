// Package connection wraps the externally supplied wallet/RPC connection and
// exposes readiness state to the rest of the client. It owns the connection
// state exclusively: transitions happen only through Connect and Disconnect,
// never inferred from query failures elsewhere.
package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateReady        State = "ready"
)

// Wallet is the readiness surface the client needs from the external wallet
// provider: an address, nothing else. Key material never crosses this boundary.
type Wallet interface {
	Address() string
}

// Error signals a failed Connect. It is returned, not panicked, so callers
// decide their own retry policy; the handle performs no retries itself.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "connection: " + e.Reason }

// Prober checks that an RPC endpoint is reachable. Injectable for tests.
type Prober func(ctx context.Context, rpcURL string) error

// defaultProber issues a single GET against the endpoint; any HTTP response
// counts as reachable.
func defaultProber(ctx context.Context, rpcURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rpcURL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Handle wraps a wallet and RPC endpoint behind a readiness flag. No network
// traffic happens until Connect is invoked.
type Handle struct {
	appID  string
	logger *slog.Logger
	probe  Prober

	mu     sync.Mutex
	state  State
	wallet Wallet
	rpcURL string
}

// Option customizes a Handle.
type Option func(*Handle)

// WithProber replaces the reachability probe.
func WithProber(p Prober) Option {
	return func(h *Handle) { h.probe = p }
}

// New creates a disconnected Handle bound to an application identifier.
func New(appID string, logger *slog.Logger, opts ...Option) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handle{
		appID:  appID,
		logger: logger.With(slog.String("component", "connection")),
		probe:  defaultProber,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect binds the wallet and RPC endpoint and probes reachability. It is
// idempotent: calling it while already ready is a no-op returning nil, with no
// duplicate network setup.
func (h *Handle) Connect(ctx context.Context, wallet Wallet, rpcURL string) error {
	h.mu.Lock()
	if h.state == StateReady {
		h.mu.Unlock()
		return nil
	}
	if wallet == nil {
		h.state = StateDisconnected
		h.mu.Unlock()
		return &Error{Reason: "wallet not provided"}
	}
	if rpcURL == "" {
		h.state = StateDisconnected
		h.mu.Unlock()
		return &Error{Reason: "rpc url not provided"}
	}
	h.state = StateConnecting
	probe := h.probe
	h.mu.Unlock()

	if err := probe(ctx, rpcURL); err != nil {
		h.mu.Lock()
		h.state = StateDisconnected
		h.mu.Unlock()
		return &Error{Reason: "endpoint unreachable: " + err.Error()}
	}

	h.mu.Lock()
	h.wallet = wallet
	h.rpcURL = rpcURL
	h.state = StateReady
	h.mu.Unlock()

	h.logger.Info("connected",
		slog.String("rpc_url", rpcURL),
		slog.String("address", wallet.Address()),
	)
	return nil
}

// Disconnect drops the wallet binding and returns to the disconnected state.
// Disconnecting an already-disconnected handle is a no-op.
func (h *Handle) Disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateDisconnected {
		return
	}
	h.state = StateDisconnected
	h.wallet = nil
	h.rpcURL = ""
}

// IsReady reports whether the handle has completed Connect.
func (h *Handle) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateReady
}

// State returns the current connection state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Address returns the connected wallet's address, or empty when disconnected.
func (h *Handle) Address() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wallet == nil {
		return ""
	}
	return h.wallet.Address()
}

// ApplicationID returns the application identifier the handle was bound to.
func (h *Handle) ApplicationID() string { return h.appID }

package conway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
)

func TestSSEClient_Subscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/m1/events" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		w.Write([]byte(": keepalive\n\n"))
		w.Write([]byte("data: {\"id\":\"m1\",\"stateHash\":\"aa\"}\n\n"))
		w.Write([]byte("data: {\"id\":\"m1\",\n"))
		w.Write([]byte("data: \"stateHash\":\"bb\"}\n\n"))
		flusher.Flush()

		<-r.Context().Done()
	}))
	defer server.Close()

	payloads := make(chan json.RawMessage, 4)
	client := NewSSEClient(server.URL)
	sub, err := client.Subscribe(context.Background(), "m1",
		func(p json.RawMessage) { payloads <- p },
		func(err error) { t.Logf("stream error: %v", err) },
	)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	for i, wantHash := range []string{"aa", "bb"} {
		select {
		case p := <-payloads:
			var m APIMarket
			if err := json.Unmarshal(p, &m); err != nil {
				t.Fatalf("payload %d not valid market JSON: %v", i, err)
			}
			if m.StateHash != wantHash {
				t.Errorf("payload %d stateHash = %q, want %q", i, m.StateHash, wantHash)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for payload %d", i)
		}
	}
}

func TestSSEClient_EstablishmentFailure(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewSSEClient(server.URL)
		_, err := client.Subscribe(context.Background(), "m1", nil, nil)
		if !errors.Is(err, domain.ErrSubscription) {
			t.Errorf("err = %v, want ErrSubscription", err)
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewSSEClient(server.URL)
		_, err := client.Subscribe(context.Background(), "m1", nil, nil)
		if !errors.Is(err, domain.ErrSubscription) {
			t.Errorf("err = %v, want ErrSubscription", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		client := NewSSEClient("http://127.0.0.1:1")
		_, err := client.Subscribe(context.Background(), "m1", nil, nil)
		if !errors.Is(err, domain.ErrSubscription) {
			t.Errorf("err = %v, want ErrSubscription", err)
		}
	})
}

func TestSSEClient_StreamDeathReportsOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		// Server ends the stream immediately after establishment.
	}))
	defer server.Close()

	errs := make(chan error, 2)
	client := NewSSEClient(server.URL)
	sub, err := client.Subscribe(context.Background(), "m1", nil, func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream-death error")
	}
	select {
	case err := <-errs:
		t.Errorf("onError invoked twice: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSSESubscription_CloseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewSSEClient(server.URL)
	sub, err := client.Subscribe(context.Background(), "m1", nil, func(err error) {
		t.Errorf("onError must not fire for owner-initiated close: %v", err)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sub.Close()
	sub.Close() // second close is a no-op
	time.Sleep(50 * time.Millisecond)
}

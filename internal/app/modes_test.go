package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
	"github.com/GauravKarakoti/ConwayBets/internal/live"
)

type fakeWatchClient struct {
	failFor  map[string]bool
	delivers map[string]func(json.RawMessage)
	mux      *live.Multiplexer
}

func newFakeWatchClient() *fakeWatchClient {
	return &fakeWatchClient{
		failFor:  make(map[string]bool),
		delivers: make(map[string]func(json.RawMessage)),
		// A real multiplexer backs the handles so Close bookkeeping is honest.
		mux: live.New(nil, live.FetcherFunc(
			func(ctx context.Context, topic string) (json.RawMessage, error) {
				return nil, errors.New("no data")
			}), live.Config{}, nil),
	}
}

func (f *fakeWatchClient) WatchMarket(ctx context.Context, marketID string, deliver func(json.RawMessage)) (*live.Subscription, error) {
	if f.failFor[marketID] {
		return nil, errors.New("transport down")
	}
	f.delivers[marketID] = deliver
	return f.mux.Subscribe(ctx, marketID, deliver)
}

func TestMarketWatcher_SyncReconciles(t *testing.T) {
	fc := newFakeWatchClient()
	defer fc.mux.Close()

	var updates []string
	w := newMarketWatcher(fc, slog.Default(), func(ctx context.Context, m domain.Market) {
		updates = append(updates, m.ID)
	})
	defer w.close()

	ctx := context.Background()
	w.sync(ctx, []string{"m1", "m2"})
	if len(w.subs) != 2 {
		t.Fatalf("watched = %d, want 2", len(w.subs))
	}

	// m1 departs, m3 arrives; m2 keeps its existing subscription.
	m2 := w.subs["m2"]
	w.sync(ctx, []string{"m2", "m3"})
	if len(w.subs) != 2 {
		t.Fatalf("watched = %d, want 2", len(w.subs))
	}
	if w.subs["m2"] != m2 {
		t.Error("unchanged market was resubscribed")
	}
	if _, ok := w.subs["m1"]; ok {
		t.Error("departed market still watched")
	}

	// Updates flow through the decode path into apply.
	fc.delivers["m3"](json.RawMessage(`{"id":"m3","title":"T","stateHash":"aa"}`))
	if len(updates) != 1 || updates[0] != "m3" {
		t.Errorf("updates = %v", updates)
	}

	// Garbage payloads are dropped, not applied.
	fc.delivers["m3"](json.RawMessage(`not json`))
	if len(updates) != 1 {
		t.Errorf("garbage payload reached apply: %v", updates)
	}
}

func TestMarketWatcher_SubscribeFailureIsSkipped(t *testing.T) {
	fc := newFakeWatchClient()
	defer fc.mux.Close()
	fc.failFor["bad"] = true

	w := newMarketWatcher(fc, slog.Default(), func(context.Context, domain.Market) {})
	defer w.close()

	w.sync(context.Background(), []string{"bad", "good"})
	if _, ok := w.subs["bad"]; ok {
		t.Error("failed subscription recorded as watched")
	}
	if _, ok := w.subs["good"]; !ok {
		t.Error("healthy market not watched")
	}
}

func TestMarketWatcher_CapsWatchedSet(t *testing.T) {
	fc := newFakeWatchClient()
	defer fc.mux.Close()

	w := newMarketWatcher(fc, slog.Default(), func(context.Context, domain.Market) {})
	defer w.close()

	ids := make([]string, 0, maxWatched+10)
	for i := 0; i < maxWatched+10; i++ {
		ids = append(ids, "m"+string(rune('a'+i%26))+string(rune('0'+i/26)))
	}
	w.sync(context.Background(), ids)
	if len(w.subs) != maxWatched {
		t.Errorf("watched = %d, want cap %d", len(w.subs), maxWatched)
	}
}

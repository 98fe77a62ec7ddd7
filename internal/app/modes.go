package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GauravKarakoti/ConwayBets/internal/domain"
	"github.com/GauravKarakoti/ConwayBets/internal/feed"
	"github.com/GauravKarakoti/ConwayBets/internal/live"
	"github.com/GauravKarakoti/ConwayBets/internal/platform/conway"
)

// maxWatched caps how many markets get a live-update subscription at once;
// the newest markets are watched, the rest are covered by the sync crawl.
const maxWatched = 50

// mirrorLockTTL bounds how long a dead mirror replica blocks its successor.
const mirrorLockTTL = 30 * time.Minute

// syncInterval picks the crawl cadence from configuration.
func (a *App) syncInterval() time.Duration {
	if d := a.cfg.Sync.AutoRefresh.Duration; d > 0 {
		return d
	}
	if d := a.cfg.Sync.PollInterval.Duration; d > 0 {
		return d
	}
	return 30 * time.Second
}

// marketWatcher keeps one live subscription per watched market and funnels
// decoded updates into apply. The subscription set follows the newest page.
type marketWatcher struct {
	client watchClient
	logger *slog.Logger
	apply  func(ctx context.Context, m domain.Market)
	subs   map[string]*live.Subscription
}

type watchClient interface {
	WatchMarket(ctx context.Context, marketID string, deliver func(json.RawMessage)) (*live.Subscription, error)
}

func newMarketWatcher(c watchClient, logger *slog.Logger, apply func(ctx context.Context, m domain.Market)) *marketWatcher {
	return &marketWatcher{
		client: c,
		logger: logger,
		apply:  apply,
		subs:   make(map[string]*live.Subscription),
	}
}

// sync reconciles the watched set against ids: new markets are subscribed,
// departed ones released. Called from the mode's own loop, never concurrently.
func (w *marketWatcher) sync(ctx context.Context, ids []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if len(want) == maxWatched {
			break
		}
		want[id] = true
	}

	for id, sub := range w.subs {
		if !want[id] {
			_ = sub.Close()
			delete(w.subs, id)
		}
	}

	for id := range want {
		if _, ok := w.subs[id]; ok {
			continue
		}
		marketID := id
		sub, err := w.client.WatchMarket(ctx, marketID, func(payload json.RawMessage) {
			var api conway.APIMarket
			if err := json.Unmarshal(payload, &api); err != nil {
				w.logger.Warn("undecodable live payload",
					slog.String("market_id", marketID),
					slog.String("error", err.Error()),
				)
				return
			}
			w.apply(ctx, api.ToDomain())
		})
		if err != nil {
			w.logger.Warn("watch market failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.subs[marketID] = sub
	}
}

func (w *marketWatcher) close() {
	for id, sub := range w.subs {
		_ = sub.Close()
		delete(w.subs, id)
	}
}

// WatchMode runs a read-only feed against the node and logs market activity:
// the paged feed on its refresh cadence plus live updates for the newest
// markets. Nothing is persisted.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	ctrl := deps.Client.NewMarketFeed(feed.Options{Enabled: true})
	defer ctrl.Close()

	watcher := newMarketWatcher(deps.Client, a.logger, func(ctx context.Context, m domain.Market) {
		a.logger.InfoContext(ctx, "market updated",
			slog.String("market_id", m.ID),
			slog.String("title", m.Title),
			slog.Bool("resolved", m.Resolved),
			slog.String("fingerprint", m.Fingerprint),
		)
	})
	defer watcher.close()

	ticker := time.NewTicker(a.syncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := ctrl.Snapshot()
			if snap.Err != "" {
				a.logger.WarnContext(ctx, "feed error", slog.String("error", snap.Err))
				continue
			}
			a.logger.InfoContext(ctx, "feed snapshot",
				slog.Int("markets", snap.Total),
				slog.Bool("has_more", snap.HasMore),
			)
			ids := make([]string, 0, len(snap.Items))
			for _, m := range snap.Items {
				ids = append(ids, m.ID)
			}
			watcher.sync(ctx, ids)
			ctrl.Refresh()
		}
	}
}

// MirrorMode keeps the local read model fresh: every cycle it crawls the full
// market list into Postgres, mirrors bets for the watched markets, writes
// live updates through to the Redis cache, and periodically drains resolved
// markets to the archive.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "mirror", mirrorLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return errors.New("app: another mirror replica holds the lock")
			}
			return err
		}
		defer unlock()
	}

	applyUpdate := func(ctx context.Context, m domain.Market) {
		if err := deps.MarketStore.Upsert(ctx, m); err != nil {
			a.logger.Warn("mirror upsert failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
		if deps.MarketCache != nil {
			if err := deps.MarketCache.Set(ctx, m); err != nil {
				a.logger.Warn("cache write-through failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	watcher := newMarketWatcher(deps.Client, a.logger, applyUpdate)
	defer watcher.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(a.syncInterval())
		defer ticker.Stop()
		for {
			a.crawl(ctx, deps, watcher)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// crawl pages through the complete market list, upserting each page and
// mirroring bets for the newest markets. A short page ends the crawl.
func (a *App) crawl(ctx context.Context, deps *Dependencies, watcher *marketWatcher) {
	gateway := deps.Client.Gateway()
	pageSize := a.cfg.Sync.PageSize
	if pageSize <= 0 {
		pageSize = feed.DefaultPageSize
	}

	var (
		offset  int
		total   int
		watched []string
	)
	for {
		page, err := gateway.ListMarkets(ctx, conway.ListMarketsRequest{
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			a.logger.WarnContext(ctx, "crawl page failed",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			return
		}

		if err := deps.MarketStore.UpsertBatch(ctx, page); err != nil {
			a.logger.WarnContext(ctx, "crawl upsert failed",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, m := range page {
			if deps.MarketCache != nil {
				if err := deps.MarketCache.Set(ctx, m); err != nil {
					a.logger.Warn("cache write-through failed",
						slog.String("market_id", m.ID),
						slog.String("error", err.Error()),
					)
				}
			}
			if len(watched) < maxWatched {
				watched = append(watched, m.ID)
			}
		}

		total += len(page)
		offset += len(page)
		if len(page) < pageSize {
			break
		}
	}

	a.mirrorBets(ctx, deps, watched)
	watcher.sync(ctx, watched)
	a.logger.InfoContext(ctx, "crawl complete", slog.Int("markets", total))
}

// mirrorBets copies the bet history of the watched markets into the store.
func (a *App) mirrorBets(ctx context.Context, deps *Dependencies, marketIDs []string) {
	if deps.BetStore == nil {
		return
	}
	gateway := deps.Client.Gateway()
	for _, id := range marketIDs {
		bets, err := gateway.MarketBets(ctx, id)
		if err != nil {
			a.logger.Warn("bet mirror failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, b := range bets {
			if err := deps.BetStore.Upsert(ctx, b); err != nil {
				a.logger.Warn("bet upsert failed",
					slog.String("bet_id", b.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveLoop drains long-resolved markets out of the read model into object
// storage on the configured interval.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			markets, err := deps.MarketStore.ListResolvedBefore(ctx, cutoff, 500)
			if err != nil {
				a.logger.WarnContext(ctx, "archive query failed", slog.String("error", err.Error()))
				continue
			}
			if len(markets) == 0 {
				continue
			}
			key, err := deps.Archiver.ArchiveResolved(ctx, markets)
			if err != nil {
				a.logger.WarnContext(ctx, "archive upload failed", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "archived resolved markets",
				slog.Int("count", len(markets)),
				slog.String("key", key),
			)
		}
	}
}

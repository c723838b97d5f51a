// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package fetch decides when to hit the upstream review feed and when
// the cached dataset suffices. Remote fetches walk the feed newest-first
// and stop as soon as a record older than the requested window appears.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/source"
	"github.com/poiesic/reviewlens/storage"
)

// DefaultFreshness is how long a dataset refresh stays valid.
const DefaultFreshness = 24 * time.Hour

// Manager coordinates the dataset cache and the upstream review source.
type Manager struct {
	datasets  storage.DatasetRepository
	src       source.ReviewSource
	locales   []source.Locale
	freshness time.Duration
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFreshness sets the cache freshness window.
// Default is DefaultFreshness.
func WithFreshness(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.freshness = d
		}
	}
}

// WithLocales sets the ordered locale fallback list.
// Default is source.DefaultLocales.
func WithLocales(locales ...source.Locale) Option {
	return func(m *Manager) {
		if len(locales) > 0 {
			m.locales = locales
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a fetch manager over the given dataset repository
// and review source.
func NewManager(datasets storage.DatasetRepository, src source.ReviewSource, opts ...Option) *Manager {
	m := &Manager{
		datasets:  datasets,
		src:       src,
		locales:   source.DefaultLocales,
		freshness: DefaultFreshness,
		logger:    slog.Default().With("component", "fetch-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fetch returns all cached reviews for the namespace whose CreatedAt
// falls within [start, end] (whole days, inclusive). The remote feed is
// consulted only when the cache is missing or stale; a fresh cache
// serves the request without any remote call.
//
// Returns core.ErrNoDataFound when the range holds no records even
// after a refresh. Never fabricates records.
func (m *Manager) Fetch(ctx context.Context, namespace string, start, end time.Time) ([]*core.Review, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := core.ValidateDateRange(start, end); err != nil {
		return nil, err
	}

	meta, err := m.datasets.GetDataset(ctx, namespace)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading dataset meta for %s: %w", namespace, err)
	}

	stale := meta == nil || time.Since(meta.LastRefresh) >= m.freshness
	if stale {
		if err := m.refresh(ctx, namespace, start, meta != nil && meta.RecordCount > 0); err != nil {
			return nil, err
		}
	} else {
		m.logger.Debug("cache is fresh, skipping remote fetch",
			"namespace", namespace,
			"last_refresh", meta.LastRefresh)
	}

	dayStart := start.UTC().Truncate(24 * time.Hour)
	dayEnd := end.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	records, err := m.datasets.GetReviewsByDateRange(ctx, namespace, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("reading reviews for %s: %w", namespace, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: namespace %s has no reviews between %s and %s",
			core.ErrNoDataFound, namespace, start.Format(core.DateBucket), end.Format(core.DateBucket))
	}
	return records, nil
}

// Refresh forces a remote fetch reaching back the given lookback window,
// regardless of cache freshness. Used by the scheduled refresher.
func (m *Manager) Refresh(ctx context.Context, namespace string, lookback time.Duration) error {
	if err := core.ValidateNamespace(namespace); err != nil {
		return err
	}
	if lookback <= 0 {
		lookback = DefaultFreshness
	}
	meta, err := m.datasets.GetDataset(ctx, namespace)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("loading dataset meta for %s: %w", namespace, err)
	}
	return m.refresh(ctx, namespace, time.Now().Add(-lookback), meta != nil && meta.RecordCount > 0)
}

// refresh walks the feed newest-first and appends everything down to
// oldest. haveCache softens upstream failures: with cached data on hand
// a broken feed is a warning, without it the error surfaces. A partial
// page run never stamps the cache fresh; a truncated window served as
// complete would silently under-count the older days.
func (m *Manager) refresh(ctx context.Context, namespace string, oldest time.Time, haveCache bool) error {
	collected, err := m.collect(ctx, namespace, oldest)
	if err != nil {
		if !haveCache {
			return err
		}
		m.logger.Warn("remote fetch failed, serving cached data",
			"namespace", namespace, "collected", len(collected), "err", err)
		if len(collected) > 0 {
			// The newest slice still arrived; keep it, but leave the
			// freshness stamp alone so the next request retries the feed.
			if _, appendErr := m.datasets.AppendReviews(ctx, namespace, collected); appendErr != nil {
				m.logger.Warn("failed to append partial fetch",
					"namespace", namespace, "err", appendErr)
			}
		}
		return nil
	}

	inserted, err := m.datasets.AppendReviews(ctx, namespace, collected)
	if err != nil {
		return fmt.Errorf("appending reviews for %s: %w", namespace, err)
	}
	if err := m.datasets.TouchRefresh(ctx, namespace, time.Now().UTC()); err != nil {
		return fmt.Errorf("stamping refresh for %s: %w", namespace, err)
	}
	m.updateDisplayName(ctx, namespace)

	m.logger.Info("dataset refreshed",
		"namespace", namespace,
		"fetched", len(collected),
		"inserted", inserted)
	return nil
}

// collect tries each locale in order until one yields records. A locale
// that fails mid-pagination returns whatever it gathered along with the
// error; the remaining locales would re-serve the same feed window, so
// there is no point falling through with a truncated set in hand.
func (m *Manager) collect(ctx context.Context, namespace string, oldest time.Time) ([]*core.Review, error) {
	var lastErr error

	for _, loc := range m.locales {
		collected, err := m.collectLocale(ctx, namespace, loc, oldest)
		if err != nil {
			if len(collected) > 0 {
				return collected, err
			}
			lastErr = err
			continue
		}
		if len(collected) > 0 {
			return collected, nil
		}
		m.logger.Debug("locale yielded no reviews, trying next",
			"namespace", namespace, "lang", loc.Lang, "country", loc.Country)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	// Every locale paged cleanly but returned nothing.
	return nil, nil
}

// collectLocale paginates one locale newest-first until a record older
// than oldest appears, the feed runs out, or a page comes back empty.
// A page failure returns the partial set with the error so the caller
// can tell a truncated walk from a complete one.
func (m *Manager) collectLocale(ctx context.Context, namespace string, loc source.Locale, oldest time.Time) ([]*core.Review, error) {
	var collected []*core.Review
	token := ""
	pageNum := 0

	for {
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		page, err := m.src.FetchPage(ctx, namespace, loc, token)
		if err != nil {
			return collected, err
		}
		pageNum++

		if len(page.Reviews) == 0 {
			return collected, nil
		}

		for _, review := range page.Reviews {
			collected = append(collected, review)
			if review.CreatedAt.Before(oldest) {
				m.logger.Debug("smart stop reached requested window start",
					"namespace", namespace, "pages", pageNum, "collected", len(collected))
				return collected, nil
			}
		}

		if page.NextToken == "" {
			return collected, nil
		}
		token = page.NextToken
	}
}

// updateDisplayName stores the app title when the source knows it.
// Failures are logged, never fatal: the namespace doubles as the name.
func (m *Manager) updateDisplayName(ctx context.Context, namespace string) {
	info, err := m.src.AppInfo(ctx, namespace, m.locales[0])
	if err != nil || info.DisplayName == "" {
		m.logger.Debug("display name lookup failed", "namespace", namespace, "err", err)
		if err := m.datasets.SetDisplayName(ctx, namespace, namespace); err != nil {
			m.logger.Warn("failed to store fallback display name", "namespace", namespace, "err", err)
		}
		return
	}
	if err := m.datasets.SetDisplayName(ctx, namespace, info.DisplayName); err != nil {
		m.logger.Warn("failed to store display name", "namespace", namespace, "err", err)
	}
}

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


// Package refresh re-fetches tracked dataset namespaces on a cron
// schedule so interactive analyses usually hit a cache inside the
// freshness window.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/poiesic/reviewlens/fetch"
)

// DefaultLookback is how far back each scheduled refresh reaches.
const DefaultLookback = 48 * time.Hour

// refreshTimeout bounds one namespace's refresh within a run.
const refreshTimeout = 5 * time.Minute

// Scheduler periodically refreshes tracked namespaces.
type Scheduler struct {
	fetcher  *fetch.Manager
	schedule string
	lookback time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	namespaces []string

	cron *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLookback sets the refresh window. Default is DefaultLookback.
func WithLookback(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookback = d
		}
	}
}

// WithNamespaces seeds the tracked namespace list.
func WithNamespaces(namespaces ...string) Option {
	return func(s *Scheduler) {
		for _, ns := range namespaces {
			if ns != "" && !slices.Contains(s.namespaces, ns) {
				s.namespaces = append(s.namespaces, ns)
			}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a refresh scheduler. The schedule is a standard
// 5-field cron expression, e.g. "0 */6 * * *" for every six hours.
func NewScheduler(fetcher *fetch.Manager, schedule string, opts ...Option) (*Scheduler, error) {
	if fetcher == nil {
		return nil, errors.New("fetch manager is required")
	}
	if schedule == "" {
		return nil, errors.New("cron schedule is required")
	}

	s := &Scheduler{
		fetcher:  fetcher,
		schedule: schedule,
		lookback: DefaultLookback,
		logger:   slog.Default().With("component", "refresh"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Track adds a namespace to the refresh rotation.
func (s *Scheduler) Track(namespace string) {
	if namespace == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.namespaces, namespace) {
		s.namespaces = append(s.namespaces, namespace)
	}
}

// Untrack removes a namespace from the rotation.
func (s *Scheduler) Untrack(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = slices.DeleteFunc(s.namespaces, func(ns string) bool {
		return ns == namespace
	})
}

// Tracked returns a snapshot of the tracked namespaces.
func (s *Scheduler) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.namespaces)
}

// Start validates the schedule and begins background refreshes.
func (s *Scheduler) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.schedule); err != nil {
		return err
	}

	s.cron = cron.New(cron.WithParser(parser))
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info("refresh scheduled",
		"schedule", s.schedule,
		"namespaces", len(s.Tracked()),
		"lookback", s.lookback)
	return nil
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce refreshes every tracked namespace. Failures are logged per
// namespace and never stop the rotation.
func (s *Scheduler) RunOnce() {
	for _, ns := range s.Tracked() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		err := s.fetcher.Refresh(ctx, ns, s.lookback)
		cancel()
		if err != nil {
			s.logger.Warn("scheduled refresh failed", "namespace", ns, "err", err)
			continue
		}
		s.logger.Debug("namespace refreshed", "namespace", ns)
	}
}

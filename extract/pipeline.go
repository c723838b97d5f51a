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


// Package extract turns raw reviews into dated topic labels through
// batched completion calls. Batches run on a bounded worker pool; every
// call is cached by content hash so repeated runs over the same range
// cost nothing.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	completionTokens   = 6000
)

// ProgressFunc receives extraction progress as reviews complete.
type ProgressFunc func(done, total int)

// Pipeline extracts topics from reviews in concurrent batches.
type Pipeline struct {
	cache       storage.CacheRepository
	completer   ai.Completer
	pool        *ants.Pool
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent batches.
// Default is ComputeConcurrency(runtime.NumCPU(), 0).
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets the number of reviews per completion call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size > 0 {
			p.batchSize = size
		}
		return nil
	}
}

// WithRetry sets the per-batch retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.baseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// NewPipeline creates an extraction pipeline.
func NewPipeline(cache storage.CacheRepository, completer ai.Completer, opts ...Option) (*Pipeline, error) {
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	pool, err := ants.NewPool(ComputeConcurrency(runtime.NumCPU(), 0))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cache:       cache,
		completer:   completer,
		pool:        pool,
		batchSize:   DefaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default().With("component", "extract-pipeline"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Extract runs batch topic extraction over all reviews. A batch that
// keeps failing contributes zero topics instead of failing the run;
// cancellation stops scheduling new batches and returns ctx.Err once
// in-flight batches drain.
func (p *Pipeline) Extract(ctx context.Context, reviews []*core.Review, progress ProgressFunc) ([]core.RawTopic, error) {
	if len(reviews) == 0 {
		return nil, nil
	}

	var batches [][]*core.Review
	for chunk := range slices.Chunk(reviews, p.batchSize) {
		batches = append(batches, chunk)
	}

	results := make([][]core.RawTopic, len(batches))
	total := len(reviews)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		idx, b := i, batch
		err := p.pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				return
			}
			results[idx] = p.extractBatch(ctx, b)

			mu.Lock()
			done += len(b)
			current := done
			mu.Unlock()
			if progress != nil {
				progress(current, total)
			}
		})
		if err != nil {
			wg.Done()
			p.logger.Error("failed to submit batch", "batch", idx, "err", err)
		}
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var topics []core.RawTopic
	for _, r := range results {
		topics = append(topics, r...)
	}

	p.logger.Info("extraction complete",
		"reviews", total,
		"batches", len(batches),
		"topics", len(topics))
	return topics, nil
}

// extractBatch runs one batch end to end: cache lookup, completion with
// retry, parse, cache store. Returns nil on unrecoverable failure.
func (p *Pipeline) extractBatch(ctx context.Context, batch []*core.Review) []core.RawTopic {
	prompt := buildBatchPrompt(batch)
	hash := core.HashContent(p.completer.Model(), prompt)

	if cached, err := p.cache.GetResponse(ctx, hash); err == nil {
		topics, parseErr := parseBatchResponse(cached, batch)
		if parseErr == nil {
			p.logger.Debug("extraction cache hit", "batch_size", len(batch), "topics", len(topics))
			return topics
		}
		p.logger.Warn("cached response no longer parses, refetching", "err", parseErr)
	} else if !errors.Is(err, storage.ErrNotFound) {
		p.logger.Warn("cache read failed", "err", err)
	}

	var response string
	err := retryWithBackoff(ctx, p.logger, func() error {
		r, err := p.completer.Complete(ctx, ai.CompletionRequest{
			Prompt:      prompt,
			Temperature: 0,
			MaxTokens:   completionTokens,
			JSONMode:    true,
		})
		if err != nil {
			return err
		}
		response = r
		return nil
	}, p.maxAttempts, p.baseDelay)
	if err != nil {
		p.logger.Warn("batch extraction failed, skipping batch",
			"batch_size", len(batch), "err", err)
		return nil
	}

	topics, err := parseBatchResponse(response, batch)
	if err != nil {
		p.logger.Warn("batch response unparseable, skipping batch",
			"batch_size", len(batch), "err", err)
		return nil
	}

	if err := p.cache.PutResponse(ctx, hash, response); err != nil {
		p.logger.Warn("failed to cache extraction response", "err", err)
	}
	return topics
}

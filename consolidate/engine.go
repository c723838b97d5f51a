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


// Package consolidate collapses near-duplicate extracted labels into a
// small canonical topic set. The primary path clusters label embeddings
// locally; a completion-driven grouping path covers embedding outages.
// Embedding cache entries are namespaced per dataset so two datasets
// never share cluster structure, even for identical label text.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
)

// Target canonical cardinality. Results outside the range are flagged
// as a data-quality warning, never a failure.
const (
	DefaultTargetMin = 15
	DefaultTargetMax = 25
)

// embedBatchSize bounds one embedding provider call.
const embedBatchSize = 64

// ErrNoLabels indicates consolidation was invoked with zero input.
var ErrNoLabels = errors.New("no labels to consolidate")

// Result is the outcome of one consolidation run.
type Result struct {
	Topics []core.CanonicalTopic

	// UsedFallback is true when grouping came from the completion
	// backend instead of embedding clustering.
	UsedFallback bool

	// Warnings carries data-quality notes such as a canonical count
	// outside the target range.
	Warnings []string
}

// Engine consolidates raw labels into canonical topics.
type Engine struct {
	cache     storage.CacheRepository
	embedder  ai.Embedder
	completer ai.Completer
	threshold float32
	targetMin int
	targetMax int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClusterThreshold sets the cosine similarity at which two labels
// are merged. Default is DefaultClusterThreshold.
func WithClusterThreshold(threshold float32) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

// WithTargetRange sets the canonical cardinality range used for
// data-quality warnings.
func WithTargetRange(min, max int) Option {
	return func(e *Engine) {
		if min > 0 && max >= min {
			e.targetMin = min
			e.targetMax = max
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a consolidation engine. The embedder may be nil, in
// which case every run takes the completion fallback path; the completer
// may be nil when clustering is expected to serve all runs.
func NewEngine(cache storage.CacheRepository, embedder ai.Embedder, completer ai.Completer, opts ...Option) (*Engine, error) {
	if cache == nil {
		return nil, errors.New("cache repository is required")
	}
	if embedder == nil && completer == nil {
		return nil, errors.New("either an embedder or a completer is required")
	}

	e := &Engine{
		cache:     cache,
		embedder:  embedder,
		completer: completer,
		threshold: DefaultClusterThreshold,
		targetMin: DefaultTargetMin,
		targetMax: DefaultTargetMax,
		logger:    slog.Default().With("component", "consolidate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Consolidate groups raw labels into canonical topics for one dataset
// namespace. Labels are deduplicated case-insensitively before grouping;
// the first-seen casing survives as the representative form.
func (e *Engine) Consolidate(ctx context.Context, rawLabels []core.RawTopic, namespace string) (*Result, error) {
	labels := dedupLabels(rawLabels)
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}

	e.logger.Info("consolidating labels",
		"namespace", namespace,
		"raw", len(rawLabels),
		"unique", len(labels))

	var (
		topics []core.CanonicalTopic
		result Result
		err    error
	)

	if e.embedder != nil {
		topics, err = e.clusterLabels(ctx, labels, namespace)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("embedding clustering failed, trying completion fallback", "err", err)
		}
	}

	if topics == nil {
		if e.completer == nil {
			return nil, fmt.Errorf("consolidation failed and no completion fallback is configured: %w", err)
		}
		topics, err = e.groupWithCompleter(ctx, labels)
		if err != nil {
			return nil, err
		}
		result.UsedFallback = true
	}

	sort.Slice(topics, func(i, j int) bool {
		if len(topics[i].Variations) != len(topics[j].Variations) {
			return len(topics[i].Variations) > len(topics[j].Variations)
		}
		return topics[i].Name < topics[j].Name
	})

	result.Topics = topics
	if len(topics) < e.targetMin || len(topics) > e.targetMax {
		warning := fmt.Sprintf("canonical topic count %d outside target range %d-%d",
			len(topics), e.targetMin, e.targetMax)
		result.Warnings = append(result.Warnings, warning)
		e.logger.Warn("canonical cardinality outside target",
			"count", len(topics), "min", e.targetMin, "max", e.targetMax)
	}
	return &result, nil
}

// clusterLabels runs the primary embedding path: resolve a vector per
// unique label through the namespaced cache, cluster by density, name
// each cluster after its centroid-nearest member.
func (e *Engine) clusterLabels(ctx context.Context, labels []string, namespace string) ([]core.CanonicalTopic, error) {
	vectors, err := e.resolveEmbeddings(ctx, labels, namespace)
	if err != nil {
		return nil, err
	}

	clusters := clusterVectors(vectors, e.threshold)

	topics := make([]core.CanonicalTopic, 0, len(clusters))
	for _, members := range clusters {
		name := labels[centroidNearest(vectors, members)]
		variations := make([]string, len(members))
		for i, m := range members {
			variations[i] = labels[m]
		}
		topics = append(topics, core.CanonicalTopic{Name: name, Variations: variations})
	}
	return topics, nil
}

// resolveEmbeddings returns one unit vector per label, reading the
// namespaced embedding cache first and batch-embedding only misses.
func (e *Engine) resolveEmbeddings(ctx context.Context, labels []string, namespace string) ([][]float32, error) {
	model := e.embedder.Model()
	vectors := make([][]float32, len(labels))

	var missIdx []int
	for i, label := range labels {
		hash := core.HashContent(strings.ToLower(label))
		vec, err := e.cache.GetEmbedding(ctx, namespace, model, hash)
		if err == nil {
			vectors[i] = vec
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("embedding cache read failed", "err", err)
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += embedBatchSize {
		end := min(start+embedBatchSize, len(missIdx))
		batch := missIdx[start:end]

		texts := make([]string, len(batch))
		for i, idx := range batch {
			texts[i] = labels[idx]
		}

		embedded, err := e.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding labels: %w", core.ErrBackend, err)
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				core.ErrBackend, len(embedded), len(batch))
		}

		for i, idx := range batch {
			vec := NormalizeVector(embedded[i])
			vectors[idx] = vec

			hash := core.HashContent(strings.ToLower(labels[idx]))
			if err := e.cache.PutEmbedding(ctx, namespace, model, hash, vec); err != nil {
				e.logger.Warn("embedding cache write failed", "err", err)
			}
		}
	}

	if len(missIdx) > 0 {
		e.logger.Debug("embedded labels",
			"misses", len(missIdx), "hits", len(labels)-len(missIdx))
	}
	return vectors, nil
}

// groupWithCompleter runs the fallback path: one completion call over
// the unique label list asking for an aggressively merged canonical set.
func (e *Engine) groupWithCompleter(ctx context.Context, labels []string) ([]core.CanonicalTopic, error) {
	prompt := buildConsolidationPrompt(labels, e.targetMin, e.targetMax)

	response, err := e.completer.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		Temperature: 0,
		MaxTokens:   4000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consolidation completion: %w", core.ErrBackend, err)
	}
	return parseConsolidationResponse(response, labels)
}

// dedupLabels extracts unique label strings case-insensitively, keeping
// first-seen order and casing.
func dedupLabels(rawLabels []core.RawTopic) []string {
	seen := make(map[string]bool, len(rawLabels))
	var labels []string
	for _, rt := range rawLabels {
		label := strings.TrimSpace(rt.Topic)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		labels = append(labels, label)
	}
	return labels
}

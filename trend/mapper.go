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


// Package trend maps raw extracted labels onto a canonical topic set and
// aggregates the result into a date-by-topic count matrix. Every raw
// label ends up either counted under a canonical topic or listed as
// unmapped with a best-guess suggestion; nothing is silently dropped.
package trend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/consolidate"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
)

// DefaultMatchThreshold is the minimum cosine similarity for accepting
// a nearest-neighbor match between an unknown label and a canonical
// topic name.
const DefaultMatchThreshold = 0.70

// UnmappedLabel is a raw label that could not be confidently assigned
// to any canonical topic. Suggestion carries the nearest topic for
// human review; it may be empty when no embedder was available.
type UnmappedLabel struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Suggestion string  `json:"suggestion,omitempty"`
	Similarity float32 `json:"similarity,omitempty"`
}

// Result is the aggregation outcome for one analysis run.
type Result struct {
	Matrix   *Matrix         `json:"matrix"`
	Unmapped []UnmappedLabel `json:"unmapped,omitempty"`
}

// Mapper assigns raw labels to canonical topics.
type Mapper struct {
	cache     storage.CacheRepository
	embedder  ai.Embedder
	threshold float32
	logger    *slog.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithMatchThreshold sets the nearest-neighbor acceptance threshold.
func WithMatchThreshold(threshold float32) MapperOption {
	return func(m *Mapper) {
		if threshold > 0 && threshold <= 1 {
			m.threshold = threshold
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) MapperOption {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMapper creates a mapper. The embedder may be nil; labels outside
// the reverse index then go straight to the unmapped list.
func NewMapper(cache storage.CacheRepository, embedder ai.Embedder, opts ...MapperOption) (*Mapper, error) {
	if cache == nil {
		return nil, errors.New("cache repository is required")
	}
	m := &Mapper{
		cache:     cache,
		embedder:  embedder,
		threshold: DefaultMatchThreshold,
		logger:    slog.Default().With("component", "trend"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Map assigns every raw label to a canonical topic via the reverse
// variation index, falling back to nearest-neighbor matching against
// topic-name embeddings, and aggregates accepted assignments into a
// date-by-topic count matrix.
func (m *Mapper) Map(ctx context.Context, rawLabels []core.RawTopic, topics []core.CanonicalTopic, namespace string) (*Result, error) {
	reverse := buildReverseIndex(topics)

	matrix := NewMatrix(topics)
	unmapped := make(map[string]*UnmappedLabel)

	var topicVectors [][]float32
	for _, rt := range rawLabels {
		label := strings.TrimSpace(rt.Topic)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)

		if canonical, ok := reverse[key]; ok {
			matrix.Add(rt.Date, canonical, 1)
			continue
		}

		// Nearest-neighbor fallback against canonical name embeddings.
		if m.embedder != nil && len(topics) > 0 {
			if topicVectors == nil {
				var err error
				topicVectors, err = m.topicEmbeddings(ctx, topics, namespace)
				if err != nil {
					return nil, err
				}
			}

			canonical, sim, err := m.nearestTopic(ctx, label, topics, topicVectors, namespace)
			if err != nil {
				return nil, err
			}
			if sim >= m.threshold {
				// Accepted matches extend the reverse index so repeat
				// occurrences skip the embedding lookup.
				reverse[key] = canonical
				matrix.Add(rt.Date, canonical, 1)
				continue
			}

			recordUnmapped(unmapped, label, canonical, sim)
			continue
		}

		recordUnmapped(unmapped, label, "", 0)
	}

	result := &Result{Matrix: matrix}
	for _, u := range unmapped {
		result.Unmapped = append(result.Unmapped, *u)
	}
	sort.Slice(result.Unmapped, func(i, j int) bool {
		if result.Unmapped[i].Count != result.Unmapped[j].Count {
			return result.Unmapped[i].Count > result.Unmapped[j].Count
		}
		return result.Unmapped[i].Label < result.Unmapped[j].Label
	})

	m.logger.Info("mapping complete",
		"namespace", namespace,
		"raw", len(rawLabels),
		"topics", len(topics),
		"unmapped", len(result.Unmapped))
	return result, nil
}

// topicEmbeddings resolves one unit vector per canonical topic name
// through the namespaced embedding cache.
func (m *Mapper) topicEmbeddings(ctx context.Context, topics []core.CanonicalTopic, namespace string) ([][]float32, error) {
	vectors := make([][]float32, len(topics))
	for i, topic := range topics {
		vec, err := m.resolveEmbedding(ctx, topic.Name, namespace)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// nearestTopic finds the canonical topic whose name embedding is most
// similar to the label.
func (m *Mapper) nearestTopic(ctx context.Context, label string, topics []core.CanonicalTopic, topicVectors [][]float32, namespace string) (string, float32, error) {
	vec, err := m.resolveEmbedding(ctx, label, namespace)
	if err != nil {
		return "", 0, err
	}

	best := ""
	var bestSim float32 = -2
	for i, tv := range topicVectors {
		if sim := consolidate.CosineSimilarity(vec, tv); sim > bestSim {
			bestSim = sim
			best = topics[i].Name
		}
	}
	return best, bestSim, nil
}

// resolveEmbedding returns the unit vector for one text, cache first.
func (m *Mapper) resolveEmbedding(ctx context.Context, text, namespace string) ([]float32, error) {
	model := m.embedder.Model()
	hash := core.HashContent(strings.ToLower(text))

	if vec, err := m.cache.GetEmbedding(ctx, namespace, model, hash); err == nil {
		return vec, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("embedding cache read failed", "err", err)
	}

	raw, err := m.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding label: %w", core.ErrBackend, err)
	}
	vec := consolidate.NormalizeVector(raw)

	if err := m.cache.PutEmbedding(ctx, namespace, model, hash, vec); err != nil {
		m.logger.Warn("embedding cache write failed", "err", err)
	}
	return vec, nil
}

// buildReverseIndex maps lowercased variation text to its canonical
// topic name. Topic names map to themselves.
func buildReverseIndex(topics []core.CanonicalTopic) map[string]string {
	reverse := make(map[string]string)
	for _, topic := range topics {
		reverse[strings.ToLower(topic.Name)] = topic.Name
		for _, variation := range topic.Variations {
			reverse[strings.ToLower(variation)] = topic.Name
		}
	}
	return reverse
}

func recordUnmapped(unmapped map[string]*UnmappedLabel, label, suggestion string, sim float32) {
	key := strings.ToLower(label)
	if entry, ok := unmapped[key]; ok {
		entry.Count++
		return
	}
	unmapped[key] = &UnmappedLabel{
		Label:      label,
		Count:      1,
		Suggestion: suggestion,
		Similarity: sim,
	}
}

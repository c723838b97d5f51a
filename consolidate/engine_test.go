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


package consolidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/ai/mock"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
	badgerstore "github.com/poiesic/reviewlens/storage/badger"
)

// groupedEmbedder returns near-identical vectors for labels in the same
// semantic group and orthogonal vectors across groups. Group membership
// is decided by substring.
func groupedEmbedder(groups map[string]int, dim int) *mock.MockEmbedder {
	embed := func(text string) []float32 {
		v := make([]float32, dim)
		axis := dim - 1
		for needle, idx := range groups {
			if strings.Contains(strings.ToLower(text), needle) {
				axis = idx
				break
			}
		}
		v[axis] = 1
		// Small per-text perturbation keeps group members distinct while
		// their pairwise similarity stays well above the threshold.
		h := 0
		for _, r := range text {
			h = h*31 + int(r)
		}
		v[(axis+1)%dim] = float32(h%100) / 2000.0
		return NormalizeVector(v)
	}

	e := mock.NewMockEmbedder()
	e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = embed(t)
		}
		return out, nil
	}
	return e
}

func newTestCache(t *testing.T) storage.CacheRepository {
	t.Helper()
	_, cache, jobs, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		jobs.Close()
		backend.Close()
	})
	return cache
}

func rawTopics(labels ...string) []core.RawTopic {
	topics := make([]core.RawTopic, len(labels))
	for i, l := range labels {
		topics[i] = core.RawTopic{Topic: l, Category: core.CategoryIssue, ReviewID: fmt.Sprintf("r-%d", i), Date: "2025-06-10"}
	}
	return topics
}

// deliveryLabels builds the canonical 42-variation scenario: two seed
// phrasings plus 40 generated near-duplicates of the same complaint.
func deliveryLabels() []string {
	labels := []string{"delivery delayed", "delivery delay"}
	for i := 0; i < 40; i++ {
		labels = append(labels, fmt.Sprintf("delivery delayed by %d minutes", i+5))
	}
	return labels
}

func TestConsolidateCollapsesNearDuplicates(t *testing.T) {
	embedder := groupedEmbedder(map[string]int{"delivery": 0, "crash": 1}, 8)
	engine, err := NewEngine(newTestCache(t), embedder, nil)
	require.NoError(t, err)

	labels := deliveryLabels()
	labels = append(labels, "app crash on startup", "app crashes at checkout", "app crashed again")

	result, err := engine.Consolidate(context.Background(), rawTopics(labels...), "ns-a")
	require.NoError(t, err)
	assert.False(t, result.UsedFallback)

	// Two clusters: the 42 delivery variations and the 3 crash reports.
	require.Len(t, result.Topics, 2)
	assert.Len(t, result.Topics[0].Variations, 42)
	assert.Contains(t, strings.ToLower(result.Topics[0].Name), "delivery")
	assert.Len(t, result.Topics[1].Variations, 3)
}

func TestConsolidateNoiseBecomesSingletons(t *testing.T) {
	// Every label lands on its own axis: no pair is similar, and with
	// fewer than minPoints neighbors each point is noise.
	embedder := groupedEmbedder(map[string]int{"alpha": 0, "beta": 1, "gamma": 2, "delta": 3}, 8)
	engine, err := NewEngine(newTestCache(t), embedder, nil)
	require.NoError(t, err)

	result, err := engine.Consolidate(context.Background(),
		rawTopics("alpha topic", "beta topic", "gamma topic", "delta topic"), "ns-a")
	require.NoError(t, err)

	require.Len(t, result.Topics, 4)
	for _, topic := range result.Topics {
		assert.Len(t, topic.Variations, 1)
		assert.Equal(t, topic.Name, topic.Variations[0])
	}
}

func TestConsolidateDedupsCaseInsensitively(t *testing.T) {
	embedder := groupedEmbedder(map[string]int{"delivery": 0}, 8)
	engine, err := NewEngine(newTestCache(t), embedder, nil)
	require.NoError(t, err)

	result, err := engine.Consolidate(context.Background(),
		rawTopics("Delivery Delay", "delivery delay", "DELIVERY DELAY"), "ns-a")
	require.NoError(t, err)

	require.Len(t, result.Topics, 1)
	// First-seen casing survives; the three raw labels are one unique label.
	assert.Equal(t, []string{"Delivery Delay"}, result.Topics[0].Variations)
}

func TestConsolidateNamespaceIsolation(t *testing.T) {
	cache := newTestCache(t)
	embedder := groupedEmbedder(map[string]int{"delivery": 0}, 8)
	engine, err := NewEngine(cache, embedder, nil)
	require.NoError(t, err)

	topics := rawTopics(deliveryLabels()...)

	_, err = engine.Consolidate(context.Background(), topics, "ns-a")
	require.NoError(t, err)
	callsAfterA := embedder.CallCount()
	require.Greater(t, callsAfterA, 0)

	// Identical labels under another namespace must miss the cache and
	// re-embed; namespaces never share embedding entries.
	_, err = engine.Consolidate(context.Background(), topics, "ns-b")
	require.NoError(t, err)
	assert.Greater(t, embedder.CallCount(), callsAfterA)

	// Re-running the first namespace is fully cache-served.
	callsAfterB := embedder.CallCount()
	_, err = engine.Consolidate(context.Background(), topics, "ns-a")
	require.NoError(t, err)
	assert.Equal(t, callsAfterB, embedder.CallCount())
}

func TestConsolidateFallbackGrouping(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		return `{"canonical_topics": [
			{"canonical_name": "Delivery delay", "variations": ["delivery delayed", "delivery delay", "invented variation"]},
			{"canonical_name": "App crashes", "variations": ["app crash on startup"]}
		]}`, nil
	}

	engine, err := NewEngine(newTestCache(t), nil, completer)
	require.NoError(t, err)

	result, err := engine.Consolidate(context.Background(),
		rawTopics("delivery delayed", "delivery delay", "app crash on startup", "uncovered label"), "ns-a")
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)

	byName := map[string][]string{}
	for _, topic := range result.Topics {
		byName[topic.Name] = topic.Variations
	}

	// Invented variations are dropped; uncovered input labels come back
	// as singletons so nothing silently disappears.
	assert.ElementsMatch(t, []string{"delivery delayed", "delivery delay"}, byName["Delivery delay"])
	assert.ElementsMatch(t, []string{"app crash on startup"}, byName["App crashes"])
	assert.ElementsMatch(t, []string{"uncovered label"}, byName["uncovered label"])
}

func TestConsolidateFallbackOnEmbedderFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding provider down")
	}
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		return `{"canonical_topics": [{"canonical_name": "Delivery delay", "variations": ["delivery delayed"]}]}`, nil
	}

	engine, err := NewEngine(newTestCache(t), embedder, completer)
	require.NoError(t, err)

	result, err := engine.Consolidate(context.Background(), rawTopics("delivery delayed"), "ns-a")
	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, 1, completer.CallCount())
}

func TestConsolidateCardinalityWarning(t *testing.T) {
	embedder := groupedEmbedder(map[string]int{"delivery": 0}, 8)
	engine, err := NewEngine(newTestCache(t), embedder, nil)
	require.NoError(t, err)

	result, err := engine.Consolidate(context.Background(), rawTopics(deliveryLabels()...), "ns-a")
	require.NoError(t, err)

	// One canonical topic is far below the default 15-25 target.
	require.Len(t, result.Topics, 1)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "outside target range")
}

func TestConsolidateEmptyInput(t *testing.T) {
	engine, err := NewEngine(newTestCache(t), mock.NewMockEmbedder(), nil)
	require.NoError(t, err)

	_, err = engine.Consolidate(context.Background(), nil, "ns-a")
	assert.ErrorIs(t, err, ErrNoLabels)

	_, err = engine.Consolidate(context.Background(), rawTopics("   "), "ns-a")
	assert.ErrorIs(t, err, ErrNoLabels)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, mock.NewMockEmbedder(), nil)
	assert.Error(t, err)

	_, err = NewEngine(newTestCache(t), nil, nil)
	assert.Error(t, err)
}

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


package trend

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/reviewlens/ai/mock"
	"github.com/poiesic/reviewlens/consolidate"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
	badgerstore "github.com/poiesic/reviewlens/storage/badger"
)

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

// axisEmbedder puts texts containing a needle on that needle's axis,
// everything else on the last axis. Same-axis texts are near-identical.
func axisEmbedder(groups map[string]int, dim int) *mock.MockEmbedder {
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
		h := 0
		for _, r := range text {
			h = h*31 + int(r)
		}
		v[(axis+1)%dim] = float32(h%100) / 2000.0
		return consolidate.NormalizeVector(v)
	}

	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return embed(text), nil
	}
	return e
}

func canonicalSet() []core.CanonicalTopic {
	return []core.CanonicalTopic{
		{Name: "Delivery delay", Variations: []string{"delivery delayed", "delivery delay", "late delivery"}},
		{Name: "App crashes", Variations: []string{"app crash", "app crashed on startup"}},
	}
}

func raw(date, topic string) core.RawTopic {
	return core.RawTopic{Topic: topic, Category: core.CategoryIssue, ReviewID: "r", Date: date}
}

func TestMapReverseIndex(t *testing.T) {
	mapper, err := NewMapper(newTestCache(t), nil)
	require.NoError(t, err)

	labels := []core.RawTopic{
		raw("2025-06-01", "delivery delayed"),
		raw("2025-06-01", "Late Delivery"),
		raw("2025-06-02", "app crash"),
		raw("2025-06-02", "delivery delay"),
		raw("2025-06-02", "App Crashes"), // canonical names map to themselves
	}

	result, err := mapper.Map(context.Background(), labels, canonicalSet(), "ns-a")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Matrix.Get("2025-06-01", "Delivery delay"))
	assert.Equal(t, 1, result.Matrix.Get("2025-06-02", "Delivery delay"))
	assert.Equal(t, 2, result.Matrix.Get("2025-06-02", "App crashes"))
	assert.Empty(t, result.Unmapped)
}

func TestMapNearestNeighborFallback(t *testing.T) {
	embedder := axisEmbedder(map[string]int{"delivery": 0, "crash": 1}, 8)
	mapper, err := NewMapper(newTestCache(t), embedder)
	require.NoError(t, err)

	// "delivery took forever" is not in any variation list but embeds
	// next to the "Delivery delay" topic name.
	labels := []core.RawTopic{
		raw("2025-06-01", "delivery took forever"),
		raw("2025-06-01", "delivery took forever"),
	}

	result, err := mapper.Map(context.Background(), labels, canonicalSet(), "ns-a")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Matrix.Get("2025-06-01", "Delivery delay"))
	assert.Empty(t, result.Unmapped)
}

func TestMapBelowThresholdGoesUnmapped(t *testing.T) {
	embedder := axisEmbedder(map[string]int{"delivery": 0, "crash": 1}, 8)
	mapper, err := NewMapper(newTestCache(t), embedder)
	require.NoError(t, err)

	labels := []core.RawTopic{
		raw("2025-06-01", "payment gateway rejected card"),
		raw("2025-06-02", "payment gateway rejected card"),
	}

	result, err := mapper.Map(context.Background(), labels, canonicalSet(), "ns-a")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Matrix.Total())
	require.Len(t, result.Unmapped, 1)
	assert.Equal(t, "payment gateway rejected card", result.Unmapped[0].Label)
	assert.Equal(t, 2, result.Unmapped[0].Count)
	// A best-guess suggestion is still attached for human review.
	assert.NotEmpty(t, result.Unmapped[0].Suggestion)
	assert.Less(t, result.Unmapped[0].Similarity, float32(DefaultMatchThreshold))
}

func TestMapWithoutEmbedder(t *testing.T) {
	mapper, err := NewMapper(newTestCache(t), nil)
	require.NoError(t, err)

	labels := []core.RawTopic{
		raw("2025-06-01", "delivery delayed"),
		raw("2025-06-01", "totally novel complaint"),
	}

	result, err := mapper.Map(context.Background(), labels, canonicalSet(), "ns-a")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matrix.Total())
	require.Len(t, result.Unmapped, 1)
	assert.Empty(t, result.Unmapped[0].Suggestion)
}

func TestMapTotality(t *testing.T) {
	embedder := axisEmbedder(map[string]int{"delivery": 0, "crash": 1}, 8)
	mapper, err := NewMapper(newTestCache(t), embedder)
	require.NoError(t, err)

	labels := []core.RawTopic{
		raw("2025-06-01", "delivery delayed"),
		raw("2025-06-01", "delivery never arrived on time"),
		raw("2025-06-02", "app crashed on startup"),
		raw("2025-06-02", "refund not processed"),
		raw("2025-06-03", "refund not processed"),
		raw("2025-06-03", ""), // blank labels are not counted anywhere
	}

	result, err := mapper.Map(context.Background(), labels, canonicalSet(), "ns-a")
	require.NoError(t, err)

	unmappedTotal := 0
	for _, u := range result.Unmapped {
		unmappedTotal += u.Count
	}
	// Mapped counts and unmapped counts partition the non-blank input.
	assert.Equal(t, 5, result.Matrix.Total()+unmappedTotal)
}

func TestMatrix(t *testing.T) {
	m := NewMatrix(canonicalSet())
	m.Add("2025-06-02", "Delivery delay", 3)
	m.Add("2025-06-01", "Delivery delay", 1)
	m.Add("2025-06-01", "App crashes", 2)

	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, m.Dates())
	assert.Equal(t, 4, m.TopicTotal("Delivery delay"))
	assert.Equal(t, 6, m.Total())
	assert.Equal(t, 0, m.Get("2025-06-03", "Delivery delay"))
	assert.Equal(t, 0, m.Get("2025-06-01", "unknown topic"))
}

func TestSummarize(t *testing.T) {
	m := NewMatrix(canonicalSet())
	m.Add("2025-06-01", "Delivery delay", 5)
	m.Add("2025-06-02", "App crashes", 2)

	result := &Result{
		Matrix:   m,
		Unmapped: []UnmappedLabel{{Label: "refund not processed", Count: 2}},
	}

	summary := Summarize(result)
	assert.Contains(t, summary, "2025-06-01 to 2025-06-02")
	assert.Contains(t, summary, "Delivery delay: 5")
	assert.Contains(t, summary, "App crashes: 2")
	assert.Contains(t, summary, "Unmapped labels needing review: 1")

	assert.Equal(t, "No analysis results available.", Summarize(nil))
}

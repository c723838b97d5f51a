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


package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/core"
)

const (
	// DefaultBatchSize is the number of reviews per completion call.
	DefaultBatchSize = 25

	// maxTopicsPerReview caps how many topics one review contributes.
	maxTopicsPerReview = 5

	// maxContentChars truncates long review bodies in the prompt.
	maxContentChars = 500
)

// Wire shape of the batch extraction response.
type wireTopic struct {
	Topic    string `json:"topic"`
	Category string `json:"category"`
}

type wireReviewTopics struct {
	ReviewID string      `json:"review_id"`
	Topics   []wireTopic `json:"topics"`
}

type wireBatchResponse struct {
	Reviews []wireReviewTopics `json:"reviews"`
}

// buildBatchPrompt renders the extraction prompt for one batch. Reviews
// are addressed by their batch-local index; empty bodies are skipped so
// the model never sees blank entries.
func buildBatchPrompt(batch []*core.Review) string {
	var sb strings.Builder
	for idx, review := range batch {
		content := strings.TrimSpace(review.Content)
		if content == "" {
			continue
		}
		if len(content) > maxContentChars {
			// Back up to a rune boundary so the prompt stays valid UTF-8.
			cut := maxContentChars
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		fmt.Fprintf(&sb, "\n%d. %s\n", idx, content)
	}
	return fmt.Sprintf(batchExtractionPrompt, sb.String())
}

// parseBatchResponse decodes a batch extraction response and attributes
// each topic to its review's date bucket. Out-of-range indices and
// unknown categories are dropped rather than failing the batch.
func parseBatchResponse(raw string, batch []*core.Review) ([]core.RawTopic, error) {
	cleaned := ai.CleanJSONResponse(raw)

	var decoded wireBatchResponse
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	var topics []core.RawTopic
	for _, entry := range decoded.Reviews {
		idx, err := strconv.Atoi(entry.ReviewID)
		if err != nil || idx < 0 || idx >= len(batch) {
			continue
		}
		review := batch[idx]

		count := 0
		for _, wt := range entry.Topics {
			topic := strings.TrimSpace(wt.Topic)
			if topic == "" {
				continue
			}
			if count >= maxTopicsPerReview {
				break
			}
			topics = append(topics, core.RawTopic{
				Topic:    topic,
				Category: normalizeCategory(wt.Category),
				ReviewID: review.ID,
				Date:     review.DateKey(),
			})
			count++
		}
	}
	return topics, nil
}

// normalizeCategory maps free-form category strings onto the known set.
func normalizeCategory(s string) core.TopicCategory {
	switch core.TopicCategory(strings.ToLower(strings.TrimSpace(s))) {
	case core.CategoryIssue:
		return core.CategoryIssue
	case core.CategoryRequest:
		return core.CategoryRequest
	default:
		return core.CategoryFeedback
	}
}

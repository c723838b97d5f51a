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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/core"
)

// maxPromptTopics caps how many representative labels the fallback
// prompt carries; beyond this the remainder is summarized as a count.
const maxPromptTopics = 200

const consolidationPrompt = `You are consolidating topics extracted from user reviews. BE EXTREMELY AGGRESSIVE - aim for %d-%d final topics MAXIMUM.

Here are %d extracted topics:
%s

CRITICAL RULES - MERGE EVERYTHING SIMILAR:
1. ALL positive feedback goes under one "Positive feedback" topic.
2. Merge all phrasings of the same complaint into one topic.
3. Ignore ALL grammar differences: tense, plural, word order, articles.
4. Keep one topic per distinct feature request.

TARGET: %d-%d CANONICAL TOPICS MAXIMUM. Be RUTHLESS in merging!

OUTPUT (JSON only, no markdown):
{
  "canonical_topics": [
    {
      "canonical_name": "Delivery delay",
      "variations": ["delivery delay 2 hours", "2 hour delivery wait", "delivery extremely delayed"]
    },
    ...
  ]
}`

type wireCanonicalTopic struct {
	CanonicalName string   `json:"canonical_name"`
	Variations    []string `json:"variations"`
}

type wireConsolidationResponse struct {
	CanonicalTopics []wireCanonicalTopic `json:"canonical_topics"`
}

// buildConsolidationPrompt renders the fallback grouping prompt over the
// representative label list.
func buildConsolidationPrompt(labels []string, targetMin, targetMax int) string {
	shown := labels
	var overflow string
	if len(shown) > maxPromptTopics {
		overflow = fmt.Sprintf("\n... and %d more topics", len(shown)-maxPromptTopics)
		shown = shown[:maxPromptTopics]
	}

	var sb strings.Builder
	for _, label := range shown {
		fmt.Fprintf(&sb, "- %s\n", label)
	}

	return fmt.Sprintf(consolidationPrompt,
		targetMin, targetMax,
		len(labels), sb.String()+overflow,
		targetMin, targetMax)
}

// parseConsolidationResponse decodes the fallback grouping response into
// canonical topics. Variations the model invented (not present in the
// input label set) are dropped; input labels the model left out come
// back as singleton canonicals so no label disappears.
func parseConsolidationResponse(raw string, labels []string) ([]core.CanonicalTopic, error) {
	cleaned := ai.CleanJSONResponse(raw)

	var decoded wireConsolidationResponse
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("%w: parsing consolidation response: %w", core.ErrBackend, err)
	}
	if len(decoded.CanonicalTopics) == 0 {
		return nil, fmt.Errorf("%w: consolidation response contained no topics", core.ErrBackend)
	}

	known := make(map[string]string, len(labels)) // lowercase -> original
	for _, label := range labels {
		known[strings.ToLower(label)] = label
	}

	assigned := make(map[string]bool, len(labels))
	var topics []core.CanonicalTopic
	for _, wt := range decoded.CanonicalTopics {
		name := strings.TrimSpace(wt.CanonicalName)
		if name == "" {
			continue
		}

		var variations []string
		for _, v := range wt.Variations {
			key := strings.ToLower(strings.TrimSpace(v))
			original, ok := known[key]
			if !ok || assigned[key] {
				continue
			}
			assigned[key] = true
			variations = append(variations, original)
		}
		if len(variations) == 0 {
			continue
		}
		topics = append(topics, core.CanonicalTopic{Name: name, Variations: variations})
	}

	for _, label := range labels {
		if !assigned[strings.ToLower(label)] {
			topics = append(topics, core.CanonicalTopic{Name: label, Variations: []string{label}})
		}
	}
	return topics, nil
}

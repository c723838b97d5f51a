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


package job

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/reviewlens/trend"
)

// ReportTopic is one canonical topic in a completed report, with its
// variation list and total mention count.
type ReportTopic struct {
	Name       string   `json:"name"`
	Variations []string `json:"variations"`
	Total      int      `json:"total"`
}

// Report is the persisted result payload of a completed job.
type Report struct {
	Namespace    string                `json:"namespace"`
	DisplayName  string                `json:"display_name"`
	StartDate    string                `json:"start_date"`
	EndDate      string                `json:"end_date"`
	TotalReviews int                   `json:"total_reviews"`
	RawLabels    int                   `json:"raw_labels"`
	Topics       []ReportTopic         `json:"topics"`
	Matrix       *trend.Matrix         `json:"matrix"`
	Unmapped     []trend.UnmappedLabel `json:"unmapped,omitempty"`
	UsedFallback bool                  `json:"used_fallback,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`

	// Summary is the compact digest used to seed chat context.
	Summary string `json:"summary"`
}

// EncodeReport serializes a report for storage on the job record.
func EncodeReport(r *Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	return string(data), nil
}

// DecodeReport deserializes a job's stored result payload.
func DecodeReport(data string) (*Report, error) {
	var r Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}

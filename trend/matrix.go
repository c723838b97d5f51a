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
	"sort"

	"github.com/poiesic/reviewlens/core"
)

// Matrix is a (date x canonical topic) count table. Zero cells are
// valid; a topic simply wasn't mentioned that day. Counts are always
// recomputed from raw labels, never mutated incrementally across runs.
type Matrix struct {
	// Topics lists canonical topic names in presentation order.
	Topics []string `json:"topics"`

	// Counts maps date bucket -> topic name -> frequency. Absent cells
	// read as zero.
	Counts map[string]map[string]int `json:"counts"`
}

// NewMatrix creates an empty matrix over the given canonical set.
func NewMatrix(topics []core.CanonicalTopic) *Matrix {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = t.Name
	}
	return &Matrix{
		Topics: names,
		Counts: make(map[string]map[string]int),
	}
}

// Add increments the (date, topic) cell.
func (m *Matrix) Add(date, topic string, n int) {
	row, ok := m.Counts[date]
	if !ok {
		row = make(map[string]int)
		m.Counts[date] = row
	}
	row[topic] += n
}

// Get returns the (date, topic) cell, zero for absent cells.
func (m *Matrix) Get(date, topic string) int {
	return m.Counts[date][topic]
}

// Dates returns the date buckets with at least one count, ascending.
// The DateBucket layout sorts lexicographically in chronological order.
func (m *Matrix) Dates() []string {
	dates := make([]string, 0, len(m.Counts))
	for date := range m.Counts {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// TopicTotal returns the sum of a topic's counts across all dates.
func (m *Matrix) TopicTotal(topic string) int {
	total := 0
	for _, row := range m.Counts {
		total += row[topic]
	}
	return total
}

// Total returns the sum over all cells.
func (m *Matrix) Total() int {
	total := 0
	for _, row := range m.Counts {
		for _, n := range row {
			total += n
		}
	}
	return total
}

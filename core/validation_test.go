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


package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(DateBucket, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestValidateDateRange(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		end     time.Time
		wantErr bool
	}{
		{"single day", day("2025-06-01"), day("2025-06-01"), false},
		{"one week", day("2025-06-01"), day("2025-06-07"), false},
		{"full year", day("2025-01-01"), day("2025-12-31"), false},
		{"over a year", day("2025-01-01"), day("2026-01-01"), true},
		{"start after end", day("2025-06-07"), day("2025-06-01"), true},
		{"zero start", time.Time{}, day("2025-06-01"), true},
		{"zero end", day("2025-06-01"), time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDateRange(tt.start, tt.end)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				assert.ErrorIs(t, err, ErrInvalidDateRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRangeDays(t *testing.T) {
	assert.Equal(t, 1, RangeDays(day("2025-06-01"), day("2025-06-01")))
	assert.Equal(t, 7, RangeDays(day("2025-06-01"), day("2025-06-07")))
	assert.Equal(t, 365, RangeDays(day("2025-01-01"), day("2025-12-31")))

	// Intra-day times collapse to the same bucket.
	morning := day("2025-06-01").Add(3 * time.Hour)
	evening := day("2025-06-01").Add(22 * time.Hour)
	assert.Equal(t, 1, RangeDays(morning, evening))
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, ValidateNamespace("com.example.app"))

	err := ValidateNamespace("")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrEmptyNamespace)
}

func TestValidateReview(t *testing.T) {
	valid := &Review{ID: "r1", Content: "Works great", CreatedAt: day("2025-06-01")}
	assert.NoError(t, ValidateReview(valid))

	assert.ErrorIs(t, ValidateReview(nil), ErrValidation)
	assert.ErrorIs(t, ValidateReview(&Review{Content: "no id"}), ErrEmptyReviewID)
	assert.ErrorIs(t, ValidateReview(&Review{ID: "r2"}), ErrEmptyContent)

	// Rating and reply fields are optional.
	assert.NoError(t, ValidateReview(&Review{ID: "r3", Content: "ok", Rating: 0}))
}

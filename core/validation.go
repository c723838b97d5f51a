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
	"fmt"
	"time"
)

const (
	// MinRangeDays and MaxRangeDays bound the analyzable window.
	MinRangeDays = 1
	MaxRangeDays = 365
)

// ValidateDateRange validates an analysis window according to domain rules.
//
// Validation rules:
//   - start and end must be non-zero
//   - start must not be after end
//   - the inclusive span must be between 1 and 365 days
func ValidateDateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: %w: start and end are required", ErrValidation, ErrInvalidDateRange)
	}
	if start.After(end) {
		return fmt.Errorf("%w: %w: start %s is after end %s",
			ErrValidation, ErrInvalidDateRange, start.Format(DateBucket), end.Format(DateBucket))
	}
	days := RangeDays(start, end)
	if days < MinRangeDays || days > MaxRangeDays {
		return fmt.Errorf("%w: %w: %d days (must be %d-%d)",
			ErrValidation, ErrInvalidDateRange, days, MinRangeDays, MaxRangeDays)
	}
	return nil
}

// RangeDays returns the inclusive number of day buckets between start and end.
func RangeDays(start, end time.Time) int {
	s := start.UTC().Truncate(24 * time.Hour)
	e := end.UTC().Truncate(24 * time.Hour)
	return int(e.Sub(s).Hours()/24) + 1
}

// ValidateNamespace validates a dataset identifier.
func ValidateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyNamespace)
	}
	return nil
}

// ValidateReview validates a fetched Review according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Content must not be empty
//
// NOT validated:
//   - Rating (sources differ on scale; 0 means "not provided")
//   - ReplyContent/RepliedAt (optional)
func ValidateReview(review *Review) error {
	if review == nil {
		return fmt.Errorf("%w: review is nil", ErrValidation)
	}
	if review.ID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyReviewID)
	}
	if review.Content == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyContent)
	}
	return nil
}

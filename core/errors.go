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

import "errors"

// Error taxonomy shared across the pipeline. Components wrap these with
// context via fmt.Errorf("...: %w", ...) so callers can classify failures
// with errors.Is.
var (
	// ErrNoDataFound indicates the source returned zero records for the
	// requested range. Fatal for the job; callers must never substitute
	// synthetic data in its place.
	ErrNoDataFound = errors.New("no records found for the requested range")

	// ErrSourceUnavailable indicates the review source is unreachable or
	// rate-limited after regional fallback was exhausted.
	ErrSourceUnavailable = errors.New("review source unavailable")

	// ErrBackend indicates a failed or malformed model response.
	ErrBackend = errors.New("backend error")

	// ErrValidation indicates bad input rejected before any work started.
	ErrValidation = errors.New("validation error")

	// ErrInvalidDateRange indicates a date range outside 1-365 days or
	// with start after end.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrEmptyNamespace indicates a missing dataset identifier.
	ErrEmptyNamespace = errors.New("dataset namespace cannot be empty")

	// ErrEmptyContent indicates a review with no text body.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyReviewID indicates a review without an external identifier.
	ErrEmptyReviewID = errors.New("review id cannot be empty")
)

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


// Package source abstracts the upstream review feed. The fetch manager
// consumes it page by page; implementations must return records sorted
// newest-first so smart stopping works.
package source

import (
	"context"

	"github.com/poiesic/reviewlens/core"
)

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 500

// Locale selects the language and storefront country for a request.
type Locale struct {
	Lang    string
	Country string
}

// DefaultLocales is the ordered list of locales the fetch manager tries
// when the primary locale yields nothing.
var DefaultLocales = []Locale{
	{Lang: "en", Country: "in"},
	{Lang: "en", Country: "us"},
}

// Page is one batch of records from the feed.
type Page struct {
	// Reviews sorted newest-first.
	Reviews []*core.Review

	// NextToken continues pagination. Empty when the feed is exhausted.
	NextToken string
}

// AppInfo is the descriptive metadata of a dataset's upstream app.
type AppInfo struct {
	DisplayName string
}

// ReviewSource lists reviews for a namespace in newest-first order.
// Implementations must be safe for concurrent use.
type ReviewSource interface {
	// FetchPage retrieves one page of reviews. An empty token requests
	// the newest page. Returns core.ErrSourceUnavailable (wrapped) when
	// the upstream cannot be reached.
	FetchPage(ctx context.Context, namespace string, loc Locale, token string) (*Page, error)

	// AppInfo retrieves the app's display name. Callers fall back to
	// the namespace itself when this fails.
	AppInfo(ctx context.Context, namespace string, loc Locale) (*AppInfo, error)
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/poiesic/reviewlens/core"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPSource implements ReviewSource against a review-feed service with
// a JSON API:
//
//	GET {base}/apps/{namespace}/reviews?lang=..&country=..&count=..&token=..
//	GET {base}/apps/{namespace}?lang=..&country=..
type HTTPSource struct {
	baseURL  string
	client   *http.Client
	pageSize int
	logger   *slog.Logger
}

var _ ReviewSource = (*HTTPSource)(nil)

// HTTPOption is a functional option for configuring an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithPageSize overrides the per-page record count.
func WithPageSize(n int) HTTPOption {
	return func(s *HTTPSource) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewHTTPSource creates a review source backed by the feed service at
// baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		pageSize: DefaultPageSize,
		logger:   slog.Default().With("component", "http-source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wire shapes of the feed service.
type wireReview struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Rating    int       `json:"rating"`
	At        time.Time `json:"at"`
	ReplyText string    `json:"reply_text,omitempty"`
	ReplyAt   time.Time `json:"reply_at,omitempty"`
}

type wireReviewPage struct {
	Reviews   []wireReview `json:"reviews"`
	NextToken string       `json:"next_token"`
}

type wireAppInfo struct {
	Title string `json:"title"`
}

// FetchPage retrieves one page of reviews, newest first.
func (s *HTTPSource) FetchPage(ctx context.Context, namespace string, loc Locale, token string) (*Page, error) {
	query := url.Values{}
	query.Set("lang", loc.Lang)
	query.Set("country", loc.Country)
	query.Set("count", strconv.Itoa(s.pageSize))
	if token != "" {
		query.Set("token", token)
	}

	endpoint := fmt.Sprintf("%s/apps/%s/reviews?%s", s.baseURL, url.PathEscape(namespace), query.Encode())

	var page wireReviewPage
	if err := s.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}

	result := &Page{NextToken: page.NextToken}
	for _, wr := range page.Reviews {
		review := &core.Review{
			ID:           wr.ID,
			Author:       wr.Author,
			Content:      wr.Content,
			Rating:       wr.Rating,
			CreatedAt:    wr.At,
			ReplyContent: wr.ReplyText,
			RepliedAt:    wr.ReplyAt,
		}
		if err := core.ValidateReview(review); err != nil {
			s.logger.Warn("skipping malformed review", "namespace", namespace, "id", wr.ID, "err", err)
			continue
		}
		result.Reviews = append(result.Reviews, review)
	}

	s.logger.Debug("fetched review page",
		"namespace", namespace,
		"count", len(result.Reviews),
		"has_more", result.NextToken != "")
	return result, nil
}

// AppInfo retrieves the app's display name.
func (s *HTTPSource) AppInfo(ctx context.Context, namespace string, loc Locale) (*AppInfo, error) {
	query := url.Values{}
	query.Set("lang", loc.Lang)
	query.Set("country", loc.Country)

	endpoint := fmt.Sprintf("%s/apps/%s?%s", s.baseURL, url.PathEscape(namespace), query.Encode())

	var info wireAppInfo
	if err := s.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	return &AppInfo{DisplayName: info.Title}, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", core.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", core.ErrSourceUnavailable, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", core.ErrSourceUnavailable, err)
	}
	return nil
}

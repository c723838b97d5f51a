package badger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/storage"
)

func mkReview(id string, createdAt time.Time) *core.Review {
	return &core.Review{
		ID:        id,
		Author:    "tester",
		Content:   "content for " + id,
		Rating:    4,
		CreatedAt: createdAt,
	}
}

func TestDatasetAppendAndGet(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	inserted, err := datasetRepo.AppendReviews(ctx, "com.example.app", []*core.Review{
		mkReview("r1", now.Add(-2*time.Hour)),
		mkReview("r2", now.Add(-1*time.Hour)),
	})
	if err != nil {
		t.Fatalf("Failed to append reviews: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("Expected 2 inserted, got %d", inserted)
	}

	meta, err := datasetRepo.GetDataset(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("Failed to get dataset: %v", err)
	}
	if meta.RecordCount != 2 {
		t.Fatalf("Expected record count 2, got %d", meta.RecordCount)
	}
}

func TestDatasetAppendIdempotent(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()
	reviews := []*core.Review{
		mkReview("r1", now.Add(-2*time.Hour)),
		mkReview("r2", now.Add(-1*time.Hour)),
	}

	if _, err := datasetRepo.AppendReviews(ctx, "com.example.app", reviews); err != nil {
		t.Fatalf("Failed to append reviews: %v", err)
	}

	// Re-appending the same IDs plus one new record inserts only the
	// new one and counts it exactly once.
	inserted, err := datasetRepo.AppendReviews(ctx, "com.example.app", append(reviews, mkReview("r3", now)))
	if err != nil {
		t.Fatalf("Failed to re-append reviews: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("Expected 1 inserted on re-append, got %d", inserted)
	}

	meta, err := datasetRepo.GetDataset(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("Failed to get dataset: %v", err)
	}
	if meta.RecordCount != 3 {
		t.Fatalf("Expected record count 3, got %d", meta.RecordCount)
	}
}

func TestDatasetDateRangeQuery(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var reviews []*core.Review
	for i := 0; i < 5; i++ {
		reviews = append(reviews, mkReview(fmt.Sprintf("r%d", i), base.AddDate(0, 0, i)))
	}
	if _, err := datasetRepo.AppendReviews(ctx, "com.example.app", reviews); err != nil {
		t.Fatalf("Failed to append reviews: %v", err)
	}

	// Half-open range [day1, day4) picks days 1, 2, 3 in ascending order.
	results, err := datasetRepo.GetReviewsByDateRange(ctx, "com.example.app",
		base.AddDate(0, 0, 1), base.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("Failed to query date range: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 reviews, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].CreatedAt.Before(results[i-1].CreatedAt) {
			t.Fatal("Expected ascending order by CreatedAt")
		}
	}
	if results[0].ID != "r1" || results[2].ID != "r3" {
		t.Fatalf("Unexpected range bounds: %s .. %s", results[0].ID, results[2].ID)
	}
}

func TestDatasetNamespaceIsolation(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	now := time.Now().UTC()

	// The same review ID in two namespaces yields two records.
	if _, err := datasetRepo.AppendReviews(ctx, "com.example.alpha", []*core.Review{mkReview("r1", now)}); err != nil {
		t.Fatalf("Failed to append to alpha: %v", err)
	}
	if _, err := datasetRepo.AppendReviews(ctx, "com.example.beta", []*core.Review{mkReview("r1", now)}); err != nil {
		t.Fatalf("Failed to append to beta: %v", err)
	}

	alpha, err := datasetRepo.GetDataset(ctx, "com.example.alpha")
	if err != nil {
		t.Fatalf("Failed to get alpha: %v", err)
	}
	beta, err := datasetRepo.GetDataset(ctx, "com.example.beta")
	if err != nil {
		t.Fatalf("Failed to get beta: %v", err)
	}
	if alpha.RecordCount != 1 || beta.RecordCount != 1 {
		t.Fatalf("Expected 1 record each, got %d and %d", alpha.RecordCount, beta.RecordCount)
	}

	// Clearing one namespace leaves the other untouched.
	if err := datasetRepo.ClearDataset(ctx, "com.example.alpha"); err != nil {
		t.Fatalf("Failed to clear alpha: %v", err)
	}
	if _, err := datasetRepo.GetDataset(ctx, "com.example.alpha"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after clear, got %v", err)
	}
	results, err := datasetRepo.GetReviewsByDateRange(ctx, "com.example.beta",
		now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to query beta: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected beta review to survive, got %d", len(results))
	}
}

func TestDatasetMetaUpdates(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	refreshedAt := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

	// TouchRefresh on an unknown namespace creates the metadata record.
	if err := datasetRepo.TouchRefresh(ctx, "com.example.app", refreshedAt); err != nil {
		t.Fatalf("Failed to touch refresh: %v", err)
	}
	if err := datasetRepo.SetDisplayName(ctx, "com.example.app", "Example App"); err != nil {
		t.Fatalf("Failed to set display name: %v", err)
	}

	meta, err := datasetRepo.GetDataset(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("Failed to get dataset: %v", err)
	}
	if !meta.LastRefresh.Equal(refreshedAt) {
		t.Fatalf("Expected refresh time %v, got %v", refreshedAt, meta.LastRefresh)
	}
	if meta.DisplayName != "Example App" {
		t.Fatalf("Expected display name 'Example App', got '%s'", meta.DisplayName)
	}
}

func TestDatasetLargeAppendChunks(t *testing.T) {
	datasetRepo, _, jobRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer func() { jobRepo.Close(); backend.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// More records than one append chunk.
	var reviews []*core.Review
	for i := 0; i < appendChunkSize*2+50; i++ {
		reviews = append(reviews, mkReview(fmt.Sprintf("r%04d", i), base.Add(time.Duration(i)*time.Minute)))
	}

	inserted, err := datasetRepo.AppendReviews(ctx, "com.example.app", reviews)
	if err != nil {
		t.Fatalf("Failed to append reviews: %v", err)
	}
	if inserted != len(reviews) {
		t.Fatalf("Expected %d inserted, got %d", len(reviews), inserted)
	}

	meta, err := datasetRepo.GetDataset(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("Failed to get dataset: %v", err)
	}
	if meta.RecordCount != len(reviews) {
		t.Fatalf("Expected record count %d, got %d", len(reviews), meta.RecordCount)
	}
}

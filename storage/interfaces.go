package storage

import (
	"context"
	"time"

	"github.com/poiesic/reviewlens/core"
)

// DatasetRepository provides operations for cached dataset records.
// Each dataset lives under its own namespace; records are never merged
// across namespaces.
type DatasetRepository interface {
	// GetDataset retrieves metadata for a cached dataset.
	// Returns ErrNotFound if the namespace has never been fetched.
	GetDataset(ctx context.Context, namespace string) (*core.DatasetMeta, error)

	// AppendReviews adds reviews to a dataset, creating it on first use.
	// Idempotent: reviews whose external ID is already present are
	// skipped, never duplicated. Returns the number actually inserted.
	AppendReviews(ctx context.Context, namespace string, reviews []*core.Review) (int, error)

	// GetReviewsByDateRange retrieves reviews with start <= CreatedAt < end,
	// ordered by CreatedAt ascending.
	GetReviewsByDateRange(ctx context.Context, namespace string, start, end time.Time) ([]*core.Review, error)

	// TouchRefresh records the time of the last successful remote fetch.
	TouchRefresh(ctx context.Context, namespace string, at time.Time) error

	// SetDisplayName stores the human-readable dataset name.
	SetDisplayName(ctx context.Context, namespace, name string) error

	// ClearDataset removes a dataset's metadata and all of its records.
	// Clearing an unknown namespace is a no-op.
	ClearDataset(ctx context.Context, namespace string) error
}

// CacheRepository provides the backend-response and embedding cache regions.
// Both are append-mostly: entries are keyed by content hash and never
// mutated in place.
type CacheRepository interface {
	// GetResponse retrieves a cached backend response by content hash.
	// Returns ErrNotFound on a cache miss.
	GetResponse(ctx context.Context, hash string) (string, error)

	// PutResponse stores a backend response under its content hash.
	PutResponse(ctx context.Context, hash, response string) error

	// GetEmbedding retrieves a cached vector. The namespace isolates
	// datasets from each other; an empty namespace addresses the global
	// scope kept for pre-namespacing data. Returns ErrNotFound on a miss.
	GetEmbedding(ctx context.Context, namespace, model, textHash string) ([]float32, error)

	// PutEmbedding stores a vector under (namespace, model, textHash).
	PutEmbedding(ctx context.Context, namespace, model, textHash string, vector []float32) error
}

// JobRepository provides operations for analysis jobs and their chat logs.
type JobRepository interface {
	// CreateJob persists a new job. Sets CreatedAt/UpdatedAt.
	CreateJob(ctx context.Context, job *core.Job) error

	// UpdateJob persists the current state of an existing job and bumps
	// UpdatedAt. Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.Job) error

	// GetJob retrieves a job by ID. Returns ErrNotFound if unknown.
	GetJob(ctx context.Context, id string) (*core.Job, error)

	// ListJobs retrieves jobs ordered by creation time descending.
	// A non-empty status filters the listing; limit bounds the page size
	// and offset skips past newer entries.
	ListJobs(ctx context.Context, limit, offset int, status core.JobStatus) ([]*core.Job, error)

	// DeleteJob removes a job and cascades deletion of its chat log.
	// Returns ErrNotFound if the job doesn't exist.
	DeleteJob(ctx context.Context, id string) error

	// AddChatMessage appends a message to a job's chat log.
	AddChatMessage(ctx context.Context, msg *core.ChatMessage) error

	// GetChatMessages retrieves a job's chat log in chronological order.
	GetChatMessages(ctx context.Context, jobID string) ([]*core.ChatMessage, error)

	// Close releases repository resources.
	Close() error
}

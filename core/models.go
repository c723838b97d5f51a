package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DateBucket is the layout used for day-granularity bucket keys.
const DateBucket = "2006-01-02"

// HashContent generates a deterministic hex digest from text content using
// BLAKE2b hashing. Parts are joined with a NUL separator so that
// ("a", "bc") and ("ab", "c") hash differently.
func HashContent(parts ...string) string {
	h, _ := blake2b.New(16, nil)
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Review is a single source record fetched from a review source.
// Reviews are immutable once fetched and uniquely identified by their
// external ID within a dataset namespace.
type Review struct {
	ID           string
	Author       string
	Content      string
	Rating       int
	CreatedAt    time.Time // When the review was posted
	ReplyContent string    // Optional developer reply
	RepliedAt    time.Time // Zero when there is no reply
}

// DateKey returns the day bucket this review belongs to.
func (r *Review) DateKey() string {
	return r.CreatedAt.UTC().Format(DateBucket)
}

// DatasetMeta describes one cached dataset namespace.
type DatasetMeta struct {
	Namespace   string
	DisplayName string
	LastRefresh time.Time
	RecordCount int
}

// TopicCategory is the coarse tag attached to an extracted topic.
type TopicCategory string

const (
	CategoryIssue    TopicCategory = "issue"
	CategoryRequest  TopicCategory = "request"
	CategoryFeedback TopicCategory = "feedback"
)

// RawTopic is a short phrase extracted from one review, attributed to a
// single date bucket. Raw topics are ephemeral: produced by the extraction
// pipeline and consumed by the consolidation engine.
type RawTopic struct {
	Topic    string
	Category TopicCategory
	ReviewID string
	Date     string // DateBucket layout
}

// CanonicalTopic is the representative form of a group of near-duplicate
// raw topics. Recomputed on every analysis run, never updated incrementally.
type CanonicalTopic struct {
	Name       string
	Variations []string
}

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a persisted analysis run. Owned exclusively by the orchestrator;
// it survives process restarts.
type Job struct {
	ID          string
	Namespace   string
	DisplayName string
	StartDate   time.Time
	EndDate     time.Time
	Status      JobStatus
	Phase       string
	Progress    int // 0-100
	Message     string
	Results     string // JSON result payload, empty until completed
	Error       string // Human-readable failure description
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time // Zero until the job reaches a terminal state
}

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry in a job's append-only conversation log.
// Messages are deleted en masse when their job is deleted.
type ChatMessage struct {
	JobID     string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}

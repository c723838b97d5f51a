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
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/ai/mock"
	"github.com/poiesic/reviewlens/consolidate"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/extract"
	"github.com/poiesic/reviewlens/fetch"
	"github.com/poiesic/reviewlens/source"
	"github.com/poiesic/reviewlens/storage"
	badgerstore "github.com/poiesic/reviewlens/storage/badger"
	"github.com/poiesic/reviewlens/trend"
)

// stubSource serves a fixed page of reviews for every locale.
type stubSource struct {
	reviews []*core.Review
	name    string
}

func (s *stubSource) FetchPage(ctx context.Context, namespace string, loc source.Locale, token string) (*source.Page, error) {
	return &source.Page{Reviews: s.reviews}, nil
}

func (s *stubSource) AppInfo(ctx context.Context, namespace string, loc source.Locale) (*source.AppInfo, error) {
	return &source.AppInfo{DisplayName: s.name}, nil
}

// stubReviews returns reviews inside the last few days, newest first.
func stubReviews(n int) []*core.Review {
	now := time.Now().UTC()
	reviews := make([]*core.Review, n)
	for i := range reviews {
		reviews[i] = &core.Review{
			ID:        fmt.Sprintf("r-%d", i),
			Author:    "tester",
			Content:   fmt.Sprintf("delivery was delayed again, order %d", i),
			Rating:    2,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	return reviews
}

// extractionResponse answers every batch index with one delivery topic.
func extractionResponse() string {
	var sb strings.Builder
	sb.WriteString(`{"reviews": [`)
	for i := 0; i < extract.DefaultBatchSize; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"review_id": "%d", "topics": [{"topic": "delivery delayed", "category": "issue"}]}`, i)
	}
	sb.WriteString("]}")
	return sb.String()
}

// deliveryEmbedder puts every text near one axis so all labels cluster.
func deliveryEmbedder() *mock.MockEmbedder {
	embed := func(text string) []float32 {
		v := make([]float32, 8)
		v[0] = 1
		h := 0
		for _, r := range text {
			h = h*31 + int(r)
		}
		v[1] = float32(h%100) / 2000.0
		return consolidate.NormalizeVector(v)
	}
	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return embed(text), nil
	}
	e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = embed(t)
		}
		return out, nil
	}
	return e
}

type harness struct {
	orch      *Orchestrator
	jobs      storage.JobRepository
	completer *mock.MockCompleter
}

func newHarness(t *testing.T, src source.ReviewSource, opts ...Option) *harness {
	t.Helper()

	datasets, cache, jobs, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		jobs.Close()
		backend.Close()
	})

	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		if strings.Contains(req.Prompt, "Extract ALL topics") {
			return extractionResponse(), nil
		}
		return "The dominant topic is delivery delay.", nil
	}

	fetcher := fetch.NewManager(datasets, src)

	pipeline, err := extract.NewPipeline(cache, completer,
		extract.WithPoolSize(1), extract.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	engine, err := consolidate.NewEngine(cache, deliveryEmbedder(), completer)
	require.NoError(t, err)

	mapper, err := trend.NewMapper(cache, deliveryEmbedder())
	require.NoError(t, err)

	opts = append([]Option{WithCompleter(completer), WithGracePeriod(2 * time.Second)}, opts...)
	orch, err := NewOrchestrator(jobs, datasets, fetcher, pipeline, engine, mapper, opts...)
	require.NoError(t, err)

	return &harness{orch: orch, jobs: jobs, completer: completer}
}

func waitForTerminal(t *testing.T, h *harness, jobID string) *core.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := h.orch.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

func window() (time.Time, time.Time) {
	end := time.Now().UTC()
	return end.AddDate(0, 0, -7), end
}

func TestSubmitRunsToCompletion(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(30), name: "Speedy Eats"})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)
	assert.Equal(t, core.JobQueued, job.Status)

	final := waitForTerminal(t, h, job.ID)
	require.Equal(t, core.JobCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, PhaseReport, final.Phase)
	assert.False(t, final.CompletedAt.IsZero())

	report, err := h.orch.GetResult(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Speedy Eats", report.DisplayName)
	assert.Equal(t, 30, report.TotalReviews)
	require.NotEmpty(t, report.Topics)
	assert.Equal(t, 30, report.Matrix.Total())
	assert.NotEmpty(t, report.Summary)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(5)})
	start, end := window()

	_, err := h.orch.Submit(context.Background(), "", start, end)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = h.orch.Submit(context.Background(), "com.example.app", end, start)
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)

	_, err = h.orch.Submit(context.Background(), "com.example.app", end.AddDate(-2, 0, 0), end)
	assert.ErrorIs(t, err, core.ErrInvalidDateRange)
}

func TestJobFailsOnNoData(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: nil})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.empty", start, end)
	require.NoError(t, err)

	final := waitForTerminal(t, h, job.ID)
	assert.Equal(t, core.JobFailed, final.Status)
	assert.Contains(t, final.Error, "no records found")

	_, err = h.orch.GetResult(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotCompleted)
}

func TestCancelConvergesWithinGrace(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(50)})

	// Extraction blocks until the run context is cancelled.
	h.completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start, end := window()
	job, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)

	// Let the run reach the blocking extraction phase.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, h.orch.Cancel(context.Background(), job.ID))

	final, err := h.orch.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, final.Status)

	// Cancelling an already-terminal job is a no-op.
	require.NoError(t, h.orch.Cancel(context.Background(), job.ID))
	again, err := h.orch.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, again.Status)
}

func TestRetrySubmitsFreshJob(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: nil})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.empty", start, end)
	require.NoError(t, err)
	waitForTerminal(t, h, job.ID)

	fresh, err := h.orch.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, fresh.ID)
	assert.Equal(t, job.Namespace, fresh.Namespace)
	waitForTerminal(t, h, fresh.ID)

	// The original record is untouched by the retry.
	original, err := h.orch.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, original.Status)
}

func TestRetryRejectsCompletedJob(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(10), name: "App"})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)
	require.Equal(t, core.JobCompleted, waitForTerminal(t, h, job.ID).Status)

	_, err = h.orch.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobNotRetryable)
}

func TestDeleteCascadesChat(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(10), name: "App"})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)
	require.Equal(t, core.JobCompleted, waitForTerminal(t, h, job.ID).Status)

	_, err = h.orch.Ask(context.Background(), job.ID, "What is the top complaint?")
	require.NoError(t, err)

	require.NoError(t, h.orch.Delete(context.Background(), job.ID))

	_, err = h.orch.GetStatus(context.Background(), job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.orch.GetChatHistory(context.Background(), job.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAskPersistsConversation(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(10), name: "App"})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)
	require.Equal(t, core.JobCompleted, waitForTerminal(t, h, job.ID).Status)

	answer, err := h.orch.Ask(context.Background(), job.ID, "What is the top complaint?")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)

	history, err := h.orch.GetChatHistory(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.ChatRoleUser, history[0].Role)
	assert.Equal(t, "What is the top complaint?", history[0].Content)
	assert.Equal(t, core.ChatRoleAssistant, history[1].Role)
	assert.Equal(t, answer, history[1].Content)

	// A second question carries the prior turns in its prompt.
	sawHistory := false
	h.completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		if strings.Contains(req.Prompt, "Conversation so far:") {
			sawHistory = true
		}
		return "Still delivery delay.", nil
	}
	_, err = h.orch.Ask(context.Background(), job.ID, "Did it change over time?")
	require.NoError(t, err)
	assert.True(t, sawHistory)
}

func TestAskRequiresCompletedJob(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: nil})
	start, end := window()

	job, err := h.orch.Submit(context.Background(), "com.example.empty", start, end)
	require.NoError(t, err)
	waitForTerminal(t, h, job.ID)

	_, err = h.orch.Ask(context.Background(), job.ID, "anything?")
	assert.ErrorIs(t, err, ErrJobNotCompleted)

	_, err = h.orch.Ask(context.Background(), job.ID, "   ")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestHistoryListsNewestFirst(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: nil})
	start, end := window()

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := h.orch.Submit(context.Background(), fmt.Sprintf("com.example.%d", i), start, end)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		waitForTerminal(t, h, job.ID)
		time.Sleep(2 * time.Millisecond)
	}

	jobs, err := h.orch.History(context.Background(), 0, 0, "")
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)

	failed, err := h.orch.History(context.Background(), 0, 0, core.JobFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 3)

	completed, err := h.orch.History(context.Background(), 0, 0, core.JobCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestReportRoundTrip(t *testing.T) {
	report := &Report{
		Namespace:    "com.example.app",
		DisplayName:  "App",
		StartDate:    "2025-06-01",
		EndDate:      "2025-06-07",
		TotalReviews: 42,
		Topics:       []ReportTopic{{Name: "Delivery delay", Variations: []string{"late"}, Total: 12}},
		Summary:      "Delivery delay dominates.",
	}

	encoded, err := EncodeReport(report)
	require.NoError(t, err)

	decoded, err := DecodeReport(encoded)
	require.NoError(t, err)
	assert.Equal(t, report.Namespace, decoded.Namespace)
	assert.Equal(t, report.Topics, decoded.Topics)

	_, err = DecodeReport("not json")
	assert.Error(t, err)
}

func TestSubmitReturnsDetachedSnapshot(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(10), name: "Snap App"})
	release := make(chan struct{})
	h.completer.CompleteFunc = func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		<-release
		return extractionResponse(), nil
	}

	start, end := window()
	submitted, err := h.orch.Submit(context.Background(), "com.example.app", start, end)
	require.NoError(t, err)

	// Wait for the run goroutine to advance well past queued.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := h.orch.GetStatus(context.Background(), submitted.ID)
		require.NoError(t, err)
		if current.Status == core.JobRunning && current.Phase == PhaseExtract {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The caller's snapshot never sees the run's mutations.
	assert.Equal(t, core.JobQueued, submitted.Status)
	assert.Empty(t, submitted.Phase)
	assert.Zero(t, submitted.Progress)

	close(release)
	final := waitForTerminal(t, h, submitted.ID)
	assert.Equal(t, core.JobCompleted, final.Status)
}

func TestTerminalStateSurvivesConcurrentPhaseWrites(t *testing.T) {
	h := newHarness(t, &stubSource{reviews: stubReviews(5)})
	start, end := window()

	job := &core.Job{
		ID:        "job-terminal-check",
		Namespace: "com.example.app",
		StartDate: start,
		EndDate:   end,
		Status:    core.JobQueued,
	}
	require.NoError(t, h.jobs.CreateJob(context.Background(), job))

	// A stale run-side copy keeps writing phase updates while the job is
	// cancelled out from under it.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c := *job
			c.Status = core.JobRunning
			h.orch.setPhase(&c, PhaseExtract, 40, "extracting topics")
		}
	}()

	time.Sleep(5 * time.Millisecond)
	cancelled := *job
	h.orch.markCancelled(&cancelled)
	wg.Wait()

	// The terminal transition is final; no phase write may undo it.
	final, err := h.orch.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobCancelled, final.Status)
	assert.Equal(t, "cancelled", final.Message)
}

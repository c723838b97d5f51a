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


package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/fetch"
	"github.com/poiesic/reviewlens/source"
	"github.com/poiesic/reviewlens/storage"
	badgerstore "github.com/poiesic/reviewlens/storage/badger"
)

type stubSource struct {
	calls int
}

func (s *stubSource) FetchPage(ctx context.Context, namespace string, loc source.Locale, token string) (*source.Page, error) {
	s.calls++
	return &source.Page{Reviews: []*core.Review{{
		ID:        namespace + "-r1",
		Content:   "delivery delayed",
		Rating:    2,
		CreatedAt: time.Now().UTC(),
	}}}, nil
}

func (s *stubSource) AppInfo(ctx context.Context, namespace string, loc source.Locale) (*source.AppInfo, error) {
	return &source.AppInfo{DisplayName: "App"}, nil
}

func newTestScheduler(t *testing.T, schedule string) (*Scheduler, storage.DatasetRepository, *stubSource) {
	t.Helper()

	datasets, _, jobs, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		jobs.Close()
		backend.Close()
	})

	src := &stubSource{}
	s, err := NewScheduler(fetch.NewManager(datasets, src), schedule)
	require.NoError(t, err)
	return s, datasets, src
}

func TestTrackUntrack(t *testing.T) {
	s, _, _ := newTestScheduler(t, "0 */6 * * *")

	s.Track("com.example.a")
	s.Track("com.example.b")
	s.Track("com.example.a") // duplicates collapse
	s.Track("")
	assert.Equal(t, []string{"com.example.a", "com.example.b"}, s.Tracked())

	s.Untrack("com.example.a")
	assert.Equal(t, []string{"com.example.b"}, s.Tracked())
}

func TestRunOnceRefreshesTrackedNamespaces(t *testing.T) {
	s, datasets, src := newTestScheduler(t, "0 */6 * * *")
	s.Track("com.example.a")
	s.Track("com.example.b")

	s.RunOnce()

	assert.Equal(t, 2, src.calls)
	for _, ns := range []string{"com.example.a", "com.example.b"} {
		meta, err := datasets.GetDataset(context.Background(), ns)
		require.NoError(t, err)
		assert.Equal(t, 1, meta.RecordCount)
		assert.False(t, meta.LastRefresh.IsZero())
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t, "not a schedule")
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, "0 */6 * * *")
	require.NoError(t, s.Start())
	s.Stop()
}

func TestNewSchedulerValidation(t *testing.T) {
	_, err := NewScheduler(nil, "0 * * * *")
	assert.Error(t, err)

	datasets, _, jobs, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	defer jobs.Close()

	_, err = NewScheduler(fetch.NewManager(datasets, &stubSource{}), "")
	assert.Error(t, err)
}

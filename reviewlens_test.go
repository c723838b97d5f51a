package reviewlens

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/reviewlens/source"
)

func TestNewApp(t *testing.T) {
	t.Run("create new app", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		app, err := New(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, app)
		defer app.Close()

		assert.NotNil(t, app.DatasetRepository())
		assert.NotNil(t, app.CacheRepository())
		assert.NotNil(t, app.JobRepository())
		assert.NotNil(t, app.Provider())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		app, err := New(tmpFile)
		assert.Error(t, err)
		assert.Nil(t, app)
	})
}

func TestApp_Close(t *testing.T) {
	app, err := New("", WithInMemoryStorage())
	require.NoError(t, err)
	assert.NoError(t, app.Close())
}

func TestApp_FactoryMethods(t *testing.T) {
	app, err := New("", WithInMemoryStorage())
	require.NoError(t, err)
	defer app.Close()

	src := source.NewHTTPSource("http://localhost:9999")
	fetcher := app.NewFetchManager(src)
	require.NotNil(t, fetcher)

	pipeline, err := app.NewExtractionPipeline()
	require.NoError(t, err)
	require.NotNil(t, pipeline)
	defer pipeline.Release()

	engine, err := app.NewConsolidationEngine()
	require.NoError(t, err)
	require.NotNil(t, engine)

	mapper, err := app.NewMapper()
	require.NoError(t, err)
	require.NotNil(t, mapper)

	orch, err := app.NewOrchestrator(fetcher, pipeline, engine, mapper)
	require.NoError(t, err)
	require.NotNil(t, orch)
}

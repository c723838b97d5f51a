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


// Package reviewlens analyzes user review streams for topic trends. It
// wires the storage backend, AI provider, and pipeline components into
// a single App facade that the CLI and API server build on.
package reviewlens

import (
	"log/slog"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/ai/anthropic"
	"github.com/poiesic/reviewlens/ai/openai"
	"github.com/poiesic/reviewlens/consolidate"
	"github.com/poiesic/reviewlens/extract"
	"github.com/poiesic/reviewlens/fetch"
	"github.com/poiesic/reviewlens/job"
	"github.com/poiesic/reviewlens/source"
	"github.com/poiesic/reviewlens/storage"
	"github.com/poiesic/reviewlens/storage/badger"
	"github.com/poiesic/reviewlens/trend"
)

// App aggregates the storage backend, repositories, and AI provider.
type App struct {
	backend  *badger.Backend
	datasets storage.DatasetRepository
	cache    storage.CacheRepository
	jobs     storage.JobRepository
	provider ai.Provider
	logger   *slog.Logger
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	aiConfig *ai.Config
	inMemory bool
}

// WithAIConfig sets the AI provider configuration.
func WithAIConfig(cfg *ai.Config) AppOption {
	return func(o *appOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithInMemoryStorage keeps all state in memory. For tests and
// throwaway runs.
func WithInMemoryStorage() AppOption {
	return func(o *appOptions) {
		o.inMemory = true
	}
}

// New opens the storage backend at filePath and constructs the AI
// provider. The anthropic backend pairs Anthropic completions with
// OpenAI-compatible embeddings; everything else goes through one
// OpenAI-compatible provider.
func New(filePath string, opts ...AppOption) (*App, error) {
	options := &appOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	datasets := badger.NewDatasetRepository(backend)
	cache := badger.NewCacheRepository(backend)

	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	provider, err := newProvider(options.aiConfig)
	if err != nil {
		jobs.Close()
		backend.Close()
		return nil, err
	}

	return &App{
		backend:  backend,
		datasets: datasets,
		cache:    cache,
		jobs:     jobs,
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

func newProvider(cfg *ai.Config) (ai.Provider, error) {
	if cfg.CompletionBackend == ai.BackendAnthropic {
		completer, err := anthropic.NewCompleter(cfg)
		if err != nil {
			return nil, err
		}
		embedder, err := openai.NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return ai.NewCompositeProvider(completer, embedder), nil
	}
	return openai.NewProvider(cfg)
}

// Close releases the provider, repositories, and backend.
func (a *App) Close() error {
	if err := a.provider.Close(); err != nil {
		a.logger.Error("error closing AI provider", "err", err)
	}
	if err := a.jobs.Close(); err != nil {
		a.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// DatasetRepository returns the dataset cache region.
func (a *App) DatasetRepository() storage.DatasetRepository {
	return a.datasets
}

// CacheRepository returns the response and embedding cache regions.
func (a *App) CacheRepository() storage.CacheRepository {
	return a.cache
}

// JobRepository returns the job and chat store.
func (a *App) JobRepository() storage.JobRepository {
	return a.jobs
}

// Provider returns the configured AI provider.
func (a *App) Provider() ai.Provider {
	return a.provider
}

// NewFetchManager builds a fetch manager over the dataset cache and the
// given review source.
func (a *App) NewFetchManager(src source.ReviewSource, opts ...fetch.Option) *fetch.Manager {
	return fetch.NewManager(a.datasets, src, opts...)
}

// NewExtractionPipeline builds an extraction pipeline over the response
// cache and the configured completer.
func (a *App) NewExtractionPipeline(opts ...extract.Option) (*extract.Pipeline, error) {
	return extract.NewPipeline(a.cache, a.provider.Completer(), opts...)
}

// NewConsolidationEngine builds a consolidation engine with both the
// clustering and completion-fallback paths wired.
func (a *App) NewConsolidationEngine(opts ...consolidate.Option) (*consolidate.Engine, error) {
	return consolidate.NewEngine(a.cache, a.provider.Embedder(), a.provider.Completer(), opts...)
}

// NewMapper builds a topic mapper over the embedding cache.
func (a *App) NewMapper(opts ...trend.MapperOption) (*trend.Mapper, error) {
	return trend.NewMapper(a.cache, a.provider.Embedder(), opts...)
}

// NewOrchestrator wires the pipeline components into a job runner with
// chat support.
func (a *App) NewOrchestrator(fetcher *fetch.Manager, pipeline *extract.Pipeline, engine *consolidate.Engine, mapper *trend.Mapper, opts ...job.Option) (*job.Orchestrator, error) {
	opts = append([]job.Option{job.WithCompleter(a.provider.Completer())}, opts...)
	return job.NewOrchestrator(a.jobs, a.datasets, fetcher, pipeline, engine, mapper, opts...)
}

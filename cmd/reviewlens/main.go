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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/reviewlens"
	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/config"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/extract"
	"github.com/poiesic/reviewlens/fetch"
	"github.com/poiesic/reviewlens/job"
	"github.com/poiesic/reviewlens/refresh"
	"github.com/poiesic/reviewlens/server"
	"github.com/poiesic/reviewlens/source"
)

func main() {
	app := &cli.App{
		Name:  "reviewlens",
		Usage: "Trend analysis over user review streams",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "config.yaml",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the analysis job API server",
				Action: serveCommand,
			},
			{
				Name:   "analyze",
				Usage:  "Run one analysis synchronously and print the report",
				Action: analyzeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "namespace",
						Aliases:  []string{"n"},
						Usage:    "Dataset namespace to analyze",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "start",
						Usage: "Range start (YYYY-MM-DD), default 7 days ago",
					},
					&cli.StringFlag{
						Name:  "end",
						Usage: "Range end (YYYY-MM-DD), default today",
					},
				},
			},
			{
				Name:   "cache-clear",
				Usage:  "Remove a namespace's cached dataset records",
				Action: cacheClearCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "namespace",
						Aliases:  []string{"n"},
						Usage:    "Dataset namespace to clear",
						Required: true,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// buildApp assembles the facade and pipeline components from config.
func buildApp(c *cli.Context) (*config.Config, *reviewlens.App, *job.Orchestrator, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}

	aiOpts := []ai.ConfigOption{
		ai.WithCompletionBackend(cfg.CompletionBackend),
	}
	if cfg.CompletionHost != "" {
		aiOpts = append(aiOpts, ai.WithCompletionHost(cfg.CompletionHost))
	}
	if cfg.EmbeddingHost != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingHost(cfg.EmbeddingHost))
	}
	if cfg.CompletionModel != "" {
		aiOpts = append(aiOpts, ai.WithCompletionModel(cfg.CompletionModel))
	}
	if cfg.EmbeddingModel != "" {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	if cfg.APIKey != "" {
		aiOpts = append(aiOpts, ai.WithAPIKey(cfg.APIKey))
	}

	app, err := reviewlens.New(cfg.DBPath, reviewlens.WithAIConfig(ai.NewConfig(aiOpts...)))
	if err != nil {
		return nil, nil, nil, err
	}

	src := source.NewHTTPSource(cfg.SourceURL)
	fetcher := app.NewFetchManager(src,
		fetch.WithFreshness(time.Duration(cfg.FreshnessHours)*time.Hour))

	var extractOpts []extract.Option
	if cfg.BatchSize > 0 {
		extractOpts = append(extractOpts, extract.WithBatchSize(cfg.BatchSize))
	}
	if cfg.PoolSize > 0 {
		extractOpts = append(extractOpts, extract.WithPoolSize(cfg.PoolSize))
	}
	pipeline, err := app.NewExtractionPipeline(extractOpts...)
	if err != nil {
		app.Close()
		return nil, nil, nil, err
	}

	engine, err := app.NewConsolidationEngine()
	if err != nil {
		pipeline.Release()
		app.Close()
		return nil, nil, nil, err
	}

	mapper, err := app.NewMapper()
	if err != nil {
		pipeline.Release()
		app.Close()
		return nil, nil, nil, err
	}

	orch, err := app.NewOrchestrator(fetcher, pipeline, engine, mapper,
		job.WithJobTimeout(time.Duration(cfg.JobTimeoutMinutes)*time.Minute))
	if err != nil {
		pipeline.Release()
		app.Close()
		return nil, nil, nil, err
	}

	return cfg, app, orch, nil
}

func serveCommand(c *cli.Context) error {
	cfg, app, orch, err := buildApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.RefreshSchedule != "" {
		src := source.NewHTTPSource(cfg.SourceURL)
		fetcher := app.NewFetchManager(src)
		scheduler, err := refresh.NewScheduler(fetcher, cfg.RefreshSchedule,
			refresh.WithNamespaces(cfg.RefreshNamespaces...))
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srv, err := server.New(orch)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Listen)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown incomplete", "err", err)
	}
	return orch.Shutdown(shutdownCtx)
}

func analyzeCommand(c *cli.Context) error {
	_, app, orch, err := buildApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	end := time.Now().UTC()
	if v := c.String("end"); v != "" {
		if end, err = time.Parse(core.DateBucket, v); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}
	start := end.AddDate(0, 0, -7)
	if v := c.String("start"); v != "" {
		if start, err = time.Parse(core.DateBucket, v); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}

	submitted, err := orch.Submit(c.Context, c.String("namespace"), start, end)
	if err != nil {
		return err
	}

	// Poll until the run settles, echoing progress.
	lastMessage := ""
	for {
		current, err := orch.GetStatus(c.Context, submitted.ID)
		if err != nil {
			return err
		}
		if current.Message != lastMessage {
			lastMessage = current.Message
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", current.Progress, current.Message)
		}
		if current.Status.Terminal() {
			if current.Status != core.JobCompleted {
				return fmt.Errorf("job %s: %s", current.Status, current.Error)
			}
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	report, err := orch.GetResult(c.Context, submitted.ID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func cacheClearCommand(c *cli.Context) error {
	_, app, _, err := buildApp(c)
	if err != nil {
		return err
	}
	defer app.Close()

	namespace := c.String("namespace")
	if err := app.DatasetRepository().ClearDataset(c.Context, namespace); err != nil {
		return err
	}
	fmt.Printf("cleared cached records for %s\n", namespace)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

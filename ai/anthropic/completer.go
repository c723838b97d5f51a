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


// Package anthropic implements ai.Completer against the Anthropic
// Messages API. Anthropic has no embedding endpoint; pair this with an
// OpenAI-compatible embedder via ai.NewCompositeProvider.
package anthropic

import (
	"context"
	"errors"
	"log/slog"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/poiesic/reviewlens/ai"
)

const defaultMaxTokens = 4096

// Completer implements ai.Completer using the Anthropic Messages API.
type Completer struct {
	client anthropicsdk.Client
	model  string
	logger *slog.Logger
}

var _ ai.Completer = (*Completer)(nil)

// NewCompleter creates a new completer for the configured Anthropic model.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.APIKey == "" || config.APIKey == "none" {
		return nil, errors.New("anthropic: APIKey is required")
	}

	return &Completer{
		client: anthropicsdk.NewClient(option.WithAPIKey(config.APIKey)),
		model:  config.CompletionModel,
		logger: slog.Default().With("component", "anthropic-completer"),
	}, nil
}

// Complete sends a prompt to the model and returns the response text.
// The Messages API has no JSON mode; callers relying on JSONMode must
// clean the response themselves.
func (c *Completer) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		c.logger.Error("failed to generate content", "model", c.model, "err", err)
		return "", err
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			c.logger.Debug("anthropic response",
				"size", len(block.Text),
				"tokens_in", message.Usage.InputTokens,
				"tokens_out", message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", errors.New("anthropic: no text content in response")
}

// Model returns the completion model identifier.
func (c *Completer) Model() string {
	return c.model
}

package ai

import "context"

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	// System is the system prompt. May be empty.
	System string

	// Prompt is the user-role content.
	Prompt string

	// Temperature controls sampling randomness. The pipelines use 0
	// for deterministic extraction output.
	Temperature float64

	// MaxTokens bounds the response length. Zero means the
	// implementation's default.
	MaxTokens int

	// JSONMode requests structured JSON output where the backend
	// supports it.
	JSONMode bool
}

// Completer generates text completions from prompts.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends a prompt to the model and returns the response
	// text. Returns an error if the call fails; malformed content is
	// the caller's concern.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Model returns the model identifier in use, for cache keying.
	Model() string
}

// Embedder generates vector embeddings from text for semantic similarity.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings
	// in a batch. The returned slice contains embeddings in the same
	// order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier, for cache keying.
	Model() string
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management.
type Provider interface {
	// Completer returns the completion service.
	Completer() Completer

	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	Close() error
}

// compositeProvider pairs a completer and an embedder from different
// backends, e.g. Anthropic completions with OpenAI-compatible embeddings.
type compositeProvider struct {
	completer Completer
	embedder  Embedder
}

// NewCompositeProvider builds a Provider from independently constructed
// services.
func NewCompositeProvider(completer Completer, embedder Embedder) Provider {
	return &compositeProvider{completer: completer, embedder: embedder}
}

func (p *compositeProvider) Completer() Completer { return p.completer }

func (p *compositeProvider) Embedder() Embedder { return p.embedder }

func (p *compositeProvider) Close() error { return nil }

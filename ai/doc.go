// Package ai defines the interfaces for language model completion and
// text embedding services used by the extraction and consolidation
// pipelines. Implementations live in subpackages: openai (any
// OpenAI-compatible API), anthropic, and mock (for tests).
package ai

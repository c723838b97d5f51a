// Package openai implements the ai interfaces against any
// OpenAI-compatible API (OpenAI, Ollama, LocalAI, vLLM).
package openai

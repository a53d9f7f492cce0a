// Package llm provides language model clients and the email analyzer built on them.
// It supports OpenAI, Anthropic and Gemini, with rate limiting and response caching
// layered over any provider.
package llm

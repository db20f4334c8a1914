// Package llm wraps the Anthropic API for the spoiler-safety features:
// recap sanitization, web-knowledge recap generation, chat answers, and the
// post-answer audit pass.
package llm

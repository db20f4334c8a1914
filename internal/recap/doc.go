// Package recap resolves spoiler-safe episode summaries. Sources are tried
// in priority order and every externally sourced text must pass spoiler
// sanitization before it is cached or surfaced; a source whose text cannot
// be sanitized contributes nothing.
package recap

// Package services defines shared utilities consumed by the recap sources
// and chat integrations.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across recap sources, so the resolver can
//     tell "this episode has no recap here" from "this source is down".
//   - Context helpers that stamp session and request identifiers for
//     logging and tracing.
//
// Use these helpers when wiring new source integrations so operational
// behaviour (error handling, observability, fallbacks) stays uniform across
// the chain.
package services

// Package textutil provides small text helpers shared across the capture and
// detection pipeline: caption line normalization, slug handling, and tail
// clamping for context text.
package textutil

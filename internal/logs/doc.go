// Package logs provides bounded-memory log file tailing for the CLI.
//
// It supports negative offsets for "last N lines" reads and follow-mode
// polling with caller-supplied context deadlines, backing
// `spoilshield logs --follow`.
package logs

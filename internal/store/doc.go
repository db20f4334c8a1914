// Package store manages spoilshield persistence backed by SQLite: chat
// sessions and their message logs, the cross-context relay key/value space,
// and the episode recap cache.
package store

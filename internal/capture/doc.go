// Package capture maintains the rolling subtitle buffer. Browser contexts
// forward observed text mutations to the daemon; capture filters, normalizes,
// and deduplicates them into the context text that feeds chat sessions.
package capture

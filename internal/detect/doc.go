// Package detect infers show title and season/episode from page state
// forwarded by browser contexts. No single platform signal is reliable, so
// detection walks a strictly ordered chain of strategies and the first
// non-empty result wins.
package detect

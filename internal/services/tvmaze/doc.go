// Package tvmaze provides the episode-metadata client used to resolve
// free-text show titles to canonical identities and to fetch per-episode
// summaries.
package tvmaze

// Package flow drives the panel-side initialization state machine: it
// consumes relay deliveries, resolves detected titles to canonical show
// identities, opens the matching session, and triggers recap resolution.
package flow

// Package chat answers viewer questions inside the spoiler boundary of the
// active session: it builds the boundary-aware prompt, streams the answer,
// runs the advisory spoiler audit, and maintains the session message log.
package chat

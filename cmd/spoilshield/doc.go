// Package main hosts the spoilshield CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the spoilshieldd daemon: status inspection, session management,
// redetect requests, log tailing, and configuration scaffolding. It
// centralizes configuration resolution and socket discovery so subcommands
// can focus on user experience instead of wiring.
package main

// Package daemon wires the capture, detection, relay, flow, recap, and chat
// subsystems together behind the single-instance spoilshieldd process and
// its extension-facing HTTP API.
package daemon

// Package relay moves detection output from page contexts to panel
// consumers. Writers replace whole records in the durable key/value space;
// consumers receive push events over subscriptions and can replay
// last-known state on demand, with a periodic refresh as a safety net.
package relay

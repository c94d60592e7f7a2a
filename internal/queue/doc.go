// Package queue defines durable queue items, the store contract the scheduler
// drives, an in-memory store, and the codec mapping event-type tags to payloads.
//
// Store mutations are conditional on the item's expected prior state. A result of
// zero rows affected means another cycle or instance won the race; callers log it
// and move on.
package queue

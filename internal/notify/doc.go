// Package notify tells people and systems about build transitions: Slack direct
// messages for failed pushes and NATS messages for every transition.
package notify

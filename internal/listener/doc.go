// Package listener drives builds through their lifecycle. Each listener is a
// build visitor reacting to one transition and, where needed, causing the next.
//
// Listeners reload builds from the store before acting and ignore conflicts, so a
// replayed queue item never moves a build twice.
package listener

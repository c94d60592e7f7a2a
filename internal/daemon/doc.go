// Package daemon wires the long-running buildmesh process: the sqlite store, leader
// election, cluster health probing, the queue scheduler with its event handlers,
// notifications, and the HTTP endpoint for metrics, health and build state.
package daemon

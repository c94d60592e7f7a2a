// Package build defines the build domain: branches, modules, repository builds,
// module builds and inter-project builds, plus the lifecycle service that moves
// builds between states and publishes every transition to the work queue.
//
// Pointer columns (pending, in-progress, last) are only ever changed with
// conditional updates so that replays of the same transition are harmless.
package build

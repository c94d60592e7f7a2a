// Package interproject aggregates the outcome of inter-project builds.
//
// An inter-project build spans repository builds in several repositories. Each
// participating module is tracked by a mapping whose state mirrors its module
// build. Once every mapping is finished the inter-project build is finalized
// exactly once with the aggregate state.
package interproject

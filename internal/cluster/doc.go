// Package cluster connects buildmesh to the outside world it coordinates with:
// the lease based leader election among daemon instances, the health of the
// build-execution clusters, and the HTTP client that launches and kills builds
// on those clusters.
//
// # Leader Election
//
// Every daemon runs an Elector. The holder of the named lease is leader; it
// renews the lease every renew interval and loses it when the lease expires
// without renewal. Listeners (the queue scheduler) are told about every change
// through OnLeader / OnNotLeader.
//
// # Health
//
// HealthChecker probes each configured cluster's health endpoint on a gocron
// job. With no clusters configured every check reports available.
package cluster

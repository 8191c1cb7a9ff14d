// Package topology answers path-selection questions about a relay snapshot.
//
// An Analyzer indexes a model.TopologySnapshot once and then serves read-only
// queries: whether a guard/middle/exit triple satisfies the client path
// constraints, how likely a guard is to be picked, and which guards could
// have been combined with a given exit.
//
// The constraints checked are the ones a client enforces when building a
// circuit:
//   - the first hop carries the Guard flag
//   - the last hop carries Exit and not BadExit
//   - no two hops share an IPv4 /16
//   - every hop is Running and Valid
//
// Relay families are not modelled because the snapshot does not carry them.
package topology

// Package onionoo fetches the running relay population from an Onionoo
// directory service and turns it into a model.TopologySnapshot.
//
// Only the details document is used. The request asks for running relays
// and a fixed field list so the response stays small enough to fetch over Tor.
package onionoo

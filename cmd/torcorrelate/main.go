// Package main provides the entry point for the torcorrelate CLI.
//
// torcorrelate correlates entry-side and exit-side traffic metadata observed
// around the Tor network, groups the resulting session pairs by their
// hypothesized guard relay, and checks each hypothesis against a snapshot of
// the public relay directory.
//
// Usage:
//
//	torcorrelate topology fetch
//	torcorrelate analyze observations.json
//	torcorrelate analyze --synthetic
//	torcorrelate serve
//
// See --help for all available options.
package main

// main is the entry point for torcorrelate.
func main() {
	Execute()
}

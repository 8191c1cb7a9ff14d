// Package log provides slog-based logging that masks investigative metadata.
//
// Correlation runs handle data that identifies the people doing the work and
// the endpoints they observed. Those values are useful while an analysis runs
// but must not end up in log files that are attached to tickets or shared with
// other teams. The SecureHandler replaces them with MaskValue:
//   - investigator identifiers, case numbers and free-text notes
//   - observed client IP addresses and ports
//   - credentials for the HTTP API and the Tor control port
//
// Relay fingerprints and relay addresses come from the public consensus and
// are logged as-is.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("observation loaded",
//	    "observation_id", obs.ID,        // kept
//	    "observed_ip", obs.ObservedIP,   // masked
//	)
//	slog.SetDefault(logger)
package log

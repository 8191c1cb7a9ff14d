// Package synthetic generates traffic observations for demos and tests.
//
// Generated sessions mimic what a correlation run sees in practice: an entry
// observation at the guard and an exit observation shortly afterwards with a
// similar byte count. Users keep the same guard across sessions, and noise
// observations pair entries and exits that have nothing to do with each other.
//
// Every Generator is seeded, so the same seed and topology always produce the
// same observations.
package synthetic

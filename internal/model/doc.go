// Package model defines the data types shared by the correlation engine,
// the relay-graph analyzer, the case store and the report writers.
//
// Everything in here is metadata: relay consensus entries, traffic
// observations (timing, volume, endpoints), weight profiles and the
// hypotheses derived from them. No type has a field for payload content.
//
// Design decision: models live in their own package so that topology,
// correlation, database and report can all depend on them without import
// cycles. All types are plain values that serialize to JSON.
package model

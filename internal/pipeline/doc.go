// Package pipeline runs the stages of an analysis over one case.
//
// An analysis moves an AnalysisReport through correlation, clustering,
// circuit checks against a relay snapshot, summary and persistence. Each stage
// is a Step that receives the current report and fills in its part.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. The CLI, the HTTP API and batch runs assemble different step lists
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context between stages
//
// The pipeline supports both single cases and batches of independent cases
// with concurrency control using errgroup.
package pipeline

// Package report renders analysis reports.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with tables and a mermaid chart for case files
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so that the CLI, the HTTP API and the case
// store can share one AnalysisReport type and pick the rendering they need.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report

// Package output turns report values into something a person or a collector
// can consume.
//
//	report.* ──► Renderer ──► Text (tables, tree)   ──► stdout
//	                     └──► JSON (one document)   ──► stdout
//	registry ──► Exporter ──► OpenTelemetry spans   ──► OTLP/HTTP
//
// Renderers are pure formatting layers: they never query the registry, and
// every value they print was computed by the report package. The Exporter
// walks the process forest and emits one process.exec span per process,
// parented on the span of its parent process.
package output

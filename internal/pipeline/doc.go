// Package pipeline contains the core of the monitor: the structured
// extraction service (article text -> incident record), the deduplication
// engine (exact-source and semantic same-event matching with source merge),
// and the orchestrator that drives feeds through both and stages additions.
package pipeline

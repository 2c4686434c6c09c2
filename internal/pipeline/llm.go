package pipeline

import "context"

// Provider is the interface for the inference service. Both call sites
// (structured extraction and same-event comparison) are single-turn prompts
// distinguished only by prompt content; implementations are expected to run
// in a deterministic, zero-temperature mode.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

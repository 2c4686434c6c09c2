package runs

import "context"

// Store is the persistence interface for scan-run records.
type Store interface {
	Get(ctx context.Context, id string) (*Run, bool, error)
	List(ctx context.Context, limit int) ([]*Run, error)
	Put(ctx context.Context, run *Run) error
}

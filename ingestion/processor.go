package ingestion

import (
	"context"

	"github.com/poiesic/semindex/core"
)

// processor is an internal interface for one stage of the write path.
type processor interface {
	// process enriches a batch of items and returns them in the same order.
	// On error no item of the batch is usable.
	process(ctx context.Context, items []core.Item) ([]core.Item, error)
}

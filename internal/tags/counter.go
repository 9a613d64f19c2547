package tags

import (
	"context"

	"github.com/emrgen/notesync/internal/store"
)

// CounterAdjuster owns every write to Tag.UsageCount.
type CounterAdjuster interface {
	// Adjust adds delta to the counter, flooring at zero, and returns the new value.
	Adjust(ctx context.Context, tagID string, delta int64) (int64, error)
	// Set overwrites the counter.
	Set(ctx context.Context, tagID string, value int64) error
}

var _ CounterAdjuster = (*ReadModifyWriteCounter)(nil)

// ReadModifyWriteCounter reads the tag and writes the adjusted count back.
// Concurrent adjustments of the same tag may be lost, the drift is repaired by ReconcileTagUsage.
type ReadModifyWriteCounter struct {
	store store.TagStore
}

func NewReadModifyWriteCounter(store store.TagStore) *ReadModifyWriteCounter {
	return &ReadModifyWriteCounter{store: store}
}

func (c *ReadModifyWriteCounter) Adjust(ctx context.Context, tagID string, delta int64) (int64, error) {
	tag, err := c.store.GetTag(ctx, tagID)
	if err != nil {
		return 0, err
	}

	count := tag.UsageCount + delta
	if count < 0 {
		count = 0
	}

	if err := c.store.UpdateTagUsage(ctx, tagID, count); err != nil {
		return 0, err
	}

	return count, nil
}

func (c *ReadModifyWriteCounter) Set(ctx context.Context, tagID string, value int64) error {
	if value < 0 {
		value = 0
	}

	return c.store.UpdateTagUsage(ctx, tagID, value)
}

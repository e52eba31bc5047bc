package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

// AppendCapped appends items to the array stored at key and keeps at most max
// of the newest entries (max <= 0 keeps everything). A missing or corrupted
// array starts over empty; any other load error aborts without writing.
func AppendCapped[T any](ctx context.Context, s domain.Storage, key string, max int, items ...T) error {
	var existing []T
	if err := s.Load(ctx, key, &existing); err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorrupted) {
			return err
		}
		existing = nil
	}

	existing = append(existing, items...)
	if max > 0 && len(existing) > max {
		existing = existing[len(existing)-max:]
	}
	return s.Save(ctx, key, existing)
}

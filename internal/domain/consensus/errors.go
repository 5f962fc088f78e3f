package consensus

import "errors"

// ErrEmptySnapshotSet is returned by Aggregate when there is nothing to aggregate.
var ErrEmptySnapshotSet = errors.New("empty snapshot set")

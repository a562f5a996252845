package planner

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan invalid shard count or range
var ErrInvalidPlan = errors.New("invalid shard plan")

// Shard one contiguous sub-range [Start, End) of the work range
type Shard struct {
	ID    int // 1-based
	Start int // Inclusive
	End   int // Exclusive
}

// Size number of indexes in the shard
func (s Shard) Size() int {
	return s.End - s.Start
}

// Split partitions [0, totalRange) into n contiguous shards of
// floor(totalRange/n); the remainder goes entirely to the last shard.
func Split(totalRange, n int) ([]Shard, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: shard count must be positive, got %d", ErrInvalidPlan, n)
	}
	if totalRange < 0 {
		return nil, fmt.Errorf("%w: range must not be negative, got %d", ErrInvalidPlan, totalRange)
	}

	step := totalRange / n
	remainder := totalRange % n
	shards := make([]Shard, 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * step
		if i == n-1 {
			end += remainder
		}
		shards = append(shards, Shard{ID: i + 1, Start: i * step, End: end})
	}
	return shards, nil
}

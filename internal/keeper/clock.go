package keeper

import (
	"context"
	"time"
)

// Clock supplies the timestamp the pool is settled at.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

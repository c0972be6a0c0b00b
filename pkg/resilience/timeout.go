package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/ipgeo-proxy/pkg/geo"
)

// WithTimeout bounds the wrapped call to d. The stage returns a
// geo.KindTimeout error at the deadline whether or not the inner call has
// returned; the inner call sees a cancelled context. A non-positive d
// disables the stage.
func WithTimeout[T any](d time.Duration) Stage[T] {
	return func(next Call[T]) Call[T] {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context) (T, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				value T
				err   error
			}
			done := make(chan outcome, 1)
			go func() {
				v, err := next(ctx)
				done <- outcome{value: v, err: err}
			}()

			select {
			case o := <-done:
				if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return o.value, timedOut(o.err)
				}
				return o.value, o.err
			case <-ctx.Done():
				var zero T
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return zero, timedOut(ctx.Err())
				}
				return zero, ctx.Err()
			}
		}
	}
}

func timedOut(err error) error {
	timeoutsTotal.Inc()
	if geo.KindOf(err) == geo.KindTimeout {
		return err
	}
	return geo.Timeout("", err)
}

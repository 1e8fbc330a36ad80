// Package deadline bounds calls into external collaborators by the caller's
// context, whether or not the collaborator itself watches the context.
package deadline

import "context"

// Call runs fn on its own goroutine and returns its result, or ctx.Err()
// as soon as ctx is done. An abandoned fn keeps running until it returns
// on its own; its result is dropped.
func Call[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authcore/internal/cache"
	"authcore/internal/repository"
)

const defaultDependencyTimeout = 3 * time.Second

// callDependency acota fn con timeout y traduce su falla a la taxonomia.
// Los resultados esperados (not found, miss, conflicto) pasan sin cambios.
func callDependency[T any](ctx context.Context, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = defaultDependencyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := fn(ctx)
	if err != nil {
		return out, dependencyError(name, err)
	}
	return out, nil
}

func callDependencyErr(ctx context.Context, timeout time.Duration, name string, fn func(context.Context) error) error {
	_, err := callDependency(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func dependencyError(name string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrEmailTaken),
		errors.Is(err, cache.ErrMiss):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrDependencyTimeout, name, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrDependencyUnavailable, name, err)
	}
}

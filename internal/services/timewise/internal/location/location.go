// Package location acquires device position fixes with a bounded wait.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
)

var (
	ErrUnavailable      = errors.New("location unavailable")
	ErrPermissionDenied = errors.New("location permission denied")
)

// Source produces the current position of the device.
type Source interface {
	Current(ctx context.Context) (model.GeoFix, error)
}

type SourceFunc func(ctx context.Context) (model.GeoFix, error)

func (f SourceFunc) Current(ctx context.Context) (model.GeoFix, error) {
	return f(ctx)
}

// Acquire waits at most timeout for src. A source that does not answer in
// time yields ErrUnavailable; cancellation of ctx is returned as is.
func Acquire(ctx context.Context, src Source, timeout time.Duration) (model.GeoFix, error) {
	if src == nil {
		return model.GeoFix{}, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		fix model.GeoFix
		err error
	}

	// buffered so a late source never blocks
	ch := make(chan result, 1)
	go func() {
		fix, err := src.Current(ctx)
		ch <- result{fix: fix, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.GeoFix{}, expired(ctx, timeout)
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return model.GeoFix{}, expired(ctx, timeout)
			}
			if errors.Is(r.err, ErrPermissionDenied) || errors.Is(r.err, ErrUnavailable) {
				return model.GeoFix{}, r.err
			}
			return model.GeoFix{}, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}

		if !valid(r.fix) {
			return model.GeoFix{}, fmt.Errorf("%w: invalid coordinates %f,%f", ErrUnavailable, r.fix.Lat, r.fix.Lng)
		}

		return r.fix, nil
	}
}

func expired(ctx context.Context, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no fix within %s", ErrUnavailable, timeout)
	}
	return ctx.Err()
}

func valid(f model.GeoFix) bool {
	if math.IsNaN(f.Lat) || math.IsNaN(f.Lng) {
		return false
	}

	return f.Lat >= -90 && f.Lat <= 90 && f.Lng >= -180 && f.Lng <= 180
}

// Reported is a position the client read itself and sent along with the request.
type Reported struct {
	Fix              *model.GeoFix
	PermissionDenied bool
}

func (r Reported) Current(context.Context) (model.GeoFix, error) {
	if r.PermissionDenied {
		return model.GeoFix{}, ErrPermissionDenied
	}

	if r.Fix == nil {
		return model.GeoFix{}, ErrUnavailable
	}

	return *r.Fix, nil
}

package location

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire(t *testing.T) {
	fix := model.GeoFix{Lat: 13.7563, Lng: 100.5018}

	got, err := Acquire(t.Context(), Reported{Fix: &fix}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, fix, got)
}

func TestAcquire_Timeout(t *testing.T) {
	blocked := SourceFunc(func(ctx context.Context) (model.GeoFix, error) {
		<-ctx.Done()
		return model.GeoFix{}, ctx.Err()
	})

	start := time.Now()
	_, err := Acquire(t.Context(), blocked, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquire_SourceNeverResolves(t *testing.T) {
	never := SourceFunc(func(ctx context.Context) (model.GeoFix, error) {
		select {}
	})

	_, err := Acquire(t.Context(), never, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAcquire_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	blocked := SourceFunc(func(ctx context.Context) (model.GeoFix, error) {
		<-ctx.Done()
		return model.GeoFix{}, ctx.Err()
	})

	_, err := Acquire(ctx, blocked, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestAcquire_Errors(t *testing.T) {
	tbl := []struct {
		name string
		src  Source
		want error
	}{
		{"permission denied", Reported{PermissionDenied: true}, ErrPermissionDenied},
		{"no fix", Reported{}, ErrUnavailable},
		{"nil source", nil, ErrUnavailable},
		{"source failure", SourceFunc(func(ctx context.Context) (model.GeoFix, error) {
			return model.GeoFix{}, errors.New("gps off")
		}), ErrUnavailable},
		{"latitude out of range", Reported{Fix: &model.GeoFix{Lat: 91, Lng: 0}}, ErrUnavailable},
		{"longitude out of range", Reported{Fix: &model.GeoFix{Lat: 0, Lng: -181}}, ErrUnavailable},
		{"nan", Reported{Fix: &model.GeoFix{Lat: math.NaN(), Lng: 0}}, ErrUnavailable},
	}

	for _, c := range tbl {
		t.Run(c.name, func(t *testing.T) {
			_, err := Acquire(t.Context(), c.src, time.Second)
			require.ErrorIs(t, err, c.want)
		})
	}
}

func TestAcquire_PermissionDeniedIsNotUnavailable(t *testing.T) {
	_, err := Acquire(t.Context(), Reported{PermissionDenied: true}, time.Second)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

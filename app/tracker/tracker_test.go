package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dur2work/app/directions"
	"github.com/umputun/dur2work/app/routes"
	"github.com/umputun/dur2work/app/store"
	"github.com/umputun/dur2work/app/tracker/mocks"
)

var now = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC) // 1700000000

func ptr(v float64) *float64 { return &v }

func TestTracker_Do(t *testing.T) {
	dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
		if r.Origin == "Home" {
			return directions.Leg{Duration: 1500, DurationInTraffic: ptr(1800.5)}, nil
		}
		return directions.Leg{Duration: 1600}, nil
	}}
	st := &mocks.StoreMock{SaveFunc: func(ctx context.Context, ms ...store.Measurement) ([]int64, error) {
		return []int64{0, 1}, nil
	}}

	trk := Tracker{Directions: dir, Store: st, Concurrency: 2, Now: func() time.Time { return now }}
	res, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"}, {Start: "Work", Destination: "Home"}})
	require.NoError(t, err)

	require.Len(t, res, 2)
	assert.Equal(t, int64(0), res[0].RouteID)
	assert.Equal(t, store.Measurement{Start: "Home", Destination: "Work", Duration: 1500,
		DurationInTraffic: ptr(1800.5), Time: now}, res[0].Measurement)
	assert.Equal(t, int64(1), res[1].RouteID)
	assert.Nil(t, res[1].Measurement.DurationInTraffic)

	require.Len(t, dir.GetCalls(), 2)
	for _, c := range dir.GetCalls() {
		assert.Equal(t, now, c.R.Departure)
	}
	require.Len(t, st.SaveCalls(), 1)
	assert.Len(t, st.SaveCalls()[0].Ms, 2)
}

func TestTracker_DoFailedRequestNoSave(t *testing.T) {
	tbl := []struct {
		name string
		err  error
	}{
		{"empty result", directions.ErrEmptyResult},
		{"upstream error", directions.ErrUpstreamRequest},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
				if r.Origin == "Work" {
					return directions.Leg{}, tt.err
				}
				return directions.Leg{Duration: 1500, DurationInTraffic: ptr(1800)}, nil
			}}
			st := &mocks.StoreMock{SaveFunc: func(ctx context.Context, ms ...store.Measurement) ([]int64, error) {
				return nil, errors.New("must not be called")
			}}

			trk := Tracker{Directions: dir, Store: st, Concurrency: 4}
			_, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"},
				{Start: "Work", Destination: "Home"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "route Work -> Home")
			assert.Empty(t, st.SaveCalls())
		})
	}
}

func TestTracker_DoStoreError(t *testing.T) {
	dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
		return directions.Leg{Duration: 1500, DurationInTraffic: ptr(1800)}, nil
	}}
	st := &mocks.StoreMock{SaveFunc: func(ctx context.Context, ms ...store.Measurement) ([]int64, error) {
		return nil, store.ErrDataIntegrity
	}}
	trk := Tracker{Directions: dir, Store: st}
	_, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"}})
	assert.ErrorIs(t, err, store.ErrDataIntegrity)
}

func TestTracker_DoNoRoutes(t *testing.T) {
	trk := Tracker{}
	_, err := trk.Do(context.Background(), nil)
	assert.Error(t, err)
}

func TestTracker_DoCanceled(t *testing.T) {
	dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
		return directions.Leg{}, ctx.Err()
	}}
	st := &mocks.StoreMock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trk := Tracker{Directions: dir, Store: st}
	_, err := trk.Do(ctx, []routes.Route{{Start: "Home", Destination: "Work"}})
	require.Error(t, err)
	assert.Empty(t, st.SaveCalls())
}

func TestTracker_Repeater(t *testing.T) {
	t.Run("transient error repeated", func(t *testing.T) {
		var calls int32
		dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return directions.Leg{}, directions.ErrUpstreamRequest
			}
			return directions.Leg{Duration: 1500, DurationInTraffic: ptr(1800)}, nil
		}}
		rpt := &mocks.RepeaterMock{DoFunc: func(ctx context.Context, fun func() error, errs ...error) error {
			var err error
			for i := 0; i < 5; i++ {
				if err = fun(); err == nil {
					return nil
				}
				for _, e := range errs {
					if errors.Is(err, e) {
						return err
					}
				}
			}
			return err
		}}
		st := &mocks.StoreMock{SaveFunc: func(ctx context.Context, ms ...store.Measurement) ([]int64, error) {
			return []int64{0}, nil
		}}

		trk := Tracker{Directions: dir, Store: st, Repeater: rpt}
		res, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"}})
		require.NoError(t, err)
		assert.InDelta(t, 1800, *res[0].Measurement.DurationInTraffic, 0.001)
		assert.Len(t, dir.GetCalls(), 3)
		assert.Len(t, rpt.DoCalls(), 1)
	})

	t.Run("empty result not repeated", func(t *testing.T) {
		dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
			return directions.Leg{}, directions.ErrEmptyResult
		}}
		rpt := repeater.New(&strategy.Backoff{Repeats: 5, Duration: time.Millisecond, Factor: 1})
		trk := Tracker{Directions: dir, Store: &mocks.StoreMock{}, Repeater: rpt}
		_, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"}})
		require.ErrorIs(t, err, directions.ErrEmptyResult)
		assert.Len(t, dir.GetCalls(), 1)
	})

	t.Run("single attempt by default", func(t *testing.T) {
		dir := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
			return directions.Leg{}, directions.ErrUpstreamRequest
		}}
		rpt := repeater.New(&strategy.Backoff{Repeats: 1, Duration: time.Millisecond, Factor: 1})
		trk := Tracker{Directions: dir, Store: &mocks.StoreMock{}, Repeater: rpt}
		_, err := trk.Do(context.Background(), []routes.Route{{Start: "Home", Destination: "Work"}})
		require.ErrorIs(t, err, directions.ErrUpstreamRequest)
		assert.Len(t, dir.GetCalls(), 1)
	})
}

func TestTracker_DoWithSQLite(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dur.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	ok := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
		return directions.Leg{Duration: 1500, DurationInTraffic: ptr(1800.5)}, nil
	}}
	trk := Tracker{Directions: ok, Store: s, Now: func() time.Time { return now }}
	_, err = trk.Do(ctx, []routes.Route{{Start: "Home", Destination: "Work"}})
	require.NoError(t, err)

	empty := &mocks.DirectionsMock{GetFunc: func(ctx context.Context, r directions.Request) (directions.Leg, error) {
		return directions.Leg{}, directions.ErrEmptyResult
	}}
	trk.Directions = empty
	_, err = trk.Do(ctx, []routes.Route{{Start: "Home", Destination: "Gym"}})
	require.ErrorIs(t, err, directions.ErrEmptyResult)

	rr, err := s.Routes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Route{{ID: 0, Start: "Home", Destination: "Work", Duration: 1500}}, rr)
	samples, err := s.Samples(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []store.Sample{{RouteID: 0, Time: 1700000000, DurationInTraffic: ptr(1800.5)}}, samples)
}

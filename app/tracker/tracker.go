// Package tracker makes a single sampling run: requests durations for all routes and saves them.
// Either every route gets a sample or nothing is written.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"

	"github.com/umputun/dur2work/app/directions"
	"github.com/umputun/dur2work/app/routes"
	"github.com/umputun/dur2work/app/store"
)

//go:generate moq -out mocks/directions.go -pkg mocks -skip-ensure -fmt goimports . Directions
//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/repeater.go -pkg mocks -skip-ensure -fmt goimports . Repeater

// Tracker wires directions service and store
type Tracker struct {
	Directions  Directions
	Store       Store
	Repeater    Repeater // optional, single attempt if nil
	Concurrency int      // max parallel directions requests, 1 if not set
	Now         func() time.Time
}

// Directions gets durations of a route
type Directions interface {
	Get(ctx context.Context, r directions.Request) (directions.Leg, error)
}

// Store saves all measurements of the run in a single transaction
type Store interface {
	Save(ctx context.Context, ms ...store.Measurement) ([]int64, error)
}

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Result of a single route
type Result struct {
	RouteID     int64
	Measurement store.Measurement
}

// errNoRepeat stops repeater on failures repeating won't fix
var errNoRepeat = errors.New("no repeat")

// Do requests directions for all routes and saves results. Store is not called if any request failed.
func (t *Tracker) Do(ctx context.Context, rr []routes.Route) ([]Result, error) {
	if len(rr) == 0 {
		return nil, errors.New("no routes")
	}

	ts := time.Now()
	if t.Now != nil {
		ts = t.Now()
	}
	ts = ts.UTC()

	ms, err := t.fetch(ctx, rr, ts)
	if err != nil {
		return nil, err
	}

	ids, err := t.Store.Save(ctx, ms...)
	if err != nil {
		return nil, fmt.Errorf("failed to save %d measurements: %w", len(ms), err)
	}

	res := make([]Result, len(ms))
	for i, m := range ms {
		res[i] = Result{RouteID: ids[i], Measurement: m}
		log.Printf("[INFO] start = (%s) - destination = (%s) - duration_in_traffic = %s",
			m.Start, m.Destination, minutes(m.DurationInTraffic))
	}
	return res, nil
}

// fetch requests all routes, concurrently up to t.Concurrency
func (t *Tracker) fetch(ctx context.Context, rr []routes.Route, ts time.Time) ([]store.Measurement, error) {
	concur := t.Concurrency
	if concur <= 0 {
		concur = 1
	}

	ms := make([]store.Measurement, len(rr))
	errs := make([]error, len(rr))
	done := make([]bool, len(rr))

	gr := syncs.NewSizedGroup(concur, syncs.Context(ctx), syncs.Preemptive)
	for i, r := range rr {
		gr.Go(func(ctx context.Context) {
			req := directions.Request{Origin: r.Start, Destination: r.Destination, Departure: ts}
			leg, err := t.get(ctx, req)
			done[i] = true
			if err != nil {
				errs[i] = err
				return
			}
			ms[i] = store.Measurement{Start: r.Start, Destination: r.Destination, Duration: leg.Duration,
				DurationInTraffic: leg.DurationInTraffic, Time: ts}
		})
	}
	gr.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rr[i], err)
		}
	}
	for i, ok := range done {
		if !ok {
			return nil, fmt.Errorf("%w: route %s not requested: %w", directions.ErrUpstreamRequest, rr[i], ctx.Err())
		}
	}
	return ms, nil
}

// get makes directions request with repeater, empty result is not repeated
func (t *Tracker) get(ctx context.Context, req directions.Request) (directions.Leg, error) {
	if t.Repeater == nil {
		return t.Directions.Get(ctx, req)
	}

	var leg directions.Leg
	var getErr error
	err := t.Repeater.Do(ctx, func() error {
		leg, getErr = t.Directions.Get(ctx, req)
		if errors.Is(getErr, directions.ErrEmptyResult) {
			return errNoRepeat
		}
		if getErr != nil {
			log.Printf("[DEBUG] directions %q -> %q failed, %v", req.Origin, req.Destination, getErr)
		}
		return getErr
	}, errNoRepeat)

	if getErr != nil {
		return directions.Leg{}, getErr
	}
	if err != nil {
		return directions.Leg{}, fmt.Errorf("%w: %w", directions.ErrUpstreamRequest, err)
	}
	return leg, nil
}

func minutes(d *float64) string {
	if d == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2fmin", *d/60)
}

// Package directions requests travel durations from Google Directions API
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/directions/json"

var (
	// ErrUpstreamRequest returned when the request failed or the service reported an error
	ErrUpstreamRequest = errors.New("directions request failed")
	// ErrEmptyResult returned when the service found no route
	ErrEmptyResult = errors.New("no route found")
)

// Params to make new Client
type Params struct {
	APIKey     string
	BaseURL    string        // optional, Google endpoint by default
	Timeout    time.Duration // optional, 10s by default
	HTTPClient *http.Client  // optional, overrides Timeout
}

// Client calls directions service, driving mode only
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// Request defines origin, destination and departure time of a single route
type Request struct {
	Origin      string
	Destination string
	Departure   time.Time
}

// Leg is the first leg of the first route returned for a Request
type Leg struct {
	Duration          float64  // seconds, without traffic
	DurationInTraffic *float64 // seconds, nil if not reported
}

type textValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Duration          textValue  `json:"duration"`
			DurationInTraffic *textValue `json:"duration_in_traffic"`
		} `json:"legs"`
	} `json:"routes"`
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// New makes Client with defaults applied
func New(p Params) *Client {
	res := &Client{httpClient: p.HTTPClient, apiKey: p.APIKey, baseURL: p.BaseURL}
	if res.baseURL == "" {
		res.baseURL = defaultBaseURL
	}
	if res.httpClient == nil {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		res.httpClient = &http.Client{Timeout: timeout}
	}
	return res
}

// Get requests driving directions and returns durations of the first leg.
// Service errors and transport failures wrap ErrUpstreamRequest, missing routes wrap ErrEmptyResult.
func (c *Client) Get(ctx context.Context, r Request) (Leg, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return Leg{}, fmt.Errorf("%w: %w", ErrUpstreamRequest, err)
	}

	st := time.Now()
	resp, err := c.do(req)
	if err != nil {
		return Leg{}, fmt.Errorf("%w: %q -> %q: %w", ErrUpstreamRequest, r.Origin, r.Destination, err)
	}
	defer resp.Body.Close()

	var dr response
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return Leg{}, fmt.Errorf("%w: can't decode response: %w", ErrUpstreamRequest, err)
	}
	log.Printf("[DEBUG] directions %q -> %q, status %s, %d routes, in %v",
		r.Origin, r.Destination, dr.Status, len(dr.Routes), time.Since(st))

	switch dr.Status {
	case "OK", "":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Leg{}, fmt.Errorf("%w: %q -> %q, %s", ErrEmptyResult, r.Origin, r.Destination, dr.Status)
	default:
		return Leg{}, fmt.Errorf("%w: %s %s", ErrUpstreamRequest, dr.Status, dr.ErrorMessage)
	}

	if len(dr.Routes) == 0 || len(dr.Routes[0].Legs) == 0 {
		return Leg{}, fmt.Errorf("%w: %q -> %q", ErrEmptyResult, r.Origin, r.Destination)
	}

	leg := dr.Routes[0].Legs[0]
	res := Leg{Duration: leg.Duration.Value}
	if leg.DurationInTraffic != nil {
		v := leg.DurationInTraffic.Value
		res.DurationInTraffic = &v
	}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, r Request) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("bad base url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("origin", r.Origin)
	q.Set("destination", r.Destination)
	q.Set("mode", "driving")
	q.Set("units", "metric")
	q.Set("traffic_model", "best_guess")
	q.Set("departure_time", strconv.FormatInt(r.Departure.Unix(), 10))
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactKey(err))
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, redactKey(err)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// redactKey drops api key from the url reported by *url.Error, other errors returned as is
func redactKey(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "[redacted]", Err: ue.Err}
	}
	q := u.Query()
	q.Del("key")
	u.RawQuery = q.Encode()
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}

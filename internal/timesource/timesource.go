// Package timesource queries the current UTC instant from the network or a
// GPS receiver. Every backend performs a single attempt; the caller decides
// what a failure means.
package timesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relabs-tech/eink_station/internal/clock"
)

// ResponseLimit bounds the body read from any HTTP time service.
const ResponseLimit = 4096

var (
	ErrMissingField = errors.New("timesource: response is missing a field")
	ErrNoFix        = errors.New("timesource: no valid fix")
)

var (
	_ clock.Source = (*WorldTimeAPI)(nil)
	_ clock.Source = (*AdafruitIO)(nil)
	_ clock.Source = (*AdafruitMQTT)(nil)
	_ clock.Source = (*GPS)(nil)
)

// Func adapts a function to clock.Source.
type Func func(ctx context.Context) (time.Time, int32, error)

func (f Func) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) { return f(ctx) }

func fetch(ctx context.Context, c *http.Client, url string) ([]byte, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, ResponseLimit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

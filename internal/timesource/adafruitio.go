package timesource

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const DefaultAdafruitURL = "https://io.adafruit.com/api/v2/time/seconds"

// AdafruitIO reads unix seconds from the Adafruit IO time endpoint. The
// service has no notion of the local zone, so the offset is configured.
type AdafruitIO struct {
	URL    string
	Client *http.Client
	Offset int32
}

func (a *AdafruitIO) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) {
	url := a.URL
	if url == "" {
		url = DefaultAdafruitURL
	}
	body, err := fetch(ctx, a.Client, url)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("adafruit io: %w", err)
	}
	utc, err := parseSeconds(body)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("adafruit io: %w", err)
	}
	return utc, a.Offset, nil
}

func parseSeconds(b []byte) (time.Time, error) {
	s := string(bytes.TrimSpace(b))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("seconds %q: %w", s, err)
	}
	return time.Unix(n, 0).UTC(), nil
}

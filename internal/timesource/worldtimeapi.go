package timesource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultWorldTimeURL = "https://worldtimeapi.org/api/timezone/Europe/Copenhagen.txt"

// WorldTimeAPI reads the plain text variant of the worldtimeapi.org
// timezone endpoint.
type WorldTimeAPI struct {
	URL    string
	Client *http.Client
}

func (w *WorldTimeAPI) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) {
	url := w.URL
	if url == "" {
		url = DefaultWorldTimeURL
	}
	body, err := fetch(ctx, w.Client, url)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("worldtimeapi: %w", err)
	}
	return ParseWorldTime(body)
}

// ParseWorldTime extracts the "unixtime: " and "raw_offset: " lines.
func ParseWorldTime(body []byte) (time.Time, int32, error) {
	var (
		ts, off       int64
		haveTS, haveO bool
	)
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if v, ok := strings.CutPrefix(line, "unixtime: "); ok {
			n, err := strconv.ParseUint(v, 10, 63)
			if err != nil {
				return time.Time{}, 0, fmt.Errorf("worldtimeapi: unixtime %q: %w", v, err)
			}
			ts, haveTS = int64(n), true
		}
		if v, ok := strings.CutPrefix(line, "raw_offset: "); ok {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return time.Time{}, 0, fmt.Errorf("worldtimeapi: raw_offset %q: %w", v, err)
			}
			off, haveO = n, true
		}
	}
	if err := sc.Err(); err != nil {
		return time.Time{}, 0, fmt.Errorf("worldtimeapi: %w", err)
	}
	if !haveTS || !haveO {
		return time.Time{}, 0, fmt.Errorf("worldtimeapi: %w", ErrMissingField)
	}
	return time.Unix(ts, 0).UTC(), int32(off), nil
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timesource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// GPS waits for the first valid RMC sentence and takes its date and time.
// RMC carries UTC only; the offset is configured.
type GPS struct {
	Open   func() (io.ReadCloser, error)
	Offset int32
}

// NewSerialGPS reads NMEA from a UART, 8N1.
func NewSerialGPS(port string, baud uint, offset int32) *GPS {
	return &GPS{
		Offset: offset,
		Open: func() (io.ReadCloser, error) {
			return serial.Open(serial.OpenOptions{
				PortName:              port,
				BaudRate:              baud,
				DataBits:              8,
				StopBits:              1,
				MinimumReadSize:       1,
				ParityMode:            serial.PARITY_NONE,
				InterCharacterTimeout: 0,
			})
		},
	}
}

type fixResult struct {
	t   time.Time
	err error
}

func (g *GPS) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) {
	port, err := g.Open()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("gps: open: %w", err)
	}
	defer port.Close()

	done := make(chan fixResult, 1)
	go func() {
		t, err := firstFix(port)
		done <- fixResult{t, err}
	}()

	select {
	case <-ctx.Done():
		// Closing the port unblocks the reader.
		port.Close()
		return time.Time{}, 0, fmt.Errorf("gps: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return time.Time{}, 0, fmt.Errorf("gps: %w", r.err)
		}
		return r.t, g.Offset, nil
	}
}

func firstFix(r io.Reader) (time.Time, error) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return time.Time{}, ErrNoFix
			}
			return time.Time{}, err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			// partial sentences are common right after power-up
			continue
		}
		if sentence.DataType() != nmea.TypeRMC {
			continue
		}
		if t, ok := rmcTime(sentence.(nmea.RMC)); ok {
			return t, nil
		}
	}
}

func rmcTime(m nmea.RMC) (time.Time, bool) {
	if m.Validity != nmea.ValidRMC || !m.Date.Valid || !m.Time.Valid {
		return time.Time{}, false
	}
	return time.Date(2000+m.Date.YY, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second, m.Time.Millisecond*int(time.Millisecond),
		time.UTC), true
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package clock provides a wall clock that survives deep sleep by combining
// a retained boot epoch with the uptime of the current power-on session.
package clock

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/retained"
)

// MaxOffset is the largest UTC offset, in seconds, a calendar time can carry.
const MaxOffset = 25*3600 + 59*60 + 59

// ErrInvalidInOffset is returned when the current instant cannot be expressed
// in the configured UTC offset.
var ErrInvalidInOffset = &fault.E{C: fault.ClockOffset, Msg: "instant not representable in offset"}

// Uptime measures time since the start of the current power-on session.
type Uptime interface {
	Uptime() time.Duration
}

type sessionUptime struct {
	c     clockwork.Clock
	start time.Time
}

// NewUptime starts counting uptime now on c.
func NewUptime(c clockwork.Clock) Uptime {
	return &sessionUptime{c: c, start: c.Now()}
}

func (s *sessionUptime) Uptime() time.Duration { return s.c.Since(s.start) }

// Source supplies an absolute UTC instant and a UTC offset in seconds.
type Source interface {
	FetchCurrentTime(ctx context.Context) (time.Time, int32, error)
}

// Clock is boot epoch + uptime.
type Clock struct {
	bootEpoch uint64 // unix seconds at uptime zero
	offset    int32
	uptime    Uptime
}

// New anchors the clock so that now() equals wall at the current uptime.
func New(wall time.Time, offset int32, up Uptime) *Clock {
	boot := wall.Add(-up.Uptime()).Unix()
	if boot < 0 {
		boot = 0
	}
	return &Clock{bootEpoch: uint64(boot), offset: offset, uptime: up}
}

// FromRetained rebuilds the clock persisted before the last sleep. It
// reports false on a cold boot (epoch 0) or when the retained offset is
// invalid.
func FromRetained(st *retained.State, up Uptime) (*Clock, bool) {
	if st.Epoch == 0 || !validOffset(st.Offset) {
		return nil, false
	}
	return &Clock{bootEpoch: st.Epoch, offset: st.Offset, uptime: up}, true
}

// FromSource queries src once. Errors are synchronization faults.
func FromSource(ctx context.Context, src Source, up Uptime) (*Clock, error) {
	utc, offset, err := src.FetchCurrentTime(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.Synchronization, "fetch current time", err)
	}
	if !validOffset(offset) {
		return nil, &fault.E{C: fault.Synchronization, Op: "fetch current time", Err: ErrInvalidInOffset}
	}
	return New(utc, offset, up), nil
}

// Offset returns the UTC offset in seconds.
func (c *Clock) Offset() int32 { return c.offset }

// Location returns a fixed zone for the configured offset.
func (c *Clock) Location() *time.Location {
	return time.FixedZone("", int(c.offset))
}

func (c *Clock) instant() (sec uint64, nsec int64) {
	up := c.uptime.Uptime()
	return c.bootEpoch + uint64(up/time.Second), int64(up % time.Second)
}

// NowAsEpoch returns unix seconds. It is monotonic within a session.
func (c *Clock) NowAsEpoch() uint64 {
	sec, _ := c.instant()
	return sec
}

// Now returns the current time in the configured offset.
func (c *Clock) Now() (time.Time, error) {
	if !validOffset(c.offset) {
		return time.Time{}, ErrInvalidInOffset
	}
	sec, nsec := c.instant()
	if sec > math.MaxInt64 {
		return time.Time{}, ErrInvalidInOffset
	}
	t := time.Unix(int64(sec), nsec).In(c.Location())
	if y := t.Year(); y < 1 || y > 9999 {
		return time.Time{}, ErrInvalidInOffset
	}
	return t, nil
}

// Persist stores the clock so that the next session, starting at uptime
// zero after sleeping for sleep, resumes at the correct wall time.
func (c *Clock) Persist(st *retained.State, sleep time.Duration) {
	st.Epoch = c.NowAsEpoch() + uint64(sleep/time.Second)
	st.Offset = c.offset
}

// NextRoundedWakeup returns how long to wait until the next multiple of
// period since the Unix epoch.
func (c *Clock) NextRoundedWakeup(period time.Duration) time.Duration {
	sec, nsec := c.instant()
	next := RoundedWakeup(sec, period)
	return time.Duration(next-sec)*time.Second - time.Duration(nsec)
}

// RoundedWakeup returns the smallest multiple of period strictly after
// epoch. Periods below one second are treated as one second.
func RoundedWakeup(epoch uint64, period time.Duration) uint64 {
	p := uint64(period / time.Second)
	if p == 0 {
		p = 1
	}
	return (epoch + p) / p * p
}

func validOffset(offset int32) bool {
	return offset >= -MaxOffset && offset <= MaxOffset
}

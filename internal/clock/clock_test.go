package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/retained"
)

var base = time.Date(2024, 3, 14, 9, 46, 12, 0, time.UTC)

func TestRoundedWakeup(t *testing.T) {
	now := uint64(base.Unix())
	cases := []struct {
		period time.Duration
		want   time.Time
	}{
		{time.Minute, time.Date(2024, 3, 14, 9, 47, 0, 0, time.UTC)},
		{5 * time.Minute, time.Date(2024, 3, 14, 9, 50, 0, 0, time.UTC)},
		{time.Hour, time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got := RoundedWakeup(now, c.period)
		assert.Equal(t, uint64(c.want.Unix()), got, c.period)
	}
}

func TestRoundedWakeupNeverRepeatsBoundary(t *testing.T) {
	for _, period := range []time.Duration{time.Second, time.Minute, 7 * time.Minute, time.Hour} {
		p := uint64(period / time.Second)
		for epoch := uint64(1_700_000_000); epoch < 1_700_000_000+3*p; epoch += p/3 + 1 {
			next := RoundedWakeup(epoch, period)
			assert.Zero(t, next%p)
			assert.Greater(t, next, epoch)
			assert.LessOrEqual(t, next-epoch, p)
			// Waking exactly on the boundary yields the following one.
			assert.Equal(t, next+p, RoundedWakeup(next, period))
		}
	}
}

func TestNextRoundedWakeupAccountsForSubsecond(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(base, 0, NewUptime(fc))
	fc.Advance(1500 * time.Millisecond)

	// 09:46:13.5 -> 09:47:00
	assert.Equal(t, 46*time.Second+500*time.Millisecond, c.NextRoundedWakeup(time.Minute))
}

func TestNowTracksUptime(t *testing.T) {
	fc := clockwork.NewFakeClock()
	up := NewUptime(fc)
	fc.Advance(30 * time.Second)

	c := New(base, 3600, up)
	assert.Equal(t, uint64(base.Unix()), c.NowAsEpoch())

	fc.Advance(90 * time.Second)
	now, err := c.Now()
	require.NoError(t, err)
	assert.True(t, base.Add(90*time.Second).Equal(now))
	_, off := now.Zone()
	assert.Equal(t, 3600, off)
	assert.Equal(t, 10, now.Hour())
}

func TestNowInvalidOffset(t *testing.T) {
	c := New(base, MaxOffset+1, NewUptime(clockwork.NewFakeClock()))
	_, err := c.Now()
	assert.ErrorIs(t, err, ErrInvalidInOffset)
	assert.Equal(t, fault.ClockOffset, fault.Of(err))
}

func TestNowYearOutOfRange(t *testing.T) {
	c := &Clock{bootEpoch: uint64(time.Date(9999, 12, 31, 23, 0, 0, 0, time.UTC).Unix()), offset: 2 * 3600, uptime: NewUptime(clockwork.NewFakeClock())}
	_, err := c.Now()
	assert.ErrorIs(t, err, ErrInvalidInOffset)
}

func TestContinuityAcrossSleep(t *testing.T) {
	const sleep = 5 * time.Minute
	st := &retained.State{}

	before := clockwork.NewFakeClock()
	a := New(base, 7200, NewUptime(before))
	before.Advance(4 * time.Minute)
	a.Persist(st, sleep)
	assert.Equal(t, uint64(base.Add(4*time.Minute+sleep).Unix()), st.Epoch)
	assert.Equal(t, int32(7200), st.Offset)

	// Power cycle: uptime restarts at zero.
	after := clockwork.NewFakeClock()
	b, ok := FromRetained(st, NewUptime(after))
	require.True(t, ok)
	assert.Equal(t, uint64(base.Add(4*time.Minute+sleep).Unix()), b.NowAsEpoch())
	assert.Equal(t, int32(7200), b.Offset())

	after.Advance(3 * time.Second)
	assert.Equal(t, uint64(base.Add(4*time.Minute+sleep+3*time.Second).Unix()), b.NowAsEpoch())
}

func TestFromRetainedColdBoot(t *testing.T) {
	_, ok := FromRetained(&retained.State{}, NewUptime(clockwork.NewFakeClock()))
	assert.False(t, ok)

	_, ok = FromRetained(&retained.State{Epoch: 1, Offset: MaxOffset + 1}, NewUptime(clockwork.NewFakeClock()))
	assert.False(t, ok)
}

type sourceFunc func(ctx context.Context) (time.Time, int32, error)

func (f sourceFunc) FetchCurrentTime(ctx context.Context) (time.Time, int32, error) { return f(ctx) }

func TestFromSource(t *testing.T) {
	up := NewUptime(clockwork.NewFakeClock())
	c, err := FromSource(context.Background(), sourceFunc(func(context.Context) (time.Time, int32, error) {
		return base, 3600, nil
	}), up)
	require.NoError(t, err)
	assert.Equal(t, uint64(base.Unix()), c.NowAsEpoch())

	boom := errors.New("dns failure")
	_, err = FromSource(context.Background(), sourceFunc(func(context.Context) (time.Time, int32, error) {
		return time.Time{}, 0, boom
	}), up)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, fault.Synchronization, fault.Of(err))

	_, err = FromSource(context.Background(), sourceFunc(func(context.Context) (time.Time, int32, error) {
		return base, MaxOffset + 10, nil
	}), up)
	assert.Equal(t, fault.Synchronization, fault.Of(err))
}

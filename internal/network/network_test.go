package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// advance drives the fake clock whenever a poll is pending.
func advance(ctx context.Context, fc *clockwork.FakeClock, step time.Duration) {
	go func() {
		for fc.BlockUntilContext(ctx, 1) == nil {
			fc.Advance(step)
		}
	}()
}

func TestNopLink(t *testing.T) {
	var l Link = NopLink{}
	assert.NoError(t, l.Connect(context.Background(), Credentials{SSID: "x"}))
	assert.NoError(t, l.Disconnect())
}

func TestHostWaitsForAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clockwork.NewFakeClock()
	advance(ctx, fc, 500*time.Millisecond)

	polls := 0
	var joined, left string
	h := &Host{
		Interface: "wlan0",
		Poll:      500 * time.Millisecond,
		Timeout:   10 * time.Second,
		Clock:     fc,
		Lookup: func(string) (Status, error) {
			polls++
			switch {
			case polls < 3:
				return Status{}, nil
			case polls < 5:
				return Status{Up: true}, nil
			}
			return Status{Up: true, IPv4: net.IPv4(192, 0, 2, 10)}, nil
		},
		Join: func(_ context.Context, iface string, c Credentials) error {
			joined = iface + "/" + c.SSID
			return nil
		},
		Leave: func(iface string) error { left = iface; return nil },
	}

	require.NoError(t, h.Connect(ctx, Credentials{SSID: "home", Password: "secret"}))
	assert.Equal(t, 5, polls)
	assert.Equal(t, "wlan0/home", joined)

	require.NoError(t, h.Disconnect())
	assert.Equal(t, "wlan0", left)

	left = ""
	require.NoError(t, h.Disconnect())
	assert.Empty(t, left, "second disconnect is a no-op")
}

func TestHostTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clockwork.NewFakeClock()
	advance(ctx, fc, time.Second)

	h := &Host{
		Interface: "eth0",
		Poll:      time.Second,
		Timeout:   5 * time.Second,
		Clock:     fc,
		Lookup:    func(string) (Status, error) { return Status{Up: true}, nil },
	}
	err := h.Connect(ctx, Credentials{})
	assert.ErrorIs(t, err, ErrLinkTimeout)
	assert.NoError(t, h.Disconnect())
}

func TestHostJoinError(t *testing.T) {
	boom := errors.New("no carrier")
	h := &Host{
		Interface: "wlan0",
		Join:      func(context.Context, string, Credentials) error { return boom },
		Lookup:    func(string) (Status, error) { t.Fatal("lookup after failed join"); return Status{}, nil },
	}
	assert.ErrorIs(t, h.Connect(context.Background(), Credentials{SSID: "home"}), boom)
}

func TestHostLookupError(t *testing.T) {
	h := &Host{
		Interface: "nope0",
		Lookup:    func(string) (Status, error) { return Status{}, errors.New("no such interface") },
	}
	assert.Error(t, h.Connect(context.Background(), Credentials{}))
}

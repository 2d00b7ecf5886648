// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package network brings the station's uplink up for the duration of a time
// synchronization and takes it down again.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os/exec"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrLinkTimeout = errors.New("network: link did not come up")

// Credentials for a WPA network. An empty SSID means the interface is
// managed elsewhere.
type Credentials struct {
	SSID     string
	Password string
}

// Link is a network uplink that can be acquired and released.
type Link interface {
	Connect(ctx context.Context, c Credentials) error
	Disconnect() error
}

// NopLink is for hosts with an always-on network.
type NopLink struct{}

func (NopLink) Connect(context.Context, Credentials) error { return nil }
func (NopLink) Disconnect() error                          { return nil }

// Status is a snapshot of an interface.
type Status struct {
	Up   bool
	IPv4 net.IP
}

// Host waits for a Linux network interface, optionally joining a WiFi
// network with NetworkManager first.
type Host struct {
	Interface string
	Poll      time.Duration
	Timeout   time.Duration
	Clock     clockwork.Clock

	// Lookup, Join and Leave default to the host implementations.
	Lookup func(iface string) (Status, error)
	Join   func(ctx context.Context, iface string, c Credentials) error
	Leave  func(iface string) error

	joined bool
}

// NewHost returns a Host polling every 500 ms for at most timeout.
func NewHost(iface string, timeout time.Duration) *Host {
	return &Host{Interface: iface, Poll: 500 * time.Millisecond, Timeout: timeout}
}

func (h *Host) clock() clockwork.Clock {
	if h.Clock == nil {
		return clockwork.NewRealClock()
	}
	return h.Clock
}

func (h *Host) Connect(ctx context.Context, c Credentials) error {
	lookup := h.Lookup
	if lookup == nil {
		lookup = lookupInterface
	}
	if c.SSID != "" {
		join := h.Join
		if join == nil {
			join = nmcliJoin
		}
		log.Printf("network: joining %q on %s", c.SSID, h.Interface)
		if err := join(ctx, h.Interface, c); err != nil {
			return fmt.Errorf("network: join %q: %w", c.SSID, err)
		}
		h.joined = true
	}

	clk := h.clock()
	deadline := clk.Now().Add(h.Timeout)
	for {
		st, err := lookup(h.Interface)
		if err != nil {
			return fmt.Errorf("network: %s: %w", h.Interface, err)
		}
		if st.Up && st.IPv4 != nil {
			log.Printf("network: %s up with address %s", h.Interface, st.IPv4)
			return nil
		}
		if !clk.Now().Before(deadline) {
			return fmt.Errorf("network: %s after %s: %w", h.Interface, h.Timeout, ErrLinkTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(h.Poll):
		}
	}
}

// Disconnect leaves the network joined by Connect, if any.
func (h *Host) Disconnect() error {
	if !h.joined {
		return nil
	}
	leave := h.Leave
	if leave == nil {
		leave = nmcliLeave
	}
	h.joined = false
	if err := leave(h.Interface); err != nil {
		return fmt.Errorf("network: leave %s: %w", h.Interface, err)
	}
	log.Printf("network: %s released", h.Interface)
	return nil
}

func lookupInterface(name string) (Status, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return Status{}, err
	}
	st := Status{Up: ifi.Flags&net.FlagUp != 0}
	addrs, err := ifi.Addrs()
	if err != nil {
		return Status{}, err
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil {
			st.IPv4 = ipn.IP
			break
		}
	}
	return st, nil
}

func nmcliJoin(ctx context.Context, iface string, c Credentials) error {
	args := []string{"device", "wifi", "connect", c.SSID, "ifname", iface}
	if c.Password != "" {
		args = append(args, "password", c.Password)
	}
	out, err := exec.CommandContext(ctx, "nmcli", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli: %w: %s", err, out)
	}
	return nil
}

func nmcliLeave(iface string) error {
	out, err := exec.Command("nmcli", "device", "disconnect", iface).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nmcli: %w: %s", err, out)
	}
	return nil
}

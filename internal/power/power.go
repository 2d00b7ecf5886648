// Package power ends an awake window. On the station a deep sleep is a
// power cycle: execution restarts from the top and only the retained
// region survives.
package power

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sleeper enters deep sleep. On success DeepSleep does not return.
type Sleeper interface {
	DeepSleep(d time.Duration) error
}

// Reexec sleeps and then replaces the process image with a fresh copy of
// itself, the closest a Linux process gets to waking from deep sleep.
type Reexec struct {
	Clock clockwork.Clock
	// Before runs right before the exec, after the sleep.
	Before func()
}

func (r *Reexec) DeepSleep(d time.Duration) error {
	clk := r.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	log.Printf("power: entering deep sleep for %s", d)
	clk.Sleep(d)
	if r.Before != nil {
		r.Before()
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("power: locate executable: %w", err)
	}
	if err := execSelf(self); err != nil {
		return fmt.Errorf("power: exec %s: %w", self, err)
	}
	return nil
}

// Recorder is a Sleeper for tests and one-shot runs: it records the
// requested duration and returns immediately.
type Recorder struct {
	mu     sync.Mutex
	Sleeps []time.Duration
}

func (r *Recorder) DeepSleep(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sleeps = append(r.Sleeps, d)
	log.Printf("power: deep sleep for %s requested", d)
	return nil
}

// Last returns the most recent request, or 0.
func (r *Recorder) Last() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sleeps) == 0 {
		return 0
	}
	return r.Sleeps[len(r.Sleeps)-1]
}

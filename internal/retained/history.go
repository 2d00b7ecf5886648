// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package retained

import "github.com/relabs-tech/eink_station/internal/domain"

// HistoryCapacity is the number of readings kept across power cycles.
const HistoryCapacity = 96

// History is a fixed-capacity ring of readings. Push overwrites the oldest
// entry once the ring is full.
type History struct {
	entries [HistoryCapacity]domain.Reading
	head    int // oldest entry
	n       int
}

// Push appends r, evicting the oldest reading when full.
func (h *History) Push(r domain.Reading) {
	if h.n < HistoryCapacity {
		h.entries[(h.head+h.n)%HistoryCapacity] = r
		h.n++
		return
	}
	h.entries[h.head] = r
	h.head = (h.head + 1) % HistoryCapacity
}

func (h *History) Len() int { return h.n }
func (h *History) Cap() int { return HistoryCapacity }

// Latest returns the most recently pushed reading.
func (h *History) Latest() (domain.Reading, bool) {
	if h.n == 0 {
		return domain.Reading{}, false
	}
	return h.entries[(h.head+h.n-1)%HistoryCapacity], true
}

// At returns the i-th reading, oldest first.
func (h *History) At(i int) domain.Reading {
	if i < 0 || i >= h.n {
		panic("retained: history index out of range")
	}
	return h.entries[(h.head+i)%HistoryCapacity]
}

// All returns a copy of the readings, oldest first.
func (h *History) All() []domain.Reading {
	out := make([]domain.Reading, h.n)
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}

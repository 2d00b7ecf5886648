// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package retained

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/eink_station/internal/domain"
)

// Region layout (little-endian):
//
//	0  magic     u32
//	4  version   u16
//	6  reserved  u16
//	8  boots     u32
//	12 epoch     u64  unix seconds, 0 = never synchronized
//	20 offset    i32  seconds east of UTC
//	24 head      u16
//	26 len       u16
//	28 entries   HistoryCapacity x entrySize
const (
	magic         uint32 = 0x4B4E4945 // "EINK"
	layoutVersion uint16 = 1

	headerSize = 28
	entrySize  = 8 + 8 + 4 + 8 + 1

	// Size is the number of bytes a Region must provide.
	Size = headerSize + HistoryCapacity*entrySize
)

const flagSynthetic = 1 << 0

var (
	ErrAlreadyTaken = errors.New("retained: state already taken")
	ErrNotTaken     = errors.New("retained: state was not taken from this store")
	ErrRegionSize   = errors.New("retained: region too small")
)

// Region is memory that survives a power cycle.
type Region interface {
	Bytes() []byte
	Flush() error
	Close() error
}

// State is the decoded content of the retained region. Only one State may
// be live per Store.
type State struct {
	BootCount uint32
	Epoch     uint64
	Offset    int32
	History   History

	// Cold is set when the region held no valid layout and was zero-filled.
	Cold bool
}

// Store hands out the single mutable view of a Region.
type Store struct {
	region Region

	mu    sync.Mutex
	taken *State
}

// Open wraps a region. The region must be at least Size bytes.
func Open(r Region) (*Store, error) {
	if len(r.Bytes()) < Size {
		return nil, fmt.Errorf("%w: %d < %d", ErrRegionSize, len(r.Bytes()), Size)
	}
	return &Store{region: r}, nil
}

// Take decodes the region and returns the only mutable view of it.
func (s *Store) Take() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken != nil {
		return nil, ErrAlreadyTaken
	}
	st := decode(s.region.Bytes())
	s.taken = st
	return st, nil
}

// Save encodes st back into the region and flushes it.
func (s *Store) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == nil || st != s.taken {
		return ErrNotTaken
	}
	encode(s.region.Bytes(), st)
	if err := s.region.Flush(); err != nil {
		return fmt.Errorf("retained: flush: %w", err)
	}
	return nil
}

// Close releases the region.
func (s *Store) Close() error {
	return s.region.Close()
}

func decode(b []byte) *State {
	le := binary.LittleEndian
	if le.Uint32(b[0:]) != magic || le.Uint16(b[4:]) != layoutVersion {
		clear(b[:Size])
		return &State{Cold: true}
	}
	head := int(le.Uint16(b[24:]))
	n := int(le.Uint16(b[26:]))
	if head >= HistoryCapacity || n > HistoryCapacity {
		clear(b[:Size])
		return &State{Cold: true}
	}

	st := &State{
		BootCount: le.Uint32(b[8:]),
		Epoch:     le.Uint64(b[12:]),
		Offset:    int32(le.Uint32(b[20:])),
	}
	// Readings were stamped in local time.
	zone := time.FixedZone("", int(st.Offset))
	for i := 0; i < n; i++ {
		e := b[headerSize+((head+i)%HistoryCapacity)*entrySize:]
		st.History.Push(domain.Reading{
			Time: time.Unix(int64(le.Uint64(e[0:])), 0).In(zone),
			Sample: domain.Sample{
				Temperature: physic.Temperature(le.Uint64(e[8:])),
				Humidity:    physic.RelativeHumidity(le.Uint32(e[16:])),
				Pressure:    physic.Pressure(le.Uint64(e[20:])),
			},
			Synthetic: e[28]&flagSynthetic != 0,
		})
	}
	return st
}

func encode(b []byte, st *State) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], magic)
	le.PutUint16(b[4:], layoutVersion)
	le.PutUint16(b[6:], 0)
	le.PutUint32(b[8:], st.BootCount)
	le.PutUint64(b[12:], st.Epoch)
	le.PutUint32(b[20:], uint32(st.Offset))
	// History is rewritten oldest-first from slot 0.
	le.PutUint16(b[24:], 0)
	le.PutUint16(b[26:], uint16(st.History.Len()))
	for i := 0; i < st.History.Len(); i++ {
		r := st.History.At(i)
		e := b[headerSize+i*entrySize:]
		le.PutUint64(e[0:], uint64(r.Time.Unix()))
		le.PutUint64(e[8:], uint64(r.Sample.Temperature))
		le.PutUint32(e[16:], uint32(r.Sample.Humidity))
		le.PutUint64(e[20:], uint64(r.Sample.Pressure))
		var flags byte
		if r.Synthetic {
			flags |= flagSynthetic
		}
		e[28] = flags
	}
}

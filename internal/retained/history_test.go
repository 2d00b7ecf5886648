package retained

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/eink_station/internal/domain"
)

func reading(i int) domain.Reading {
	return domain.Reading{
		Time:   time.Unix(int64(1_700_000_000+60*i), 0).UTC(),
		Sample: domain.Sample{Temperature: domain.CelsiusToTemperature(float64(i))},
	}
}

func TestHistoryEmpty(t *testing.T) {
	var h History
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.All())
}

func TestHistoryOverwritesOldest(t *testing.T) {
	var h History
	for i := 0; i <= HistoryCapacity; i++ {
		h.Push(reading(i))
	}

	require.Equal(t, HistoryCapacity, h.Len())
	all := h.All()
	for i, r := range all {
		assert.Equal(t, reading(i+1), r, "slot %d", i)
	}
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, reading(HistoryCapacity), latest)
}

func TestHistoryWrapsManyTimes(t *testing.T) {
	var h History
	const total = 3*HistoryCapacity + 7
	for i := 0; i < total; i++ {
		h.Push(reading(i))
		latest, _ := h.Latest()
		assert.Equal(t, reading(i), latest)
	}
	assert.Equal(t, reading(total-HistoryCapacity), h.At(0))
	assert.Equal(t, reading(total-1), h.At(HistoryCapacity-1))
}

func TestHistoryAtOutOfRange(t *testing.T) {
	var h History
	h.Push(reading(0))
	assert.Panics(t, func() { h.At(1) })
}

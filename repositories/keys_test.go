package repositories

import (
	"citychat/clock"
	"citychat/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTicks_Matches_Known_Epoch(t *testing.T) {
	req := require.New(t)
	req.Equal(unixEpochTicks, Ticks(time.Unix(0, 0)))
	at := time.Date(2020, 11, 29, 12, 0, 0, 0, time.UTC)
	req.Equal(at, TimeFromTicks(Ticks(at)))
}

func TestSortKey_Descends_With_Time(t *testing.T) {
	req := require.New(t)
	older := SortKey(Ticks(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	newer := SortKey(Ticks(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)))
	req.Len(older, sortKeyWidth)
	req.Len(newer, sortKeyWidth)
	// Newer messages sort first under ascending byte order
	req.Less(newer, older)

	ticks, err := TicksFromSortKey(newer)
	req.NoError(err)
	req.Equal(Ticks(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)), ticks)

	_, err = TicksFromSortKey("not a number")
	req.Error(err)
}

func TestTickSource_Strictly_Increasing_On_Frozen_Clock(t *testing.T) {
	req := require.New(t)
	source := NewTickSource(clock.Fake(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	first := source.Next()
	second := source.Next()
	third := source.Next()
	req.Less(first, second)
	req.Less(second, third)
}

func TestMessageKey_Round_Trip_And_Isolation(t *testing.T) {
	req := require.New(t)
	sortKey := SortKey(Ticks(time.Now()))
	key := messageKey("Oslo::Norway", sortKey)

	room, parsed, err := parseMessageKey(key)
	req.NoError(err)
	req.Equal(domain.RoomName("Oslo::Norway"), room)
	req.Equal(sortKey, parsed)

	// A room whose name extends another one never shares its prefix
	req.NotContains(string(messageKey("Oslo::Norway2", sortKey)), string(roomPrefix("Oslo::Norway")))

	_, _, err = parseMessageKey([]byte("msg\x00short"))
	req.Error(err)
}

func TestPrefixUpperBound(t *testing.T) {
	req := require.New(t)
	req.Equal([]byte("msg\x01"), prefixUpperBound([]byte("msg\x00")))
	req.Equal([]byte("b"), prefixUpperBound([]byte("a\xff")))
	req.Nil(prefixUpperBound([]byte{0xff, 0xff}))
}

package repositories

import (
	"citychat/clock"
	"citychat/domain"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// MaxTicks is the tick count of the last representable instant (year 9999).
	MaxTicks uint64 = 3155378975999999999
	// unixEpochTicks is the tick count of 1970-01-01T00:00:00Z.
	// A tick is 100ns counted from 0001-01-01T00:00:00Z.
	unixEpochTicks uint64 = 621355968000000000
	sortKeyWidth          = 19

	messagePrefix = "msg"
	separator     = byte(0)
)

// Ticks converts t to 100ns units since 0001-01-01 UTC.
func Ticks(t time.Time) uint64 {
	return uint64(t.UnixNano()/100) + unixEpochTicks
}

// TimeFromTicks is the inverse of Ticks.
func TimeFromTicks(ticks uint64) time.Time {
	return time.Unix(0, int64(ticks-unixEpochTicks)*100).UTC()
}

// SortKey lays ticks out so that ascending byte order is descending time.
func SortKey(ticks uint64) string {
	return fmt.Sprintf("%0*d", sortKeyWidth, MaxTicks-ticks)
}

func TicksFromSortKey(sortKey string) (uint64, error) {
	inverted, err := strconv.ParseUint(sortKey, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sort key %q: %w", sortKey, err)
	}
	return MaxTicks - inverted, nil
}

// TickSource hands out strictly increasing ticks even when the clock does
// not move between two appends, so two messages never share a key.
type TickSource struct {
	mu    sync.Mutex
	clock clock.Clock
	last  uint64
}

func NewTickSource(c clock.Clock) *TickSource {
	return &TickSource{clock: c}
}

func (s *TickSource) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticks := Ticks(s.clock.Now())
	if ticks <= s.last {
		ticks = s.last + 1
	}
	s.last = ticks
	return ticks
}

// roomPrefix is "msg\x00<room>\x00". The NUL separator keeps "A" from
// matching the keys of a room named "A::B".
func roomPrefix(room domain.RoomName) []byte {
	p := make([]byte, 0, len(messagePrefix)+len(room)+2)
	p = append(p, messagePrefix...)
	p = append(p, separator)
	p = append(p, room...)
	return append(p, separator)
}

func messageKey(room domain.RoomName, sortKey string) []byte {
	return append(roomPrefix(room), sortKey...)
}

// allMessagesPrefix matches every room partition.
func allMessagesPrefix() []byte {
	return append([]byte(messagePrefix), separator)
}

// prefixUpperBound returns the smallest key greater than every key with this prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// parseMessageKey splits a full key back into its room and sort key.
func parseMessageKey(key []byte) (domain.RoomName, string, error) {
	head := len(messagePrefix) + 1
	if len(key) < head+1+sortKeyWidth {
		return "", "", fmt.Errorf("malformed history key %q", key)
	}
	roomEnd := len(key) - sortKeyWidth - 1
	if key[roomEnd] != separator {
		return "", "", fmt.Errorf("malformed history key %q", key)
	}
	return domain.RoomName(key[head:roomEnd]), string(key[roomEnd+1:]), nil
}

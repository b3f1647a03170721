package repositories

import (
	"citychat/clock"
	"citychat/domain"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T, c clock.Clock) IHistoryRepository
}

var backends = []backend{
	{
		name: "badger",
		open: func(t *testing.T, c clock.Clock) IHistoryRepository {
			db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
			require.NoError(t, err)
			repository := NewBadgerHistoryRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), c)
			t.Cleanup(func() { _ = repository.Close() })
			return repository
		},
	},
	{
		name: "pebble",
		open: func(t *testing.T, c clock.Clock) IHistoryRepository {
			db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
			require.NoError(t, err)
			repository := NewPebbleHistoryRepository(db, logs.GetLoggerFromLevel(slog.LevelDebug), c)
			t.Cleanup(func() { _ = repository.Close() })
			return repository
		},
	},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repository IHistoryRepository, c *clock.FakeClock)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			c := clock.Fake(time.Date(2020, 11, 29, 18, 0, 0, 0, time.UTC))
			fn(t, b.open(t, c), c)
		})
	}
}

func texts(entries []domain.HistoryEntry) []string {
	return lo.Map(entries, func(e domain.HistoryEntry, _ int) string { return e.Text })
}

func TestHistory_Empty_Room_Returns_Nothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, _ *clock.FakeClock) {
		entries, err := repository.QueryRecent(context.Background(), "Oslo::Norway", DefaultHistoryLimit)
		require.NoError(t, err)
		require.Empty(t, entries)
	})
}

func TestHistory_Fewer_Than_Limit_In_Chronological_Order(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, c *clock.FakeClock) {
		req := require.New(t)
		ctx := context.Background()
		room := domain.RoomName("Oslo::Norway")

		// Given three messages sent a minute apart
		for i, author := range []string{"Alice", "Bob", "Clara"} {
			_, err := repository.Append(ctx, room, author, fmt.Sprintf("message %d", i+1))
			req.NoError(err)
			c.Advance(time.Minute)
		}

		// When the window is read
		entries, err := repository.QueryRecent(ctx, room, DefaultHistoryLimit)
		req.NoError(err)

		// Then every message comes back, oldest first
		req.Equal([]string{"message 1", "message 2", "message 3"}, texts(entries))
		req.Equal("Alice", entries[0].SenderUserID)
		req.Equal(room, entries[2].Room)
		req.True(entries[0].At.Before(entries[2].At))
	})
}

func TestHistory_Eleven_Sends_Keeps_The_Last_Ten(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, c *clock.FakeClock) {
		req := require.New(t)
		ctx := context.Background()
		room := domain.RoomName("Oslo::Norway")

		// Given 11 sequential sends
		for i := 1; i <= 11; i++ {
			_, err := repository.Append(ctx, room, "A", fmt.Sprintf("#%d", i))
			req.NoError(err)
			c.Advance(time.Second)
		}

		// When
		entries, err := repository.QueryRecent(ctx, room, 10)
		req.NoError(err)

		// Then sends #2 through #11 in that order, #1 excluded
		expected := lo.Map(lo.Range(10), func(i, _ int) string { return fmt.Sprintf("#%d", i+2) })
		req.Equal(expected, texts(entries))
	})
}

func TestHistory_Same_Instant_Sends_Are_All_Kept_In_Order(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, _ *clock.FakeClock) {
		req := require.New(t)
		ctx := context.Background()

		// Given the clock never moves
		for i := 1; i <= 3; i++ {
			_, err := repository.Append(ctx, "X", "A", fmt.Sprintf("#%d", i))
			req.NoError(err)
		}

		entries, err := repository.QueryRecent(ctx, "X", 0)
		req.NoError(err)
		req.Equal([]string{"#1", "#2", "#3"}, texts(entries))
	})
}

func TestHistory_Rooms_Are_Isolated(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, c *clock.FakeClock) {
		req := require.New(t)
		ctx := context.Background()

		_, err := repository.Append(ctx, "Oslo::Norway", "A", "hei")
		req.NoError(err)
		c.Advance(time.Second)
		_, err = repository.Append(ctx, "Oslo::Norway2", "B", "hallo")
		req.NoError(err)
		c.Advance(time.Second)
		_, err = repository.Append(ctx, "Bergen::Norway", "C", "heisann")
		req.NoError(err)

		entries, err := repository.QueryRecent(ctx, "Oslo::Norway", DefaultHistoryLimit)
		req.NoError(err)
		req.Equal([]string{"hei"}, texts(entries))

		rooms, err := repository.Rooms(ctx)
		req.NoError(err)
		req.ElementsMatch([]domain.RoomName{"Oslo::Norway", "Oslo::Norway2", "Bergen::Norway"}, rooms)
	})
}

func TestHistory_Append_Rejects_Invalid_Room(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, _ *clock.FakeClock) {
		_, err := repository.Append(context.Background(), "", "A", "hi")
		require.Error(t, err)
	})
}

func TestHistory_Canceled_Context(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repository IHistoryRepository, _ *clock.FakeClock) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := repository.Append(ctx, "X", "A", "hi")
		require.ErrorIs(t, err, context.Canceled)
		_, err = repository.QueryRecent(ctx, "X", 10)
		require.ErrorIs(t, err, context.Canceled)
	})
}

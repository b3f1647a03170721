package repositories

import (
	"citychat/clock"
	"citychat/domain"
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble/v2"
	"github.com/samber/lo"
)

// PebbleHistoryRepository stores the same key layout as the Badger one in PebbleDB.
type PebbleHistoryRepository struct {
	db    *pebble.DB
	log   *slog.Logger
	ticks *TickSource
}

func NewPebbleHistoryRepository(db *pebble.DB, log *slog.Logger, c clock.Clock) *PebbleHistoryRepository {
	return &PebbleHistoryRepository{db: db, log: log, ticks: NewTickSource(c)}
}

func (r *PebbleHistoryRepository) Append(ctx context.Context, room domain.RoomName, senderUserID, text string) (domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.HistoryEntry{}, err
	}
	if err := room.Validate(); err != nil {
		return domain.HistoryEntry{}, err
	}
	entry, key, value, err := newRow(r.ticks.Next(), room, senderUserID, text)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	if err := r.db.Set(key, value, pebble.Sync); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("append to %q: %w", room, err)
	}
	return entry, nil
}

func (r *PebbleHistoryRepository) QueryRecent(ctx context.Context, room domain.RoomName, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prefix := roomPrefix(room)
	it, err := r.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", room, err)
	}
	defer func() { _ = it.Close() }()

	var entries []domain.HistoryEntry
	for it.First(); it.Valid() && len(entries) < limit; it.Next() {
		value, err := it.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", room, err)
		}
		entry, err := decodeRow(it.Key(), value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("query %q: %w", room, err)
	}
	r.log.Debug("History window read", "room", room, "count", len(entries), "limit", limit)
	return lo.Reverse(entries), nil
}

func (r *PebbleHistoryRepository) Rooms(ctx context.Context) ([]domain.RoomName, error) {
	prefix := allMessagesPrefix()
	it, err := r.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var rooms []domain.RoomName
	for valid := it.First(); valid; {
		room, _, err := parseMessageKey(it.Key())
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
		valid = it.SeekGE(prefixUpperBound(roomPrefix(room)))
	}
	return rooms, it.Error()
}

func (r *PebbleHistoryRepository) Close() error {
	return r.db.Close()
}

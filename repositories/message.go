//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_history_repository.go -package=mocks
package repositories

import (
	"citychat/clock"
	"citychat/codec"
	"citychat/domain"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// DefaultHistoryLimit is the size of the window replayed to a joining member.
const DefaultHistoryLimit = 10

// IHistoryRepository is the bounded per-room message log.
// Bounding happens at query time: nothing is ever evicted.
type IHistoryRepository interface {
	Append(ctx context.Context, room domain.RoomName, senderUserID, text string) (domain.HistoryEntry, error)
	QueryRecent(ctx context.Context, room domain.RoomName, limit int) ([]domain.HistoryEntry, error)
	Rooms(ctx context.Context) ([]domain.RoomName, error)
	Close() error
}

// storedMessage is the row value. The partition and the sort key live in the key.
type storedMessage struct {
	UserID  string `cbor:"u"`
	Message string `cbor:"m"`
	Ticks   uint64 `cbor:"t"`
}

type BadgerHistoryRepository struct {
	db    *badger.DB
	log   *slog.Logger
	ticks *TickSource
}

func NewBadgerHistoryRepository(db *badger.DB, log *slog.Logger, c clock.Clock) *BadgerHistoryRepository {
	return &BadgerHistoryRepository{db: db, log: log, ticks: NewTickSource(c)}
}

// Append persists one message under "msg\x00{room}\x00{MaxTicks-ticks}".
// The write is a single transaction: it either lands entirely or not at all.
func (r *BadgerHistoryRepository) Append(ctx context.Context, room domain.RoomName, senderUserID, text string) (domain.HistoryEntry, error) {
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
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("append to %q: %w", room, err)
	}
	return entry, nil
}

// QueryRecent reads the first page of the room partition, newest first,
// then reverses it so that callers get the window in chronological order.
func (r *BadgerHistoryRepository) QueryRecent(ctx context.Context, room domain.RoomName, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prefix := roomPrefix(room)
	var entries []domain.HistoryEntry
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		options.PrefetchSize = limit
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if len(entries) == limit {
				break
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(value []byte) error {
				entry, err := decodeRow(key, value)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", room, err)
	}
	r.log.Debug("History window read", "room", room, "count", len(entries), "limit", limit)
	return lo.Reverse(entries), nil
}

// Rooms lists every partition that holds at least one message.
func (r *BadgerHistoryRepository) Rooms(ctx context.Context) ([]domain.RoomName, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rooms []domain.RoomName
	prefix := allMessagesPrefix()
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); {
			room, _, err := parseMessageKey(it.Item().Key())
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
			// Jump over the rest of this partition
			it.Seek(prefixUpperBound(roomPrefix(room)))
		}
		return nil
	})
	return rooms, err
}

func (r *BadgerHistoryRepository) Close() error {
	return r.db.Close()
}

func newRow(ticks uint64, room domain.RoomName, senderUserID, text string) (domain.HistoryEntry, []byte, []byte, error) {
	sortKey := SortKey(ticks)
	value, err := codec.Marshal(storedMessage{UserID: senderUserID, Message: text, Ticks: ticks})
	if err != nil {
		return domain.HistoryEntry{}, nil, nil, err
	}
	entry := domain.HistoryEntry{
		Message: domain.Message{Room: room, SenderUserID: senderUserID, Text: text},
		SortKey: sortKey,
		At:      TimeFromTicks(ticks),
	}
	return entry, messageKey(room, sortKey), value, nil
}

func decodeRow(key, value []byte) (domain.HistoryEntry, error) {
	room, sortKey, err := parseMessageKey(key)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	var row storedMessage
	if err := codec.Unmarshal(value, &row); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("decode %q: %w", key, err)
	}
	return domain.HistoryEntry{
		Message: domain.Message{Room: room, SenderUserID: row.UserID, Text: row.Message},
		SortKey: sortKey,
		At:      TimeFromTicks(row.Ticks),
	}, nil
}

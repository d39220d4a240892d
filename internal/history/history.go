// Package history mirrors delivered records into a local SQLite file so a
// client can replay them after a restart.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// replayBatch is the number of rows fetched per query during Replay.
const replayBatch = 256

// Entry is one stored record. ID grows with insertion order.
type Entry struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index;not null"`
	SenderID  string `gorm:"index"`
	Frame     []byte `gorm:"not null"`
	CreatedAt time.Time
}

// Store is an append-only record log.
type Store struct {
	db *gorm.DB
}

// Open opens or creates the SQLite database at path and migrates the schema.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db}, nil
}

// Append stores rec and returns its ID.
func (s *Store) Append(ctx context.Context, rec protocol.Record) (uint, error) {
	frame, err := protocol.Encode(rec)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	e := Entry{
		Kind:     rec.Kind().String(),
		SenderID: rec.Sender(),
		Frame:    frame,
	}
	if err := gorm.G[Entry](s.db).Create(ctx, &e); err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return e.ID, nil
}

// Replay calls fn for every stored record in ID order. It stops at the
// first error returned by fn and returns it.
func (s *Store) Replay(ctx context.Context, fn func(id uint, rec protocol.Record) error) error {
	var last uint
	for {
		entries, err := gorm.G[Entry](s.db).
			Where("id > ?", last).
			Order("id").
			Limit(replayBatch).
			Find(ctx)
		if err != nil {
			return fmt.Errorf("replay history: %w", err)
		}

		for _, e := range entries {
			last = e.ID
			_, rec, err := protocol.Decode(e.Frame)
			if err != nil {
				return fmt.Errorf("replay history entry %d: %w", e.ID, err)
			}
			if rec == nil {
				return fmt.Errorf("replay history entry %d: %w", e.ID, errEmptyFrame)
			}
			if err := fn(e.ID, rec); err != nil {
				return err
			}
		}
		if len(entries) < replayBatch {
			return nil
		}
	}
}

var errEmptyFrame = errors.New("empty frame")

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

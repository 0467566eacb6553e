// Package history keeps a per-run log of chat messages and peer sightings
// for the CLI. The database lives in memory and disappears with the process.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// Open creates a fresh in-memory database. Each call gets its own.
func Open() (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// the in-memory database lives as long as its last connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&MessageRecord{}, &PeerRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{DB: db}, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg events.Message) error {
	rec := MessageRecord{
		MessageID: msg.ID.String(),
		Text:      msg.Text,
		Direction: msg.Direction.String(),
		Remote:    msg.Remote,
		Ordinal:   msg.Ordinal,
		CreatedAt: msg.At.Unix(),
	}
	return s.DB.WithContext(ctx).Create(&rec).Error
}

// Recent returns up to limit of the newest messages, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]MessageRecord, error) {
	var recs []MessageRecord
	err := s.DB.WithContext(ctx).Order("id desc").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// SavePeers records one sighting of every peer in a snapshot.
func (s *Store) SavePeers(ctx context.Context, peers []peer.Peer) error {
	now := time.Now().Unix()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range peers {
			rec := PeerRecord{
				Address:   p.Address,
				Name:      p.Name,
				FirstSeen: now,
				LastSeen:  now,
				Sightings: 1,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "address"}},
				DoUpdates: clause.Assignments(map[string]any{
					"name":      p.Name,
					"last_seen": now,
					"sightings": gorm.Expr("sightings + 1"),
				}),
			}).Create(&rec).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) KnownPeers(ctx context.Context) ([]PeerRecord, error) {
	var recs []PeerRecord
	err := s.DB.WithContext(ctx).Order("id").Find(&recs).Error
	return recs, err
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconnect

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SessionRow holds one persisted snapshot.
type SessionRow struct {
	TabID     string `gorm:"primaryKey"`
	MatchID   string `gorm:"index"`
	Data      []byte
	SavedAt   time.Time
	UpdatedAt time.Time
}

func (SessionRow) TableName() string { return "fadetoe_sessions" }

// OpenPostgres initializes the database connection and performs migrations.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SessionRow{}); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLStore wraps a gorm DB instance.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore returns nil for a nil db. A nil store saves nothing.
func NewSQLStore(db *gorm.DB) *SQLStore {
	if db == nil {
		return nil
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) Save(ctx context.Context, key string, snap Snapshot) error {
	if s == nil {
		return nil
	}

	data, err := snap.marshal()
	if err != nil {
		return err
	}

	row := SessionRow{
		TabID:   key,
		MatchID: snap.MatchID,
		Data:    data,
		SavedAt: snap.SavedAt,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tab_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"match_id", "data", "saved_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLStore) Load(ctx context.Context, key string) (Snapshot, bool, error) {
	if s == nil {
		return Snapshot{}, false, nil
	}

	var row SessionRow
	err := s.db.WithContext(ctx).Where("tab_id = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}

	snap, err := unmarshalSnapshot(row.Data)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *SQLStore) Clear(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Where("tab_id = ?", key).Delete(&SessionRow{}).Error
}

package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Peer is a peer currently connected to the relay server.
type Peer struct {
	ID          string `gorm:"primaryKey"`
	RemoteAddr  string
	ConnectedAt int64
	LastSeenAt  int64
	Relayed     int64
}

// Open opens the sqlite database at path and migrates the schema. Use
// ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// every pooled connection to ":memory:" would see its own database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Peer{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

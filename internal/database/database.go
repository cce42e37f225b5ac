package database

import (
	"fmt"

	"paper-trade-bot-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the order journal database and migrates its schema.
// The journal is an append-only audit trail of executed orders so that
// external viewers read sqlite instead of the engine's memory; the JSON
// snapshot remains the source of truth for crash recovery.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Order{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// Journal appends executed orders to the database.
type Journal struct {
	db *gorm.DB
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Append records one executed order. Orders are immutable; this is the
// only write the journal performs.
func (j *Journal) Append(order *models.Order) error {
	if err := j.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to journal order %s: %w", order.ID, err)
	}
	return nil
}

// RecentOrders returns up to limit orders, newest first.
func (j *Journal) RecentOrders(limit int) ([]models.Order, error) {
	var orders []models.Order
	if err := j.db.Order("timestamp desc").Limit(limit).Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to read order journal: %w", err)
	}
	return orders, nil
}

package models

import (
	"time"
)

// RecordModel holds the columns every ledger record table shares.
// Ids are opaque strings issued by the sales system or by the ledger itself.
type RecordModel struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"`
	CustomerID string    `gorm:"type:varchar(64);not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

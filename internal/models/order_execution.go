package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusFailed    = "FAILED"
)

// OrderExecution is the durable order log. One row per logical order,
// keyed by the request fingerprint; rows are never deleted.
type OrderExecution struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ClientOrderID string `gorm:"type:varchar(66);not null;uniqueIndex"`
	// Unique index is what makes concurrent identical submissions converge
	// on a single record.
	RequestFingerprint string `gorm:"type:varchar(64);not null;uniqueIndex"`

	Symbol    string           `gorm:"type:varchar(50);not null;index"`
	Side      string           `gorm:"type:varchar(10);not null"`
	Size      decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	OrderType string           `gorm:"type:varchar(20);not null"`
	Price     *decimal.Decimal `gorm:"type:numeric(30,10)"`

	Status          string `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	ExchangeOrderID string `gorm:"type:varchar(100)"`
	ErrorMessage    string `gorm:"type:text"`
	RetryCount      int    `gorm:"not null;default:0"`

	LastResponse datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (OrderExecution) TableName() string {
	return "order_execution_log"
}

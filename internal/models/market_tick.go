package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketTick holds ingested market data; the reconciliation engine and the
// gateway read the latest close as a fallback when the price stream is empty.
type MarketTick struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(50);not null;index:idx_tick_symbol_time"`

	Close decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Timestamp time.Time `gorm:"type:timestamptz;not null;index:idx_tick_symbol_time"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (MarketTick) TableName() string {
	return "market_ticks"
}

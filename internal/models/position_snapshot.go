package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSnapshot is the local ledger's view of the account position for a
// symbol at a point in time. Latest fresh row is one half of the actual-state
// consensus.
type PositionSnapshot struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(50);not null;index:idx_position_symbol_time"`

	Size decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	RecordedAt time.Time `gorm:"type:timestamptz;not null;index:idx_position_symbol_time"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PositionSnapshot) TableName() string {
	return "position_snapshots"
}

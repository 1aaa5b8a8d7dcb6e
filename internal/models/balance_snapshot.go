package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BalanceSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	AccountValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	RecordedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (BalanceSnapshot) TableName() string {
	return "balance_snapshots"
}

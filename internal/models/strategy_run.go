package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyRun is one strategy process's opinion on a symbol. Rows are written
// by the strategy fleet; this service only reads them.
type StrategyRun struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(50);not null;index"`

	// Signed unit direction: +1 long, -1 short.
	PositionDirection decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	LivePnL           decimal.Decimal `gorm:"column:live_pnl;type:numeric(30,10)"`

	ExitRun   bool       `gorm:"not null;default:false"`
	StartTime time.Time  `gorm:"type:timestamptz;not null"`
	EndTime   *time.Time `gorm:"type:timestamptz;index"`

	UpdateTime time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StrategyRun) TableName() string {
	return "strategy_runs"
}

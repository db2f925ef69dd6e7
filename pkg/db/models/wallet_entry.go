package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/enums"
)

// WalletEntry records an immutable wallet mutation. Amount is signed;
// BalanceAfter is the post-update balance the paired notification reports.
type WalletEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Type         enums.WalletEntryType `gorm:"column:type;not null"`
	Amount       decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter decimal.Decimal       `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Reason       string                `gorm:"column:reason;not null"`
	OrderID      *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (e *WalletEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

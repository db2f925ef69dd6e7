package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/enums"
)

// NotificationPrefs controls which persistent notifications a user receives.
// New accounts start with everything enabled.
type NotificationPrefs struct {
	OrderUpdates bool `json:"order_updates"`
	Promotions   bool `json:"promotions"`
	BackInStock  bool `json:"back_in_stock"`
}

// DefaultNotificationPrefs returns the signup defaults.
func DefaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{
		OrderUpdates: true,
		Promotions:   true,
		BackInStock:  true,
	}
}

// Allows reports whether the preference bucket for the given type is on.
func (p NotificationPrefs) Allows(typ enums.NotificationType) bool {
	switch typ {
	case enums.NotificationTypeBackInStock:
		return p.BackInStock
	case enums.NotificationTypeCart:
		return p.Promotions
	default:
		return p.OrderUpdates
	}
}

// User represents a shopper or staff account. Email is stored lowercased so
// the unique index doubles as the case-insensitive duplicate check.
type User struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name          string            `gorm:"column:name;not null"`
	Email         string            `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash  string            `gorm:"column:password_hash;not null"`
	Role          enums.UserRole    `gorm:"column:role;not null;default:'retailer'"`
	WalletBalance decimal.Decimal   `gorm:"column:wallet_balance;type:numeric(12,2);not null"`
	Prefs         NotificationPrefs `gorm:"column:prefs;serializer:json"`
	IsActive      bool              `gorm:"column:is_active;not null;default:true"`

	// Khata: running store credit with a limit and a due date.
	CreditLimit  decimal.Decimal `gorm:"column:credit_limit;type:numeric(12,2);not null"`
	CreditDue    decimal.Decimal `gorm:"column:credit_due;type:numeric(12,2);not null"`
	KhataDueDate *time.Time      `gorm:"column:khata_due_date"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// StockSubscription marks a user waiting for a product to come back in stock.
type StockSubscription struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_stock_sub_user_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_stock_sub_user_product"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

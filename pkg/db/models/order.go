package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/enums"
)

// Order owns an immutable snapshot of the cart and the purchasing user at
// creation time. Later product or user mutations never reach back into it.
type Order struct {
	ID     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Number string    `gorm:"column:number;not null;uniqueIndex"`

	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserName  string    `gorm:"column:user_name;not null"`
	UserEmail string    `gorm:"column:user_email;not null"`

	Items []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Total decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`

	Status          enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentApproved bool                `gorm:"column:payment_approved;not null;default:false"`

	PlacedAt    time.Time  `gorm:"column:placed_at;not null"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`

	DeliveryRating *int    `gorm:"column:delivery_rating"`
	DeliveryReview *string `gorm:"column:delivery_review"`

	Notes []OrderNote `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a purchase-time snapshot of a cart line.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// OrderNote is an append-only internal log entry on an order.
type OrderNote struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Author    string    `gorm:"column:author;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (n *OrderNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

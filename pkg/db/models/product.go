package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/enums"
)

// Product is the authoritative catalog listing. Stock is the inventory count
// cart mutations clamp against.
type Product struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name           string           `gorm:"column:name;not null"`
	Category       string           `gorm:"column:category;not null;index"`
	Price          decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	DiscountPrice  *decimal.Decimal `gorm:"column:discount_price;type:numeric(12,2)"`
	WholesalePrice decimal.Decimal  `gorm:"column:wholesale_price;type:numeric(12,2);not null"`
	Stock          int              `gorm:"column:stock;not null;default:0"`
	MaxOrderQty    *int             `gorm:"column:max_order_qty"`
	IsListed       bool             `gorm:"column:is_listed;not null;default:true"`
	Reviews        []ProductReview  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// UnitPriceFor resolves the price a cart freezes at add time: wholesalers get
// the wholesale tier, everyone else the discount price when present.
func (p *Product) UnitPriceFor(role enums.UserRole) decimal.Decimal {
	if role == enums.UserRoleWholesaler {
		return p.WholesalePrice
	}
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// PurchaseCap returns the maximum quantity a single cart may hold for this
// product right now.
func (p *Product) PurchaseCap() int {
	cap := p.Stock
	if p.MaxOrderQty != nil && *p.MaxOrderQty < cap {
		cap = *p.MaxOrderQty
	}
	if cap < 0 {
		return 0
	}
	return cap
}

// ProductReview is an ordered customer review attached to a product.
type ProductReview struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Rating    int       `gorm:"column:rating;not null"`
	Comment   string    `gorm:"column:comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *ProductReview) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

package seed

import (
	"github.com/shopspring/decimal"

	"github.com/rahulmehra/kiranakart/pkg/db/models"
)

// DefaultCatalog returns the starter inventory a fresh store boots with.
func DefaultCatalog() Catalog {
	return Catalog{
		Products: []models.Product{
			{
				Name:           "Basmati Rice 5kg",
				Category:       "Staples",
				Price:          price("650.00"),
				DiscountPrice:  pricePtr("599.00"),
				WholesalePrice: price("520.00"),
				Stock:          40,
				IsListed:       true,
			},
			{
				Name:           "Sunflower Oil 1L",
				Category:       "Staples",
				Price:          price("180.00"),
				WholesalePrice: price("150.00"),
				Stock:          60,
				MaxOrderQty:    intPtr(10),
				IsListed:       true,
			},
			{
				Name:           "Masala Chai 250g",
				Category:       "Beverages",
				Price:          price("120.00"),
				DiscountPrice:  pricePtr("99.00"),
				WholesalePrice: price("85.00"),
				Stock:          25,
				MaxOrderQty:    intPtr(5),
				IsListed:       true,
			},
			{
				Name:           "Jaggery Block 1kg",
				Category:       "Staples",
				Price:          price("90.00"),
				WholesalePrice: price("70.00"),
				Stock:          0,
				IsListed:       true,
			},
		},
	}
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func pricePtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func intPtr(value int) *int {
	return &value
}

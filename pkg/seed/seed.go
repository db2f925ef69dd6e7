package seed

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/db/models"
)

// Catalog is the data reinstalled on every boot. Users, carts, wishlists,
// and sessions are deliberately absent: they are the persisted subset and
// survive restarts.
type Catalog struct {
	Products []models.Product
	Orders   []models.Order
	Tickets  []models.Ticket
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Reset drops the non-persisted tables back to the seed catalog. Stock
// subscriptions are cleared alongside products because they reference
// catalog rows that no longer exist.
func Reset(ctx context.Context, db *gorm.DB, catalog Catalog) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errs error

		for _, model := range []any{
			&models.OrderNote{},
			&models.OrderItem{},
			&models.Order{},
			&models.TicketMessage{},
			&models.Ticket{},
			&models.ProductReview{},
			&models.StockSubscription{},
			&models.Product{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				errs = multierr.Append(errs, fmt.Errorf("clearing %T: %w", model, err))
			}
		}
		if errs != nil {
			return errs
		}

		for i := range catalog.Products {
			if err := tx.Create(&catalog.Products[i]).Error; err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seeding product %q: %w", catalog.Products[i].Name, err))
			}
		}
		for i := range catalog.Orders {
			if err := tx.Create(&catalog.Orders[i]).Error; err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seeding order %q: %w", catalog.Orders[i].Number, err))
			}
		}
		for i := range catalog.Tickets {
			if err := tx.Create(&catalog.Tickets[i]).Error; err != nil {
				errs = multierr.Append(errs, fmt.Errorf("seeding ticket %q: %w", catalog.Tickets[i].Subject, err))
			}
		}
		return errs
	})
}

package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/internal/users"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
	"github.com/rahulmehra/kiranakart/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the catalog: staff CRUD, stock, listing state, and
// customer reviews.
type Service interface {
	CreateProduct(ctx context.Context, input UpsertProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpsertProductInput) (*models.Product, error)
	SetStock(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, stock int) (*models.Product, error)
	SetListed(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, listed bool) error
	DeleteProduct(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID) error
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListListed(ctx context.Context, category string) ([]models.Product, error)
	ListAll(ctx context.Context, actorRole enums.UserRole) ([]models.Product, error)
	AddReview(ctx context.Context, input AddReviewInput) (*models.ProductReview, error)
	ListReviews(ctx context.Context, productID uuid.UUID) ([]models.ProductReview, error)
}

type service struct {
	repo     Repository
	subs     users.Repository
	tx       txRunner
	notifier notifications.Service
	logger   *logger.Logger
}

// UpsertProductInput carries staff catalog edits.
type UpsertProductInput struct {
	ActorRole      enums.UserRole
	Name           string           `validate:"required,max=160"`
	Category       string           `validate:"required,max=80"`
	Price          decimal.Decimal  `validate:"required"`
	DiscountPrice  *decimal.Decimal `validate:"omitempty"`
	WholesalePrice decimal.Decimal  `validate:"required"`
	Stock          int              `validate:"gte=0"`
	MaxOrderQty    *int             `validate:"omitempty,gt=0"`
	IsListed       bool
}

// AddReviewInput attaches a customer review to a product.
type AddReviewInput struct {
	UserID    uuid.UUID `validate:"required"`
	ProductID uuid.UUID `validate:"required"`
	Rating    int       `validate:"required,min=1,max=5"`
	Comment   string    `validate:"max=500"`
}

// NewService wires catalog dependencies.
func NewService(
	repo Repository,
	subs users.Repository,
	tx txRunner,
	notifier notifications.Service,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
	}
	if subs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, subs: subs, tx: tx, notifier: notifier, logger: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, input UpsertProductInput) (*models.Product, error) {
	if err := s.checkUpsert(input); err != nil {
		return nil, err
	}

	product := &models.Product{}
	applyUpsert(product, input)
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpsertProductInput) (*models.Product, error) {
	if err := s.checkUpsert(input); err != nil {
		return nil, err
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	wasOut := product.Stock == 0
	applyUpsert(product, input)

	if wasOut && product.Stock > 0 {
		if err := s.saveWithRestock(ctx, product); err != nil {
			return nil, err
		}
		return product, nil
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) checkUpsert(input UpsertProductInput) error {
	if !input.ActorRole.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if err := validate.Struct(input); err != nil {
		return err
	}
	if input.Price.IsNegative() || input.WholesalePrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "prices must be non-negative")
	}
	if input.DiscountPrice != nil {
		if input.DiscountPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount price must be non-negative")
		}
		if input.DiscountPrice.GreaterThan(input.Price) {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot exceed list price")
		}
	}
	return nil
}

func applyUpsert(product *models.Product, input UpsertProductInput) {
	product.Name = strings.TrimSpace(input.Name)
	product.Category = strings.TrimSpace(input.Category)
	product.Price = input.Price
	product.DiscountPrice = input.DiscountPrice
	product.WholesalePrice = input.WholesalePrice
	product.Stock = input.Stock
	product.MaxOrderQty = input.MaxOrderQty
	product.IsListed = input.IsListed
}

func (s *service) SetStock(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, stock int) (*models.Product, error) {
	if !actorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	restocked := product.Stock == 0 && stock > 0
	product.Stock = stock

	if restocked {
		if err := s.saveWithRestock(ctx, product); err != nil {
			return nil, err
		}
		return product, nil
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
	}
	return product, nil
}

// saveWithRestock persists a zero-to-positive stock change together with the
// back-in-stock fan-out. Subscriptions are one-shot: notified then cleared.
func (s *service) saveWithRestock(ctx context.Context, product *models.Product) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}

		subs, err := s.subs.WithTx(tx).ListStockSubscribers(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock subscribers")
		}

		link := fmt.Sprintf("products/%s", product.ID)
		for _, sub := range subs {
			err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
				UserID:  sub.UserID,
				Type:    enums.NotificationTypeBackInStock,
				Title:   "Back in stock",
				Message: fmt.Sprintf("%s is available again.", product.Name),
				Link:    &link,
			})
			if err != nil {
				return err
			}
		}

		if err := s.subs.WithTx(tx).DeleteStockSubscriptionsForProduct(ctx, product.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear stock subscriptions")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info(s.logger.WithField(ctx, "product_id", product.ID.String()), "product restocked")
	return nil
}

func (s *service) SetListed(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, listed bool) error {
	if !actorRole.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return err
	}

	product.IsListed = listed
	if err := s.repo.Update(ctx, product); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing state")
	}
	return nil
}

func (s *service) DeleteProduct(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID) error {
	if !actorRole.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}

	if _, err := s.Get(ctx, productID); err != nil {
		return err
	}

	refs, err := s.repo.CountReferences(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count product references")
	}
	if refs > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "product is referenced by carts or orders, unlist it instead")
	}

	if err := s.repo.Delete(ctx, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ListListed(ctx context.Context, category string) ([]models.Product, error) {
	products, err := s.repo.ListListed(ctx, strings.TrimSpace(category))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) ListAll(ctx context.Context, actorRole enums.UserRole) ([]models.Product, error) {
	if !actorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	products, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) AddReview(ctx context.Context, input AddReviewInput) (*models.ProductReview, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, input.ProductID); err != nil {
		return nil, err
	}

	review := &models.ProductReview{
		ProductID: input.ProductID,
		UserID:    input.UserID,
		Rating:    input.Rating,
		Comment:   strings.TrimSpace(input.Comment),
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	return review, nil
}

func (s *service) ListReviews(ctx context.Context, productID uuid.UUID) ([]models.ProductReview, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	reviews, err := s.repo.ListReviews(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	return reviews, nil
}

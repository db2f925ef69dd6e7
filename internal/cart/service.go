package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/internal/products"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
)

// Flash copy for the transient slot. Tests assert on these.
const (
	msgOutOfStock   = "Out of stock"
	msgNoMoreStock  = "No more stock available"
	msgLimitReached = "Item limit reached"
)

// Service maintains per-user cart lines, clamping every mutation against
// current stock and the per-item purchase cap.
type Service interface {
	AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error)
	AddLines(ctx context.Context, userID uuid.UUID, role enums.UserRole, lines []Line) error
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	Items(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	Total(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ItemCount(ctx context.Context, userID uuid.UUID) (int, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	catalog  products.Service
	notifier notifications.Service
	logger   *logger.Logger
}

// AddItemInput adds quantity of a product to the actor's cart.
type AddItemInput struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	ProductID uuid.UUID
	Quantity  int
}

// Line is one entry of a bulk add, used by reorder-from-history.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// NewService wires cart dependencies.
func NewService(
	repo Repository,
	catalog products.Service,
	notifier notifications.Service,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart repository required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products service required")
	}
	if notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, catalog: catalog, notifier: notifier, logger: logg}, nil
}

func (s *service) AddItem(ctx context.Context, input AddItemInput) (*models.CartItem, error) {
	if input.UserID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and product id required")
	}
	if input.Quantity <= 0 {
		return nil, nil
	}

	product, err := s.catalog.Get(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsListed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product is not available")
	}

	item, err := s.addClamped(ctx, input.UserID, input.Role, product, input.Quantity, true)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// addClamped applies one add against current bounds. The cumulative quantity
// for a product never exceeds min(stock, maxOrderQty) regardless of how many
// adds arrive.
func (s *service) addClamped(
	ctx context.Context,
	userID uuid.UUID,
	role enums.UserRole,
	product *models.Product,
	quantity int,
	flash bool,
) (*models.CartItem, error) {
	cap := product.PurchaseCap()
	if cap == 0 {
		if flash {
			if err := s.notifier.Flash(ctx, msgOutOfStock); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	existing, err := s.repo.Get(ctx, userID, product.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	held := 0
	if existing != nil {
		held = existing.Quantity
	}

	target := held + quantity
	if target > cap {
		target = cap
	}
	delta := target - held

	if delta == 0 {
		if flash {
			if err := s.notifier.Flash(ctx, s.limitMessage(product)); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if existing == nil {
		existing = &models.CartItem{
			UserID:      userID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    target,
			UnitPrice:   product.UnitPriceFor(role),
		}
		if err := s.repo.Create(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
	} else {
		if err := s.repo.SetQuantity(ctx, existing.ID, target); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
		}
		existing.Quantity = target
	}

	if flash {
		message := fmt.Sprintf("Added %d × %s to cart", delta, product.Name)
		if delta < quantity {
			message = fmt.Sprintf("Only %d × %s added, limit reached", delta, product.Name)
		}
		if err := s.notifier.Flash(ctx, message); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// limitMessage distinguishes why nothing more could be added.
func (s *service) limitMessage(product *models.Product) string {
	if product.MaxOrderQty != nil && *product.MaxOrderQty <= product.Stock {
		return msgLimitReached
	}
	return msgNoMoreStock
}

// AddLines merges a batch of lines into the cart, summing quantities per
// product. Each line is clamped against current stock and cap; quantities
// from past orders are not trusted blindly.
func (s *service) AddLines(ctx context.Context, userID uuid.UUID, role enums.UserRole, lines []Line) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if len(lines) == 0 {
		return nil
	}

	merged := make(map[uuid.UUID]int, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 || line.ProductID == uuid.Nil {
			continue
		}
		if _, seen := merged[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		merged[line.ProductID] += line.Quantity
	}

	added, clamped := 0, false
	for _, productID := range order {
		product, err := s.catalog.Get(ctx, productID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				clamped = true
				continue
			}
			return err
		}
		if !product.IsListed {
			clamped = true
			continue
		}

		item, err := s.addClamped(ctx, userID, role, product, merged[productID], false)
		if err != nil {
			return err
		}
		if item == nil || item.Quantity < merged[productID] {
			clamped = true
		}
		if item != nil {
			added++
		}
	}

	message := "Items added to cart"
	if added == 0 {
		message = msgOutOfStock
	} else if clamped {
		message = "Items added to cart, some quantities adjusted"
	}
	return s.notifier.Flash(ctx, message)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and product id required")
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	item, err := s.repo.Get(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return err
	}

	target := quantity
	if cap := product.PurchaseCap(); target > cap {
		target = cap
	}
	if target == 0 {
		if err := s.repo.Delete(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		return s.notifier.Flash(ctx, msgOutOfStock)
	}

	if err := s.repo.SetQuantity(ctx, item.ID, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}
	if target < quantity {
		return s.notifier.Flash(ctx, s.limitMessage(product))
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and product id required")
	}

	item, err := s.repo.Get(ctx, userID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if err := s.repo.Delete(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return nil
}

func (s *service) Items(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}
	return items, nil
}

func (s *service) Total(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].LineTotal())
	}
	return total, nil
}

func (s *service) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range items {
		count += items[i].Quantity
	}
	return count, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

package cart

import (
	"context"
	"io"
	"testing"

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

type fakeRepository struct {
	items map[uuid.UUID]*models.CartItem
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: make(map[uuid.UUID]*models.CartItem)}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Get(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	for _, item := range f.items {
		if item.UserID == userID && item.ProductID == productID {
			copy := *item
			return &copy, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var out []models.CartItem
	for _, item := range f.items {
		if item.UserID == userID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeRepository) Create(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	copy := *item
	f.items[item.ID] = &copy
	return nil
}

func (f *fakeRepository) SetQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	if item, ok := f.items[itemID]; ok {
		item.Quantity = quantity
	}
	return nil
}

func (f *fakeRepository) Delete(ctx context.Context, itemID uuid.UUID) error {
	delete(f.items, itemID)
	return nil
}

func (f *fakeRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	for id, item := range f.items {
		if item.UserID == userID {
			delete(f.items, id)
		}
	}
	return nil
}

type fakeCatalog struct {
	products map[uuid.UUID]*models.Product
}

func (f *fakeCatalog) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if product, ok := f.products[productID]; ok {
		copy := *product
		return &copy, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func (f *fakeCatalog) CreateProduct(ctx context.Context, input products.UpsertProductInput) (*models.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) UpdateProduct(ctx context.Context, productID uuid.UUID, input products.UpsertProductInput) (*models.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) SetStock(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, stock int) (*models.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) SetListed(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID, listed bool) error {
	return nil
}

func (f *fakeCatalog) DeleteProduct(ctx context.Context, actorRole enums.UserRole, productID uuid.UUID) error {
	return nil
}

func (f *fakeCatalog) ListListed(ctx context.Context, category string) ([]models.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) ListAll(ctx context.Context, actorRole enums.UserRole) ([]models.Product, error) {
	return nil, nil
}

func (f *fakeCatalog) AddReview(ctx context.Context, input products.AddReviewInput) (*models.ProductReview, error) {
	return nil, nil
}

func (f *fakeCatalog) ListReviews(ctx context.Context, productID uuid.UUID) ([]models.ProductReview, error) {
	return nil, nil
}

type fakeNotifier struct {
	flashes []string
	records []notifications.NotifyInput
}

func (f *fakeNotifier) Notify(ctx context.Context, input notifications.NotifyInput) error {
	f.records = append(f.records, input)
	return nil
}

func (f *fakeNotifier) NotifyTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) error {
	f.records = append(f.records, input)
	return nil
}

func (f *fakeNotifier) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (f *fakeNotifier) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (f *fakeNotifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeNotifier) Flash(ctx context.Context, message string) error {
	f.flashes = append(f.flashes, message)
	return nil
}

func (f *fakeNotifier) PeekFlash(ctx context.Context) (string, bool, error) {
	if len(f.flashes) == 0 {
		return "", false, nil
	}
	return f.flashes[len(f.flashes)-1], true, nil
}

func (f *fakeNotifier) ClearFlash(ctx context.Context) error {
	f.flashes = nil
	return nil
}

func intPtr(v int) *int { return &v }

func price(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func newTestService(t *testing.T, catalog *fakeCatalog) (Service, *fakeRepository, *fakeNotifier) {
	t.Helper()
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	svc, err := NewService(repo, catalog, notifier, logger.New(logger.Options{Output: io.Discard}))
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc, repo, notifier
}

func TestAddItemClampsToStockAndCap(t *testing.T) {
	product := &models.Product{
		ID:          uuid.New(),
		Name:        "Toor Dal 1kg",
		Price:       price("160.00"),
		Stock:       5,
		MaxOrderQty: intPtr(3),
		IsListed:    true,
	}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, _, notifier := newTestService(t, catalog)
	userID := uuid.New()

	item, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", item.Quantity)
	}

	item, err = svc.AddItem(context.Background(), AddItemInput{
		UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("unexpected second add error: %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("expected quantity to stay 3, got %d", item.Quantity)
	}

	if len(notifier.flashes) != 2 {
		t.Fatalf("expected 2 flashes, got %d: %v", len(notifier.flashes), notifier.flashes)
	}
	if notifier.flashes[1] != msgLimitReached {
		t.Fatalf("expected second flash %q, got %q", msgLimitReached, notifier.flashes[1])
	}
}

func TestAddItemCumulativeClampNeverExceedsBound(t *testing.T) {
	product := &models.Product{
		ID:       uuid.New(),
		Name:     "Basmati Rice 5kg",
		Price:    price("520.00"),
		Stock:    7,
		IsListed: true,
	}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, _, _ := newTestService(t, catalog)
	userID := uuid.New()

	for _, qty := range []int{2, 2, 2, 2, 5, 1} {
		if _, err := svc.AddItem(context.Background(), AddItemInput{
			UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: qty,
		}); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}

		items, err := svc.Items(context.Background(), userID)
		if err != nil {
			t.Fatalf("unexpected items error: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected a single line, got %d", len(items))
		}
		if items[0].Quantity > product.Stock {
			t.Fatalf("quantity %d exceeds stock %d", items[0].Quantity, product.Stock)
		}
	}
}

func TestAddItemZeroQuantityIsNoop(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "Salt", Price: price("25.00"), Stock: 10, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, repo, notifier := newTestService(t, catalog)

	item, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: uuid.New(), Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatal("expected no item for zero quantity")
	}
	if len(repo.items) != 0 || len(notifier.flashes) != 0 {
		t.Fatal("expected no side effects for zero quantity")
	}
}

func TestAddItemOutOfStock(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "Jaggery Block 1kg", Price: price("85.00"), Stock: 0, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, repo, notifier := newTestService(t, catalog)

	item, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: uuid.New(), Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != nil {
		t.Fatal("expected no item when out of stock")
	}
	if len(repo.items) != 0 {
		t.Fatal("expected empty cart")
	}
	if len(notifier.flashes) != 1 || notifier.flashes[0] != msgOutOfStock {
		t.Fatalf("expected out-of-stock flash, got %v", notifier.flashes)
	}
}

func TestAddItemWholesalerPriceFrozen(t *testing.T) {
	discount := price("140.00")
	product := &models.Product{
		ID:             uuid.New(),
		Name:           "Toor Dal 1kg",
		Price:          price("160.00"),
		DiscountPrice:  &discount,
		WholesalePrice: price("120.00"),
		Stock:          10,
		IsListed:       true,
	}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, _, _ := newTestService(t, catalog)

	item, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: uuid.New(), Role: enums.UserRoleWholesaler, ProductID: product.ID, Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !item.UnitPrice.Equal(product.WholesalePrice) {
		t.Fatalf("expected wholesale price %s, got %s", product.WholesalePrice, item.UnitPrice)
	}

	// A later price change must not reach back into the cart line.
	product.WholesalePrice = price("999.00")
	items, _ := svc.Items(context.Background(), item.UserID)
	if !items[0].UnitPrice.Equal(price("120.00")) {
		t.Fatalf("expected frozen price 120.00, got %s", items[0].UnitPrice)
	}
}

func TestTotalInvariantUnderReordering(t *testing.T) {
	a := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.50"), Stock: 100, IsListed: true}
	b := &models.Product{ID: uuid.New(), Name: "B", Price: price("7.25"), Stock: 100, IsListed: true}
	c := &models.Product{ID: uuid.New(), Name: "C", Price: price("99.99"), Stock: 100, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{a.ID: a, b.ID: b, c.ID: c}}

	expected := price("10.50").Mul(decimal.NewFromInt(3)).
		Add(price("7.25").Mul(decimal.NewFromInt(2))).
		Add(price("99.99"))

	for _, order := range [][]*models.Product{{a, b, c}, {c, a, b}, {b, c, a}} {
		svc, _, _ := newTestService(t, catalog)
		userID := uuid.New()
		quantities := map[uuid.UUID]int{a.ID: 3, b.ID: 2, c.ID: 1}
		for _, product := range order {
			if _, err := svc.AddItem(context.Background(), AddItemInput{
				UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: quantities[product.ID],
			}); err != nil {
				t.Fatalf("unexpected add error: %v", err)
			}
		}

		total, err := svc.Total(context.Background(), userID)
		if err != nil {
			t.Fatalf("unexpected total error: %v", err)
		}
		if !total.Equal(expected) {
			t.Fatalf("expected total %s, got %s", expected, total)
		}
	}
}

func TestAddLinesMergesAndReclamps(t *testing.T) {
	a := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.00"), Stock: 4, IsListed: true}
	b := &models.Product{ID: uuid.New(), Name: "B", Price: price("20.00"), Stock: 100, MaxOrderQty: intPtr(2), IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{a.ID: a, b.ID: b}}
	svc, _, notifier := newTestService(t, catalog)
	userID := uuid.New()

	err := svc.AddLines(context.Background(), userID, enums.UserRoleRetailer, []Line{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 5},
		{ProductID: a.ID, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("unexpected bulk add error: %v", err)
	}

	items, _ := svc.Items(context.Background(), userID)
	byProduct := map[uuid.UUID]int{}
	for _, item := range items {
		byProduct[item.ProductID] = item.Quantity
	}
	if byProduct[a.ID] != 4 {
		t.Fatalf("expected product A clamped to stock 4, got %d", byProduct[a.ID])
	}
	if byProduct[b.ID] != 2 {
		t.Fatalf("expected product B clamped to cap 2, got %d", byProduct[b.ID])
	}

	// Bulk add is one mutation, one flash.
	if len(notifier.flashes) != 1 {
		t.Fatalf("expected a single flash, got %v", notifier.flashes)
	}
}

func TestUpdateQuantityZeroRemoves(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.00"), Stock: 10, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, repo, _ := newTestService(t, catalog)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 2,
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := svc.UpdateQuantity(context.Background(), userID, product.ID, 0); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(repo.items) != 0 {
		t.Fatal("expected item removed")
	}
}

func TestUpdateQuantityClamps(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.00"), Stock: 5, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, _, notifier := newTestService(t, catalog)
	userID := uuid.New()

	if _, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 1,
	}); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := svc.UpdateQuantity(context.Background(), userID, product.ID, 50); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	items, _ := svc.Items(context.Background(), userID)
	if items[0].Quantity != 5 {
		t.Fatalf("expected quantity clamped to 5, got %d", items[0].Quantity)
	}
	last := notifier.flashes[len(notifier.flashes)-1]
	if last != msgNoMoreStock {
		t.Fatalf("expected clamp flash %q, got %q", msgNoMoreStock, last)
	}
}

func TestClearAndItemCount(t *testing.T) {
	a := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.00"), Stock: 10, IsListed: true}
	b := &models.Product{ID: uuid.New(), Name: "B", Price: price("20.00"), Stock: 10, IsListed: true}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{a.ID: a, b.ID: b}}
	svc, _, _ := newTestService(t, catalog)
	userID := uuid.New()

	for product, qty := range map[*models.Product]int{a: 3, b: 4} {
		if _, err := svc.AddItem(context.Background(), AddItemInput{
			UserID: userID, Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: qty,
		}); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}

	count, err := svc.ItemCount(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected count 7, got %d", count)
	}

	if err := svc.Clear(context.Background(), userID); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	count, _ = svc.ItemCount(context.Background(), userID)
	if count != 0 {
		t.Fatalf("expected empty cart, got count %d", count)
	}
}

func TestAddItemUnlistedProduct(t *testing.T) {
	product := &models.Product{ID: uuid.New(), Name: "A", Price: price("10.00"), Stock: 10, IsListed: false}
	catalog := &fakeCatalog{products: map[uuid.UUID]*models.Product{product.ID: product}}
	svc, _, _ := newTestService(t, catalog)

	_, err := svc.AddItem(context.Background(), AddItemInput{
		UserID: uuid.New(), Role: enums.UserRoleRetailer, ProductID: product.ID, Quantity: 1,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

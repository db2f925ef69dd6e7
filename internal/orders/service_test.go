package orders

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/internal/cart"
	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/internal/users"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
	"github.com/rahulmehra/kiranakart/pkg/metrics"
	"github.com/rahulmehra/kiranakart/pkg/pagination"
)

type fakeRepository struct {
	orders map[uuid.UUID]*models.Order
	notes  []models.OrderNote
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{orders: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	stored := *order
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := f.orders[id]; ok {
		found := *order
		return &found, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) Update(ctx context.Context, order *models.Order) error {
	stored := *order
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeRepository) MaxNumber(ctx context.Context) (int, error) {
	max := 0
	for _, order := range f.orders {
		n, err := strconv.Atoi(order.Number)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (f *fakeRepository) List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	var out []models.Order
	for _, order := range f.orders {
		if params.UserID != nil && order.UserID != *params.UserID {
			continue
		}
		out = append(out, *order)
	}
	return out, nil, nil
}

func (f *fakeRepository) CreateNote(ctx context.Context, note *models.OrderNote) error {
	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	f.notes = append(f.notes, *note)
	return nil
}

type fakeCart struct {
	items   []models.CartItem
	cleared bool
}

func (f *fakeCart) AddItem(ctx context.Context, input cart.AddItemInput) (*models.CartItem, error) {
	return nil, nil
}

func (f *fakeCart) AddLines(ctx context.Context, userID uuid.UUID, role enums.UserRole, lines []cart.Line) error {
	return nil
}

func (f *fakeCart) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	return nil
}

func (f *fakeCart) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

func (f *fakeCart) Items(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	return f.items, nil
}

func (f *fakeCart) Total(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range f.items {
		total = total.Add(f.items[i].LineTotal())
	}
	return total, nil
}

func (f *fakeCart) ItemCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return len(f.items), nil
}

func (f *fakeCart) Clear(ctx context.Context, userID uuid.UUID) error {
	f.cleared = true
	f.items = nil
	return nil
}

type fakeUsers struct {
	user      *models.User
	mutations []users.WalletMutation
}

func (f *fakeUsers) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	found := *f.user
	return &found, nil
}

func (f *fakeUsers) CreditWallet(ctx context.Context, input users.CreditWalletInput) (*models.WalletEntry, error) {
	return nil, nil
}

func (f *fakeUsers) ApplyWalletTx(ctx context.Context, tx *gorm.DB, input users.WalletMutation) (*models.WalletEntry, error) {
	if input.Amount.IsNegative() && f.user.WalletBalance.Add(input.Amount).IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient wallet balance")
	}
	f.user.WalletBalance = f.user.WalletBalance.Add(input.Amount)
	f.mutations = append(f.mutations, input)
	return &models.WalletEntry{
		UserID:       input.UserID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: f.user.WalletBalance,
	}, nil
}

func (f *fakeUsers) WalletHistory(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*users.WalletHistoryResult, error) {
	return &users.WalletHistoryResult{}, nil
}

func (f *fakeUsers) SetNotificationPrefs(ctx context.Context, userID uuid.UUID, prefs models.NotificationPrefs) error {
	return nil
}

func (f *fakeUsers) SubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

func (f *fakeUsers) UnsubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error {
	return nil
}

func (f *fakeUsers) UpdateKhata(ctx context.Context, input users.UpdateKhataInput) (*models.User, error) {
	return nil, nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, input users.UpdateProfileInput) (*models.User, error) {
	return nil, nil
}

func (f *fakeUsers) PrefsFor(ctx context.Context, userID uuid.UUID) (models.NotificationPrefs, error) {
	return models.DefaultNotificationPrefs(), nil
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
	return "", false, nil
}

func (f *fakeNotifier) ClearFlash(ctx context.Context) error { return nil }

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func price(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

type harness struct {
	svc      Service
	repo     *fakeRepository
	cart     *fakeCart
	users    *fakeUsers
	notifier *fakeNotifier
}

func newHarness(t *testing.T, user *models.User, lines []models.CartItem) *harness {
	t.Helper()
	repo := newFakeRepository()
	cartSvc := &fakeCart{items: lines}
	usersSvc := &fakeUsers{user: user}
	notifier := &fakeNotifier{}

	svc, err := NewService(
		repo, cartSvc, usersSvc, fakeTx{}, notifier,
		metrics.NewOrderMetrics(prometheus.NewRegistry()),
		logger.New(logger.Options{Output: io.Discard}),
	)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &harness{svc: svc, repo: repo, cart: cartSvc, users: usersSvc, notifier: notifier}
}

func testUser() *models.User {
	return &models.User{
		ID:            uuid.New(),
		Name:          "Rekha",
		Email:         "rekha@example.com",
		Role:          enums.UserRoleRetailer,
		WalletBalance: price("1000.00"),
	}
}

func testLines() []models.CartItem {
	return []models.CartItem{
		{ProductID: uuid.New(), ProductName: "Toor Dal 1kg", Quantity: 2, UnitPrice: price("160.00")},
		{ProductID: uuid.New(), ProductName: "Salt 1kg", Quantity: 1, UnitPrice: price("25.00")},
	}
}

func TestCreateAssignsNextPaddedNumber(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, testLines())

	for _, number := range []string{"00001", "00003"} {
		existing := &models.Order{ID: uuid.New(), Number: number, UserID: user.ID}
		h.repo.orders[existing.ID] = existing
	}

	order, err := h.svc.Create(context.Background(), CreateInput{
		UserID: user.ID, PaymentMethod: enums.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if order.Number != "00004" {
		t.Fatalf("expected order number 00004, got %s", order.Number)
	}
}

func TestCreateSnapshotsCartAndClearsIt(t *testing.T) {
	user := testUser()
	lines := testLines()
	h := newHarness(t, user, lines)

	order, err := h.svc.Create(context.Background(), CreateInput{
		UserID: user.ID, PaymentMethod: enums.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if !order.PaymentApproved {
		t.Fatal("expected cash on delivery to settle immediately")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	expected := price("160.00").Mul(decimal.NewFromInt(2)).Add(price("25.00"))
	if !order.Total.Equal(expected) {
		t.Fatalf("expected total %s, got %s", expected, order.Total)
	}
	if order.UserName != user.Name || order.UserEmail != user.Email {
		t.Fatal("expected user snapshot on order")
	}
	if !h.cart.cleared {
		t.Fatal("expected cart cleared after placement")
	}
}

func TestCreateCardRequiresManualApproval(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, testLines())

	order, err := h.svc.Create(context.Background(), CreateInput{
		UserID: user.ID, PaymentMethod: enums.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if order.PaymentApproved {
		t.Fatal("expected card payment to await approval")
	}
}

func TestCreateWalletMethodDebitsWallet(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, testLines())

	order, err := h.svc.Create(context.Background(), CreateInput{
		UserID: user.ID, PaymentMethod: enums.PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	if len(h.users.mutations) != 1 {
		t.Fatalf("expected one wallet mutation, got %d", len(h.users.mutations))
	}
	debit := h.users.mutations[0]
	if debit.Type != enums.WalletEntryTypePayment {
		t.Fatalf("expected payment entry, got %s", debit.Type)
	}
	if !debit.Amount.Equal(order.Total.Neg()) {
		t.Fatalf("expected debit %s, got %s", order.Total.Neg(), debit.Amount)
	}
}

func TestCreateEmptyCart(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)

	_, err := h.svc.Create(context.Background(), CreateInput{
		UserID: user.ID, PaymentMethod: enums.PaymentMethodCard,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for empty cart, got %v", err)
	}
}

func TestCancelPendingOrder(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00001", UserID: user.ID,
		Status: enums.OrderStatusPending, PaymentMethod: enums.PaymentMethodCashOnDelivery,
		PaymentApproved: true, Total: price("100.00"),
	}
	h.repo.orders[order.ID] = order

	updated, err := h.svc.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if updated.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
}

func TestCancelDeliveredOrderIsNoop(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00001", UserID: user.ID,
		Status: enums.OrderStatusDelivered, PaymentMethod: enums.PaymentMethodCard,
		PaymentApproved: true, Total: price("100.00"),
	}
	h.repo.orders[order.ID] = order

	updated, err := h.svc.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if updated.Status != enums.OrderStatusDelivered {
		t.Fatalf("expected status unchanged, got %s", updated.Status)
	}
	if len(h.users.mutations) != 0 {
		t.Fatal("expected no refund for delivered order")
	}
}

func TestCancelApprovedCardOrderRefundsExactlyOnce(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusPending, PaymentMethod: enums.PaymentMethodCard,
		PaymentApproved: true, Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order
	before := user.WalletBalance

	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	if len(h.users.mutations) != 1 {
		t.Fatalf("expected exactly one refund, got %d", len(h.users.mutations))
	}
	refund := h.users.mutations[0]
	if refund.Type != enums.WalletEntryTypeRefund {
		t.Fatalf("expected refund entry, got %s", refund.Type)
	}
	if !refund.Amount.Equal(order.Total) {
		t.Fatalf("expected refund %s, got %s", order.Total, refund.Amount)
	}
	if !refund.Notify {
		t.Fatal("expected wallet-credit notification attached to refund")
	}
	if !h.users.user.WalletBalance.Equal(before.Add(order.Total)) {
		t.Fatalf("expected balance %s, got %s", before.Add(order.Total), h.users.user.WalletBalance)
	}

	// Cancelling again is a no-op, never a second refund.
	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("unexpected second update error: %v", err)
	}
	if len(h.users.mutations) != 1 {
		t.Fatalf("expected still one refund, got %d", len(h.users.mutations))
	}
}

func TestCancelCashOnDeliveryNeverRefunds(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusApproved, PaymentMethod: enums.PaymentMethodCashOnDelivery,
		PaymentApproved: true, Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order
	before := user.WalletBalance

	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(h.users.mutations) != 0 {
		t.Fatal("expected no wallet mutation for cash on delivery")
	}
	if !h.users.user.WalletBalance.Equal(before) {
		t.Fatal("expected wallet balance unchanged")
	}
}

func TestCancelUnapprovedPaymentNoRefund(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusPending, PaymentMethod: enums.PaymentMethodCard,
		PaymentApproved: false, Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order

	if _, err := h.svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusCancelled); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(h.users.mutations) != 0 {
		t.Fatal("expected no refund when payment was never captured")
	}
}

func TestUpdateStatusDeliveredStampsDate(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusApproved, PaymentMethod: enums.PaymentMethodCard,
		PaymentApproved: true, Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order

	updated, err := h.svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusDelivered)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.DeliveredAt == nil {
		t.Fatal("expected delivered date set")
	}
}

func TestApprovePaymentIsIdempotent(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusPending, PaymentMethod: enums.PaymentMethodCard,
		Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order

	first, err := h.svc.ApprovePayment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected approve error: %v", err)
	}
	if !first.PaymentApproved || first.Status != enums.OrderStatusApproved {
		t.Fatalf("expected approved order, got %+v", first)
	}

	recorded := len(h.notifier.records)
	second, err := h.svc.ApprovePayment(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("unexpected second approve error: %v", err)
	}
	if second.Status != enums.OrderStatusApproved {
		t.Fatalf("expected status unchanged, got %s", second.Status)
	}
	if len(h.notifier.records) != recorded {
		t.Fatal("expected no extra notification on repeat approval")
	}
}

func TestSetDeliveryReviewOnlyDelivered(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusApproved, PaymentMethod: enums.PaymentMethodCard,
		PaymentApproved: true, Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order

	_, err := h.svc.SetDeliveryReview(context.Background(), DeliveryReviewInput{
		OrderID: order.ID, Rating: 5, Comment: "great",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	order.Status = enums.OrderStatusDelivered
	h.repo.orders[order.ID] = order
	reviewed, err := h.svc.SetDeliveryReview(context.Background(), DeliveryReviewInput{
		OrderID: order.ID, Rating: 5, Comment: "great",
	})
	if err != nil {
		t.Fatalf("unexpected review error: %v", err)
	}
	if reviewed.DeliveryRating == nil || *reviewed.DeliveryRating != 5 {
		t.Fatal("expected rating recorded")
	}
}

func TestAppendNote(t *testing.T) {
	user := testUser()
	h := newHarness(t, user, nil)
	order := &models.Order{
		ID: uuid.New(), Number: "00002", UserID: user.ID,
		Status: enums.OrderStatusPending, PaymentMethod: enums.PaymentMethodCard,
		Total: price("345.00"),
	}
	h.repo.orders[order.ID] = order

	note, err := h.svc.AppendNote(context.Background(), order.ID, "admin", "customer called")
	if err != nil {
		t.Fatalf("unexpected note error: %v", err)
	}
	if note.Body != "customer called" {
		t.Fatalf("unexpected note body %q", note.Body)
	}
	if len(h.repo.notes) != 1 {
		t.Fatalf("expected one stored note, got %d", len(h.repo.notes))
	}
}

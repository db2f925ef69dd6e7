package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the order state machine: pending → approved →
// {delivered, cancelled}, with payment approval tracked orthogonally.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	ApprovePayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	AppendNote(ctx context.Context, orderID uuid.UUID, author, body string) (*models.OrderNote, error)
	SetDeliveryReview(ctx context.Context, input DeliveryReviewInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo     Repository
	cart     cart.Service
	users    users.Service
	tx       txRunner
	notifier notifications.Service
	metrics  *metrics.OrderMetrics
	logger   *logger.Logger
	now      func() time.Time
}

// CreateInput places an order from the actor's current cart.
type CreateInput struct {
	UserID        uuid.UUID
	PaymentMethod enums.PaymentMethod
}

// DeliveryReviewInput rates a delivered order.
type DeliveryReviewInput struct {
	OrderID uuid.UUID
	Rating  int
	Comment string
}

// ListParams configures order listing, date descending.
type ListParams struct {
	UserID *uuid.UUID
	Limit  int
	Cursor string
}

// ListResult wraps a page of orders and the cursor for the next page.
type ListResult struct {
	Orders []models.Order `json:"orders"`
	Cursor string         `json:"cursor"`
}

// NewService wires order dependencies.
func NewService(
	repo Repository,
	cartSvc cart.Service,
	usersSvc users.Service,
	tx txRunner,
	notifier notifications.Service,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if cartSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart service required")
	}
	if usersSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users service required")
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
	return &service{
		repo:     repo,
		cart:     cartSvc,
		users:    usersSvc,
		tx:       tx,
		notifier: notifier,
		metrics:  orderMetrics,
		logger:   logg,
		now:      time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}

	user, err := s.users.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	lines, err := s.cart.Items(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is empty")
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		max, err := repo.MaxNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order number")
		}

		draft := &models.Order{
			Number:          fmt.Sprintf("%05d", max+1),
			UserID:          user.ID,
			UserName:        user.Name,
			UserEmail:       user.Email,
			Status:          enums.OrderStatusPending,
			PaymentMethod:   input.PaymentMethod,
			PaymentApproved: input.PaymentMethod.SettlesImmediately(),
			PlacedAt:        s.now().UTC(),
		}
		for i := range lines {
			draft.Items = append(draft.Items, models.OrderItem{
				ProductID: lines[i].ProductID,
				Name:      lines[i].ProductName,
				Quantity:  lines[i].Quantity,
				UnitPrice: lines[i].UnitPrice,
				LineTotal: lines[i].LineTotal(),
			})
			draft.Total = draft.Total.Add(lines[i].LineTotal())
		}

		if err := repo.Create(ctx, draft); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if input.PaymentMethod == enums.PaymentMethodWallet {
			orderID := draft.ID
			_, err := s.users.ApplyWalletTx(ctx, tx, users.WalletMutation{
				UserID:  user.ID,
				Type:    enums.WalletEntryTypePayment,
				Amount:  draft.Total.Neg(),
				Reason:  fmt.Sprintf("Payment for order #%s", draft.Number),
				OrderID: &orderID,
			})
			if err != nil {
				return err
			}
		}

		if err := s.notifyTx(ctx, tx, draft, "Order placed",
			fmt.Sprintf("Order #%s placed for ₹%s.", draft.Number, draft.Total.StringFixed(2))); err != nil {
			return err
		}

		order = draft
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cart.Clear(ctx, input.UserID); err != nil {
		return nil, err
	}
	if err := s.notifier.Flash(ctx, fmt.Sprintf("Order #%s placed", order.Number)); err != nil {
		return nil, err
	}
	s.metrics.IncCreated()

	ctx = s.logger.WithOrderNumber(s.logger.WithUserID(ctx, user.ID.String()), order.Number)
	s.logger.Info(ctx, "order created")
	return order, nil
}

func (s *service) ApprovePayment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Safe to call twice.
	if order.PaymentApproved && order.Status != enums.OrderStatusPending {
		return order, nil
	}

	order.PaymentApproved = true
	if order.Status == enums.OrderStatusPending {
		order.Status = enums.OrderStatusApproved
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		return s.notifyTx(ctx, tx, order, "Payment approved",
			fmt.Sprintf("Payment for order #%s was approved.", order.Number))
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Flash(ctx, fmt.Sprintf("Order #%s approved", order.Number)); err != nil {
		return nil, err
	}
	s.metrics.IncTransition(order.Status.String())
	return order, nil
}

// Cancel is legal only from pending. Any other state is left untouched and
// the unchanged order is returned without error.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return order, nil
	}
	return s.transition(ctx, order, enums.OrderStatusCancelled)
}

// UpdateStatus is the administrative override: any state to any state.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	return s.transition(ctx, order, status)
}

// transition applies a status change with its side effects. On cancellation
// the refund fires only when payment was captured and the goods were never
// delivered: approved payment, non-cash method, prior status not delivered.
func (s *service) transition(ctx context.Context, order *models.Order, status enums.OrderStatus) (*models.Order, error) {
	prior := order.Status
	order.Status = status

	refund := status == enums.OrderStatusCancelled &&
		order.PaymentApproved &&
		order.PaymentMethod != enums.PaymentMethodCashOnDelivery &&
		prior != enums.OrderStatusDelivered

	if status == enums.OrderStatusDelivered && order.DeliveredAt == nil {
		now := s.now().UTC()
		order.DeliveredAt = &now
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		if refund {
			orderID := order.ID
			_, err := s.users.ApplyWalletTx(ctx, tx, users.WalletMutation{
				UserID:  order.UserID,
				Type:    enums.WalletEntryTypeRefund,
				Amount:  order.Total,
				Reason:  fmt.Sprintf("Refund for cancelled order #%s", order.Number),
				OrderID: &orderID,
				Notify:  true,
			})
			if err != nil {
				return err
			}
		}

		return s.notifyTx(ctx, tx, order, "Order update",
			fmt.Sprintf("Order #%s is now %s.", order.Number, order.Status))
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Flash(ctx, fmt.Sprintf("Order #%s %s", order.Number, order.Status)); err != nil {
		return nil, err
	}
	s.metrics.IncTransition(status.String())
	if refund {
		s.metrics.IncRefund()
	}

	ctx = s.logger.WithOrderNumber(ctx, order.Number)
	s.logger.Info(s.logger.WithField(ctx, "status", status.String()), "order transitioned")
	return order, nil
}

// notifyTx records the persistent order notification; user preferences are
// honored inside the dispatcher.
func (s *service) notifyTx(ctx context.Context, tx *gorm.DB, order *models.Order, title, message string) error {
	link := fmt.Sprintf("orders/%s", order.Number)
	return s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
		UserID:  order.UserID,
		Type:    enums.NotificationTypeOrderUpdate,
		Title:   title,
		Message: message,
		Link:    &link,
	})
}

func (s *service) AppendNote(ctx context.Context, orderID uuid.UUID, author, body string) (*models.OrderNote, error) {
	author = strings.TrimSpace(author)
	body = strings.TrimSpace(body)
	if author == "" || body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author and body required")
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	note := &models.OrderNote{OrderID: order.ID, Author: author, Body: body}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order note")
	}
	return note, nil
}

func (s *service) SetDeliveryReview(ctx context.Context, input DeliveryReviewInput) (*models.Order, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}

	order, err := s.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be reviewed")
	}

	comment := strings.TrimSpace(input.Comment)
	order.DeliveryRating = &input.Rating
	order.DeliveryReview = &comment
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listOrdersParams{UserID: params.UserID, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	orders, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Orders: orders}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

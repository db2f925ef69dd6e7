package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/pkg/db"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/logger"
	"github.com/rahulmehra/kiranakart/pkg/pagination"
	"github.com/rahulmehra/kiranakart/pkg/session"
	"github.com/rahulmehra/kiranakart/pkg/validate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages accounts, the wallet ledger, notification preferences,
// khata credit, and back-in-stock subscriptions.
type Service interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreditWallet(ctx context.Context, input CreditWalletInput) (*models.WalletEntry, error)
	ApplyWalletTx(ctx context.Context, tx *gorm.DB, input WalletMutation) (*models.WalletEntry, error)
	WalletHistory(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*WalletHistoryResult, error)
	SetNotificationPrefs(ctx context.Context, userID uuid.UUID, prefs models.NotificationPrefs) error
	SubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error
	UnsubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error
	UpdateKhata(ctx context.Context, input UpdateKhataInput) (*models.User, error)
	UpdateProfile(ctx context.Context, input UpdateProfileInput) (*models.User, error)

	// PrefsFor satisfies the notification dispatcher's preference lookup.
	PrefsFor(ctx context.Context, userID uuid.UUID) (models.NotificationPrefs, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier notifications.Service
	sessions *session.Manager
	logger   *logger.Logger
}

// CreditWalletInput describes a positive wallet top-up.
type CreditWalletInput struct {
	UserID uuid.UUID       `validate:"required"`
	Amount decimal.Decimal `validate:"required"`
	Reason string          `validate:"required,max=200"`
}

// WalletMutation is a signed ledger application used inside a caller-owned
// transaction. Negative amounts debit and fail on insufficient balance.
type WalletMutation struct {
	UserID  uuid.UUID
	Type    enums.WalletEntryType
	Amount  decimal.Decimal
	Reason  string
	OrderID *uuid.UUID
	// Notify attaches a wallet-credit notification to the same transaction.
	Notify bool
}

// WalletHistoryResult pages through ledger entries, newest first.
type WalletHistoryResult struct {
	Entries []models.WalletEntry `json:"entries"`
	Cursor  string               `json:"cursor"`
}

// UpdateKhataInput adjusts store-credit terms. Staff only.
type UpdateKhataInput struct {
	ActorRole   enums.UserRole
	UserID      uuid.UUID
	CreditLimit decimal.Decimal
	CreditDue   decimal.Decimal
	DueDate     *time.Time
}

// UpdateProfileInput carries a profile edit plus the session token the edit
// was issued under. Edits from a superseded session are rejected.
type UpdateProfileInput struct {
	UserID       uuid.UUID `validate:"required"`
	SessionToken string    `validate:"required"`
	Name         string    `validate:"required,max=120"`
	Email        string    `validate:"required,email"`
}

// NewService wires user dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	notifier notifications.Service,
	sessions *session.Manager,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification service required")
	}
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session manager required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, tx: tx, notifier: notifier, sessions: sessions, logger: logg}, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) PrefsFor(ctx context.Context, userID uuid.UUID) (models.NotificationPrefs, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.NotificationPrefs{}, err
	}
	return user.Prefs, nil
}

func (s *service) CreditWallet(ctx context.Context, input CreditWalletInput) (*models.WalletEntry, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}

	var entry *models.WalletEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.ApplyWalletTx(ctx, tx, WalletMutation{
			UserID: input.UserID,
			Type:   enums.WalletEntryTypeAdjustment,
			Amount: input.Amount,
			Reason: input.Reason,
			Notify: true,
		})
		if err != nil {
			return err
		}
		entry = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(s.logger.WithUserID(ctx, input.UserID.String()), "wallet credited")
	return entry, nil
}

// ApplyWalletTx updates the balance and appends the ledger entry inside the
// caller's transaction. The balance row is read and written under the same
// transaction, so the entry's BalanceAfter is exact.
func (s *service) ApplyWalletTx(ctx context.Context, tx *gorm.DB, input WalletMutation) (*models.WalletEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet entry type")
	}
	if input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}

	repo := s.repo.WithTx(tx)
	user, err := repo.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	balance := user.WalletBalance.Add(input.Amount)
	if balance.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient wallet balance")
	}

	if err := repo.SetWalletBalance(ctx, input.UserID, balance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}

	entry := &models.WalletEntry{
		UserID:       input.UserID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: balance,
		Reason:       input.Reason,
		OrderID:      input.OrderID,
	}
	if err := repo.CreateWalletEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet entry")
	}

	if input.Notify {
		err := s.notifier.NotifyTx(ctx, tx, notifications.NotifyInput{
			UserID:  input.UserID,
			Type:    enums.NotificationTypeWalletCredit,
			Title:   "Wallet credited",
			Message: fmt.Sprintf("₹%s added to your wallet. Balance: ₹%s.", input.Amount.StringFixed(2), balance.StringFixed(2)),
			Force:   true,
		})
		if err != nil {
			return nil, err
		}
	}

	return entry, nil
}

func (s *service) WalletHistory(ctx context.Context, userID uuid.UUID, limit int, cursor string) (*WalletHistoryResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	params := ListWalletEntriesParams{UserID: userID, Limit: limit}
	if cursor != "" {
		parsed, err := pagination.ParseCursor(cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = parsed
	}

	entries, next, err := s.repo.ListWalletEntries(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}

	result := &WalletHistoryResult{Entries: entries}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) SetNotificationPrefs(ctx context.Context, userID uuid.UUID, prefs models.NotificationPrefs) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetPrefs(ctx, userID, prefs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notification prefs")
	}
	return nil
}

func (s *service) SubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and product id required")
	}

	sub := &models.StockSubscription{UserID: userID, ProductID: productID}
	if err := s.repo.CreateStockSubscription(ctx, sub); err != nil {
		// Already subscribed is a no-op.
		if db.IsUniqueViolation(err) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stock subscription")
	}
	return nil
}

func (s *service) UnsubscribeOutOfStock(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil || productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and product id required")
	}
	if _, err := s.repo.DeleteStockSubscription(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stock subscription")
	}
	return nil
}

func (s *service) UpdateKhata(ctx context.Context, input UpdateKhataInput) (*models.User, error) {
	if !input.ActorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if input.CreditLimit.IsNegative() || input.CreditDue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "khata amounts must be non-negative")
	}

	user, err := s.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	user.CreditLimit = input.CreditLimit
	user.CreditDue = input.CreditDue
	user.KhataDueDate = input.DueDate
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update khata")
	}
	return user, nil
}

func (s *service) UpdateProfile(ctx context.Context, input UpdateProfileInput) (*models.User, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	// A login elsewhere rotates the session token. Edits carrying the old
	// token are dropped instead of overwriting the newer session's state.
	current, err := s.sessions.Validate(ctx, input.UserID, input.SessionToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	}
	if !current {
		return nil, pkgerrors.New(pkgerrors.CodeStaleSession, "session superseded, changes discarded")
	}

	user, err := s.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	user.Name = strings.TrimSpace(input.Name)
	user.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.repo.Update(ctx, user); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already in use")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}

	return user, nil
}

package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/pagination"
)

// PrefsSource loads the notification preferences for a user.
type PrefsSource interface {
	PrefsFor(ctx context.Context, userID uuid.UUID) (models.NotificationPrefs, error)
}

// Service is the dispatcher the cart and order layers use as a side channel:
// persistent per-user inbox records plus the single-slot transient flash.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) error
	NotifyTx(ctx context.Context, tx *gorm.DB, input NotifyInput) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Flash(ctx context.Context, message string) error
	PeekFlash(ctx context.Context) (string, bool, error)
	ClearFlash(ctx context.Context) error
}

type service struct {
	repo  Repository
	prefs PrefsSource
	flash FlashStore
}

// NotifyInput describes one persistent notification.
type NotifyInput struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    *string
	// Force bypasses preference checks; used by the wallet ledger, whose
	// notifications are part of the mutation contract.
	Force bool
}

// ListParams configures pagination for the inbox view.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notification dependencies.
func NewService(repo Repository, prefs PrefsSource, flash FlashStore) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if prefs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "preference source required")
	}
	if flash == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "flash store required")
	}
	return &service{repo: repo, prefs: prefs, flash: flash}, nil
}

func (s *service) Notify(ctx context.Context, input NotifyInput) error {
	return s.notify(ctx, s.repo, input)
}

// NotifyTx records the notification inside the caller's transaction so it
// commits or rolls back with the mutation it describes.
func (s *service) NotifyTx(ctx context.Context, tx *gorm.DB, input NotifyInput) error {
	return s.notify(ctx, s.repo.WithTx(tx), input)
}

func (s *service) notify(ctx context.Context, repo Repository, input NotifyInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}

	if !input.Force {
		prefs, err := s.prefs.PrefsFor(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification prefs")
		}
		if !prefs.Allows(input.Type) {
			return nil
		}
	}

	record := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		Link:    input.Link,
	}
	if err := repo.Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	query := listNotificationsParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Flash(ctx context.Context, message string) error {
	if message == "" {
		return nil
	}
	return s.flash.Set(ctx, message)
}

func (s *service) PeekFlash(ctx context.Context) (string, bool, error) {
	return s.flash.Peek(ctx)
}

func (s *service) ClearFlash(ctx context.Context) error {
	return s.flash.Clear(ctx)
}

package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rahulmehra/kiranakart/internal/notifications"
	"github.com/rahulmehra/kiranakart/pkg/db/models"
	"github.com/rahulmehra/kiranakart/pkg/enums"
	pkgerrors "github.com/rahulmehra/kiranakart/pkg/errors"
	"github.com/rahulmehra/kiranakart/pkg/validate"
)

// Service manages support threads and their status lifecycle.
type Service interface {
	Open(ctx context.Context, input OpenInput) (*models.Ticket, error)
	Reply(ctx context.Context, input ReplyInput) (*models.TicketMessage, error)
	SetStatus(ctx context.Context, actorRole enums.UserRole, ticketID uuid.UUID, status enums.TicketStatus) (*models.Ticket, error)
	Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error)
	ListAll(ctx context.Context, actorRole enums.UserRole) ([]models.Ticket, error)
}

type service struct {
	repo     Repository
	notifier notifications.Service
}

// OpenInput starts a new ticket with its first message.
type OpenInput struct {
	UserID  uuid.UUID `validate:"required"`
	Subject string    `validate:"required,max=160"`
	Body    string    `validate:"required,max=2000"`
}

// ReplyInput appends a message to an existing thread.
type ReplyInput struct {
	TicketID  uuid.UUID `validate:"required"`
	AuthorID  uuid.UUID `validate:"required"`
	FromStaff bool
	Body      string `validate:"required,max=2000"`
}

// NewService wires ticket dependencies.
func NewService(repo Repository, notifier notifications.Service) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "tickets repository required")
	}
	if notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification service required")
	}
	return &service{repo: repo, notifier: notifier}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.Ticket, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	ticket := &models.Ticket{
		UserID:  input.UserID,
		Subject: strings.TrimSpace(input.Subject),
		Status:  enums.TicketStatusOpen,
		Messages: []models.TicketMessage{{
			AuthorID: input.UserID,
			Body:     strings.TrimSpace(input.Body),
		}},
	}
	if err := s.repo.Create(ctx, ticket); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ticket")
	}
	return ticket, nil
}

func (s *service) Reply(ctx context.Context, input ReplyInput) (*models.TicketMessage, error) {
	if err := validate.Struct(input); err != nil {
		return nil, err
	}

	ticket, err := s.Get(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == enums.TicketStatusClosed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "ticket is closed")
	}

	message := &models.TicketMessage{
		TicketID:  ticket.ID,
		AuthorID:  input.AuthorID,
		FromStaff: input.FromStaff,
		Body:      strings.TrimSpace(input.Body),
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ticket message")
	}

	// Staff replies ping the ticket owner.
	if input.FromStaff {
		if err := s.notifyOwner(ctx, ticket, fmt.Sprintf("New reply on %q.", ticket.Subject)); err != nil {
			return nil, err
		}
	}
	return message, nil
}

func (s *service) SetStatus(ctx context.Context, actorRole enums.UserRole, ticketID uuid.UUID, status enums.TicketStatus) (*models.Ticket, error) {
	if !actorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket status")
	}

	ticket, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == status {
		return ticket, nil
	}

	ticket.Status = status
	if err := s.repo.Update(ctx, ticket); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ticket")
	}

	if err := s.notifyOwner(ctx, ticket, fmt.Sprintf("Ticket %q is now %s.", ticket.Subject, status)); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *service) notifyOwner(ctx context.Context, ticket *models.Ticket, message string) error {
	link := fmt.Sprintf("tickets/%s", ticket.ID)
	return s.notifier.Notify(ctx, notifications.NotifyInput{
		UserID:  ticket.UserID,
		Type:    enums.NotificationTypeTicketUpdate,
		Title:   "Support update",
		Message: message,
		Link:    &link,
	})
}

func (s *service) Get(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	if ticketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id required")
	}
	ticket, err := s.repo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	return ticket, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Ticket, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	tickets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return tickets, nil
}

func (s *service) ListAll(ctx context.Context, actorRole enums.UserRole) ([]models.Ticket, error) {
	if !actorRole.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	tickets, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tickets")
	}
	return tickets, nil
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/straye-as/pipeline-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserResolver looks up users for display purposes
type UserResolver interface {
	ResolveUser(ctx context.Context, id int64) (*domain.User, error)
}

// ContactResolver looks up contacts for display purposes
type ContactResolver interface {
	ResolveContact(ctx context.Context, id int64) (*domain.Contact, error)
}

// DirectoryResolver resolves users and contacts from the local directory tables
type DirectoryResolver struct {
	userRepo    *repository.UserRepository
	contactRepo *repository.ContactRepository
}

func NewDirectoryResolver(userRepo *repository.UserRepository, contactRepo *repository.ContactRepository) *DirectoryResolver {
	return &DirectoryResolver{userRepo: userRepo, contactRepo: contactRepo}
}

func (r *DirectoryResolver) ResolveUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := r.userRepo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	return user, err
}

func (r *DirectoryResolver) ResolveContact(ctx context.Context, id int64) (*domain.Contact, error) {
	contact, err := r.contactRepo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: contact %d", ErrNotFound, id)
	}
	return contact, err
}

// displayNames enriches participants and users with names. Lookup failures
// only cost the name, never the request.
type displayNames struct {
	users    UserResolver
	contacts ContactResolver
	logger   *zap.Logger
}

func (d displayNames) user(ctx context.Context, id int64) string {
	if d.users == nil {
		return ""
	}
	user, err := d.users.ResolveUser(ctx, id)
	if err != nil {
		d.logger.Debug("could not resolve user", zap.Int64("user_id", id), zap.Error(err))
		return ""
	}
	return user.DisplayName
}

func (d displayNames) participant(ctx context.Context, p *domain.DealParticipant) string {
	if p.UserID != nil {
		return d.user(ctx, *p.UserID)
	}
	if p.ContactID == nil || d.contacts == nil {
		return ""
	}
	contact, err := d.contacts.ResolveContact(ctx, *p.ContactID)
	if err != nil {
		d.logger.Debug("could not resolve contact", zap.Int64("contact_id", *p.ContactID), zap.Error(err))
		return ""
	}
	return contact.FullName()
}

package app

import (
	"context"
	"net/mail"
	"strings"

	"agencyhub/api/internal/rbac"
	"agencyhub/api/internal/search"
	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

type CreateContactInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ListContacts returns the sub-account's contacts with the tickets they are
// the customer on and the total value of those tickets.
func (s *Service) ListContacts(ctx context.Context, rc RequestContext, subAccountID string) ([]ContactActivityView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return nil, err
	}
	contacts, err := s.board.GetContactsWithActivity(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	items := make([]ContactActivityView, 0, len(contacts))
	for _, contact := range contacts {
		items = append(items, s.contactActivityView(contact))
	}
	return items, nil
}

func (s *Service) CreateContact(ctx context.Context, rc RequestContext, subAccountID string, input CreateContactInput) (ContactView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionWrite); err != nil {
		return ContactView{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ContactView{}, validationError("contact name is required")
	}
	address, err := mail.ParseAddress(strings.TrimSpace(input.Email))
	if err != nil {
		return ContactView{}, validationError("contact email is invalid")
	}

	contact := store.Contact{
		ID:           util.NewID("ct"),
		SubAccountID: subAccountID,
		Name:         name,
		Email:        strings.ToLower(address.Address),
	}
	if err := s.store.InsertContact(ctx, contact); err != nil {
		return ContactView{}, err
	}
	created, err := s.store.GetContact(ctx, contact.ID)
	if err != nil {
		return ContactView{}, err
	}

	s.search.IndexContact(search.ContactRecord{
		ID:           created.ID,
		Name:         created.Name,
		Email:        created.Email,
		SubAccountID: created.SubAccountID,
	})
	s.notify(ctx, rc, subAccountID, "Created contact", created.Name)
	return contactView(created), nil
}

func (s *Service) DeleteContact(ctx context.Context, rc RequestContext, contactID string) error {
	contact, err := s.store.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, rc, contact.SubAccountID, rbac.ActionWrite); err != nil {
		return err
	}
	if err := s.store.DeleteContact(ctx, contactID); err != nil {
		return err
	}
	s.search.DeleteContact(contactID)
	s.notify(ctx, rc, contact.SubAccountID, "Deleted contact", contact.Name)
	return nil
}

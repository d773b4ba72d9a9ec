package kanban

import (
	"context"
	"database/sql"
	"errors"

	"agencyhub/api/internal/money"
	"agencyhub/api/internal/store"
)

// EnrichedTicket is a ticket with its related records embedded for the board.
// Assigned and Customer are nil when unset or when the referenced row is gone.
type EnrichedTicket struct {
	store.Ticket
	Tags     []store.Tag
	Assigned *store.User
	Customer *store.Contact
}

type LaneDetail struct {
	store.Lane
	Tickets []EnrichedTicket
	Value   money.Amount
}

type PipelineDetail struct {
	store.Pipeline
	Lanes []LaneDetail
}

type ContactActivity struct {
	store.Contact
	Tickets []store.Ticket
	Total   money.Amount
	Active  bool
}

// GetPipelineDetails loads a pipeline with its lanes and tickets in board order.
// All reads come from a single snapshot.
func (m *Manager) GetPipelineDetails(ctx context.Context, pipelineID string) (PipelineDetail, error) {
	var detail PipelineDetail
	err := m.repo.WithinSnapshot(ctx, func(tx Repository) error {
		pipeline, err := tx.GetPipeline(ctx, pipelineID)
		if err != nil {
			return err
		}
		lanes, err := tx.ListLanes(ctx, pipelineID)
		if err != nil {
			return err
		}

		refs := newReferenceLoader(tx)
		detail = PipelineDetail{Pipeline: pipeline, Lanes: make([]LaneDetail, 0, len(lanes))}
		for _, lane := range lanes {
			tickets, err := tx.ListTickets(ctx, lane.ID)
			if err != nil {
				return err
			}
			laneDetail := LaneDetail{Lane: lane, Tickets: make([]EnrichedTicket, 0, len(tickets)), Value: ticketTotal(tickets)}
			for _, ticket := range tickets {
				enriched, err := refs.enrich(ctx, ticket)
				if err != nil {
					return err
				}
				laneDetail.Tickets = append(laneDetail.Tickets, enriched)
			}
			detail.Lanes = append(detail.Lanes, laneDetail)
		}
		return nil
	})
	if err != nil {
		return PipelineDetail{}, err
	}
	return detail, nil
}

// GetContactsWithActivity lists a sub-account's contacts, oldest first, with
// the tickets they are the customer on. A contact is active when its total is
// non-zero.
func (m *Manager) GetContactsWithActivity(ctx context.Context, subAccountID string) ([]ContactActivity, error) {
	contacts, err := m.repo.ListContacts(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	items := make([]ContactActivity, 0, len(contacts))
	for _, contact := range contacts {
		tickets, err := m.repo.ListTicketsByCustomer(ctx, contact.ID)
		if err != nil {
			return nil, err
		}
		total := ticketTotal(tickets)
		items = append(items, ContactActivity{Contact: contact, Tickets: tickets, Total: total, Active: total.IsActive()})
	}
	return items, nil
}

// referenceLoader resolves users and contacts once per read.
type referenceLoader struct {
	repo     Repository
	users    map[string]*store.User
	contacts map[string]*store.Contact
}

func newReferenceLoader(repo Repository) *referenceLoader {
	return &referenceLoader{repo: repo, users: map[string]*store.User{}, contacts: map[string]*store.Contact{}}
}

func (l *referenceLoader) enrich(ctx context.Context, ticket store.Ticket) (EnrichedTicket, error) {
	tags, err := l.repo.ListTicketTags(ctx, ticket.ID)
	if err != nil {
		return EnrichedTicket{}, err
	}
	enriched := EnrichedTicket{Ticket: ticket, Tags: tags}

	if ticket.AssignedUserID != nil {
		if enriched.Assigned, err = l.user(ctx, *ticket.AssignedUserID); err != nil {
			return EnrichedTicket{}, err
		}
	}
	if ticket.CustomerID != nil {
		if enriched.Customer, err = l.contact(ctx, *ticket.CustomerID); err != nil {
			return EnrichedTicket{}, err
		}
	}
	return enriched, nil
}

func (l *referenceLoader) user(ctx context.Context, id string) (*store.User, error) {
	if cached, ok := l.users[id]; ok {
		return cached, nil
	}
	user, err := l.repo.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		l.users[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.users[id] = &user
	return &user, nil
}

func (l *referenceLoader) contact(ctx context.Context, id string) (*store.Contact, error) {
	if cached, ok := l.contacts[id]; ok {
		return cached, nil
	}
	contact, err := l.repo.GetContact(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		l.contacts[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.contacts[id] = &contact
	return &contact, nil
}

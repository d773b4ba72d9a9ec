package kanban

import (
	"context"

	"agencyhub/api/internal/store"
)

// Repository is the persistence surface the managers need. Implementations must
// run WithinTx callbacks atomically, and WithinSnapshot callbacks against one
// consistent read-only view.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
	WithinSnapshot(ctx context.Context, fn func(tx Repository) error) error
	LockPipeline(ctx context.Context, pipelineID string) error

	InsertPipeline(ctx context.Context, item store.Pipeline) error
	GetPipeline(ctx context.Context, pipelineID string) (store.Pipeline, error)
	ListPipelines(ctx context.Context, subAccountID string) ([]store.Pipeline, error)
	UpdatePipelineName(ctx context.Context, pipelineID, name string) error
	DeletePipeline(ctx context.Context, pipelineID string) error

	InsertLane(ctx context.Context, item store.Lane) error
	GetLane(ctx context.Context, laneID string) (store.Lane, error)
	ListLanes(ctx context.Context, pipelineID string) ([]store.Lane, error)
	CountLanes(ctx context.Context, pipelineID string) (int, error)
	UpdateLaneName(ctx context.Context, laneID, name string) error
	SetLanePosition(ctx context.Context, laneID string, position int) error
	DeleteLane(ctx context.Context, laneID string) error

	InsertTicket(ctx context.Context, item store.Ticket) error
	GetTicket(ctx context.Context, ticketID string) (store.Ticket, error)
	ListTickets(ctx context.Context, laneID string) ([]store.Ticket, error)
	ListTicketsByCustomer(ctx context.Context, contactID string) ([]store.Ticket, error)
	CountTickets(ctx context.Context, laneID string) (int, error)
	UpdateTicketDetails(ctx context.Context, item store.Ticket) error
	SetTicketPosition(ctx context.Context, ticketID, laneID string, position int) error
	DeleteTicket(ctx context.Context, ticketID string) error

	InsertTag(ctx context.Context, item store.Tag) error
	GetTag(ctx context.Context, tagID string) (store.Tag, error)
	FindTagByName(ctx context.Context, subAccountID, name string) (*store.Tag, error)
	ListTags(ctx context.Context, subAccountID string) ([]store.Tag, error)
	ListTicketTags(ctx context.Context, ticketID string) ([]store.Tag, error)
	AddTicketTag(ctx context.Context, ticketID, tagID string) error
	RemoveTicketTag(ctx context.Context, ticketID, tagID string) error
	DeleteTag(ctx context.Context, tagID string) error

	GetUser(ctx context.Context, userID string) (store.User, error)
	GetContact(ctx context.Context, contactID string) (store.Contact, error)
	ListContacts(ctx context.Context, subAccountID string) ([]store.Contact, error)
}

type postgresRepository struct {
	*store.PostgresStore
}

// NewPostgresRepository adapts the Postgres store to Repository.
func NewPostgresRepository(s *store.PostgresStore) Repository {
	return postgresRepository{PostgresStore: s}
}

func (r postgresRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.PostgresStore.WithinTx(ctx, func(tx *store.PostgresStore) error {
		return fn(postgresRepository{PostgresStore: tx})
	})
}

func (r postgresRepository) WithinSnapshot(ctx context.Context, fn func(tx Repository) error) error {
	return r.PostgresStore.WithinSnapshot(ctx, func(tx *store.PostgresStore) error {
		return fn(postgresRepository{PostgresStore: tx})
	})
}

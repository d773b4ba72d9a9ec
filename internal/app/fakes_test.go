package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agencyhub/api/internal/config"
	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/money"
	"agencyhub/api/internal/search"
	"agencyhub/api/internal/store"
)

var errNotStubbed = errors.New("not stubbed")

type fakeStore struct {
	pingErr         error
	subAccounts     map[string]store.SubAccount
	pipelines       map[string]store.Pipeline
	lanes           map[string]store.Lane
	tickets         map[string]store.Ticket
	tags            map[string]store.Tag
	contacts        map[string]store.Contact
	members         []store.User
	notifications   []store.Notification
	insertContactFn func(store.Contact) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subAccounts: map[string]store.SubAccount{
			"sa_1": {ID: "sa_1", AgencyID: "agc_1", Name: "Acme Plumbing"},
			"sa_2": {ID: "sa_2", AgencyID: "agc_1", Name: "Acme Roofing"},
			"sa_x": {ID: "sa_x", AgencyID: "agc_2", Name: "Other Agency"},
		},
		pipelines: map[string]store.Pipeline{
			"pl_1": {ID: "pl_1", SubAccountID: "sa_1", Name: "Sales"},
		},
		lanes: map[string]store.Lane{
			"ln_1": {ID: "ln_1", PipelineID: "pl_1", Name: "New", Order: 0},
			"ln_2": {ID: "ln_2", PipelineID: "pl_1", Name: "Won", Order: 1},
		},
		tickets: map[string]store.Ticket{
			"tk_1": {ID: "tk_1", LaneID: "ln_1", Name: "Boiler swap", Order: 0},
			"tk_2": {ID: "tk_2", LaneID: "ln_1", Name: "Leak check", Order: 1},
		},
		tags: map[string]store.Tag{
			"tg_1": {ID: "tg_1", SubAccountID: "sa_1", Name: "Hot", Color: "ROSE"},
		},
		contacts: map[string]store.Contact{
			"ct_1": {ID: "ct_1", SubAccountID: "sa_1", Name: "Dana", Email: "dana@example.com"},
		},
	}
}

func lookup[T any](items map[string]T, id, kind string) (T, error) {
	item, ok := items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("get %s: %w", kind, sql.ErrNoRows)
	}
	return item, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetSubAccount(_ context.Context, id string) (store.SubAccount, error) {
	return lookup(f.subAccounts, id, "sub-account")
}

func (f *fakeStore) GetPipeline(_ context.Context, id string) (store.Pipeline, error) {
	return lookup(f.pipelines, id, "pipeline")
}

func (f *fakeStore) GetLane(_ context.Context, id string) (store.Lane, error) {
	return lookup(f.lanes, id, "lane")
}

func (f *fakeStore) GetTicket(_ context.Context, id string) (store.Ticket, error) {
	return lookup(f.tickets, id, "ticket")
}

func (f *fakeStore) GetTag(_ context.Context, id string) (store.Tag, error) {
	return lookup(f.tags, id, "tag")
}

func (f *fakeStore) GetContact(_ context.Context, id string) (store.Contact, error) {
	return lookup(f.contacts, id, "contact")
}

func (f *fakeStore) ListLanes(_ context.Context, pipelineID string) ([]store.Lane, error) {
	var items []store.Lane
	for _, lane := range f.lanes {
		if lane.PipelineID == pipelineID {
			items = append(items, lane)
		}
	}
	return items, nil
}

func (f *fakeStore) ListTickets(_ context.Context, laneID string) ([]store.Ticket, error) {
	var items []store.Ticket
	for _, ticket := range f.tickets {
		if ticket.LaneID == laneID {
			items = append(items, ticket)
		}
	}
	return items, nil
}

func (f *fakeStore) InsertContact(_ context.Context, item store.Contact) error {
	if f.insertContactFn != nil {
		if err := f.insertContactFn(item); err != nil {
			return err
		}
	}
	f.contacts[item.ID] = item
	return nil
}

func (f *fakeStore) DeleteContact(_ context.Context, id string) error {
	if _, ok := f.contacts[id]; !ok {
		return fmt.Errorf("delete contact: %w", sql.ErrNoRows)
	}
	delete(f.contacts, id)
	return nil
}

func (f *fakeStore) ListTeamMembers(context.Context, string) ([]store.User, error) {
	return f.members, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, item store.Notification) error {
	f.notifications = append(f.notifications, item)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, subAccountID string, limit int) ([]store.Notification, error) {
	var items []store.Notification
	for _, item := range f.notifications {
		if item.SubAccountID == subAccountID && len(items) < limit {
			items = append(items, item)
		}
	}
	return items, nil
}

// fakeBoard stubs the kanban manager; unset funcs fail with errNotStubbed.
type fakeBoard struct {
	createPipelineFn     func(subAccountID, name string) (store.Pipeline, error)
	deletePipelineFn     func(pipelineID string) error
	pipelineDetailsFn    func(pipelineID string) (kanban.PipelineDetail, error)
	renameLaneFn         func(laneID, name string) (store.Lane, error)
	deleteLaneFn         func(laneID string) error
	reorderLanesFn       func(pipelineID string, ids []string) ([]store.Lane, error)
	laneValueFn          func(laneID string) (money.Amount, error)
	appendTicketFn       func(laneID string, input kanban.TicketInput) (store.Ticket, error)
	updateTicketFn       func(ticketID string, input kanban.TicketInput) (store.Ticket, error)
	moveTicketFn         func(ticketID, laneID string, order int) (store.Ticket, error)
	createTagFn          func(subAccountID, name, color string) (store.Tag, error)
	setTicketTagsFn      func(ticketID string, tagIDs []string) ([]store.Tag, error)
	contactsActivityFn   func(subAccountID string) ([]kanban.ContactActivity, error)
	listPipelinesInvoked int
}

func (b *fakeBoard) CreatePipeline(_ context.Context, subAccountID, name string) (store.Pipeline, error) {
	if b.createPipelineFn == nil {
		return store.Pipeline{}, errNotStubbed
	}
	return b.createPipelineFn(subAccountID, name)
}

func (b *fakeBoard) ListPipelines(context.Context, string) ([]store.Pipeline, error) {
	b.listPipelinesInvoked++
	return []store.Pipeline{{ID: "pl_1", SubAccountID: "sa_1", Name: "Sales"}}, nil
}

func (b *fakeBoard) RenamePipeline(context.Context, string, string) (store.Pipeline, error) {
	return store.Pipeline{}, errNotStubbed
}

func (b *fakeBoard) DeletePipeline(_ context.Context, pipelineID string) error {
	if b.deletePipelineFn == nil {
		return errNotStubbed
	}
	return b.deletePipelineFn(pipelineID)
}

func (b *fakeBoard) GetPipelineDetails(_ context.Context, pipelineID string) (kanban.PipelineDetail, error) {
	if b.pipelineDetailsFn == nil {
		return kanban.PipelineDetail{}, errNotStubbed
	}
	return b.pipelineDetailsFn(pipelineID)
}

func (b *fakeBoard) AppendLane(context.Context, string, string) (store.Lane, error) {
	return store.Lane{}, errNotStubbed
}

func (b *fakeBoard) RenameLane(_ context.Context, laneID, name string) (store.Lane, error) {
	if b.renameLaneFn == nil {
		return store.Lane{}, errNotStubbed
	}
	return b.renameLaneFn(laneID, name)
}

func (b *fakeBoard) DeleteLane(_ context.Context, laneID string) error {
	if b.deleteLaneFn == nil {
		return errNotStubbed
	}
	return b.deleteLaneFn(laneID)
}

func (b *fakeBoard) ReorderLanes(_ context.Context, pipelineID string, ids []string) ([]store.Lane, error) {
	if b.reorderLanesFn == nil {
		return nil, errNotStubbed
	}
	return b.reorderLanesFn(pipelineID, ids)
}

func (b *fakeBoard) ComputeLaneValue(_ context.Context, laneID string) (money.Amount, error) {
	if b.laneValueFn == nil {
		return money.Zero, errNotStubbed
	}
	return b.laneValueFn(laneID)
}

func (b *fakeBoard) AppendTicket(_ context.Context, laneID string, input kanban.TicketInput) (store.Ticket, error) {
	if b.appendTicketFn == nil {
		return store.Ticket{}, errNotStubbed
	}
	return b.appendTicketFn(laneID, input)
}

func (b *fakeBoard) UpdateTicket(_ context.Context, ticketID string, input kanban.TicketInput) (store.Ticket, error) {
	if b.updateTicketFn == nil {
		return store.Ticket{}, errNotStubbed
	}
	return b.updateTicketFn(ticketID, input)
}

func (b *fakeBoard) MoveTicket(_ context.Context, ticketID, laneID string, order int) (store.Ticket, error) {
	if b.moveTicketFn == nil {
		return store.Ticket{}, errNotStubbed
	}
	return b.moveTicketFn(ticketID, laneID, order)
}

func (b *fakeBoard) ReorderTickets(context.Context, string, []string) ([]store.Ticket, error) {
	return nil, errNotStubbed
}

func (b *fakeBoard) DeleteTicket(context.Context, string) error {
	return nil
}

func (b *fakeBoard) CreateTag(_ context.Context, subAccountID, name, color string) (store.Tag, error) {
	if b.createTagFn == nil {
		return store.Tag{}, errNotStubbed
	}
	return b.createTagFn(subAccountID, name, color)
}

func (b *fakeBoard) ListTags(context.Context, string) ([]store.Tag, error) {
	return []store.Tag{}, nil
}

func (b *fakeBoard) DeleteTag(context.Context, string) error {
	return nil
}

func (b *fakeBoard) FindTagsByTicket(context.Context, string) ([]store.Tag, error) {
	return []store.Tag{}, nil
}

func (b *fakeBoard) SetTicketTags(_ context.Context, ticketID string, tagIDs []string) ([]store.Tag, error) {
	if b.setTicketTagsFn == nil {
		return nil, errNotStubbed
	}
	return b.setTicketTagsFn(ticketID, tagIDs)
}

func (b *fakeBoard) GetContactsWithActivity(_ context.Context, subAccountID string) ([]kanban.ContactActivity, error) {
	if b.contactsActivityFn == nil {
		return nil, errNotStubbed
	}
	return b.contactsActivityFn(subAccountID)
}

type fakeSearch struct {
	lastQuery       search.Query
	indexedTickets  []search.TicketRecord
	deletedTickets  []string
	indexedContacts []search.ContactRecord
	deletedContacts []string
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.lastQuery = q
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexContact(c search.ContactRecord) {
	f.indexedContacts = append(f.indexedContacts, c)
}

func (f *fakeSearch) IndexTicket(t search.TicketRecord) {
	f.indexedTickets = append(f.indexedTickets, t)
}

func (f *fakeSearch) DeleteContact(id string) {
	f.deletedContacts = append(f.deletedContacts, id)
}

func (f *fakeSearch) DeleteTicket(id string) {
	f.deletedTickets = append(f.deletedTickets, id)
}

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

const testSecret = "test-secret"

func newTestService() (*Service, *fakeStore, *fakeBoard, *fakeSearch) {
	dataStore := newFakeStore()
	board := &fakeBoard{}
	index := &fakeSearch{}
	service := &Service{
		cfg:    config.Config{TokenSecret: testSecret, Currency: "USD", CORSOrigin: "*"},
		store:  dataStore,
		board:  board,
		search: index,
	}
	return service, dataStore, board, index
}

package kanban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"agencyhub/api/internal/money"
	"agencyhub/api/internal/store"
)

var (
	errBoom = errors.New("boom")

	_ Repository     = (*memoryRepository)(nil)
	_ LaneValueCache = (*memoryValues)(nil)
)

type memoryState struct {
	pipelines  map[string]store.Pipeline
	lanes      map[string]store.Lane
	tickets    map[string]store.Ticket
	tags       map[string]store.Tag
	ticketTags map[string]map[string]bool
	users      map[string]store.User
	contacts   map[string]store.Contact
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		pipelines:  make(map[string]store.Pipeline, len(s.pipelines)),
		lanes:      make(map[string]store.Lane, len(s.lanes)),
		tickets:    make(map[string]store.Ticket, len(s.tickets)),
		tags:       make(map[string]store.Tag, len(s.tags)),
		ticketTags: make(map[string]map[string]bool, len(s.ticketTags)),
		users:      make(map[string]store.User, len(s.users)),
		contacts:   make(map[string]store.Contact, len(s.contacts)),
	}
	for k, v := range s.pipelines {
		out.pipelines[k] = v
	}
	for k, v := range s.lanes {
		out.lanes[k] = v
	}
	for k, v := range s.tickets {
		out.tickets[k] = v
	}
	for k, v := range s.tags {
		out.tags[k] = v
	}
	for k, v := range s.ticketTags {
		set := make(map[string]bool, len(v))
		for tagID := range v {
			set[tagID] = true
		}
		out.ticketTags[k] = set
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.contacts {
		out.contacts[k] = v
	}
	return out
}

// memoryRepository is an in-memory Repository. Transactions snapshot the
// state and restore it on error; position uniqueness is checked at commit.
type memoryRepository struct {
	state  *memoryState
	inTx   bool
	clock  time.Time
	calls  map[string]int
	failAt map[string]int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		state: (&memoryState{
			pipelines: map[string]store.Pipeline{}, lanes: map[string]store.Lane{}, tickets: map[string]store.Ticket{},
			tags: map[string]store.Tag{}, ticketTags: map[string]map[string]bool{}, users: map[string]store.User{},
			contacts: map[string]store.Contact{},
		}),
		clock:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		calls:  map[string]int{},
		failAt: map[string]int{},
	}
}

// failOnCall makes the nth call (counting from now) of method return errBoom.
func (r *memoryRepository) failOnCall(method string, n int) {
	r.failAt[method] = r.calls[method] + n
}

func (r *memoryRepository) record(method string) error {
	r.calls[method]++
	if !r.inTx {
		r.calls["untx:"+method]++
	}
	if at, ok := r.failAt[method]; ok && r.calls[method] == at {
		return fmt.Errorf("%s: %w", method, errBoom)
	}
	return nil
}

func (r *memoryRepository) now() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memoryRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	snapshot := r.state.clone()
	r.inTx = true
	err := fn(r)
	r.inTx = false
	if err == nil {
		err = r.checkPositions()
	}
	if err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

// WithinSnapshot discards anything fn writes.
func (r *memoryRepository) WithinSnapshot(ctx context.Context, fn func(tx Repository) error) error {
	r.calls["WithinSnapshot"]++
	if r.inTx {
		return fn(r)
	}
	snapshot := r.state.clone()
	r.inTx = true
	err := fn(r)
	r.inTx = false
	r.state = snapshot
	return err
}

func (r *memoryRepository) checkPositions() error {
	lanes := map[string]bool{}
	for _, lane := range r.state.lanes {
		key := fmt.Sprintf("%s/%d", lane.PipelineID, lane.Order)
		if lanes[key] {
			return fmt.Errorf("lanes_pipeline_position_key %s: %w", key, store.ErrDuplicate)
		}
		lanes[key] = true
	}
	tickets := map[string]bool{}
	for _, ticket := range r.state.tickets {
		key := fmt.Sprintf("%s/%d", ticket.LaneID, ticket.Order)
		if tickets[key] {
			return fmt.Errorf("tickets_lane_position_key %s: %w", key, store.ErrDuplicate)
		}
		tickets[key] = true
	}
	return nil
}

func (r *memoryRepository) LockPipeline(ctx context.Context, pipelineID string) error {
	if err := r.record("LockPipeline"); err != nil {
		return err
	}
	if _, ok := r.state.pipelines[pipelineID]; !ok {
		return fmt.Errorf("lock pipeline: %w", sql.ErrNoRows)
	}
	return nil
}

func (r *memoryRepository) InsertPipeline(ctx context.Context, item store.Pipeline) error {
	if err := r.record("InsertPipeline"); err != nil {
		return err
	}
	item.CreatedAt = r.now()
	item.UpdatedAt = item.CreatedAt
	r.state.pipelines[item.ID] = item
	return nil
}

func (r *memoryRepository) GetPipeline(ctx context.Context, pipelineID string) (store.Pipeline, error) {
	item, ok := r.state.pipelines[pipelineID]
	if !ok {
		return store.Pipeline{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) ListPipelines(ctx context.Context, subAccountID string) ([]store.Pipeline, error) {
	items := make([]store.Pipeline, 0)
	for _, item := range r.state.pipelines {
		if item.SubAccountID == subAccountID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *memoryRepository) UpdatePipelineName(ctx context.Context, pipelineID, name string) error {
	item, ok := r.state.pipelines[pipelineID]
	if !ok {
		return fmt.Errorf("update pipeline: %w", sql.ErrNoRows)
	}
	item.Name = name
	r.state.pipelines[pipelineID] = item
	return nil
}

func (r *memoryRepository) DeletePipeline(ctx context.Context, pipelineID string) error {
	if _, ok := r.state.pipelines[pipelineID]; !ok {
		return fmt.Errorf("delete pipeline: %w", sql.ErrNoRows)
	}
	for id, lane := range r.state.lanes {
		if lane.PipelineID == pipelineID {
			r.deleteLaneRows(id)
		}
	}
	delete(r.state.pipelines, pipelineID)
	return nil
}

func (r *memoryRepository) InsertLane(ctx context.Context, item store.Lane) error {
	if err := r.record("InsertLane"); err != nil {
		return err
	}
	if _, ok := r.state.pipelines[item.PipelineID]; !ok {
		return fmt.Errorf("insert lane: unknown pipeline %s", item.PipelineID)
	}
	item.CreatedAt = r.now()
	item.UpdatedAt = item.CreatedAt
	r.state.lanes[item.ID] = item
	return nil
}

func (r *memoryRepository) GetLane(ctx context.Context, laneID string) (store.Lane, error) {
	item, ok := r.state.lanes[laneID]
	if !ok {
		return store.Lane{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) ListLanes(ctx context.Context, pipelineID string) ([]store.Lane, error) {
	items := make([]store.Lane, 0)
	for _, item := range r.state.lanes {
		if item.PipelineID == pipelineID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *memoryRepository) CountLanes(ctx context.Context, pipelineID string) (int, error) {
	lanes, _ := r.ListLanes(ctx, pipelineID)
	return len(lanes), nil
}

func (r *memoryRepository) UpdateLaneName(ctx context.Context, laneID, name string) error {
	item, ok := r.state.lanes[laneID]
	if !ok {
		return fmt.Errorf("update lane: %w", sql.ErrNoRows)
	}
	item.Name = name
	r.state.lanes[laneID] = item
	return nil
}

func (r *memoryRepository) SetLanePosition(ctx context.Context, laneID string, position int) error {
	if err := r.record("SetLanePosition"); err != nil {
		return err
	}
	item, ok := r.state.lanes[laneID]
	if !ok {
		return fmt.Errorf("set lane position: %w", sql.ErrNoRows)
	}
	item.Order = position
	r.state.lanes[laneID] = item
	return nil
}

func (r *memoryRepository) DeleteLane(ctx context.Context, laneID string) error {
	if err := r.record("DeleteLane"); err != nil {
		return err
	}
	if _, ok := r.state.lanes[laneID]; !ok {
		return fmt.Errorf("delete lane: %w", sql.ErrNoRows)
	}
	r.deleteLaneRows(laneID)
	return nil
}

func (r *memoryRepository) deleteLaneRows(laneID string) {
	for id, ticket := range r.state.tickets {
		if ticket.LaneID == laneID {
			delete(r.state.tickets, id)
			delete(r.state.ticketTags, id)
		}
	}
	delete(r.state.lanes, laneID)
}

func (r *memoryRepository) InsertTicket(ctx context.Context, item store.Ticket) error {
	if err := r.record("InsertTicket"); err != nil {
		return err
	}
	if _, ok := r.state.lanes[item.LaneID]; !ok {
		return fmt.Errorf("insert ticket: unknown lane %s", item.LaneID)
	}
	item.CreatedAt = r.now()
	item.UpdatedAt = item.CreatedAt
	r.state.tickets[item.ID] = item
	return nil
}

func (r *memoryRepository) GetTicket(ctx context.Context, ticketID string) (store.Ticket, error) {
	item, ok := r.state.tickets[ticketID]
	if !ok {
		return store.Ticket{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) listTickets(match func(store.Ticket) bool, byOrder bool) []store.Ticket {
	items := make([]store.Ticket, 0)
	for _, item := range r.state.tickets {
		if match(item) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if byOrder && items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (r *memoryRepository) ListTickets(ctx context.Context, laneID string) ([]store.Ticket, error) {
	if err := r.record("ListTickets"); err != nil {
		return nil, err
	}
	return r.listTickets(func(t store.Ticket) bool { return t.LaneID == laneID }, true), nil
}

func (r *memoryRepository) ListTicketsByCustomer(ctx context.Context, contactID string) ([]store.Ticket, error) {
	return r.listTickets(func(t store.Ticket) bool { return t.CustomerID != nil && *t.CustomerID == contactID }, false), nil
}

func (r *memoryRepository) CountTickets(ctx context.Context, laneID string) (int, error) {
	tickets, _ := r.ListTickets(ctx, laneID)
	return len(tickets), nil
}

func (r *memoryRepository) UpdateTicketDetails(ctx context.Context, item store.Ticket) error {
	current, ok := r.state.tickets[item.ID]
	if !ok {
		return fmt.Errorf("update ticket: %w", sql.ErrNoRows)
	}
	current.Name = item.Name
	current.Description = item.Description
	current.Value = item.Value
	current.AssignedUserID = item.AssignedUserID
	current.CustomerID = item.CustomerID
	r.state.tickets[item.ID] = current
	return nil
}

func (r *memoryRepository) SetTicketPosition(ctx context.Context, ticketID, laneID string, position int) error {
	if err := r.record("SetTicketPosition"); err != nil {
		return err
	}
	item, ok := r.state.tickets[ticketID]
	if !ok {
		return fmt.Errorf("set ticket position: %w", sql.ErrNoRows)
	}
	item.LaneID = laneID
	item.Order = position
	r.state.tickets[ticketID] = item
	return nil
}

func (r *memoryRepository) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := r.record("DeleteTicket"); err != nil {
		return err
	}
	if _, ok := r.state.tickets[ticketID]; !ok {
		return fmt.Errorf("delete ticket: %w", sql.ErrNoRows)
	}
	delete(r.state.tickets, ticketID)
	delete(r.state.ticketTags, ticketID)
	return nil
}

func (r *memoryRepository) InsertTag(ctx context.Context, item store.Tag) error {
	for _, existing := range r.state.tags {
		if existing.SubAccountID == item.SubAccountID && existing.Name == item.Name {
			return fmt.Errorf("insert tag: %w: tags_sub_account_name_key", store.ErrDuplicate)
		}
	}
	item.CreatedAt = r.now()
	r.state.tags[item.ID] = item
	return nil
}

func (r *memoryRepository) GetTag(ctx context.Context, tagID string) (store.Tag, error) {
	item, ok := r.state.tags[tagID]
	if !ok {
		return store.Tag{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) FindTagByName(ctx context.Context, subAccountID, name string) (*store.Tag, error) {
	for _, item := range r.state.tags {
		if item.SubAccountID == subAccountID && item.Name == name {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func sortTags(items []store.Tag) []store.Tag {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

func (r *memoryRepository) ListTags(ctx context.Context, subAccountID string) ([]store.Tag, error) {
	items := make([]store.Tag, 0)
	for _, item := range r.state.tags {
		if item.SubAccountID == subAccountID {
			items = append(items, item)
		}
	}
	return sortTags(items), nil
}

func (r *memoryRepository) ListTicketTags(ctx context.Context, ticketID string) ([]store.Tag, error) {
	items := make([]store.Tag, 0)
	for tagID := range r.state.ticketTags[ticketID] {
		if tag, ok := r.state.tags[tagID]; ok {
			items = append(items, tag)
		}
	}
	return sortTags(items), nil
}

func (r *memoryRepository) AddTicketTag(ctx context.Context, ticketID, tagID string) error {
	if err := r.record("AddTicketTag"); err != nil {
		return err
	}
	if r.state.ticketTags[ticketID] == nil {
		r.state.ticketTags[ticketID] = map[string]bool{}
	}
	r.state.ticketTags[ticketID][tagID] = true
	return nil
}

func (r *memoryRepository) RemoveTicketTag(ctx context.Context, ticketID, tagID string) error {
	if err := r.record("RemoveTicketTag"); err != nil {
		return err
	}
	delete(r.state.ticketTags[ticketID], tagID)
	return nil
}

func (r *memoryRepository) DeleteTag(ctx context.Context, tagID string) error {
	if _, ok := r.state.tags[tagID]; !ok {
		return fmt.Errorf("delete tag: %w", sql.ErrNoRows)
	}
	delete(r.state.tags, tagID)
	for _, set := range r.state.ticketTags {
		delete(set, tagID)
	}
	return nil
}

func (r *memoryRepository) GetUser(ctx context.Context, userID string) (store.User, error) {
	item, ok := r.state.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) GetContact(ctx context.Context, contactID string) (store.Contact, error) {
	item, ok := r.state.contacts[contactID]
	if !ok {
		return store.Contact{}, sql.ErrNoRows
	}
	return item, nil
}

func (r *memoryRepository) ListContacts(ctx context.Context, subAccountID string) ([]store.Contact, error) {
	items := make([]store.Contact, 0)
	for _, item := range r.state.contacts {
		if item.SubAccountID == subAccountID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *memoryRepository) addUser(id, name string) {
	r.state.users[id] = store.User{ID: id, Name: name, Email: id + "@example.com", Role: "SUBACCOUNT_USER", CreatedAt: r.now()}
}

func (r *memoryRepository) addContact(id, subAccountID, name string) {
	r.state.contacts[id] = store.Contact{ID: id, SubAccountID: subAccountID, Name: name, Email: id + "@example.com", CreatedAt: r.now()}
}

// memoryValues is a LaneValueCache backed by a map.
type memoryValues struct {
	values      map[string]money.Amount
	generations map[string]int64
	invalidated []string
	err         error
}

func newMemoryValues() *memoryValues {
	return &memoryValues{values: map[string]money.Amount{}, generations: map[string]int64{}}
}

func (c *memoryValues) Get(ctx context.Context, laneID string) (money.Amount, bool, error) {
	if c.err != nil {
		return 0, false, c.err
	}
	value, ok := c.values[laneID]
	return value, ok, nil
}

func (c *memoryValues) Generation(ctx context.Context, laneID string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.generations[laneID], nil
}

func (c *memoryValues) Set(ctx context.Context, laneID string, generation int64, value money.Amount) error {
	if c.err != nil {
		return c.err
	}
	if c.generations[laneID] != generation {
		return nil
	}
	c.values[laneID] = value
	return nil
}

func (c *memoryValues) Invalidate(ctx context.Context, laneIDs ...string) error {
	c.invalidated = append(c.invalidated, laneIDs...)
	if c.err != nil {
		return c.err
	}
	for _, id := range laneIDs {
		c.generations[id]++
		delete(c.values, id)
	}
	return nil
}

package kanban

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agencyhub/api/internal/store"
)

const subAccount = "sa_1"

type board struct {
	t        *testing.T
	ctx      context.Context
	repo     *memoryRepository
	values   *memoryValues
	manager  *Manager
	pipeline store.Pipeline
}

func newBoard(t *testing.T) *board {
	t.Helper()
	repo := newMemoryRepository()
	values := newMemoryValues()
	b := &board{t: t, ctx: context.Background(), repo: repo, values: values, manager: NewManager(repo, values)}

	pipeline, err := b.manager.CreatePipeline(b.ctx, subAccount, "Sales")
	require.NoError(t, err)
	b.pipeline = pipeline
	return b
}

func (b *board) lanes(names ...string) []store.Lane {
	b.t.Helper()
	out := make([]store.Lane, 0, len(names))
	for _, name := range names {
		lane, err := b.manager.AppendLane(b.ctx, b.pipeline.ID, name)
		require.NoError(b.t, err)
		out = append(out, lane)
	}
	return out
}

func (b *board) ticket(laneID, name string, value *float64) store.Ticket {
	b.t.Helper()
	ticket, err := b.manager.AppendTicket(b.ctx, laneID, TicketInput{Name: name, Value: value})
	require.NoError(b.t, err)
	return ticket
}

func (b *board) tag(name string) store.Tag {
	b.t.Helper()
	tag, err := b.manager.CreateTag(b.ctx, subAccount, name, "BLUE")
	require.NoError(b.t, err)
	return tag
}

// laneOrder returns lane ids in board order.
func (b *board) laneOrder() []string {
	b.t.Helper()
	lanes, err := b.repo.ListLanes(b.ctx, b.pipeline.ID)
	require.NoError(b.t, err)
	ids := make([]string, 0, len(lanes))
	for i, lane := range lanes {
		require.Equal(b.t, i, lane.Order, "lane %s is not dense", lane.ID)
		ids = append(ids, lane.ID)
	}
	return ids
}

// ticketOrder returns ticket ids of a lane in board order.
func (b *board) ticketOrder(laneID string) []string {
	b.t.Helper()
	tickets, err := b.repo.ListTickets(b.ctx, laneID)
	require.NoError(b.t, err)
	ids := make([]string, 0, len(tickets))
	for i, ticket := range tickets {
		require.Equal(b.t, i, ticket.Order, "ticket %s is not dense", ticket.ID)
		ids = append(ids, ticket.ID)
	}
	return ids
}

func tagIDs(tags []store.Tag) []string {
	ids := make([]string, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

func laneIDs(lanes []store.Lane) []string {
	ids := make([]string, 0, len(lanes))
	for _, lane := range lanes {
		ids = append(ids, lane.ID)
	}
	return ids
}

func ptr[T any](v T) *T { return &v }

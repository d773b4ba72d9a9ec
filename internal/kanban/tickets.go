package kanban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agencyhub/api/internal/money"
	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

// TicketInput carries the editable ticket fields. A nil TagIDs leaves the
// ticket's tags untouched on update; an empty slice clears them.
type TicketInput struct {
	Name           string
	Description    string
	Value          *float64
	AssignedUserID *string
	CustomerID     *string
	TagIDs         []string
}

// normalize validates the fields that need no lookups.
func (in TicketInput) normalize() (TicketInput, error) {
	name, err := cleanName(in.Name, "ticket name")
	if err != nil {
		return TicketInput{}, err
	}
	in.Name = name
	in.Description = strings.TrimSpace(in.Description)
	if in.Value != nil {
		amount, err := money.FromFloat(*in.Value)
		if err != nil {
			return TicketInput{}, invalid("ticket value must be a non-negative number")
		}
		rounded := amount.Float()
		in.Value = &rounded
	}
	in.AssignedUserID = optionalID(in.AssignedUserID)
	in.CustomerID = optionalID(in.CustomerID)
	if in.TagIDs != nil {
		in.TagIDs = dedupeIDs(in.TagIDs)
	}
	return in, nil
}

func optionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// checkReferences verifies the assignee exists and the customer and tags
// belong to the ticket's sub-account.
func checkReferences(ctx context.Context, tx Repository, subAccountID string, in TicketInput) error {
	if in.AssignedUserID != nil {
		if _, err := tx.GetUser(ctx, *in.AssignedUserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return invalid("assigned user does not exist")
			}
			return err
		}
	}
	if in.CustomerID != nil {
		contact, err := tx.GetContact(ctx, *in.CustomerID)
		if errors.Is(err, sql.ErrNoRows) {
			return invalid("customer does not exist")
		}
		if err != nil {
			return err
		}
		if contact.SubAccountID != subAccountID {
			return invalid("customer belongs to another sub-account")
		}
	}
	return checkTagScope(ctx, tx, subAccountID, in.TagIDs)
}

// AppendTicket adds a ticket after the lane's existing tickets.
func (m *Manager) AppendTicket(ctx context.Context, laneID string, input TicketInput) (store.Ticket, error) {
	in, err := input.normalize()
	if err != nil {
		return store.Ticket{}, err
	}

	var created store.Ticket
	err = m.repo.WithinTx(ctx, func(tx Repository) error {
		lane, err := tx.GetLane(ctx, laneID)
		if err != nil {
			return err
		}
		pipeline, err := tx.GetPipeline(ctx, lane.PipelineID)
		if err != nil {
			return err
		}
		if err := tx.LockPipeline(ctx, pipeline.ID); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, pipeline.SubAccountID, in); err != nil {
			return err
		}
		count, err := tx.CountTickets(ctx, laneID)
		if err != nil {
			return err
		}

		item := store.Ticket{
			ID:             util.NewID("tk"),
			LaneID:         laneID,
			Name:           in.Name,
			Description:    in.Description,
			Value:          in.Value,
			Order:          count,
			AssignedUserID: in.AssignedUserID,
			CustomerID:     in.CustomerID,
		}
		if err := tx.InsertTicket(ctx, item); err != nil {
			return err
		}
		if len(in.TagIDs) > 0 {
			if err := reconcileTags(ctx, tx, item.ID, in.TagIDs); err != nil {
				return err
			}
		}
		created, err = tx.GetTicket(ctx, item.ID)
		return err
	})
	if err != nil {
		return store.Ticket{}, err
	}
	m.invalidateLanes(ctx, laneID)
	return created, nil
}

func (m *Manager) GetTicket(ctx context.Context, ticketID string) (store.Ticket, error) {
	return m.repo.GetTicket(ctx, ticketID)
}

// UpdateTicket edits a ticket in place without changing its lane or position.
func (m *Manager) UpdateTicket(ctx context.Context, ticketID string, input TicketInput) (store.Ticket, error) {
	in, err := input.normalize()
	if err != nil {
		return store.Ticket{}, err
	}

	var updated store.Ticket
	err = m.repo.WithinTx(ctx, func(tx Repository) error {
		current, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		subAccountID, err := ticketSubAccount(ctx, tx, current.LaneID)
		if err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, subAccountID, in); err != nil {
			return err
		}

		current.Name = in.Name
		current.Description = in.Description
		current.Value = in.Value
		current.AssignedUserID = in.AssignedUserID
		current.CustomerID = in.CustomerID
		if err := tx.UpdateTicketDetails(ctx, current); err != nil {
			return err
		}
		if in.TagIDs != nil {
			if err := reconcileTags(ctx, tx, ticketID, in.TagIDs); err != nil {
				return err
			}
		}
		updated, err = tx.GetTicket(ctx, ticketID)
		return err
	})
	if err != nil {
		return store.Ticket{}, err
	}
	m.invalidateLanes(ctx, updated.LaneID)
	return updated, nil
}

// MoveTicket places a ticket at targetOrder in targetLaneID, which may be its
// current lane. A targetOrder past the end appends. Both lanes stay dense.
func (m *Manager) MoveTicket(ctx context.Context, ticketID, targetLaneID string, targetOrder int) (store.Ticket, error) {
	if targetOrder < 0 {
		return store.Ticket{}, invalid("target order must not be negative")
	}

	var (
		moved        store.Ticket
		sourceLaneID string
	)
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		source, err := tx.GetLane(ctx, ticket.LaneID)
		if err != nil {
			return err
		}
		target, err := tx.GetLane(ctx, targetLaneID)
		if err != nil {
			return err
		}
		if source.PipelineID != target.PipelineID {
			return invalid("tickets can only move between lanes of the same pipeline")
		}
		if err := tx.LockPipeline(ctx, target.PipelineID); err != nil {
			return err
		}
		// Re-read under the lock; a concurrent move may have changed the lane.
		if ticket, err = tx.GetTicket(ctx, ticketID); err != nil {
			return err
		}
		sourceLaneID = ticket.LaneID

		if sourceLaneID != targetLaneID {
			sourceTickets, err := tx.ListTickets(ctx, sourceLaneID)
			if err != nil {
				return err
			}
			ids, positions := ticketPositions(sourceTickets)
			if err := writeTicketPlan(ctx, tx, sourceLaneID, densePlan(without(ids, ticketID), positions)); err != nil {
				return err
			}
		}

		targetTickets, err := tx.ListTickets(ctx, targetLaneID)
		if err != nil {
			return err
		}
		ids, positions := ticketPositions(targetTickets)
		ordered := insertAt(without(ids, ticketID), ticketID, targetOrder)
		if err := writeTicketPlan(ctx, tx, targetLaneID, densePlan(ordered, positions)); err != nil {
			return err
		}

		moved, err = tx.GetTicket(ctx, ticketID)
		return err
	})
	if err != nil {
		return store.Ticket{}, err
	}
	m.invalidateLanes(ctx, uniqueIDs(sourceLaneID, targetLaneID)...)
	return moved, nil
}

// ReorderTickets assigns each ticket its index in orderedTicketIDs, which must
// list every ticket of the lane exactly once.
func (m *Manager) ReorderTickets(ctx context.Context, laneID string, orderedTicketIDs []string) ([]store.Ticket, error) {
	var tickets []store.Ticket
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		lane, err := tx.GetLane(ctx, laneID)
		if err != nil {
			return err
		}
		if err := tx.LockPipeline(ctx, lane.PipelineID); err != nil {
			return err
		}
		current, err := tx.ListTickets(ctx, laneID)
		if err != nil {
			return err
		}
		ids, positions := ticketPositions(current)
		if err := checkPermutation(ids, orderedTicketIDs); err != nil {
			return err
		}
		if err := writeTicketPlan(ctx, tx, laneID, densePlan(orderedTicketIDs, positions)); err != nil {
			return err
		}
		tickets, err = tx.ListTickets(ctx, laneID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// DeleteTicket removes the ticket with its tag rows and closes the gap in its lane.
func (m *Manager) DeleteTicket(ctx context.Context, ticketID string) error {
	var laneID string
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		lane, err := tx.GetLane(ctx, ticket.LaneID)
		if err != nil {
			return err
		}
		if err := tx.LockPipeline(ctx, lane.PipelineID); err != nil {
			return err
		}
		if ticket, err = tx.GetTicket(ctx, ticketID); err != nil {
			return err
		}
		laneID = ticket.LaneID
		if err := tx.DeleteTicket(ctx, ticketID); err != nil {
			return err
		}
		remaining, err := tx.ListTickets(ctx, laneID)
		if err != nil {
			return err
		}
		ids, positions := ticketPositions(remaining)
		return writeTicketPlan(ctx, tx, laneID, densePlan(ids, positions))
	})
	if err != nil {
		return err
	}
	m.invalidateLanes(ctx, laneID)
	return nil
}

// ComputeLaneValue sums the lane's ticket values, counting missing values as zero.
func (m *Manager) ComputeLaneValue(ctx context.Context, laneID string) (money.Amount, error) {
	var generation int64
	cacheable := false
	if m.values != nil {
		value, ok, err := m.values.Get(ctx, laneID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "lane value cache read failed", "lane", laneID, "error", err)
		case ok:
			return value, nil
		default:
			generation, err = m.values.Generation(ctx, laneID)
			if err != nil {
				slog.WarnContext(ctx, "lane value cache read failed", "lane", laneID, "error", err)
			} else {
				cacheable = true
			}
		}
	}

	if _, err := m.repo.GetLane(ctx, laneID); err != nil {
		return money.Zero, err
	}
	tickets, err := m.repo.ListTickets(ctx, laneID)
	if err != nil {
		return money.Zero, fmt.Errorf("compute lane value: %w", err)
	}
	value := ticketTotal(tickets)

	if cacheable {
		if err := m.values.Set(ctx, laneID, generation, value); err != nil {
			slog.WarnContext(ctx, "lane value cache write failed", "lane", laneID, "error", err)
		}
	}
	return value, nil
}

func ticketTotal(tickets []store.Ticket) money.Amount {
	values := make([]*float64, 0, len(tickets))
	for _, ticket := range tickets {
		values = append(values, ticket.Value)
	}
	return money.Sum(values...)
}

func ticketPositions(tickets []store.Ticket) ([]string, map[string]int) {
	ids := make([]string, 0, len(tickets))
	positions := make(map[string]int, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
		positions[ticket.ID] = ticket.Order
	}
	return ids, positions
}

func writeTicketPlan(ctx context.Context, tx Repository, laneID string, plan []positionWrite) error {
	for _, write := range plan {
		if err := tx.SetTicketPosition(ctx, write.ID, laneID, write.Position); err != nil {
			return err
		}
	}
	return nil
}

func uniqueIDs(ids ...string) []string {
	return dedupeIDs(ids)
}

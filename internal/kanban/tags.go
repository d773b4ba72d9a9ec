package kanban

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

// TagColors is the palette a tag may use.
var TagColors = []string{"BLUE", "ORANGE", "ROSE", "PURPLE", "GREEN"}

func validColor(color string) bool {
	for _, candidate := range TagColors {
		if candidate == color {
			return true
		}
	}
	return false
}

// CreateTag adds a tag to a sub-account. Names are unique per sub-account.
func (m *Manager) CreateTag(ctx context.Context, subAccountID, name, color string) (store.Tag, error) {
	name, err := cleanName(name, "tag name")
	if err != nil {
		return store.Tag{}, err
	}
	color = strings.ToUpper(strings.TrimSpace(color))
	if !validColor(color) {
		return store.Tag{}, invalid(fmt.Sprintf("tag color must be one of %s", strings.Join(TagColors, ", ")))
	}

	existing, err := m.repo.FindTagByName(ctx, subAccountID, name)
	if err != nil {
		return store.Tag{}, err
	}
	if existing != nil {
		return store.Tag{}, fmt.Errorf("%w: %s", ErrDuplicateTag, name)
	}

	item := store.Tag{ID: util.NewID("tag"), SubAccountID: subAccountID, Name: name, Color: color}
	if err := m.repo.InsertTag(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.Tag{}, fmt.Errorf("%w: %s", ErrDuplicateTag, name)
		}
		return store.Tag{}, err
	}
	return m.repo.GetTag(ctx, item.ID)
}

func (m *Manager) GetTag(ctx context.Context, tagID string) (store.Tag, error) {
	return m.repo.GetTag(ctx, tagID)
}

func (m *Manager) ListTags(ctx context.Context, subAccountID string) ([]store.Tag, error) {
	return m.repo.ListTags(ctx, subAccountID)
}

// DeleteTag removes the tag from every ticket that carries it. Tags do not
// contribute to lane totals, so no cache entry changes.
func (m *Manager) DeleteTag(ctx context.Context, tagID string) error {
	return m.repo.DeleteTag(ctx, tagID)
}

// FindTagsByTicket returns the ticket's current tags.
func (m *Manager) FindTagsByTicket(ctx context.Context, ticketID string) ([]store.Tag, error) {
	if _, err := m.repo.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return m.repo.ListTicketTags(ctx, ticketID)
}

// SetTicketTags replaces the ticket's tags with exactly tagIDs. Every tag must
// belong to the ticket's sub-account.
func (m *Manager) SetTicketTags(ctx context.Context, ticketID string, tagIDs []string) ([]store.Tag, error) {
	var tags []store.Tag
	err := m.repo.WithinTx(ctx, func(tx Repository) error {
		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		subAccountID, err := ticketSubAccount(ctx, tx, ticket.LaneID)
		if err != nil {
			return err
		}
		desired := dedupeIDs(tagIDs)
		if err := checkTagScope(ctx, tx, subAccountID, desired); err != nil {
			return err
		}
		if err := reconcileTags(ctx, tx, ticketID, desired); err != nil {
			return err
		}
		tags, err = tx.ListTicketTags(ctx, ticketID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// reconcileTags applies only the difference between the ticket's current tags
// and desired.
func reconcileTags(ctx context.Context, tx Repository, ticketID string, desired []string) error {
	current, err := tx.ListTicketTags(ctx, ticketID)
	if err != nil {
		return err
	}

	want := make(map[string]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}
	have := make(map[string]bool, len(current))
	for _, tag := range current {
		have[tag.ID] = true
		if !want[tag.ID] {
			if err := tx.RemoveTicketTag(ctx, ticketID, tag.ID); err != nil {
				return err
			}
		}
	}
	for _, id := range desired {
		if have[id] {
			continue
		}
		if err := tx.AddTicketTag(ctx, ticketID, id); err != nil {
			return err
		}
	}
	return nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func checkTagScope(ctx context.Context, tx Repository, subAccountID string, tagIDs []string) error {
	for _, id := range tagIDs {
		tag, err := tx.GetTag(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return invalid(fmt.Sprintf("tag %s does not exist", id))
		}
		if err != nil {
			return err
		}
		if tag.SubAccountID != subAccountID {
			return invalid(fmt.Sprintf("tag %s belongs to another sub-account", id))
		}
	}
	return nil
}

func ticketSubAccount(ctx context.Context, tx Repository, laneID string) (string, error) {
	lane, err := tx.GetLane(ctx, laneID)
	if err != nil {
		return "", err
	}
	pipeline, err := tx.GetPipeline(ctx, lane.PipelineID)
	if err != nil {
		return "", err
	}
	return pipeline.SubAccountID, nil
}

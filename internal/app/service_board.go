package app

import (
	"context"

	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/rbac"
)

type TicketInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Value          *float64 `json:"value"`
	AssignedUserID *string  `json:"assignedUserId"`
	CustomerID     *string  `json:"customerId"`
	TagIDs         []string `json:"tagIds"`
}

func (in TicketInput) toKanban() kanban.TicketInput {
	return kanban.TicketInput{
		Name:           in.Name,
		Description:    in.Description,
		Value:          in.Value,
		AssignedUserID: in.AssignedUserID,
		CustomerID:     in.CustomerID,
		TagIDs:         in.TagIDs,
	}
}

type MoveTicketInput struct {
	LaneID string `json:"laneId"`
	Order  *int   `json:"order"`
}

func (s *Service) ListPipelines(ctx context.Context, rc RequestContext, subAccountID string) ([]PipelineView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pipelines, err := s.board.ListPipelines(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	items := make([]PipelineView, 0, len(pipelines))
	for _, pipeline := range pipelines {
		items = append(items, pipelineView(pipeline))
	}
	return items, nil
}

func (s *Service) CreatePipeline(ctx context.Context, rc RequestContext, subAccountID, name string) (PipelineView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionWrite); err != nil {
		return PipelineView{}, err
	}
	pipeline, err := s.board.CreatePipeline(ctx, subAccountID, name)
	if err != nil {
		return PipelineView{}, err
	}
	s.notify(ctx, rc, subAccountID, "Created pipeline", pipeline.Name)
	return pipelineView(pipeline), nil
}

func (s *Service) GetPipelineDetails(ctx context.Context, rc RequestContext, pipelineID string) (PipelineDetailView, error) {
	if _, err := s.authorizePipeline(ctx, rc, pipelineID, rbac.ActionRead); err != nil {
		return PipelineDetailView{}, err
	}
	detail, err := s.board.GetPipelineDetails(ctx, pipelineID)
	if err != nil {
		return PipelineDetailView{}, err
	}
	return s.pipelineDetailView(detail), nil
}

func (s *Service) RenamePipeline(ctx context.Context, rc RequestContext, pipelineID, name string) (PipelineView, error) {
	sc, err := s.authorizePipeline(ctx, rc, pipelineID, rbac.ActionWrite)
	if err != nil {
		return PipelineView{}, err
	}
	pipeline, err := s.board.RenamePipeline(ctx, pipelineID, name)
	if err != nil {
		return PipelineView{}, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Updated pipeline", pipeline.Name)
	return pipelineView(pipeline), nil
}

func (s *Service) DeletePipeline(ctx context.Context, rc RequestContext, pipelineID string) error {
	sc, err := s.authorizePipeline(ctx, rc, pipelineID, rbac.ActionAdmin)
	if err != nil {
		return err
	}
	ticketIDs, err := s.pipelineTicketIDs(ctx, pipelineID)
	if err != nil {
		return err
	}
	if err := s.board.DeletePipeline(ctx, pipelineID); err != nil {
		return err
	}
	for _, id := range ticketIDs {
		s.search.DeleteTicket(id)
	}
	s.notify(ctx, rc, sc.SubAccountID, "Deleted pipeline", "")
	return nil
}

func (s *Service) pipelineTicketIDs(ctx context.Context, pipelineID string) ([]string, error) {
	lanes, err := s.store.ListLanes(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, lane := range lanes {
		laneIDs, err := s.laneTicketIDs(ctx, lane.ID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, laneIDs...)
	}
	return ids, nil
}

func (s *Service) laneTicketIDs(ctx context.Context, laneID string) ([]string, error) {
	tickets, err := s.store.ListTickets(ctx, laneID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
	}
	return ids, nil
}

func (s *Service) AppendLane(ctx context.Context, rc RequestContext, pipelineID, name string) (LaneView, error) {
	sc, err := s.authorizePipeline(ctx, rc, pipelineID, rbac.ActionWrite)
	if err != nil {
		return LaneView{}, err
	}
	lane, err := s.board.AppendLane(ctx, pipelineID, name)
	if err != nil {
		return LaneView{}, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Created lane", lane.Name)
	return laneView(lane), nil
}

func (s *Service) RenameLane(ctx context.Context, rc RequestContext, laneID, name string) (LaneView, error) {
	_, sc, err := s.authorizeLane(ctx, rc, laneID, rbac.ActionWrite)
	if err != nil {
		return LaneView{}, err
	}
	lane, err := s.board.RenameLane(ctx, laneID, name)
	if err != nil {
		return LaneView{}, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Updated lane", lane.Name)
	return laneView(lane), nil
}

func (s *Service) DeleteLane(ctx context.Context, rc RequestContext, laneID string) error {
	lane, sc, err := s.authorizeLane(ctx, rc, laneID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	ticketIDs, err := s.laneTicketIDs(ctx, laneID)
	if err != nil {
		return err
	}
	if err := s.board.DeleteLane(ctx, laneID); err != nil {
		return err
	}
	for _, id := range ticketIDs {
		s.search.DeleteTicket(id)
	}
	s.notify(ctx, rc, sc.SubAccountID, "Deleted lane", lane.Name)
	return nil
}

func (s *Service) ReorderLanes(ctx context.Context, rc RequestContext, pipelineID string, orderedLaneIDs []string) ([]LaneView, error) {
	sc, err := s.authorizePipeline(ctx, rc, pipelineID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	lanes, err := s.board.ReorderLanes(ctx, pipelineID, orderedLaneIDs)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Reordered lanes", "")
	items := make([]LaneView, 0, len(lanes))
	for _, lane := range lanes {
		items = append(items, laneView(lane))
	}
	return items, nil
}

func (s *Service) LaneValue(ctx context.Context, rc RequestContext, laneID string) (LaneValueView, error) {
	if _, _, err := s.authorizeLane(ctx, rc, laneID, rbac.ActionRead); err != nil {
		return LaneValueView{}, err
	}
	value, err := s.board.ComputeLaneValue(ctx, laneID)
	if err != nil {
		return LaneValueView{}, err
	}
	return s.laneValueView(laneID, value), nil
}

func (s *Service) AppendTicket(ctx context.Context, rc RequestContext, laneID string, input TicketInput) (TicketView, error) {
	_, sc, err := s.authorizeLane(ctx, rc, laneID, rbac.ActionWrite)
	if err != nil {
		return TicketView{}, err
	}
	ticket, err := s.board.AppendTicket(ctx, laneID, input.toKanban())
	if err != nil {
		return TicketView{}, err
	}
	s.indexTicket(ticket, sc)
	s.notify(ctx, rc, sc.SubAccountID, "Created ticket", ticket.Name)
	return ticketView(ticket), nil
}

func (s *Service) UpdateTicket(ctx context.Context, rc RequestContext, ticketID string, input TicketInput) (TicketView, error) {
	_, sc, err := s.authorizeTicket(ctx, rc, ticketID, rbac.ActionWrite)
	if err != nil {
		return TicketView{}, err
	}
	ticket, err := s.board.UpdateTicket(ctx, ticketID, input.toKanban())
	if err != nil {
		return TicketView{}, err
	}
	s.indexTicket(ticket, sc)
	s.notify(ctx, rc, sc.SubAccountID, "Updated ticket", ticket.Name)
	return ticketView(ticket), nil
}

func (s *Service) MoveTicket(ctx context.Context, rc RequestContext, ticketID string, input MoveTicketInput) (TicketView, error) {
	_, sc, err := s.authorizeTicket(ctx, rc, ticketID, rbac.ActionWrite)
	if err != nil {
		return TicketView{}, err
	}
	if input.LaneID == "" {
		return TicketView{}, validationError("laneId is required")
	}
	if input.Order == nil {
		return TicketView{}, validationError("order is required")
	}
	ticket, err := s.board.MoveTicket(ctx, ticketID, input.LaneID, *input.Order)
	if err != nil {
		return TicketView{}, err
	}
	s.indexTicket(ticket, sc)
	s.notify(ctx, rc, sc.SubAccountID, "Moved ticket", ticket.Name)
	return ticketView(ticket), nil
}

func (s *Service) ReorderTickets(ctx context.Context, rc RequestContext, laneID string, orderedTicketIDs []string) ([]TicketView, error) {
	lane, sc, err := s.authorizeLane(ctx, rc, laneID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	tickets, err := s.board.ReorderTickets(ctx, laneID, orderedTicketIDs)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Reordered tickets", lane.Name)
	items := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, ticketView(ticket))
	}
	return items, nil
}

func (s *Service) DeleteTicket(ctx context.Context, rc RequestContext, ticketID string) error {
	ticket, sc, err := s.authorizeTicket(ctx, rc, ticketID, rbac.ActionWrite)
	if err != nil {
		return err
	}
	if err := s.board.DeleteTicket(ctx, ticketID); err != nil {
		return err
	}
	s.search.DeleteTicket(ticketID)
	s.notify(ctx, rc, sc.SubAccountID, "Deleted ticket", ticket.Name)
	return nil
}

func (s *Service) TicketTags(ctx context.Context, rc RequestContext, ticketID string) ([]TagView, error) {
	if _, _, err := s.authorizeTicket(ctx, rc, ticketID, rbac.ActionRead); err != nil {
		return nil, err
	}
	tags, err := s.board.FindTagsByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return tagViews(tags), nil
}

func (s *Service) SetTicketTags(ctx context.Context, rc RequestContext, ticketID string, tagIDs []string) ([]TagView, error) {
	ticket, sc, err := s.authorizeTicket(ctx, rc, ticketID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	tags, err := s.board.SetTicketTags(ctx, ticketID, tagIDs)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rc, sc.SubAccountID, "Updated ticket tags", ticket.Name)
	return tagViews(tags), nil
}

func (s *Service) ListTags(ctx context.Context, rc RequestContext, subAccountID string) ([]TagView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return nil, err
	}
	tags, err := s.board.ListTags(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	return tagViews(tags), nil
}

func (s *Service) CreateTag(ctx context.Context, rc RequestContext, subAccountID, name, color string) (TagView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionWrite); err != nil {
		return TagView{}, err
	}
	tag, err := s.board.CreateTag(ctx, subAccountID, name, color)
	if err != nil {
		return TagView{}, err
	}
	s.notify(ctx, rc, subAccountID, "Created tag", tag.Name)
	return tagView(tag), nil
}

func (s *Service) DeleteTag(ctx context.Context, rc RequestContext, tagID string) error {
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, rc, tag.SubAccountID, rbac.ActionWrite); err != nil {
		return err
	}
	if err := s.board.DeleteTag(ctx, tagID); err != nil {
		return err
	}
	s.notify(ctx, rc, tag.SubAccountID, "Deleted tag", tag.Name)
	return nil
}

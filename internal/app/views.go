package app

import (
	"time"

	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/money"
	"agencyhub/api/internal/store"
)

type PipelineView struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type PipelineDetailView struct {
	PipelineView
	Lanes []LaneView `json:"lanes"`
}

type LaneView struct {
	ID             string            `json:"id"`
	PipelineID     string            `json:"pipelineId"`
	Name           string            `json:"name"`
	Order          int               `json:"order"`
	Value          *float64          `json:"value,omitempty"`
	FormattedValue string            `json:"formattedValue,omitempty"`
	Tickets        []BoardTicketView `json:"tickets,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type TicketView struct {
	ID             string    `json:"id"`
	LaneID         string    `json:"laneId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Value          *float64  `json:"value"`
	Order          int       `json:"order"`
	AssignedUserID *string   `json:"assignedUserId"`
	CustomerID     *string   `json:"customerId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// BoardTicketView is a ticket as rendered on the board. Tags is always a list.
type BoardTicketView struct {
	TicketView
	Tags     []TagView    `json:"tags"`
	Assigned *UserView    `json:"assigned,omitempty"`
	Customer *ContactView `json:"customer,omitempty"`
}

type TagView struct {
	ID           string `json:"id"`
	SubAccountID string `json:"subAccountId"`
	Name         string `json:"name"`
	Color        string `json:"color"`
}

type UserView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Role      string `json:"role"`
}

type ContactView struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ContactActivityView struct {
	ContactView
	Tickets        []TicketView `json:"tickets"`
	Total          float64      `json:"total"`
	FormattedTotal string       `json:"formattedTotal"`
	Active         bool         `json:"active"`
}

type LaneValueView struct {
	LaneID    string  `json:"laneId"`
	Value     float64 `json:"value"`
	Formatted string  `json:"formatted"`
	Active    bool    `json:"active"`
}

type NotificationView struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"subAccountId"`
	UserID       string    `json:"userId,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

func pipelineView(p store.Pipeline) PipelineView {
	return PipelineView{ID: p.ID, SubAccountID: p.SubAccountID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func laneView(l store.Lane) LaneView {
	return LaneView{ID: l.ID, PipelineID: l.PipelineID, Name: l.Name, Order: l.Order, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

func ticketView(t store.Ticket) TicketView {
	return TicketView{
		ID:             t.ID,
		LaneID:         t.LaneID,
		Name:           t.Name,
		Description:    t.Description,
		Value:          t.Value,
		Order:          t.Order,
		AssignedUserID: t.AssignedUserID,
		CustomerID:     t.CustomerID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func enrichedTicketView(t kanban.EnrichedTicket) BoardTicketView {
	view := BoardTicketView{TicketView: ticketView(t.Ticket), Tags: tagViews(t.Tags)}
	if t.Assigned != nil {
		user := userView(*t.Assigned)
		view.Assigned = &user
	}
	if t.Customer != nil {
		contact := contactView(*t.Customer)
		view.Customer = &contact
	}
	return view
}

func tagView(t store.Tag) TagView {
	return TagView{ID: t.ID, SubAccountID: t.SubAccountID, Name: t.Name, Color: t.Color}
}

func tagViews(tags []store.Tag) []TagView {
	items := make([]TagView, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagView(tag))
	}
	return items
}

func userView(u store.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL, Role: u.Role}
}

func contactView(c store.Contact) ContactView {
	return ContactView{ID: c.ID, SubAccountID: c.SubAccountID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

func notificationView(n store.Notification) NotificationView {
	return NotificationView{ID: n.ID, SubAccountID: n.SubAccountID, UserID: n.UserID, Message: n.Message, CreatedAt: n.CreatedAt}
}

func (s *Service) laneValueView(laneID string, value money.Amount) LaneValueView {
	return LaneValueView{LaneID: laneID, Value: value.Float(), Formatted: s.format(value), Active: value.IsActive()}
}

func (s *Service) pipelineDetailView(detail kanban.PipelineDetail) PipelineDetailView {
	view := PipelineDetailView{PipelineView: pipelineView(detail.Pipeline), Lanes: make([]LaneView, 0, len(detail.Lanes))}
	for _, lane := range detail.Lanes {
		lv := laneView(lane.Lane)
		value := lane.Value.Float()
		lv.Value = &value
		lv.FormattedValue = s.format(lane.Value)
		lv.Tickets = make([]BoardTicketView, 0, len(lane.Tickets))
		for _, ticket := range lane.Tickets {
			lv.Tickets = append(lv.Tickets, enrichedTicketView(ticket))
		}
		view.Lanes = append(view.Lanes, lv)
	}
	return view
}

func (s *Service) contactActivityView(item kanban.ContactActivity) ContactActivityView {
	tickets := make([]TicketView, 0, len(item.Tickets))
	for _, ticket := range item.Tickets {
		tickets = append(tickets, ticketView(ticket))
	}
	return ContactActivityView{
		ContactView:    contactView(item.Contact),
		Tickets:        tickets,
		Total:          item.Total.Float(),
		FormattedTotal: s.format(item.Total),
		Active:         item.Active,
	}
}

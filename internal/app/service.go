package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"agencyhub/api/internal/auth"
	"agencyhub/api/internal/config"
	"agencyhub/api/internal/kanban"
	"agencyhub/api/internal/money"
	"agencyhub/api/internal/rbac"
	"agencyhub/api/internal/search"
	"agencyhub/api/internal/store"
	"agencyhub/api/internal/util"
)

// RequestContext identifies the caller of one request. It is built from the
// bearer token and passed explicitly to every operation.
type RequestContext struct {
	UserID      string
	UserName    string
	AgencyID    string
	Role        rbac.Role
	SubAccounts []string
}

type dataStore interface {
	Ping(context.Context) error
	GetSubAccount(context.Context, string) (store.SubAccount, error)
	GetPipeline(context.Context, string) (store.Pipeline, error)
	GetLane(context.Context, string) (store.Lane, error)
	GetTicket(context.Context, string) (store.Ticket, error)
	GetTag(context.Context, string) (store.Tag, error)
	GetContact(context.Context, string) (store.Contact, error)
	ListLanes(context.Context, string) ([]store.Lane, error)
	ListTickets(context.Context, string) ([]store.Ticket, error)
	InsertContact(context.Context, store.Contact) error
	DeleteContact(context.Context, string) error
	ListTeamMembers(context.Context, string) ([]store.User, error)
	InsertNotification(context.Context, store.Notification) error
	ListNotifications(context.Context, string, int) ([]store.Notification, error)
}

type board interface {
	CreatePipeline(context.Context, string, string) (store.Pipeline, error)
	ListPipelines(context.Context, string) ([]store.Pipeline, error)
	RenamePipeline(context.Context, string, string) (store.Pipeline, error)
	DeletePipeline(context.Context, string) error
	GetPipelineDetails(context.Context, string) (kanban.PipelineDetail, error)
	AppendLane(context.Context, string, string) (store.Lane, error)
	RenameLane(context.Context, string, string) (store.Lane, error)
	DeleteLane(context.Context, string) error
	ReorderLanes(context.Context, string, []string) ([]store.Lane, error)
	ComputeLaneValue(context.Context, string) (money.Amount, error)
	AppendTicket(context.Context, string, kanban.TicketInput) (store.Ticket, error)
	UpdateTicket(context.Context, string, kanban.TicketInput) (store.Ticket, error)
	MoveTicket(context.Context, string, string, int) (store.Ticket, error)
	ReorderTickets(context.Context, string, []string) ([]store.Ticket, error)
	DeleteTicket(context.Context, string) error
	CreateTag(context.Context, string, string, string) (store.Tag, error)
	ListTags(context.Context, string) ([]store.Tag, error)
	DeleteTag(context.Context, string) error
	FindTagsByTicket(context.Context, string) ([]store.Tag, error)
	SetTicketTags(context.Context, string, []string) ([]store.Tag, error)
	GetContactsWithActivity(context.Context, string) ([]kanban.ContactActivity, error)
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexContact(search.ContactRecord)
	IndexTicket(search.TicketRecord)
	DeleteContact(string)
	DeleteTicket(string)
}

// Pinger reports the health of an optional dependency.
type Pinger interface {
	Ping(context.Context) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	board  board
	search searchIndex
	cache  Pinger
}

// New wires the service. cache may be nil when the lane value cache is disabled.
func New(cfg config.Config, dataStore *store.PostgresStore, manager *kanban.Manager, searchService *search.Service, cache Pinger) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		board:  manager,
		search: searchService,
		cache:  cache,
	}
}

func (s *Service) RequestContextFromToken(token string) (RequestContext, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return RequestContext{}, err
	}
	return RequestContext{
		UserID:      claims.Sub,
		UserName:    claims.Name,
		AgencyID:    claims.AgencyID,
		Role:        rbac.Normalize(claims.Role),
		SubAccounts: claims.SubAccounts,
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Checks pings every configured dependency. The database is always present.
func (s *Service) Checks(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if s.cache != nil {
		checks["cache"] = s.cache.Ping(ctx)
	}
	return checks
}

// authorize checks the caller's role for action and that subAccountID sits in
// the caller's agency and, for non-agency roles, in their sub-account list.
func (s *Service) authorize(ctx context.Context, rc RequestContext, subAccountID string, action rbac.Action) error {
	if !rbac.Can(rc.Role, action) {
		return forbidden()
	}
	subAccount, err := s.store.GetSubAccount(ctx, subAccountID)
	if err != nil {
		return err
	}
	if subAccount.AgencyID != rc.AgencyID {
		return forbidden()
	}
	if rbac.AgencyWide(rc.Role) || slices.Contains(rc.SubAccounts, subAccountID) {
		return nil
	}
	return forbidden()
}

// scope locates the board an entity lives on.
type scope struct {
	SubAccountID string
	PipelineID   string
}

func (s *Service) pipelineScope(ctx context.Context, pipelineID string) (scope, error) {
	pipeline, err := s.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return scope{}, err
	}
	return scope{SubAccountID: pipeline.SubAccountID, PipelineID: pipeline.ID}, nil
}

func (s *Service) laneScope(ctx context.Context, laneID string) (store.Lane, scope, error) {
	lane, err := s.store.GetLane(ctx, laneID)
	if err != nil {
		return store.Lane{}, scope{}, err
	}
	sc, err := s.pipelineScope(ctx, lane.PipelineID)
	return lane, sc, err
}

func (s *Service) ticketScope(ctx context.Context, ticketID string) (store.Ticket, scope, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return store.Ticket{}, scope{}, err
	}
	_, sc, err := s.laneScope(ctx, ticket.LaneID)
	return ticket, sc, err
}

func (s *Service) authorizePipeline(ctx context.Context, rc RequestContext, pipelineID string, action rbac.Action) (scope, error) {
	sc, err := s.pipelineScope(ctx, pipelineID)
	if err != nil {
		return scope{}, err
	}
	return sc, s.authorize(ctx, rc, sc.SubAccountID, action)
}

func (s *Service) authorizeLane(ctx context.Context, rc RequestContext, laneID string, action rbac.Action) (store.Lane, scope, error) {
	lane, sc, err := s.laneScope(ctx, laneID)
	if err != nil {
		return store.Lane{}, scope{}, err
	}
	return lane, sc, s.authorize(ctx, rc, sc.SubAccountID, action)
}

func (s *Service) authorizeTicket(ctx context.Context, rc RequestContext, ticketID string, action rbac.Action) (store.Ticket, scope, error) {
	ticket, sc, err := s.ticketScope(ctx, ticketID)
	if err != nil {
		return store.Ticket{}, scope{}, err
	}
	return ticket, sc, s.authorize(ctx, rc, sc.SubAccountID, action)
}

// notify records an activity row. Failures are logged; the mutation already happened.
func (s *Service) notify(ctx context.Context, rc RequestContext, subAccountID, action, subject string) {
	message := fmt.Sprintf("%s | %s", rc.UserName, action)
	if subject != "" {
		message += " | " + subject
	}
	err := s.store.InsertNotification(ctx, store.Notification{
		ID:           util.NewID("ntf"),
		AgencyID:     rc.AgencyID,
		SubAccountID: subAccountID,
		UserID:       rc.UserID,
		Message:      message,
	})
	if err != nil {
		slog.WarnContext(ctx, "record notification failed", "sub_account_id", subAccountID, "error", err)
	}
}

func (s *Service) format(amount money.Amount) string {
	formatted, err := money.Format(amount, s.cfg.Currency)
	if err != nil {
		return money.MustFormat(amount, "USD")
	}
	return formatted
}

func (s *Service) indexTicket(ticket store.Ticket, sc scope) {
	s.search.IndexTicket(search.TicketRecord{
		ID:           ticket.ID,
		Name:         ticket.Name,
		Description:  ticket.Description,
		SubAccountID: sc.SubAccountID,
		PipelineID:   sc.PipelineID,
		LaneID:       ticket.LaneID,
	})
}

func (s *Service) ListTeamMembers(ctx context.Context, rc RequestContext, subAccountID string) ([]UserView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return nil, err
	}
	users, err := s.store.ListTeamMembers(ctx, subAccountID)
	if err != nil {
		return nil, err
	}
	items := make([]UserView, 0, len(users))
	for _, user := range users {
		items = append(items, userView(user))
	}
	return items, nil
}

func (s *Service) ListNotifications(ctx context.Context, rc RequestContext, subAccountID string, limit int) ([]NotificationView, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return nil, err
	}
	notifications, err := s.store.ListNotifications(ctx, subAccountID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]NotificationView, 0, len(notifications))
	for _, notification := range notifications {
		items = append(items, notificationView(notification))
	}
	return items, nil
}

func (s *Service) Search(ctx context.Context, rc RequestContext, subAccountID, text, filterType string, limit, offset int) (search.Response, error) {
	if err := s.authorize(ctx, rc, subAccountID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	resultType := search.ResultType(strings.ToLower(strings.TrimSpace(filterType)))
	switch resultType {
	case "", search.ResultContact, search.ResultTicket:
	default:
		return search.Response{}, domainError(http.StatusBadRequest, "INVALID_FILTER", "type must be contact or ticket", nil)
	}
	return s.search.Search(ctx, search.Query{
		Text:         strings.TrimSpace(text),
		FilterType:   resultType,
		SubAccountID: subAccountID,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken)
}

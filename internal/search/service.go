package search

import (
	"context"
	"log/slog"
)

// Engine is a search backend that also accepts index writes.
type Engine interface {
	Searcher
	Indexer
}

// Loader reads every searchable record from the primary database.
type Loader interface {
	LoadAllRecords(ctx context.Context) ([]ContactRecord, []TicketRecord, error)
}

// FallbackSearcher is a Searcher that can also feed a full reindex.
type FallbackSearcher interface {
	Searcher
	Loader
}

// Service is the facade that tries Meilisearch first and falls back to Postgres.
type Service struct {
	engine   Engine
	fallback FallbackSearcher
}

// NewService creates a search service. engine may be nil if Meilisearch is not configured.
func NewService(engine Engine, fallback FallbackSearcher) *Service {
	return &Service{engine: engine, fallback: fallback}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		slog.WarnContext(ctx, "meilisearch error, falling back to postgres", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		slog.ErrorContext(ctx, "postgres search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexContact indexes a contact (fire-and-forget).
func (s *Service) IndexContact(c ContactRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexContacts([]ContactRecord{c}); err != nil {
			slog.Warn("index contact failed", "contact", c.ID, "error", err)
		}
	}()
}

// IndexTicket indexes a ticket (fire-and-forget).
func (s *Service) IndexTicket(t TicketRecord) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.IndexTickets([]TicketRecord{t}); err != nil {
			slog.Warn("index ticket failed", "ticket", t.ID, "error", err)
		}
	}()
}

func (s *Service) DeleteContact(id string) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.DeleteContact(id); err != nil {
			slog.Warn("delete contact from index failed", "contact", id, "error", err)
		}
	}()
}

func (s *Service) DeleteTicket(id string) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.DeleteTicket(id); err != nil {
			slog.Warn("delete ticket from index failed", "ticket", id, "error", err)
		}
	}()
}

// ReindexAll pushes every contact and ticket from Postgres into the engine.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.engineReady() || s.fallback == nil {
		return
	}
	contacts, tickets, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reindex load failed", "error", err)
		return
	}
	if err := s.engine.IndexContacts(contacts); err != nil {
		slog.ErrorContext(ctx, "reindex contacts failed", "error", err)
	}
	if err := s.engine.IndexTickets(tickets); err != nil {
		slog.ErrorContext(ctx, "reindex tickets failed", "error", err)
	}
	slog.InfoContext(ctx, "search reindex complete", "contacts", len(contacts), "tickets", len(tickets))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultContact ResultType = "contact"
	ResultTicket  ResultType = "ticket"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	SubAccountID string     `json:"subAccountId"`
	PipelineID   string     `json:"pipelineId,omitempty"`
	LaneID       string     `json:"laneId,omitempty"`
}

// Query describes a search request. Results never cross SubAccountID.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	SubAccountID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexContacts(contacts []ContactRecord) error
	IndexTickets(tickets []TicketRecord) error
	DeleteContact(id string) error
	DeleteTicket(id string) error
}

// ContactRecord is the data we index for a contact.
type ContactRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	SubAccountID string `json:"subAccountId"`
}

// TicketRecord is the data we index for a ticket.
type TicketRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	SubAccountID string `json:"subAccountId"`
	PipelineID   string `json:"pipelineId"`
	LaneID       string `json:"laneId"`
}

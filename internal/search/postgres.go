package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Postgres implements Searcher with ILIKE matching. It is the fallback when
// Meilisearch is not configured or unhealthy.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *Postgres) Healthy() bool {
	return true
}

// likePattern escapes LIKE wildcards in text and wraps it for a substring match.
func likePattern(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(text)) + "%"
}

func (p *Postgres) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultContact {
		subQueries = append(subQueries, `
			SELECT 'contact'::text AS type, c.id, c.name AS title, c.email AS snippet,
				c.sub_account_id, ''::text AS pipeline_id, ''::text AS lane_id, c.created_at
			FROM contacts c
			WHERE c.sub_account_id = $2 AND (c.name ILIKE $1 OR c.email ILIKE $1)`)
	}
	if q.FilterType == "" || q.FilterType == ResultTicket {
		subQueries = append(subQueries, `
			SELECT 'ticket'::text AS type, t.id, t.name AS title, COALESCE(t.description, '') AS snippet,
				p.sub_account_id, p.id AS pipeline_id, l.id AS lane_id, t.created_at
			FROM tickets t
			JOIN lanes l ON l.id = t.lane_id
			JOIN pipelines p ON p.id = l.pipeline_id
			WHERE p.sub_account_id = $2 AND (t.name ILIKE $1 OR t.description ILIKE $1)`)
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	args := []any{likePattern(q.Text), q.SubAccountID}

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT type, id, title, snippet, sub_account_id, pipeline_id, lane_id
		FROM (%s) sub
		ORDER BY created_at DESC, id ASC
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SubAccountID, &r.PipelineID, &r.LaneID); err != nil {
			return nil, 0, fmt.Errorf("postgres search scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for a full reindex.
func (p *Postgres) LoadAllRecords(ctx context.Context) ([]ContactRecord, []TicketRecord, error) {
	contactRows, err := p.db.QueryContext(ctx, `SELECT id, name, email, sub_account_id FROM contacts`)
	if err != nil {
		return nil, nil, fmt.Errorf("load contacts: %w", err)
	}
	defer contactRows.Close()

	contacts := make([]ContactRecord, 0)
	for contactRows.Next() {
		var c ContactRecord
		if err := contactRows.Scan(&c.ID, &c.Name, &c.Email, &c.SubAccountID); err != nil {
			return nil, nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := contactRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate contacts: %w", err)
	}

	ticketRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.name, COALESCE(t.description, ''), p.sub_account_id, p.id, l.id
		FROM tickets t
		JOIN lanes l ON l.id = t.lane_id
		JOIN pipelines p ON p.id = l.pipeline_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tickets: %w", err)
	}
	defer ticketRows.Close()

	tickets := make([]TicketRecord, 0)
	for ticketRows.Next() {
		var t TicketRecord
		if err := ticketRows.Scan(&t.ID, &t.Name, &t.Description, &t.SubAccountID, &t.PipelineID, &t.LaneID); err != nil {
			return nil, nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := ticketRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return contacts, tickets, nil
}

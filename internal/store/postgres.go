package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db   DBTX
	root *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, root: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.root
}

// WithinTx runs fn against a store bound to a single transaction. Nested calls
// reuse the outer transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx *PostgresStore) error) error {
	return s.runTx(ctx, nil, fn)
}

// WithinSnapshot runs fn in a read-only REPEATABLE READ transaction, so every
// query in fn sees the same committed state.
func (s *PostgresStore) WithinSnapshot(ctx context.Context, fn func(tx *PostgresStore) error) error {
	return s.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *PostgresStore) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *PostgresStore) error) error {
	if s.root == nil {
		return fn(s)
	}

	tx, err := s.root.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&PostgresStore{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.root != nil {
		return s.root.PingContext(ctx)
	}
	var one int
	return s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
}

// Sub-accounts and users

func (s *PostgresStore) GetSubAccount(ctx context.Context, subAccountID string) (SubAccount, error) {
	var item SubAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agency_id, name, created_at
		FROM sub_accounts
		WHERE id=$1
	`, subAccountID).Scan(&item.ID, &item.AgencyID, &item.Name, &item.CreatedAt)
	if err != nil {
		return SubAccount{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var item User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(agency_id, ''), name, email, avatar_url, role, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&item.ID, &item.AgencyID, &item.Name, &item.Email, &item.AvatarURL, &item.Role, &item.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return item, nil
}

// ListTeamMembers returns the users with access to a sub-account, plus the agency owners and admins.
func (s *PostgresStore) ListTeamMembers(ctx context.Context, subAccountID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, COALESCE(u.agency_id, ''), u.name, u.email, u.avatar_url, u.role, u.created_at
		FROM users u
		JOIN sub_accounts sa ON sa.id = $1
		WHERE EXISTS (
				SELECT 1 FROM sub_account_permissions p
				WHERE p.user_id = u.id AND p.sub_account_id = sa.id AND p.access
			)
			OR (u.agency_id = sa.agency_id AND u.role IN ('AGENCY_OWNER', 'AGENCY_ADMIN'))
		ORDER BY u.name ASC
	`, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var item User
		if err := rows.Scan(&item.ID, &item.AgencyID, &item.Name, &item.Email, &item.AvatarURL, &item.Role, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team members: %w", err)
	}
	return items, nil
}

// Pipelines

func (s *PostgresStore) InsertPipeline(ctx context.Context, item Pipeline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipelines (id, sub_account_id, name)
		VALUES ($1, $2, $3)
	`, item.ID, item.SubAccountID, item.Name)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) GetPipeline(ctx context.Context, pipelineID string) (Pipeline, error) {
	var item Pipeline
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, created_at, updated_at
		FROM pipelines
		WHERE id=$1
	`, pipelineID).Scan(&item.ID, &item.SubAccountID, &item.Name, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Pipeline{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListPipelines(ctx context.Context, subAccountID string) ([]Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub_account_id, name, created_at, updated_at
		FROM pipelines
		WHERE sub_account_id=$1
		ORDER BY created_at ASC, id ASC
	`, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	items := make([]Pipeline, 0)
	for rows.Next() {
		var item Pipeline
		if err := rows.Scan(&item.ID, &item.SubAccountID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePipelineName(ctx context.Context, pipelineID, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE pipelines SET name=$2, updated_at=NOW() WHERE id=$1`, pipelineID, name)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	return requireAffected(result, "update pipeline")
}

func (s *PostgresStore) DeletePipeline(ctx context.Context, pipelineID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE id=$1`, pipelineID)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	return requireAffected(result, "delete pipeline")
}

// LockPipeline serializes every lane and ticket ordering write on one pipeline
// for the rest of the transaction.
func (s *PostgresStore) LockPipeline(ctx context.Context, pipelineID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM pipelines WHERE id=$1 FOR UPDATE`, pipelineID).Scan(&id)
	if err != nil {
		return fmt.Errorf("lock pipeline: %w", err)
	}
	return nil
}

// Lanes

const laneColumns = `id, pipeline_id, name, position, created_at, updated_at`

func scanLane(row interface{ Scan(...any) error }) (Lane, error) {
	var item Lane
	err := row.Scan(&item.ID, &item.PipelineID, &item.Name, &item.Order, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertLane(ctx context.Context, item Lane) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lanes (id, pipeline_id, name, position)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.PipelineID, item.Name, item.Order)
	if err != nil {
		return fmt.Errorf("insert lane: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) GetLane(ctx context.Context, laneID string) (Lane, error) {
	return scanLane(s.db.QueryRowContext(ctx, `SELECT `+laneColumns+` FROM lanes WHERE id=$1`, laneID))
}

func (s *PostgresStore) ListLanes(ctx context.Context, pipelineID string) ([]Lane, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+laneColumns+`
		FROM lanes
		WHERE pipeline_id=$1
		ORDER BY position ASC, created_at ASC
	`, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list lanes: %w", err)
	}
	defer rows.Close()

	items := make([]Lane, 0)
	for rows.Next() {
		item, err := scanLane(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lane: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lanes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountLanes(ctx context.Context, pipelineID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lanes WHERE pipeline_id=$1`, pipelineID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count lanes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateLaneName(ctx context.Context, laneID, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE lanes SET name=$2, updated_at=NOW() WHERE id=$1`, laneID, name)
	if err != nil {
		return fmt.Errorf("update lane: %w", err)
	}
	return requireAffected(result, "update lane")
}

func (s *PostgresStore) SetLanePosition(ctx context.Context, laneID string, position int) error {
	result, err := s.db.ExecContext(ctx, `UPDATE lanes SET position=$2, updated_at=NOW() WHERE id=$1`, laneID, position)
	if err != nil {
		return fmt.Errorf("set lane position: %w", err)
	}
	return requireAffected(result, "set lane position")
}

func (s *PostgresStore) DeleteLane(ctx context.Context, laneID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM lanes WHERE id=$1`, laneID)
	if err != nil {
		return fmt.Errorf("delete lane: %w", err)
	}
	return requireAffected(result, "delete lane")
}

// Tickets

const ticketColumns = `id, lane_id, name, COALESCE(description, ''), value::float8, position, assigned_user_id, customer_id, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (Ticket, error) {
	var (
		item     Ticket
		value    sql.NullFloat64
		assigned sql.NullString
		customer sql.NullString
	)
	if err := row.Scan(&item.ID, &item.LaneID, &item.Name, &item.Description, &value, &item.Order, &assigned, &customer, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Ticket{}, err
	}
	if value.Valid {
		v := value.Float64
		item.Value = &v
	}
	if assigned.Valid {
		item.AssignedUserID = &assigned.String
	}
	if customer.Valid {
		item.CustomerID = &customer.String
	}
	return item, nil
}

func (s *PostgresStore) listTickets(ctx context.Context, query string, arg any) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0)
	for rows.Next() {
		item, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTicket(ctx context.Context, item Ticket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, lane_id, name, description, value, position, assigned_user_id, customer_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`, item.ID, item.LaneID, item.Name, item.Description, item.Value, item.Order, item.AssignedUserID, item.CustomerID)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, ticketID string) (Ticket, error) {
	return scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, ticketID))
}

func (s *PostgresStore) ListTickets(ctx context.Context, laneID string) ([]Ticket, error) {
	return s.listTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE lane_id=$1
		ORDER BY position ASC, created_at ASC
	`, laneID)
}

func (s *PostgresStore) ListTicketsByCustomer(ctx context.Context, contactID string) ([]Ticket, error) {
	return s.listTickets(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE customer_id=$1
		ORDER BY created_at ASC
	`, contactID)
}

func (s *PostgresStore) CountTickets(ctx context.Context, laneID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE lane_id=$1`, laneID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return count, nil
}

// UpdateTicketDetails writes the editable fields; lane and position are left alone.
func (s *PostgresStore) UpdateTicketDetails(ctx context.Context, item Ticket) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET name=$2, description=NULLIF($3, ''), value=$4, assigned_user_id=$5, customer_id=$6, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, item.Value, item.AssignedUserID, item.CustomerID)
	if err != nil {
		return fmt.Errorf("update ticket: %w", translateErr(err))
	}
	return requireAffected(result, "update ticket")
}

func (s *PostgresStore) SetTicketPosition(ctx context.Context, ticketID, laneID string, position int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET lane_id=$2, position=$3, updated_at=NOW() WHERE id=$1
	`, ticketID, laneID, position)
	if err != nil {
		return fmt.Errorf("set ticket position: %w", err)
	}
	return requireAffected(result, "set ticket position")
}

func (s *PostgresStore) DeleteTicket(ctx context.Context, ticketID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=$1`, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	return requireAffected(result, "delete ticket")
}

// Tags

func (s *PostgresStore) InsertTag(ctx context.Context, item Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, sub_account_id, name, color)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.SubAccountID, item.Name, item.Color)
	if err != nil {
		return fmt.Errorf("insert tag: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) GetTag(ctx context.Context, tagID string) (Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, color, created_at FROM tags WHERE id=$1
	`, tagID).Scan(&item.ID, &item.SubAccountID, &item.Name, &item.Color, &item.CreatedAt)
	if err != nil {
		return Tag{}, err
	}
	return item, nil
}

// FindTagByName returns nil when the sub-account has no tag with that name.
func (s *PostgresStore) FindTagByName(ctx context.Context, subAccountID, name string) (*Tag, error) {
	var item Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, color, created_at FROM tags WHERE sub_account_id=$1 AND name=$2
	`, subAccountID, name).Scan(&item.ID, &item.SubAccountID, &item.Name, &item.Color, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) listTags(ctx context.Context, query string, arg string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.SubAccountID, &item.Name, &item.Color, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTags(ctx context.Context, subAccountID string) ([]Tag, error) {
	return s.listTags(ctx, `
		SELECT id, sub_account_id, name, color, created_at
		FROM tags
		WHERE sub_account_id=$1
		ORDER BY name ASC
	`, subAccountID)
}

func (s *PostgresStore) ListTicketTags(ctx context.Context, ticketID string) ([]Tag, error) {
	return s.listTags(ctx, `
		SELECT t.id, t.sub_account_id, t.name, t.color, t.created_at
		FROM ticket_tags tt
		JOIN tags t ON t.id = tt.tag_id
		WHERE tt.ticket_id=$1
		ORDER BY t.name ASC
	`, ticketID)
}

func (s *PostgresStore) AddTicketTag(ctx context.Context, ticketID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_tags (ticket_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (ticket_id, tag_id) DO NOTHING
	`, ticketID, tagID)
	if err != nil {
		return fmt.Errorf("add ticket tag: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveTicketTag(ctx context.Context, ticketID, tagID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ticket_tags WHERE ticket_id=$1 AND tag_id=$2`, ticketID, tagID); err != nil {
		return fmt.Errorf("remove ticket tag: %w", err)
	}
	return nil
}

// DeleteTag removes the tag; its ticket_tags rows go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeleteTag(ctx context.Context, tagID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1`, tagID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return requireAffected(result, "delete tag")
}

// Contacts

func (s *PostgresStore) InsertContact(ctx context.Context, item Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, sub_account_id, name, email)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.SubAccountID, item.Name, item.Email)
	if err != nil {
		return fmt.Errorf("insert contact: %w", translateErr(err))
	}
	return nil
}

func (s *PostgresStore) GetContact(ctx context.Context, contactID string) (Contact, error) {
	var item Contact
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sub_account_id, name, email, created_at FROM contacts WHERE id=$1
	`, contactID).Scan(&item.ID, &item.SubAccountID, &item.Name, &item.Email, &item.CreatedAt)
	if err != nil {
		return Contact{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, subAccountID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sub_account_id, name, email, created_at
		FROM contacts
		WHERE sub_account_id=$1
		ORDER BY created_at ASC, id ASC
	`, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		var item Contact
		if err := rows.Scan(&item.ID, &item.SubAccountID, &item.Name, &item.Email, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

// DeleteContact keeps the contact's tickets; customer_id is nulled by ON DELETE SET NULL.
func (s *PostgresStore) DeleteContact(ctx context.Context, contactID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id=$1`, contactID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	return requireAffected(result, "delete contact")
}

// Notifications

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, agency_id, sub_account_id, user_id, message)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
	`, item.ID, item.AgencyID, item.SubAccountID, item.UserID, item.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, subAccountID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agency_id, COALESCE(sub_account_id, ''), COALESCE(user_id, ''), message, created_at
		FROM notifications
		WHERE sub_account_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, subAccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.AgencyID, &item.SubAccountID, &item.UserID, &item.Message, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

package store

import "time"

type SubAccount struct {
	ID        string
	AgencyID  string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID        string
	AgencyID  string
	Name      string
	Email     string
	AvatarURL string
	Role      string
	CreatedAt time.Time
}

type Pipeline struct {
	ID           string
	SubAccountID string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Lane is a column of a pipeline. Order is dense and zero-based within the pipeline.
type Lane struct {
	ID         string
	PipelineID string
	Name       string
	Order      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Ticket is a deal card. Order is dense and zero-based within its lane.
type Ticket struct {
	ID             string
	LaneID         string
	Name           string
	Description    string
	Value          *float64
	Order          int
	AssignedUserID *string
	CustomerID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Tag struct {
	ID           string
	SubAccountID string
	Name         string
	Color        string
	CreatedAt    time.Time
}

type Contact struct {
	ID           string
	SubAccountID string
	Name         string
	Email        string
	CreatedAt    time.Time
}

// Notification is an activity record; delivery happens elsewhere.
type Notification struct {
	ID           string
	AgencyID     string
	SubAccountID string
	UserID       string
	Message      string
	CreatedAt    time.Time
}

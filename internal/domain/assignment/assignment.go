// Package assignment defines lead assignments and the share grants that
// mirror them.
package assignment

import "time"

// Status is the lifecycle state of an assignment.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Assignment records that a user is working a lead. At most one per lead is open.
type Assignment struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	UserID    string    `json:"user_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
}

// Open reports whether the assignment is still active.
func (a *Assignment) Open() bool { return a.Status == StatusOpen }

// ShareGrant gives a single user record-level access to a lead.
type ShareGrant struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	UserID    string    `json:"user_id"`
	CanRead   bool      `json:"can_read"`
	CanWrite  bool      `json:"can_write"`
	CanShare  bool      `json:"can_share"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnerGrant is the grant issued to a lead's owner: read and write, never reshare.
func OwnerGrant(leadID, userID string) ShareGrant {
	return ShareGrant{LeadID: leadID, UserID: userID, CanRead: true, CanWrite: true}
}

// AssignRequest is the body of an assign call.
type AssignRequest struct {
	UserID string `json:"user_id"`
}

// Validate checks that the request names a user.
func (r *AssignRequest) Validate() error {
	if r.UserID == "" {
		return errUserRequired
	}
	return nil
}

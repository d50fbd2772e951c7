// Package lead defines the inbound lead record and its dedup projections.
package lead

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field names a writable lead column. The string value is the wire name.
type Field string

const (
	FieldContactKey     Field = "contact_key"
	FieldPipeline       Field = "pipeline"
	FieldPlatform       Field = "platform"
	FieldSource         Field = "source"
	FieldOwner          Field = "owner_user_id"
	FieldStage          Field = "stage"
	FieldName           Field = "name"
	FieldEmail          Field = "email"
	FieldMessage        Field = "message"
	FieldNotes          Field = "notes"
	FieldCountry        Field = "country"
	FieldLandingPage    Field = "landing_page"
	FieldVPNStatus      Field = "vpn_status"
	FieldIPAddress      Field = "ip_address"
	FieldRemoteLocation Field = "remote_location"
	FieldUserAgent      Field = "user_agent"
)

// LockedFields may only be set at creation, and then only by a team lead.
var LockedFields = []Field{FieldContactKey, FieldPipeline, FieldPlatform, FieldSource}

// writable lists every field a save may carry.
var writable = map[Field]bool{
	FieldContactKey:     true,
	FieldPipeline:       true,
	FieldPlatform:       true,
	FieldSource:         true,
	FieldOwner:          true,
	FieldStage:          true,
	FieldName:           true,
	FieldEmail:          true,
	FieldMessage:        true,
	FieldNotes:          true,
	FieldCountry:        true,
	FieldLandingPage:    true,
	FieldVPNStatus:      true,
	FieldIPAddress:      true,
	FieldRemoteLocation: true,
	FieldUserAgent:      true,
}

// Lead is one inbound contact record.
type Lead struct {
	ID          string `json:"id"`
	ContactKey  string `json:"contact_key"`
	Pipeline    string `json:"pipeline"`
	Platform    string `json:"platform"`
	Source      string `json:"source"`
	OwnerUserID string `json:"owner_user_id"`

	IsLatest       bool   `json:"is_latest"`
	IsArchived     bool   `json:"is_archived"`
	DuplicateCount int    `json:"duplicate_count"`
	PrimaryLeadID  string `json:"primary_lead_id,omitempty"`

	Stage          string `json:"stage,omitempty"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Message        string `json:"message,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Country        string `json:"country,omitempty"`
	LandingPage    string `json:"landing_page,omitempty"`
	VPNStatus      string `json:"vpn_status,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	RemoteLocation string `json:"remote_location,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`

	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Value returns the current value of f.
func (l *Lead) Value(f Field) string {
	switch f {
	case FieldContactKey:
		return l.ContactKey
	case FieldPipeline:
		return l.Pipeline
	case FieldPlatform:
		return l.Platform
	case FieldSource:
		return l.Source
	case FieldOwner:
		return l.OwnerUserID
	case FieldStage:
		return l.Stage
	case FieldName:
		return l.Name
	case FieldEmail:
		return l.Email
	case FieldMessage:
		return l.Message
	case FieldNotes:
		return l.Notes
	case FieldCountry:
		return l.Country
	case FieldLandingPage:
		return l.LandingPage
	case FieldVPNStatus:
		return l.VPNStatus
	case FieldIPAddress:
		return l.IPAddress
	case FieldRemoteLocation:
		return l.RemoteLocation
	case FieldUserAgent:
		return l.UserAgent
	}
	return ""
}

// Set assigns v to f. Unknown fields are ignored.
func (l *Lead) Set(f Field, v string) {
	switch f {
	case FieldContactKey:
		l.ContactKey = v
	case FieldPipeline:
		l.Pipeline = v
	case FieldPlatform:
		l.Platform = v
	case FieldSource:
		l.Source = v
	case FieldOwner:
		l.OwnerUserID = v
	case FieldStage:
		l.Stage = v
	case FieldName:
		l.Name = v
	case FieldEmail:
		l.Email = v
	case FieldMessage:
		l.Message = v
	case FieldNotes:
		l.Notes = v
	case FieldCountry:
		l.Country = v
	case FieldLandingPage:
		l.LandingPage = v
	case FieldVPNStatus:
		l.VPNStatus = v
	case FieldIPAddress:
		l.IPAddress = v
	case FieldRemoteLocation:
		l.RemoteLocation = v
	case FieldUserAgent:
		l.UserAgent = v
	}
}

// Apply copies every change onto the lead.
func (l *Lead) Apply(c Changes) {
	for f, v := range c {
		l.Set(f, v)
	}
}

// Changes is the set of fields carried by a save. A present key with an
// empty value clears the field.
type Changes map[Field]string

// Has reports whether the save carries f.
func (c Changes) Has(f Field) bool {
	_, ok := c[f]
	return ok
}

// Fields returns the carried fields in sorted order.
func (c Changes) Fields() []Field {
	out := make([]Field, 0, len(c))
	for f := range c {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalize trims the contact key. Grouping is by exact string equality
// after trimming, nothing else is rewritten.
func (c Changes) Normalize() {
	if v, ok := c[FieldContactKey]; ok {
		c[FieldContactKey] = strings.TrimSpace(v)
	}
}

// Validate rejects unknown field names.
func (c Changes) Validate() error {
	for f := range c {
		if !writable[f] {
			return fmt.Errorf("unknown field: %s", f)
		}
	}
	return nil
}

// ChangesFromMap converts a decoded JSON object into Changes.
func ChangesFromMap(m map[string]string) Changes {
	c := make(Changes, len(m))
	for k, v := range m {
		c[Field(k)] = v
	}
	return c
}

// DedupState is the group bookkeeping written by the dedup indexer.
type DedupState struct {
	IsLatest       bool
	IsArchived     bool
	DuplicateCount int
	PrimaryLeadID  string
}

// DedupState returns the lead's current group bookkeeping.
func (l *Lead) DedupState() DedupState {
	return DedupState{
		IsLatest:       l.IsLatest,
		IsArchived:     l.IsArchived,
		DuplicateCount: l.DuplicateCount,
		PrimaryLeadID:  l.PrimaryLeadID,
	}
}

// Canonical is the state of the newest member of a group of n leads.
func Canonical(id string, n int) DedupState {
	return DedupState{IsLatest: true, DuplicateCount: n - 1, PrimaryLeadID: id}
}

// Archived is the state of every older member of a group.
func Archived(canonicalID string) DedupState {
	return DedupState{IsArchived: true, PrimaryLeadID: canonicalID}
}

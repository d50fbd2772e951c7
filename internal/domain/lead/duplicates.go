package lead

import "time"

// DuplicateSummary backs the duplicate-count badge on a lead.
type DuplicateSummary struct {
	DuplicateCount int    `json:"duplicate_count"`
	CanonicalID    string `json:"canonical_id,omitempty"`
}

// DuplicateRow is the projection of one archived sibling.
type DuplicateRow struct {
	LeadID         string    `json:"lead_id"`
	Owner          string    `json:"owner,omitempty"`
	Stage          string    `json:"stage,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Country        string    `json:"country,omitempty"`
	Message        string    `json:"message,omitempty"`
	Source         string    `json:"source,omitempty"`
	PageURL        string    `json:"page_url,omitempty"`
	VPNStatus      string    `json:"vpn_status,omitempty"`
	RemoteIP       string    `json:"remote_ip,omitempty"`
	RemoteLocation string    `json:"remote_location,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// DuplicateList is the canonical id plus its archived siblings, newest first.
type DuplicateList struct {
	CanonicalID string         `json:"canonical_id,omitempty"`
	Rows        []DuplicateRow `json:"rows"`
}

// Summarize builds the summary for a group listed newest first.
func Summarize(group []Lead) DuplicateSummary {
	if len(group) == 0 {
		return DuplicateSummary{}
	}
	return DuplicateSummary{DuplicateCount: len(group) - 1, CanonicalID: group[0].ID}
}

// Siblings projects every member after the canonical one.
func Siblings(group []Lead) DuplicateList {
	out := DuplicateList{Rows: []DuplicateRow{}}
	if len(group) == 0 {
		return out
	}
	out.CanonicalID = group[0].ID
	for i := range group[1:] {
		out.Rows = append(out.Rows, rowOf(&group[i+1]))
	}
	return out
}

func rowOf(l *Lead) DuplicateRow {
	return DuplicateRow{
		LeadID:         l.ID,
		Owner:          l.CreatedBy,
		Stage:          l.Stage,
		CreatedAt:      l.CreatedAt,
		Country:        l.Country,
		Message:        l.Message,
		Source:         l.Source,
		PageURL:        l.LandingPage,
		VPNStatus:      l.VPNStatus,
		RemoteIP:       l.IPAddress,
		RemoteLocation: l.RemoteLocation,
		UserAgent:      l.UserAgent,
	}
}
